// Package imaging converts images to DLNA image profiles and decorates
// thumbnails.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/h2non/filetype"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kksharma1618/mediaserver/dlna"
)

var ErrUnsupportedFormat = errors.New("imaging: unsupported format")

// Filter transforms a decoded image. Filters never modify their input.
type Filter func(image.Image) image.Image

// Chain applies filters in order. Nil filters are skipped.
func Chain(filters ...Filter) Filter {
	return func(img image.Image) image.Image {
		for _, f := range filters {
			if f != nil {
				img = f(img)
			}
		}
		return img
	}
}

// Sniff reports the MIME type of an image from its leading bytes.
func Sniff(head []byte) (string, error) {
	if !filetype.IsImage(head) {
		return "", ErrUnsupportedFormat
	}
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "", ErrUnsupportedFormat
	}
	return kind.MIME.Value, nil
}

// Decode reads any registered format, including BMP, TIFF and WebP.
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedFormat
		}
		return nil, "", fmt.Errorf("imaging: decode: %w", err)
	}
	return img, format, nil
}

// Transcode converts src so that it fits p. When src already has the
// profile's type and size and no filter applies, it is returned as is.
func Transcode(src []byte, p dlna.ImageProfile, filter Filter) ([]byte, error) {
	mime, err := Sniff(src)
	if err != nil {
		return nil, err
	}
	if filter == nil && mime == p.Mime {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
		if err == nil && fits(cfg.Width, cfg.Height, p) {
			return src, nil
		}
	}
	img, _, err := Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if !fits(b.Dx(), b.Dy(), p) {
		maxW, maxH := p.Width, p.Height
		if maxW == 0 {
			maxW = b.Dx()
		}
		if maxH == 0 {
			maxH = b.Dy()
		}
		img = resize.Thumbnail(uint(maxW), uint(maxH), img, resize.Lanczos3)
	}
	if filter != nil {
		img = filter(img)
	}
	return Encode(img, p.Mime)
}

func fits(w, h int, p dlna.ImageProfile) bool {
	return (p.Width == 0 || w <= p.Width) && (p.Height == 0 || h <= p.Height)
}

// Encode writes img in the given image MIME type.
func Encode(img image.Image, mime string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch mime {
	case "image/jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	case "image/png":
		err = png.Encode(&buf, img)
	case "image/gif":
		err = gif.Encode(&buf, img, nil)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
	if err != nil {
		return nil, fmt.Errorf("imaging: encode %s: %w", mime, err)
	}
	return buf.Bytes(), nil
}
