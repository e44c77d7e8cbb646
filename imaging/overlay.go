package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
)

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

var playedShade = color.RGBA{0, 0, 0, 0x80}

// FullyPlayedOverlay dims the image and draws a check mark in its centre.
func FullyPlayedOverlay() Filter {
	return func(img image.Image) image.Image {
		dst := toRGBA(img)
		b := dst.Bounds()
		draw.Draw(dst, b, image.NewUniform(playedShade), image.Point{}, draw.Over)

		size := min(b.Dx(), b.Dy()) / 3
		thick := max(size/8, 1)
		cx, cy := b.Dx()/2, b.Dy()/2
		white := image.NewUniform(color.White)
		// Short stroke down-right, long stroke up-right.
		for i := 0; i < size/3; i++ {
			r := image.Rect(cx-size/3+i, cy+i-thick, cx-size/3+i+thick, cy+i+thick)
			draw.Draw(dst, r, white, image.Point{}, draw.Src)
		}
		for i := 0; i < size*2/3; i++ {
			r := image.Rect(cx+i, cy+size/3-i-thick, cx+i+thick, cy+size/3-i+thick)
			draw.Draw(dst, r, white, image.Point{}, draw.Src)
		}
		return dst
	}
}

var flagColors = map[string]color.RGBA{
	"new":       {0x1e, 0x88, 0xe5, 0xff},
	"favourite": {0xe5, 0x39, 0x35, 0xff},
	"favorite":  {0xe5, 0x39, 0x35, 0xff},
	"hd":        {0x43, 0xa0, 0x47, 0xff},
	"4k":        {0x8e, 0x24, 0xaa, 0xff},
	"3d":        {0xfb, 0x8c, 0x00, 0xff},
}

var defaultFlagColor = color.RGBA{0x75, 0x75, 0x75, 0xff}

// FlagOverlay draws one square marker per flag along the top edge, from
// the right corner leftwards.
func FlagOverlay(flags ...string) Filter {
	if len(flags) == 0 {
		return nil
	}
	return func(img image.Image) image.Image {
		dst := toRGBA(img)
		b := dst.Bounds()
		side := max(min(b.Dx(), b.Dy())/8, 2)
		gap := max(side/4, 1)
		x := b.Max.X - gap
		for _, f := range flags {
			c, ok := flagColors[strings.ToLower(f)]
			if !ok {
				c = defaultFlagColor
			}
			r := image.Rect(x-side, b.Min.Y+gap, x, b.Min.Y+gap+side)
			if r.Min.X < b.Min.X {
				break
			}
			draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
			x -= side + gap
		}
		return dst
	}
}
