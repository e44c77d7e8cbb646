package dlna

import (
	"regexp"
	"strconv"
	"strings"
)

// ImageProfile is a DLNA image profile. Width and Height are the largest
// dimensions the profile allows; zero means unbounded.
type ImageProfile struct {
	Name   string
	Mime   string
	Width  int
	Height int
}

var (
	GIFLarge  = ImageProfile{"GIF_LRG", "image/gif", 1600, 1200}
	JPEGLarge = ImageProfile{"JPEG_LRG", "image/jpeg", 4096, 4096}
	JPEGMed   = ImageProfile{"JPEG_MED", "image/jpeg", 1024, 768}
	JPEGSmall = ImageProfile{"JPEG_SM", "image/jpeg", 640, 480}
	JPEGThumb = ImageProfile{"JPEG_TN", "image/jpeg", 160, 160}
	PNGLarge  = ImageProfile{"PNG_LRG", "image/png", 4096, 4096}
	PNGThumb  = ImageProfile{"PNG_TN", "image/png", 160, 160}
)

var imageProfiles = map[string]ImageProfile{
	GIFLarge.Name:  GIFLarge,
	JPEGLarge.Name: JPEGLarge,
	JPEGMed.Name:   JPEGMed,
	JPEGSmall.Name: JPEGSmall,
	JPEGThumb.Name: JPEGThumb,
	PNGLarge.Name:  PNGLarge,
	PNGThumb.Name:  PNGThumb,
}

var jpegRes = regexp.MustCompile(`^JPEG_RES_?(\d+)[Xx_](\d+)$`)

// ImageProfileByName looks up a profile, including the free-size
// JPEG_RES_<w>x<h> form.
func ImageProfileByName(name string) (ImageProfile, bool) {
	if p, ok := imageProfiles[strings.ToUpper(name)]; ok {
		return p, true
	}
	if m := jpegRes.FindStringSubmatch(name); m != nil {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		return ImageProfile{Name: name, Mime: "image/jpeg", Width: w, Height: h}, true
	}
	return ImageProfile{}, false
}

// ImageProfileForMime is the fallback profile when a request names none.
func ImageProfileForMime(mime string) ImageProfile {
	switch mime {
	case "image/gif":
		return GIFLarge
	case "image/png":
		return PNGLarge
	}
	return JPEGLarge
}

var (
	resPrefix   = regexp.MustCompile(`^([A-Z]+_RES_?\d+[Xx_]\d+)_`)
	namedPrefix = regexp.MustCompile(`^([A-Z]+_[A-Z]+)_`)
)

// ParseImageRequest extracts a profile prefix such as "JPEG_TN_" or
// "JPEG_RES_640x480_" from the last element of a request sub-path. The
// second word of a named prefix may not start with R, so "JPEG_RES" is only
// accepted with dimensions.
func ParseImageRequest(subPath string) (ImageProfile, bool) {
	if i := strings.LastIndexByte(subPath, '/'); i >= 0 {
		subPath = subPath[i+1:]
	}
	var name string
	if m := resPrefix.FindStringSubmatch(subPath); m != nil {
		name = m[1]
	} else if m := namedPrefix.FindStringSubmatch(subPath); m != nil {
		second := m[1][strings.IndexByte(m[1], '_')+1:]
		if strings.HasPrefix(second, "R") {
			return ImageProfile{}, false
		}
		name = m[1]
	}
	if name == "" {
		return ImageProfile{}, false
	}
	return ImageProfileByName(name)
}

// ImageContentFeatures renders the ContentFeatures.DLNA.ORG value for an
// image delivered in profile p.
func ImageContentFeatures(p ImageProfile, converted bool) string {
	return "DLNA.ORG_PN=" + p.Name +
		";DLNA.ORG_CI=" + strconv.Itoa(int(BinaryInt(converted))) +
		";DLNA.ORG_FLAGS=" + (FlagDLNAV15 | FlagInteractiveTransferMode).String()
}
