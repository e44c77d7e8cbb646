package renderer

import (
	"regexp"
	"strings"
)

var dmpHeaderPrefix = regexp.MustCompile(`^\s*X-PANASONIC-DMP-Profile:\s*`)

// Longer prefixes first: MPEG4 must win over MPEG.
var dmpMimes = []struct {
	prefix string
	mime   string
}{
	{"JPEG", "image/jpeg"},
	{"PNG", "image/png"},
	{"GIF", "image/gif"},
	{"MPEG4", "video/mp4"},
	{"MPEG", "video/mpeg"},
	{"AC3", "audio/vnd.dolby.dd-raw"},
	{"AMR", "audio/3gpp"},
	{"LPCM", "audio/L16"},
	{"MP2", "audio/mpeg"},
	{"MP3", "audio/mpeg"},
	{"AAC", "audio/mp4"},
	{"WMA", "audio/x-ms-wma"},
	{"WMV", "video/x-ms-wmv"},
	{"VC1", "video/mpeg"},
}

// ParseDMPProfiles maps the DLNA profile names of an
// X-PANASONIC-DMP-Profile value to the mime types they imply. Unknown
// profiles are skipped.
func ParseDMPProfiles(header string) []string {
	header = strings.TrimSpace(dmpHeaderPrefix.ReplaceAllString(header, ""))
	if header == "" {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, name := range strings.Fields(header) {
		m := dmpMime(name)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func dmpMime(profile string) string {
	profile = strings.ToUpper(profile)
	for _, d := range dmpMimes {
		if strings.HasPrefix(profile, d.prefix) {
			return d.mime
		}
	}
	return ""
}
