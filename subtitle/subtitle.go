// Package subtitle prepares external subtitle files for renderers.
package subtitle

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var subRipTags = regexp.MustCompile(`</?(?:b|i|s|u|font[^>]*)>|\{\\.*?}|\\h|\\N`)

// RemoveSubRipTags strips formatting tags and ASS override codes from
// every line of a SubRip document.
func RemoveSubRipTags(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = subRipTags.ReplaceAllString(l, "")
	}
	return strings.Join(lines, "\n")
}

// Normalize returns data as UTF-8 without a byte order mark. UTF-16 input
// needs a BOM; anything else that is not valid UTF-8 is read as
// Windows-1252.
func Normalize(data []byte) ([]byte, error) {
	if hasUTF16BOM(data) || bytes.HasPrefix(data, []byte{0xef, 0xbb, 0xbf}) {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return nil, fmt.Errorf("subtitle: decode: %w", err)
		}
		return out, nil
	}
	if utf8.Valid(data) {
		return data, nil
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("subtitle: decode: %w", err)
	}
	return out, nil
}

func hasUTF16BOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xff, 0xfe}) || bytes.HasPrefix(data, []byte{0xfe, 0xff})
}

// Prepare normalises a subtitle file and, for SubRip, optionally strips
// its tags.
func Prepare(data []byte, format string, stripTags bool) ([]byte, error) {
	out, err := Normalize(data)
	if err != nil {
		return nil, err
	}
	if stripTags && (format == "srt" || format == "subrip") {
		out = []byte(RemoveSubRipTags(string(out)))
	}
	return out, nil
}
