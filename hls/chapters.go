package hls

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kksharma1618/mediaserver/store"
)

func vttTimestamp(sec float64) string {
	ms := int64(sec*1000 + 0.5)
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms / 60000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// ChaptersVTT renders chapters as a WebVTT chapter track.
func ChaptersVTT(chapters []store.Chapter) string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n")
	for i, c := range chapters {
		n := i + 1
		fmt.Fprintf(&sb, "\nChapter %d\n%s --> %s\n", n, vttTimestamp(c.Start), vttTimestamp(c.End))
		if strings.TrimSpace(c.Title) != "" {
			sb.WriteString(c.Title)
		} else {
			fmt.Fprintf(&sb, "Chapter %02d", n)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ChaptersJSON renders the com.apple.hls.chapters session data.
func ChaptersJSON(chapters []store.Chapter) string {
	parts := make([]string, len(chapters))
	for i, c := range chapters {
		parts[i] = `{"start-time": ` + strconv.FormatFloat(c.Start, 'f', -1, 64) + `}`
	}
	return "[" + strings.Join(parts, ",") + "]"
}
