package dlna

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is a parsed Range header. End -1 means open ended; the zero
// value means no range was asked for.
type ByteRange struct {
	Start int64
	End   int64
}

// ParseByteRange parses a Range header value. "a-b", "a-" and "-n" are
// accepted; "-n" is taken as 0-n, which is what renderers expect from this
// server. Anything malformed degrades to the zero range.
func ParseByteRange(s string) ByteRange {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "bytes=") {
		return ByteRange{}
	}
	s = s[len("bytes="):]
	dash := strings.IndexByte(s, '-')
	switch {
	case dash > 0:
		first, err := strconv.ParseInt(s[:dash], 10, 64)
		if err != nil || first < 0 {
			return ByteRange{}
		}
		if dash == len(s)-1 {
			return ByteRange{Start: first, End: -1}
		}
		last, err := strconv.ParseInt(s[dash+1:], 10, 64)
		if err != nil || last < first {
			return ByteRange{}
		}
		return ByteRange{Start: first, End: last}
	case dash == 0:
		n, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil || n < 0 {
			return ByteRange{}
		}
		return ByteRange{Start: 0, End: n}
	}
	return ByteRange{}
}

// IsZero reports whether no range was requested.
func (r ByteRange) IsZero() bool {
	return r.Start == 0 && r.End == 0
}

// ContentRange renders a Content-Range value. A negative total renders as
// "*".
func ContentRange(start, end, total int64) string {
	t := "*"
	if total >= 0 {
		t = strconv.FormatInt(total, 10)
	}
	return fmt.Sprintf("bytes %d-%d/%s", start, end, t)
}
