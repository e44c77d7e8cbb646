package dlna

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// TimeRange is a parsed npt range in seconds. Either bound may be absent.
type TimeRange struct {
	Start *float64
	End   *float64
}

func Seconds(f float64) *float64 {
	return &f
}

func (r TimeRange) StartOrZero() float64 {
	if r.Start == nil {
		return 0
	}
	return *r.Start
}

func (r TimeRange) HasStart() bool { return r.Start != nil }
func (r TimeRange) HasEnd() bool   { return r.End != nil }

// Merge fills bounds missing from r with those of fallback. Bounds the
// client sent always win.
func (r TimeRange) Merge(fallback TimeRange) TimeRange {
	if r.Start == nil && fallback.Start != nil {
		r.Start = Seconds(*fallback.Start)
	}
	if r.End == nil && fallback.End != nil {
		r.End = Seconds(*fallback.End)
	}
	return r
}

var nptSep = regexp.MustCompile(`[-/]`)

// ParseTimeSeekRange parses a TimeSeekRange.dlna.org value of the form
// "npt=start-end[/total]". Unparsable bounds are left absent.
func ParseTimeSeekRange(s string) TimeRange {
	var tr TimeRange
	if !strings.HasPrefix(s, "npt=") {
		return tr
	}
	params := nptSep.Split(s[len("npt="):], -1)
	if len(params) > 1 && params[1] != "" {
		if v, err := ParseTime(params[1]); err == nil {
			tr.End = &v
		}
	}
	if len(params) > 0 && params[0] != "" {
		if v, err := ParseTime(params[0]); err == nil {
			tr.Start = &v
		}
	}
	return tr
}

var multipliers = [...]float64{3600, 60, 1}

// ParseTime accepts plain seconds or npt H:M:S (fields weighted from the
// left, so "1:30" is an hour and a half), with ',' allowed as the decimal
// separator.
func ParseTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time")
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) > len(multipliers) {
		return 0, fmt.Errorf("time %q has too many fields", s)
	}
	var sum float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.Replace(p, ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("time %q: %w", s, err)
		}
		sum += v * multipliers[i]
	}
	return sum, nil
}

// FormatDuration renders seconds as H:MM:SS.mmm, the DLNA npt form. Hours
// are capped at 99999.
func FormatDuration(d float64) string {
	var (
		sec   float64
		hours int64
		min   int64
	)
	if d > 0 {
		sec = math.Mod(d, 60)
		hours = int64(d / 3600)
		min = int64(d/60) % 60
	}
	if hours > 99999 {
		hours = 99999
	}
	return fmt.Sprintf("%01d:%02d:%06.3f", hours, min, sec)
}

// NPTRange renders "npt=start-end/total" for TimeSeekRange.dlna.org and
// X-Seek-Range responses.
func NPTRange(start, end, total string) string {
	return "npt=" + start + "-" + end + "/" + total
}
