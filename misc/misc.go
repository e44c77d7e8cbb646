package misc

import (
	"fmt"
	"strings"
	"time"
)

// FormatDurationSexagesimal renders d as H+:MM:SS[.F+], the form DIDL-Lite
// res@duration expects.
func FormatDurationSexagesimal(d time.Duration) string {
	ns := d % time.Second
	d /= time.Second
	s := d % 60
	d /= 60
	m := d % 60
	d /= 60
	h := d
	ret := fmt.Sprintf("%d:%02d:%02d.%09d", h, m, s, ns)
	ret = strings.TrimRight(ret, "0")
	ret = strings.TrimRight(ret, ".")
	return ret
}

// SecondsDuration converts fractional seconds to a time.Duration.
func SecondsDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
