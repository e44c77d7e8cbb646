package misc

import (
	"errors"
	"io"
	"net"
	"strings"
)

// IsPeerDisconnect reports whether err is the result of the remote end going
// away mid-transfer. Renderers do this all the time when seeking, so callers
// log these at trace level only.
func IsPeerDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if isResetErrno(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "broken pipe")
}
