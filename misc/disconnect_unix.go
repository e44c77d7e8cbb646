//go:build unix

package misc

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isResetErrno(err error) bool {
	return errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.EPIPE) ||
		errors.Is(err, unix.ECONNABORTED)
}
