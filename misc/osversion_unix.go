//go:build unix

package misc

import "golang.org/x/sys/unix"

// OSVersion is the kernel release, as uname -r prints it.
func OSVersion() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(u.Release[:])
}
