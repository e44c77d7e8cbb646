//go:build !unix

package misc

func isResetErrno(error) bool {
	return false
}
