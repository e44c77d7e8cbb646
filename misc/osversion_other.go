//go:build !unix

package misc

func OSVersion() string {
	return "unknown"
}
