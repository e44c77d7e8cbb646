// Command dms is a UPnP/DLNA media server.
package main

import (
	"os"

	"github.com/kksharma1618/mediaserver/cmd/dms/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
