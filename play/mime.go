//go:build ignore

// Prints how the file store classifies each argument, by name and by
// content.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kksharma1618/mediaserver/store"
)

func main() {
	flag.Parse()
	for _, arg := range flag.Args() {
		byPath := store.MimeTypeByPath(arg)
		byContent := "-"
		if f, err := os.Open(arg); err == nil {
			if m, err := store.MimeTypeByContent(f); err == nil {
				byContent = string(m)
			}
			f.Close()
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", arg, byPath, byPath.MediaType(), byContent)
	}
}
