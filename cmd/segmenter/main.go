package main

import (
	"os"

	"github.com/wonderpush/segmenter/cmd/segmenter/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
