package main

import (
	"os"

	"github.com/conneroisu/tdi/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
