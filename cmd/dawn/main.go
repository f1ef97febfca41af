// Package main is the entry point for dawn.
package main

import (
	"os"

	"github.com/dawnbot/dawn/cmd/dawn/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
