// Package main provides the entry point for the smartfolder CLI.
package main

import (
	"os"

	"github.com/smartfolder/smartfolder/cmd/smartfolder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
