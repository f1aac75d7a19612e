// Package main is the entry point for the ebill CLI.
package main

import (
	"os"

	"github.com/bher20/ebill/cmd/ebill/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
