// Package main provides the entry point for astdbctl.
package main

import (
	"os"

	"github.com/astdb-dev/astdb/cmd/astdbctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
