// Package main is the entry point for the kinmigrate CLI.
package main

import (
	"os"

	"github.com/kinecosystem/kinmigrate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
