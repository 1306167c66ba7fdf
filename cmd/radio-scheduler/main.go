// Package main is the entry point for the radio-scheduler daemon and CLI.
package main

import (
	"os"

	"github.com/MrSnakeDoc/radio-scheduler/cmd/radio-scheduler/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
