package main

import (
	"os"

	"github.com/danieljhkim/buildprep/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)

	if err := cli.Execute(); err != nil {
		cli.PrintErrorLine(err)
		os.Exit(cli.ExitCode(err))
	}
}
