package main

import (
	"os"

	"github.com/docbed/docbed/cli"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
