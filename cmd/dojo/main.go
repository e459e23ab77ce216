package main

import (
	"os"

	"github.com/dojoai/dojo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
