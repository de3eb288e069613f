package main

import (
	"os"

	"github.com/singlefetch/singlefetch/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
