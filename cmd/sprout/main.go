package main

import (
	"os"

	"github.com/oakmund/sprout/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
