package main

import (
	"os"

	"github.com/agrilink/agrilink/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
