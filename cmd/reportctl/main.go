package main

import (
	"os"

	"github.com/finreports/reportd/cmd/reportctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
