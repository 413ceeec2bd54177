package main

import (
	"os"

	"github.com/mfarouk/repochat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
