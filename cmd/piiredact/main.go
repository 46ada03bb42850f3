package main

import (
	"os"

	"github.com/raaihank/piiredact/internal/cli"
)

var version = "0.1.0"

func main() {
	os.Exit(cli.Execute(version))
}
