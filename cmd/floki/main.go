package main

import (
	"os"

	"github.com/jakenelson/floki/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
