package main

import (
	"os"

	"surgicalprep-study/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
