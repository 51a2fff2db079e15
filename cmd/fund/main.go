package main

import (
	"os"

	"github.com/kirillm/ai-fund/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
