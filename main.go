package main

import (
	"os"

	"github.com/adalundhe/annodex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
