package main

import (
	"os"

	"github.com/makeasinger/sunoflow/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
