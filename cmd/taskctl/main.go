package main

import (
	"fmt"
	"os"

	"github.com/hotter6163/taskctl/internal/cmd"
	"github.com/hotter6163/taskctl/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}
