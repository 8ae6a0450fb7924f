// Command dmpsync reconciles maDMP documents into a relational store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dmpsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
