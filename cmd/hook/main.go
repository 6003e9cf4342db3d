// Package main is the Hook Client CLI entry point (spec.md §4.1/§6):
// `hook --event <name> [--port 15924]`.
package main

import (
	"fmt"
	"os"

	"github.com/ZAKERR/agent-desk/internal/hookclient"
)

func main() {
	opts, err := hookclient.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	hookclient.Run(opts, os.Stdin, os.Stdout)
}
