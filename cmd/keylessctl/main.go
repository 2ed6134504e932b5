package main

import (
	"fmt"
	"os"

	"github.com/glinharesb/keyless/cmd/keylessctl/commands"
)

func main() {
	if err := commands.NewRoot(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
