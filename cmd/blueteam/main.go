package main

import (
	"fmt"
	"os"

	"github.com/girste/blueteam/cmd/blueteam/commands"
)

var version = "1.0.0"

func main() {
	if err := commands.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(commands.ExitCode(err))
	}
}
