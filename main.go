// ./main.go
package main

import (
	"github.com/AINomadD3v/ImapActivatorAgent/cmd"
)

// main is the entry point for the imap-activator application.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
