package main

import (
	"os"
)

func main() {
	// Bare invocation with piped stdin is hook delivery: the caller is a
	// hook runner, not a person at a terminal.
	if len(os.Args) == 1 {
		if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice == 0 {
			rootCmd.SetArgs([]string{"hook"})
		}
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
