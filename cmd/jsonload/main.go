package main

import (
	"os"

	"github.com/jsonload/jsonload/cmd"
	"github.com/jsonload/jsonload/cmd/load"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	loadCmd := load.NewLoadCommand()
	rootCmd.AddCommand(loadCmd)

	versionCmd := cmd.NewVersionCommand()
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
