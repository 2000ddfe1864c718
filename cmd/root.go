// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with JSONLOAD, a .env file, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	// Variables already set in the environment win over the .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic("failed to load .env file: " + err.Error())
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("JSONLOAD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/jsonload", "$HOME/.jsonload", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	return &cobra.Command{
		Use:   "jsonload",
		Short: "Load newline delimited JSON into Dgraph with upserts",
		Long: `Load newline delimited JSON into Dgraph with upserts.

Every input line is a JSON document. Documents are grouped into chunks, and each chunk
is committed as a single upsert transaction. Fields selected as deduplication keys are
looked up before writing, so loading the same data twice does not duplicate nodes.`,
		SilenceUsage: true,
	}
}
