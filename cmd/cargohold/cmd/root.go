package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command when cargohold is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "cargohold",
	Short: "Cargohold ships a directory to S3-compatible storage",
	Long: `Cargohold packs a source directory into size-bounded zip parts and
uploads them to S3-compatible storage, choosing a simple or chunked
transfer per object. A local catalog records every file's protection
state so interrupted runs resume where they left off.
`,
}

var rootFlags struct {
	configFile string
	logLevel   string
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	rootCmd.PersistentFlags().StringVar(&rootFlags.configFile, "config", "",
		"config file (default: cargohold.yaml in ., $HOME/.cargohold, /etc/cargohold)")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "",
		"override the configured log level (debug|info|warn|none)")
}
