package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/gsd/cmd/cli/commands"
	"github.com/inferloop/gsd/cmd/cli/config"
	"github.com/inferloop/gsd/pkg/constants"
)

func main() {
	rootCmd := newRootCmd()

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: constants.AppDescription,
		Long: `A command-line interface for fitting differentially private synthetic
tabular data to noisy marginal statistics with a genetic search.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", fmt.Sprintf("config file (default is ./.gsd.yaml or %s)", config.GetDefaultConfigPath()))
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	// Add commands
	rootCmd.AddCommand(commands.NewGenerateCmd())
	rootCmd.AddCommand(commands.NewValidateCmd())

	return rootCmd
}
