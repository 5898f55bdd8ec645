package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/promptvault/internal/config"
	"github.com/MikeSquared-Agency/promptvault/internal/output"
)

// Shared state, initialized in PersistentPreRunE.
var (
	cfg config.Config
	ui  *output.UI

	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "promptvault",
	Short: "Import AI conversation exports into a prompt library",
	Long: `promptvault extracts the prompts you wrote from ChatGPT, Claude,
Claude Code, Gemini, Cline and Cursor exports, removes duplicates,
categorizes them and stores them in your library.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		ui = output.New()
		ui.Verbose = verbose
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.config/promptvault/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(serveCmd, importCmd)
}
