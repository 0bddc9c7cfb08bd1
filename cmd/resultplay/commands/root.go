// Package commands implements the resultplay command tree.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/resultplay/internal/config"
	"github.com/livetemplate/resultplay/internal/logging"
)

// NewRootCommand builds the resultplay command tree.
func NewRootCommand(version string) *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "resultplay",
		Short: "Result playground and documentation server",
		Long: `resultplay serves an in-browser playground for the Result type.
The buffer lives in the page address, so every saved state is a link.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.SetVerbose(debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newServeCommand(),
		newEncodeCommand(),
		newDecodeCommand(),
		newFormatCommand(),
		newSnippetsCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "resultplay version %s\n", version)
			},
		},
	)
	return root
}

// loadConfig reads the config file, or resultplay.yaml in dir when path is
// empty. It returns the absolute site directory alongside.
func loadConfig(dir, path string) (*config.Config, string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, "", fmt.Errorf("directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("not a directory: %s", dir)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, absDir, nil
}

// newLogger returns a console logger, or a JSON one when jsonOutput is set.
func newLogger(cfg *config.Config, jsonOutput bool) (*zap.Logger, error) {
	debug := cfg.Server.Debug || config.IsVerbose()
	if jsonOutput {
		return logging.New(debug)
	}
	return logging.NewConsole(debug)
}

func siteDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
