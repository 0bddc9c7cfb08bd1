package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/resultplay/internal/config"
	"github.com/livetemplate/resultplay/internal/format"
)

type formatOptions struct {
	dir        string
	configPath string
	kind       string
	write      bool
	allowExec  bool
}

func newFormatCommand() *cobra.Command {
	opts := &formatOptions{}
	cmd := &cobra.Command{
		Use:   "format [file|-]",
		Short: "Format a buffer with the configured formatter",
		Long: `Format runs the formatter the playground would use for "Format Document".
The formatter comes from resultplay.yaml in --dir unless --kind overrides it.`,
		Example: `  resultplay format --kind go main.go
  resultplay format --allow-exec -w example.ts`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", ".", "Site directory holding resultplay.yaml")
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file")
	f.StringVar(&opts.kind, "kind", "", "Formatter kind: none, go, exec or wasm")
	f.BoolVarP(&opts.write, "write", "w", false, "Write the result back to the file")
	f.BoolVar(&opts.allowExec, "allow-exec", false, "Allow the exec formatter to run external commands")
	return cmd
}

func runFormat(cmd *cobra.Command, args []string, opts *formatOptions) error {
	config.SetAllowExec(opts.allowExec)

	cfg, absDir, err := loadConfig(opts.dir, opts.configPath)
	if err != nil {
		return err
	}
	if opts.kind != "" {
		cfg.Formatter.Kind = opts.kind
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	file := ""
	if len(args) > 0 && args[0] != "-" {
		file = args[0]
	}
	if opts.write && file == "" {
		return errors.New("--write needs a file argument")
	}

	var src []byte
	if file != "" {
		src, err = os.ReadFile(file)
	} else {
		src, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	f, err := format.New(cfg.Formatter, absDir, logger)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	defer func() {
		if err := format.Close(ctx, f); err != nil {
			logger.Warn("failed to close formatter", zap.Error(err))
		}
	}()

	out, err := f.Format(ctx, string(src))
	if err != nil {
		return err
	}

	if opts.write {
		info, err := os.Stat(file)
		if err != nil {
			return err
		}
		if out == string(src) {
			return nil
		}
		return os.WriteFile(file, []byte(out), info.Mode().Perm())
	}
	_, err = io.WriteString(cmd.OutOrStdout(), out)
	return err
}
