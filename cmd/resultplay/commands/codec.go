package commands

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/livetemplate/resultplay/internal/sharelink"
)

// readInput returns args[0], or all of stdin when no argument or "-" is given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func newEncodeCommand() *cobra.Command {
	var base, param string
	cmd := &cobra.Command{
		Use:   "encode [text|-]",
		Short: "Encode text into a share token or link",
		Example: `  resultplay encode 'ok(1)'
  resultplay encode --base https://play.example.com/playground < example.ts`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if base == "" {
				fmt.Fprintln(cmd.OutOrStdout(), sharelink.Encode(text))
				return nil
			}
			u, err := url.Parse(base)
			if err != nil {
				return fmt.Errorf("invalid base URL: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sharelink.Link(u, param, text))
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "Print a full link on this playground address")
	cmd.Flags().StringVar(&param, "param", sharelink.DefaultParam, "Query parameter carrying the token")
	return cmd
}

func newDecodeCommand() *cobra.Command {
	var param string
	cmd := &cobra.Command{
		Use:   "decode <token|link>",
		Short: "Print the text held by a share token or link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := decodeArg(strings.TrimSpace(args[0]), param)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().StringVar(&param, "param", sharelink.DefaultParam, "Query parameter carrying the token")
	return cmd
}

// decodeArg accepts a bare token or any URL that carries one under param.
func decodeArg(arg, param string) (string, error) {
	if !strings.Contains(arg, "://") {
		return sharelink.Decode(arg)
	}
	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("invalid link: %w", err)
	}
	text, ok, err := sharelink.TextFrom(u, param)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("link has no %s parameter", param)
	}
	return text, nil
}
