package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/livetemplate/resultplay"
	"github.com/livetemplate/resultplay/internal/server"
	"github.com/livetemplate/resultplay/internal/sharelink"
)

type snippetsOptions struct {
	configPath string
	page       string
	asJSON     bool
	base       string
}

type snippetEntry struct {
	*resultplay.Snippet
	Link string `json:"link,omitempty"`
}

func newSnippetsCommand() *cobra.Command {
	opts := &snippetsOptions{}
	cmd := &cobra.Command{
		Use:   "snippets [directory]",
		Short: "List the playground snippets of a docs site",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnippets(cmd, siteDir(args), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Config file")
	f.StringVar(&opts.page, "page", "", "Only list snippets of this page id")
	f.BoolVar(&opts.asJSON, "json", false, "Print JSON")
	f.StringVar(&opts.base, "base", "", "Add share links on this playground address")
	return cmd
}

func runSnippets(cmd *cobra.Command, dir string, opts *snippetsOptions) error {
	cfg, absDir, err := loadConfig(dir, opts.configPath)
	if err != nil {
		return err
	}

	var base *url.URL
	if opts.base != "" {
		if base, err = url.Parse(opts.base); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
	}

	srv, err := server.New(absDir, cfg)
	if err != nil {
		return err
	}
	defer srv.Close(context.Background())

	var entries []snippetEntry
	for _, route := range srv.Routes() {
		if opts.page != "" && route.Page.ID != opts.page {
			continue
		}
		entries = append(entries, lo.Map(route.Page.Snippets, func(s *resultplay.Snippet, _ int) snippetEntry {
			e := snippetEntry{Snippet: s}
			if base != nil {
				e.Link = sharelink.Link(base, cfg.Playground.QueryParam, s.Code)
			}
			return e
		})...)
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(lo.Ternary(entries == nil, []snippetEntry{}, entries))
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No snippets found")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	header := "PAGE\tID\tLANGUAGE\tLINE\tTITLE"
	if base != nil {
		header += "\tLINK"
	}
	fmt.Fprintln(tw, header)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s", e.Page, e.ID, e.Language, e.Line, e.Title)
		if base != nil {
			fmt.Fprintf(tw, "\t%s", e.Link)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
