package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/tools"
)

func newSearchCmd() *cobra.Command {
	var indexName string
	var maxChars int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a named index",
		Long: `Search a named index and print the rendered result snippets.

Examples:
  auggie-index search --index myproj "authentication middleware"
  auggie-index search --index api-docs "rate limits" --max-chars 2000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, indexName, strings.Join(args, " "), maxChars)
		},
	}

	cmd.Flags().StringVarP(&indexName, "index", "i", "", "Index name (required)")
	_ = cmd.MarkFlagRequired("index")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Truncate results to this many characters")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, indexName, query string, maxChars int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireEngineCreds(cfg); err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	state, err := st.Load(ctx, indexName)
	if err != nil {
		return err
	}
	if state == nil {
		return apperrors.NotFound("index not found", nil).WithDetail("name", indexName)
	}

	engine, err := engineFactory().Import(ctx, state.ContextState, cfg.Engine.APIToken, cfg.Engine.APIURL)
	if err != nil {
		return err
	}

	out, err := tools.Search(ctx, engine, tools.SearchInput{Query: query, MaxOutputLength: maxChars})
	if err != nil {
		return err
	}

	if out.Results == "" {
		cmd.Println("No results.")
		return nil
	}
	cmd.Println(out.Results)
	return nil
}
