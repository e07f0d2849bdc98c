package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/source/factory"
	"github.com/augmentcode/auggie-index/internal/tools"
)

// boundSource loads the named index and reconstructs its Source from
// the persisted metadata, shared by the ls and cat commands.
func boundSource(ctx context.Context, indexName string) (source.Source, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	state, err := st.Load(ctx, indexName)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, apperrors.NotFound("index not found", nil).WithDetail("name", indexName)
	}
	return factory.New(state.Source)
}

func newLsCmd() *cobra.Command {
	var indexName, directory, pattern string
	var depth int
	var showHidden bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List files in a named index's source",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := boundSource(cmd.Context(), indexName)
			if err != nil {
				return err
			}
			infos, err := tools.ListFiles(cmd.Context(), src, tools.ListFilesInput{
				Directory:  directory,
				Pattern:    pattern,
				Depth:      depth,
				ShowHidden: showHidden,
			})
			if err != nil {
				return err
			}
			for _, info := range infos {
				if info.Type == model.FileInfoTypeDirectory {
					cmd.Println(info.Path + "/")
				} else {
					cmd.Println(info.Path)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&indexName, "index", "i", "", "Index name (required)")
	_ = cmd.MarkFlagRequired("index")
	cmd.Flags().StringVarP(&directory, "dir", "d", "", "Directory to list")
	cmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Glob matched against basenames")
	cmd.Flags().IntVar(&depth, "depth", 0, "Levels to descend (default 2)")
	cmd.Flags().BoolVar(&showHidden, "hidden", false, "Include dotfiles")

	return cmd
}

func newCatCmd() *cobra.Command {
	var indexName, searchPattern string
	var startLine, endLine, before, after int
	var lineNumbers bool

	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Read a file from a named index's source",
		Long: `Read a file from a named index's source, optionally sliced by line
range or filtered to lines matching a pattern.

Examples:
  auggie-index cat --index myproj src/main.go
  auggie-index cat --index myproj src/main.go --start 10 --end 40 -N
  auggie-index cat --index myproj src/main.go --match 'func [A-Z]' --after 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := boundSource(cmd.Context(), indexName)
			if err != nil {
				return err
			}
			out, err := tools.ReadFile(cmd.Context(), src, tools.ReadFileInput{
				Path:               args[0],
				StartLine:          startLine,
				EndLine:            endLine,
				SearchPattern:      searchPattern,
				ContextLinesBefore: before,
				ContextLinesAfter:  after,
				IncludeLineNumbers: lineNumbers,
			})
			if err != nil {
				return err
			}
			if out.Error != "" {
				msg := out.Error
				for _, s := range out.Suggestions {
					msg += fmt.Sprintf("\n  did you mean: %s", s)
				}
				return apperrors.NotFound(msg, nil)
			}
			cmd.Println(out.Contents)
			return nil
		},
	}

	cmd.Flags().StringVarP(&indexName, "index", "i", "", "Index name (required)")
	_ = cmd.MarkFlagRequired("index")
	cmd.Flags().IntVar(&startLine, "start", 0, "First line, 1-based")
	cmd.Flags().IntVar(&endLine, "end", 0, "Last line, 1-based (-1 = end of file)")
	cmd.Flags().StringVar(&searchPattern, "match", "", "Only print lines matching this pattern")
	cmd.Flags().IntVar(&before, "before", 0, "Context lines before each match")
	cmd.Flags().IntVar(&after, "after", 0, "Context lines after each match")
	cmd.Flags().BoolVarP(&lineNumbers, "line-numbers", "N", false, "Prefix lines with their numbers")

	return cmd
}
