package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/indexer"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/source/githost"
	"github.com/augmentcode/auggie-index/internal/source/localfs"
	"github.com/augmentcode/auggie-index/internal/source/website"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// indexOptions holds the CLI flags for index.
type indexOptions struct {
	name      string
	dir       string
	github    string
	gitlab    string
	bitbucket string
	web       string
	ref       string

	ignorePatterns []string
	maxDepth       int
	maxPages       int
	includePaths   []string
	excludePaths   []string
	respectRobots  bool
	userAgent      string
	delayMs        int
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or update a named index from a source",
		Long: `Build or update a named index. Exactly one source flag must be given.

Examples:
  auggie-index index --name myproj --dir .
  auggie-index index --name hello --github octo/hello --ref main
  auggie-index index --name api-docs --web https://docs.example.com --max-pages 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Index name (required)")
	_ = cmd.MarkFlagRequired("name")

	cmd.Flags().StringVar(&opts.dir, "dir", "", "Index a local directory")
	cmd.Flags().StringVar(&opts.github, "github", "", "Index a GitHub repository (owner/repo)")
	cmd.Flags().StringVar(&opts.gitlab, "gitlab", "", "Index a GitLab project (id or group/project)")
	cmd.Flags().StringVar(&opts.bitbucket, "bitbucket", "", "Index a Bitbucket repository (workspace/repo)")
	cmd.Flags().StringVar(&opts.web, "web", "", "Index a website by crawling from this URL")
	cmd.Flags().StringVar(&opts.ref, "ref", "", "Git ref to index (branch, tag, or SHA; default HEAD)")

	cmd.Flags().StringSliceVar(&opts.ignorePatterns, "ignore", nil, "Extra ignore patterns for --dir (gitignore syntax)")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", 0, "Crawl depth limit for --web")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "Crawl page limit for --web")
	cmd.Flags().StringSliceVar(&opts.includePaths, "include-path", nil, "Crawl include globs for --web")
	cmd.Flags().StringSliceVar(&opts.excludePaths, "exclude-path", nil, "Crawl exclude globs for --web")
	cmd.Flags().BoolVar(&opts.respectRobots, "respect-robots", false, "Honor robots.txt for --web")
	cmd.Flags().StringVar(&opts.userAgent, "user-agent", "", "Crawler user agent for --web")
	cmd.Flags().IntVar(&opts.delayMs, "delay-ms", 0, "Delay between crawl fetches for --web")

	return cmd
}

// buildSource turns the source flags into a Source, enforcing that
// exactly one was given.
func buildSource(opts indexOptions) (source.Source, error) {
	var chosen []string
	for flag, value := range map[string]string{
		"--dir": opts.dir, "--github": opts.github, "--gitlab": opts.gitlab,
		"--bitbucket": opts.bitbucket, "--web": opts.web,
	} {
		if value != "" {
			chosen = append(chosen, flag)
		}
	}
	if len(chosen) != 1 {
		return nil, apperrors.ConfigError("exactly one of --dir, --github, --gitlab, --bitbucket, --web is required", nil)
	}

	switch {
	case opts.dir != "":
		abs, err := filepath.Abs(opts.dir)
		if err != nil {
			return nil, apperrors.ConfigError("resolve --dir", err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return nil, apperrors.ConfigError(fmt.Sprintf("%s is not a directory", abs), err)
		}
		return localfs.New(sourcemeta.LocalFSConfig{RootPath: abs, IgnorePatterns: opts.ignorePatterns}), nil

	case opts.github != "":
		owner, repo, ok := strings.Cut(opts.github, "/")
		if !ok {
			return nil, apperrors.ConfigError("--github expects owner/repo", nil)
		}
		return githost.NewGitHub(sourcemeta.GitHubConfig{Owner: owner, Repo: repo, Ref: opts.ref}), nil

	case opts.gitlab != "":
		return githost.NewGitLab(sourcemeta.GitLabConfig{ProjectID: opts.gitlab, Ref: opts.ref}), nil

	case opts.bitbucket != "":
		workspace, repo, ok := strings.Cut(opts.bitbucket, "/")
		if !ok {
			return nil, apperrors.ConfigError("--bitbucket expects workspace/repo", nil)
		}
		return githost.NewBitbucket(sourcemeta.BitbucketConfig{Workspace: workspace, Repo: repo, Ref: opts.ref}), nil

	default:
		return website.New(sourcemeta.WebConfig{
			URL:           opts.web,
			MaxDepth:      opts.maxDepth,
			MaxPages:      opts.maxPages,
			IncludePaths:  opts.includePaths,
			ExcludePaths:  opts.excludePaths,
			RespectRobots: opts.respectRobots,
			UserAgent:     opts.userAgent,
			DelayMs:       opts.delayMs,
		}), nil
	}
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireEngineCreds(cfg); err != nil {
		return err
	}

	src, err := buildSource(opts)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	ix, err := indexer.New(indexer.Config{
		Factory:  engineFactory(),
		APIToken: cfg.Engine.APIToken,
		APIURL:   cfg.Engine.APIURL,
	})
	if err != nil {
		return err
	}

	progress := indexer.NewProgress(os.Stderr, nil)
	result, err := ix.Index(ctx, src, st, opts.name, progress)
	if err != nil {
		return err
	}

	switch result.Type {
	case model.IndexResultTypeUnchanged:
		cmd.Printf("%s: unchanged (%.1fs)\n", opts.name, float64(result.DurationMs)/1000)
	default:
		cmd.Printf("%s: %s index, %d files indexed, %d removed (%.1fs)\n",
			opts.name, result.Type, result.FilesIndexed, result.FilesRemoved, float64(result.DurationMs)/1000)
	}
	return nil
}
