// Package server exposes the query/navigation tools over the Model
// Context Protocol: tools/list and tools/call over stdio for a single
// consumer, or over HTTP for multi-index deployments. It is thin
// plumbing around internal/tools: nothing here adds semantics beyond
// transport, auth, and index resolution.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/contextengine"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/source/factory"
	"github.com/augmentcode/auggie-index/internal/store"
	"github.com/augmentcode/auggie-index/internal/tools"
	"github.com/augmentcode/auggie-index/pkg/version"
)

// Config assembles a Server.
type Config struct {
	// Store resolves index names to persisted state. Required.
	Store store.Reader
	// EngineFactory rehydrates a Context Engine from persisted state.
	// Required.
	EngineFactory contextengine.Factory
	APIToken      string
	APIURL        string
	// SearchOnly advertises only the search tool; list_files and
	// read_file are not registered at all, so a consumer cannot even
	// discover them.
	SearchOnly bool
	Logger     *slog.Logger
}

// Server serves the search/list_files/read_file tools over MCP.
type Server struct {
	cfg Config
	mcp *mcp.Server
}

// New constructs a Server and registers its tools.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, apperrors.ConfigError("server: Store is required", nil)
	}
	if cfg.EngineFactory == nil {
		return nil, apperrors.ConfigError("server: EngineFactory is required", nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{cfg: cfg}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "auggie-index",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer exposes the underlying SDK server for transports that embed
// it (the HTTP surface).
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ServeStdio runs the server over stdin/stdout until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.cfg.Logger.Info("serving MCP over stdio", slog.Bool("searchOnly", s.cfg.SearchOnly))
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over a named index. Returns rendered snippets for the most relevant content.",
	}, s.searchHandler)

	if s.cfg.SearchOnly {
		return
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_files",
		Description: "List files and directories in a named index's source, up to a configurable depth.",
	}, s.listFilesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "read_file",
		Description: "Read one file from a named index's source, optionally sliced by line range or filtered by a search pattern.",
	}, s.readFileHandler)
}

// loadState resolves name through the store, preferring the slimmed
// search-only state when the Reader offers one and the caller only
// needs to search.
func (s *Server) loadState(ctx context.Context, name string, searchOnly bool) (*model.IndexState, error) {
	if searchOnly {
		if loader, ok := s.cfg.Store.(store.SearchOnlyLoader); ok {
			state, err := loader.LoadSearch(ctx, name)
			if err != nil {
				return nil, err
			}
			if state != nil {
				return state, nil
			}
		}
	}
	state, err := s.cfg.Store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, apperrors.NotFound(fmt.Sprintf("index %q not found", name), nil)
	}
	return state, nil
}

func (s *Server) engineFor(ctx context.Context, state *model.IndexState) (contextengine.Engine, error) {
	return s.cfg.EngineFactory.Import(ctx, state.ContextState, s.cfg.APIToken, s.cfg.APIURL)
}

func (s *Server) sourceFor(state *model.IndexState) (source.Source, error) {
	if s.cfg.SearchOnly {
		return nil, nil
	}
	return factory.New(state.Source)
}

// SearchToolInput is the wire input of the search tool.
type SearchToolInput struct {
	IndexName string `json:"index_name" jsonschema:"name of the index to search"`
	Query     string `json:"query" jsonschema:"the semantic search query"`
	MaxChars  int    `json:"maxChars,omitempty" jsonschema:"truncate the rendered results to this many characters"`
}

func (s *Server) searchHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchToolInput) (*mcp.CallToolResult, tools.SearchOutput, error) {
	state, err := s.loadState(ctx, input.IndexName, true)
	if err != nil {
		return nil, tools.SearchOutput{}, err
	}
	engine, err := s.engineFor(ctx, state)
	if err != nil {
		return nil, tools.SearchOutput{}, err
	}
	out, err := tools.Search(ctx, engine, tools.SearchInput{Query: input.Query, MaxOutputLength: input.MaxChars})
	if err != nil {
		return nil, tools.SearchOutput{}, err
	}
	return nil, *out, nil
}

// ListFilesToolInput is the wire input of the list_files tool.
type ListFilesToolInput struct {
	IndexName  string `json:"index_name" jsonschema:"name of the index whose source to list"`
	Directory  string `json:"directory,omitempty" jsonschema:"directory to list, relative to the source root"`
	Pattern    string `json:"pattern,omitempty" jsonschema:"glob matched against each entry's basename"`
	Depth      int    `json:"depth,omitempty" jsonschema:"how many directory levels to descend, default 2"`
	ShowHidden bool   `json:"showHidden,omitempty" jsonschema:"include dotfiles"`
}

// ListFilesToolOutput is the wire output of the list_files tool.
type ListFilesToolOutput struct {
	Files []model.FileInfo `json:"files"`
}

func (s *Server) listFilesHandler(ctx context.Context, req *mcp.CallToolRequest, input ListFilesToolInput) (*mcp.CallToolResult, ListFilesToolOutput, error) {
	state, err := s.loadState(ctx, input.IndexName, false)
	if err != nil {
		return nil, ListFilesToolOutput{}, err
	}
	src, err := s.sourceFor(state)
	if err != nil {
		return nil, ListFilesToolOutput{}, err
	}
	infos, err := tools.ListFiles(ctx, src, tools.ListFilesInput{
		Directory:  input.Directory,
		Pattern:    input.Pattern,
		Depth:      input.Depth,
		ShowHidden: input.ShowHidden,
	})
	if err != nil {
		return nil, ListFilesToolOutput{}, err
	}
	return nil, ListFilesToolOutput{Files: infos}, nil
}

// ReadFileToolInput is the wire input of the read_file tool.
type ReadFileToolInput struct {
	IndexName          string `json:"index_name" jsonschema:"name of the index whose source to read from"`
	Path               string `json:"path" jsonschema:"file path relative to the source root"`
	StartLine          int    `json:"startLine,omitempty" jsonschema:"first line to return, 1-based"`
	EndLine            int    `json:"endLine,omitempty" jsonschema:"last line to return, 1-based; -1 means end of file"`
	SearchPattern      string `json:"searchPattern,omitempty" jsonschema:"restricted-regex filter over lines"`
	ContextLinesBefore int    `json:"contextLinesBefore,omitempty" jsonschema:"context lines before each match"`
	ContextLinesAfter  int    `json:"contextLinesAfter,omitempty" jsonschema:"context lines after each match"`
	IncludeLineNumbers bool   `json:"includeLineNumbers,omitempty" jsonschema:"prefix each line with its number"`
}

func (s *Server) readFileHandler(ctx context.Context, req *mcp.CallToolRequest, input ReadFileToolInput) (*mcp.CallToolResult, tools.ReadFileOutput, error) {
	state, err := s.loadState(ctx, input.IndexName, false)
	if err != nil {
		return nil, tools.ReadFileOutput{}, err
	}
	src, err := s.sourceFor(state)
	if err != nil {
		return nil, tools.ReadFileOutput{}, err
	}
	out, err := tools.ReadFile(ctx, src, tools.ReadFileInput{
		Path:               input.Path,
		StartLine:          input.StartLine,
		EndLine:            input.EndLine,
		SearchPattern:      input.SearchPattern,
		ContextLinesBefore: input.ContextLinesBefore,
		ContextLinesAfter:  input.ContextLinesAfter,
		IncludeLineNumbers: input.IncludeLineNumbers,
	})
	if err != nil {
		return nil, tools.ReadFileOutput{}, err
	}
	return nil, *out, nil
}
