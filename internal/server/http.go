package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/indexer"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source/factory"
	"github.com/augmentcode/auggie-index/internal/store"
	"github.com/augmentcode/auggie-index/internal/webhook"
)

// HTTPConfig parameterizes the multi-index HTTP surface.
type HTTPConfig struct {
	// APIKey, when set, requires "Authorization: Bearer <APIKey>" on
	// every request except the health check.
	APIKey string
	// CORSOrigins lists allowed origins; empty disables CORS entirely.
	CORSOrigins []string
	// Writer and Indexer, when both set, enable the admin reindex and
	// delete endpoints. A read-only deployment leaves them nil.
	Writer  store.Writer
	Indexer *indexer.Indexer
	// Webhook, when set, is mounted at POST /webhook.
	Webhook *webhook.Handler
}

// HTTPHandler wires the MCP server plus admin endpoints onto a chi
// router. Concurrent reindex requests for the same name are collapsed
// through singleflight, an extra guard on top of the contract that
// callers never run two index calls for one name concurrently.
func (s *Server) HTTPHandler(cfg HTTPConfig) http.Handler {
	r := chi.NewRouter()

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	group := func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(bearerAuth(cfg.APIKey))
		}

		r.Handle("/mcp", mcpHandler)
		r.Get("/indexes", s.handleListIndexes)

		if cfg.Webhook != nil {
			r.Method(http.MethodPost, "/webhook", cfg.Webhook)
		}

		if cfg.Writer != nil && cfg.Indexer != nil {
			flights := &singleflight.Group{}
			r.Post("/indexes/{name}/reindex", s.handleReindex(cfg, flights))
			r.Delete("/indexes/{name}", s.handleDelete(cfg))
		}
	}
	r.Group(group)

	return r
}

// bearerAuth rejects requests whose Authorization header does not carry
// the expected bearer token, comparing in constant time.
func bearerAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				httpError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleListIndexes(w http.ResponseWriter, r *http.Request) {
	names, err := s.cfg.Store.List(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]string{"indexes": names})
}

// handleReindex re-runs indexing for an existing index, reconstructing
// its Source from the persisted metadata.
func (s *Server) handleReindex(cfg HTTPConfig, flights *singleflight.Group) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		key := store.SanitizeName(name)

		result, err, shared := flights.Do(key, func() (any, error) {
			state, err := cfg.Writer.Load(r.Context(), name)
			if err != nil {
				return nil, err
			}
			if state == nil {
				return nil, apperrors.NotFound("index not found", nil).WithDetail("name", name)
			}
			src, err := factory.New(state.Source)
			if err != nil {
				return nil, err
			}
			return cfg.Indexer.Index(r.Context(), src, cfg.Writer, name, indexer.NoopProgress)
		})
		if err != nil {
			status := http.StatusInternalServerError
			if apperrors.Is(err, apperrors.KindNotFound) {
				status = http.StatusNotFound
			}
			httpError(w, status, err.Error())
			return
		}

		s.cfg.Logger.Info("reindex complete",
			slog.String("index", name),
			slog.Bool("sharedFlight", shared))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result.(*model.IndexResult))
	}
}

func (s *Server) handleDelete(cfg HTTPConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if err := cfg.Writer.Delete(r.Context(), name); err != nil {
			httpError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
