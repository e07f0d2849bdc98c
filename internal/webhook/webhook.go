// Package webhook exposes an HTTP handler that turns GitHub push events
// into indexing runs: it authenticates the delivery with an HMAC-SHA-256
// body signature, derives the index name from the pushed branch, builds
// a Source pinned at the pushed commit, and hands it to the Indexer.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/augmentcode/auggie-index/internal/indexer"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/source/githost"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
	"github.com/augmentcode/auggie-index/internal/store"
)

const (
	headerEvent     = "X-GitHub-Event"
	headerSignature = "X-Hub-Signature-256"
)

// NameFunc derives the index name for one push event.
type NameFunc func(owner, repo, branch string) string

// DefaultName is the NameFunc used when none is configured.
func DefaultName(owner, repo, branch string) string {
	return owner + "/" + repo + "/" + branch
}

// SourceFunc builds the Source for one push event, pinned at the pushed
// commit. Overridable so tests can substitute a double for the live
// GitHub client.
type SourceFunc func(owner, repo, sha string) source.Source

func defaultSource(owner, repo, sha string) source.Source {
	return githost.NewGitHub(sourcemeta.GitHubConfig{Owner: owner, Repo: repo, Ref: sha})
}

// Config assembles a Handler.
type Config struct {
	// Secret is the shared webhook secret the signature is verified
	// against. Required.
	Secret string
	// Indexer drives the indexing run. Required.
	Indexer *indexer.Indexer
	// Store receives the run's resulting state. Required.
	Store store.Writer
	// Name derives the index name; nil selects DefaultName.
	Name NameFunc
	// NewSource builds the per-event Source; nil selects the live
	// GitHub client.
	NewSource SourceFunc
	// DeleteOnBranchDelete removes the branch's index when the push
	// event reports a deleted ref, instead of only skipping it.
	DeleteOnBranchDelete bool
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Handler is the http.Handler for the webhook endpoint.
type Handler struct {
	cfg Config
}

// New constructs a Handler, applying defaults for the optional fields.
func New(cfg Config) *Handler {
	if cfg.Name == nil {
		cfg.Name = DefaultName
	}
	if cfg.NewSource == nil {
		cfg.NewSource = defaultSource
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{cfg: cfg}
}

// pushEvent is the subset of the GitHub push payload the handler needs.
type pushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
}

// response is the JSON body returned for every handled delivery.
type response struct {
	Status       string `json:"status"`
	Index        string `json:"index,omitempty"`
	FilesIndexed int    `json:"filesIndexed,omitempty"`
	FilesRemoved int    `json:"filesRemoved,omitempty"`
	Error        string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ServeHTTP validates the delivery and dispatches push events to the
// Indexer. Signature mismatch is 401, missing headers are 400,
// non-push events are acknowledged and ignored, and indexing failures
// map to 500.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deliveryID := uuid.NewString()
	log := h.cfg.Logger.With(slog.String("delivery", deliveryID))

	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, response{Status: "error", Error: "method not allowed"})
		return
	}

	event := r.Header.Get(headerEvent)
	signature := r.Header.Get(headerSignature)
	if event == "" || signature == "" {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "missing event or signature header"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "unreadable body"})
		return
	}

	if !ValidSignature(h.cfg.Secret, body, signature) {
		log.Warn("webhook signature mismatch")
		writeJSON(w, http.StatusUnauthorized, response{Status: "error", Error: "signature mismatch"})
		return
	}

	if event != "push" {
		writeJSON(w, http.StatusOK, response{Status: "ignored"})
		return
	}

	var push pushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Error: "malformed push payload"})
		return
	}

	branch := strings.TrimPrefix(push.Ref, "refs/heads/")
	if branch == push.Ref {
		// Tag or other non-branch ref.
		writeJSON(w, http.StatusOK, response{Status: "ignored"})
		return
	}

	owner := push.Repository.Owner.Login
	repo := push.Repository.Name
	name := h.cfg.Name(owner, repo, branch)
	log = log.With(slog.String("index", name))

	if push.Deleted {
		if h.cfg.DeleteOnBranchDelete {
			if err := h.cfg.Store.Delete(r.Context(), name); err != nil {
				log.Error("delete index for removed branch", slog.Any("error", err))
				writeJSON(w, http.StatusInternalServerError, response{Status: "error", Index: name, Error: err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, response{Status: "deleted", Index: name})
			return
		}
		writeJSON(w, http.StatusOK, response{Status: "skipped", Index: name})
		return
	}

	src := h.cfg.NewSource(owner, repo, push.After)
	result, err := h.cfg.Indexer.Index(r.Context(), src, h.cfg.Store, name, indexer.NoopProgress)
	if err != nil {
		log.Error("webhook-triggered index failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, response{Status: "error", Index: name, Error: err.Error()})
		return
	}

	log.Info("webhook-triggered index complete",
		slog.String("type", string(result.Type)),
		slog.Int("filesIndexed", result.FilesIndexed),
		slog.Int("filesRemoved", result.FilesRemoved))

	status := "indexed"
	if result.Type == model.IndexResultTypeUnchanged {
		status = "skipped"
	}
	writeJSON(w, http.StatusOK, response{
		Status:       status,
		Index:        name,
		FilesIndexed: result.FilesIndexed,
		FilesRemoved: result.FilesRemoved,
	})
}

// ValidSignature verifies a "sha256=<hex>" signature over body with the
// shared secret. The comparison is constant-time in the signature
// length via hmac.Equal.
func ValidSignature(secret string, body []byte, signature string) bool {
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
