package contextengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/augmentcode/auggie-index/internal/apperrors"
)

// poolSize bounds the number of idle connections kept warm per host:
// indexing runs are short-lived, so idle connections are reclaimed
// quickly rather than held for 90s.
const poolSize = 8

// HTTPEngine is a thin net/http JSON client against a Context Engine
// service reachable at a base URL, authenticated with a bearer token.
type HTTPEngine struct {
	client    *http.Client
	transport *http.Transport
	baseURL   string
	token     string
	sessionID string
}

var _ Engine = (*HTTPEngine)(nil)

// HTTPFactory constructs HTTPEngine instances from the base URL and
// bearer token passed to each Create or Import call, implementing Factory.
type HTTPFactory struct{}

// Create opens a fresh, empty context on the service.
func (HTTPFactory) Create(ctx context.Context, apiToken, apiURL string) (Engine, error) {
	e := newHTTPEngine(apiToken, apiURL)
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := e.call(ctx, http.MethodPost, "/v1/contexts", nil, &resp); err != nil {
		return nil, err
	}
	e.sessionID = resp.SessionID
	return e, nil
}

// Import rehydrates a previously exported context.
func (HTTPFactory) Import(ctx context.Context, blob []byte, apiToken, apiURL string) (Engine, error) {
	e := newHTTPEngine(apiToken, apiURL)
	req := struct {
		State json.RawMessage `json:"state"`
	}{State: blob}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := e.call(ctx, http.MethodPost, "/v1/contexts/import", req, &resp); err != nil {
		return nil, err
	}
	e.sessionID = resp.SessionID
	return e, nil
}

func newHTTPEngine(apiToken, apiURL string) *HTTPEngine {
	transport := &http.Transport{
		MaxIdleConns:        poolSize,
		MaxIdleConnsPerHost: poolSize,
		MaxConnsPerHost:     poolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	return &HTTPEngine{
		client:    &http.Client{Transport: transport},
		transport: transport,
		baseURL:   apiURL,
		token:     apiToken,
	}
}

// AddToIndex implements Engine.
func (e *HTTPEngine) AddToIndex(ctx context.Context, entries []FileEntry) error {
	path := fmt.Sprintf("/v1/contexts/%s/add", e.sessionID)
	return e.call(ctx, http.MethodPost, path, entries, nil)
}

// RemoveFromIndex implements Engine.
func (e *HTTPEngine) RemoveFromIndex(ctx context.Context, paths []string) error {
	path := fmt.Sprintf("/v1/contexts/%s/remove", e.sessionID)
	return e.call(ctx, http.MethodPost, path, paths, nil)
}

// Search implements Engine.
func (e *HTTPEngine) Search(ctx context.Context, query string, maxOutputLength int) (string, error) {
	path := fmt.Sprintf("/v1/contexts/%s/search", e.sessionID)
	req := struct {
		Query           string `json:"query"`
		MaxOutputLength int    `json:"maxOutputLength,omitempty"`
	}{Query: query, MaxOutputLength: maxOutputLength}
	var resp struct {
		Results string `json:"results"`
	}
	if err := e.call(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}
	return resp.Results, nil
}

// Export implements Engine.
func (e *HTTPEngine) Export(ctx context.Context) ([]byte, error) {
	path := fmt.Sprintf("/v1/contexts/%s/export", e.sessionID)
	var resp struct {
		State json.RawMessage `json:"state"`
	}
	if err := e.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.State, nil
}

// call performs one JSON request/response round trip, retrying
// transient failures with exponential backoff, mirroring githost's
// httpJSON helper.
func (e *HTTPEngine) call(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("contextengine: marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
			if payload != nil {
				data, _ := json.Marshal(body)
				payload = bytes.NewReader(data)
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, payload)
		if err != nil {
			return fmt.Errorf("contextengine: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.token != "" {
			req.Header.Set("Authorization", "Bearer "+e.token)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = apperrors.Transport("contextengine: request failed", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = apperrors.RateLimited("contextengine: rate limited", nil)
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			_ = resp.Body.Close()
			return apperrors.Forbidden("contextengine: request forbidden", nil)
		}
		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = apperrors.Transport(fmt.Sprintf("contextengine: server error %d", resp.StatusCode), nil)
			continue
		}
		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return apperrors.ConfigError(fmt.Sprintf("contextengine: request rejected: %s", string(data)), nil)
		}

		defer func() { _ = resp.Body.Close() }()
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("contextengine: decode response: %w", err)
			}
		}
		return nil
	}

	return lastErr
}

// Close releases idle connections held by this engine's transport.
func (e *HTTPEngine) Close() {
	e.transport.CloseIdleConnections()
}
