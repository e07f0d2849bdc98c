// Package sourcemeta implements the discriminated-union SourceMetadata
// persisted alongside every IndexState so that a later operation can
// reconstruct a Source without any external configuration.
package sourcemeta

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/augmentcode/auggie-index/internal/model"
)

// Metadata is the interface every variant implements; an alias of
// model.SourceMetadata so that internal/source can declare its Source
// interface in terms of this package without internal/model depending
// on internal/sourcemeta (which would create a cycle, since sourcemeta
// itself depends on model for IndexState's embedding).
type Metadata = model.SourceMetadata

// Type discriminators, matching the "type" field on the wire.
const (
	TypeLocalFS   = "localfs"
	TypeGitHub    = "gitA"
	TypeGitLab    = "gitB"
	TypeBitbucket = "gitC"
	TypeWeb       = "web"
)

// LocalFSConfig is the user-supplied configuration for a LocalFS source.
type LocalFSConfig struct {
	RootPath       string   `json:"rootPath"`
	IgnorePatterns []string `json:"ignorePatterns,omitempty"`
}

// LocalFSMetadata describes a local-directory source.
type LocalFSMetadata struct {
	Config   LocalFSConfig `json:"config"`
	SyncedAt time.Time     `json:"syncedAt"`
}

func (m LocalFSMetadata) Type() string            { return TypeLocalFS }
func (m LocalFSMetadata) SyncedAtTime() time.Time { return m.SyncedAt }

// GitHubConfig is the user-supplied configuration for a GitHub source.
type GitHubConfig struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	Ref   string `json:"ref,omitempty"`
}

// GitHubMetadata describes a GitHub-backed source.
type GitHubMetadata struct {
	Config      GitHubConfig `json:"config"`
	ResolvedRef string       `json:"resolvedRef,omitempty"`
	SyncedAt    time.Time    `json:"syncedAt"`
}

func (m GitHubMetadata) Type() string            { return TypeGitHub }
func (m GitHubMetadata) SyncedAtTime() time.Time { return m.SyncedAt }

// GitLabConfig is the user-supplied configuration for a GitLab source.
type GitLabConfig struct {
	ProjectID string `json:"projectId"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

// GitLabMetadata describes a GitLab-backed source.
type GitLabMetadata struct {
	Config      GitLabConfig `json:"config"`
	ResolvedRef string       `json:"resolvedRef,omitempty"`
	SyncedAt    time.Time    `json:"syncedAt"`
}

func (m GitLabMetadata) Type() string            { return TypeGitLab }
func (m GitLabMetadata) SyncedAtTime() time.Time { return m.SyncedAt }

// BitbucketConfig is the user-supplied configuration for a Bitbucket source.
type BitbucketConfig struct {
	Workspace string `json:"workspace"`
	Repo      string `json:"repo"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Ref       string `json:"ref,omitempty"`
}

// BitbucketMetadata describes a Bitbucket-backed source.
type BitbucketMetadata struct {
	Config      BitbucketConfig `json:"config"`
	ResolvedRef string          `json:"resolvedRef,omitempty"`
	SyncedAt    time.Time       `json:"syncedAt"`
}

func (m BitbucketMetadata) Type() string            { return TypeBitbucket }
func (m BitbucketMetadata) SyncedAtTime() time.Time { return m.SyncedAt }

// WebConfig is the user-supplied configuration for a crawled website source.
type WebConfig struct {
	URL           string   `json:"url"`
	MaxDepth      int      `json:"maxDepth,omitempty"`
	MaxPages      int      `json:"maxPages,omitempty"`
	IncludePaths  []string `json:"includePaths,omitempty"`
	ExcludePaths  []string `json:"excludePaths,omitempty"`
	RespectRobots bool     `json:"respectRobots,omitempty"`
	UserAgent     string   `json:"userAgent,omitempty"`
	DelayMs       int      `json:"delayMs,omitempty"`
}

// WebMetadata describes a crawled-website source.
type WebMetadata struct {
	Config   WebConfig `json:"config"`
	SyncedAt time.Time `json:"syncedAt"`
}

func (m WebMetadata) Type() string            { return TypeWeb }
func (m WebMetadata) SyncedAtTime() time.Time { return m.SyncedAt }

// envelope is the wire shape shared by every variant: a type tag plus
// whatever the variant-specific fields happen to be, decoded twice (once
// to sniff the tag and legacy shape, once into the concrete struct).
type envelope struct {
	Type       string          `json:"type"`
	Config     json.RawMessage `json:"config"`
	Identifier string          `json:"identifier"`
	Ref        string          `json:"ref"`
}

// Decode parses a JSON-encoded SourceMetadata, dispatching on its "type"
// field and applying the legacy {type, identifier, ref} migration when
// no "config" object is present.
func Decode(data []byte) (Metadata, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("sourcemeta: decode envelope: %w", err)
	}
	if env.Config == nil && env.Identifier != "" {
		migrated, err := migrateLegacy(env)
		if err != nil {
			return nil, err
		}
		data = migrated
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("sourcemeta: decode migrated envelope: %w", err)
		}
	}

	switch env.Type {
	case TypeLocalFS:
		var m LocalFSMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeGitHub:
		var m GitHubMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeGitLab:
		var m GitLabMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeBitbucket:
		var m BitbucketMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeWeb:
		var m WebMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("sourcemeta: unknown source type %q", env.Type)
	}
}

// migrateLegacy derives a best-effort "config" object from the legacy
// {type, identifier, ref} shape, per the backward-compatibility rule:
// GitHub and Bitbucket split the identifier on the first "/" while
// GitLab uses it whole as the project ID; web synthesizes
// https://<identifier>; localfs uses the identifier as rootPath.
func migrateLegacy(env envelope) ([]byte, error) {
	var config any
	switch env.Type {
	case TypeGitHub:
		owner, repo := splitOwnerRepo(env.Identifier)
		config = GitHubConfig{Owner: owner, Repo: repo, Ref: env.Ref}
	case TypeGitLab:
		config = GitLabConfig{ProjectID: env.Identifier, Ref: env.Ref}
	case TypeBitbucket:
		workspace, repo := splitOwnerRepo(env.Identifier)
		config = BitbucketConfig{Workspace: workspace, Repo: repo, Ref: env.Ref}
	case TypeWeb:
		config = WebConfig{URL: "https://" + env.Identifier}
	case TypeLocalFS:
		config = LocalFSConfig{RootPath: env.Identifier}
	default:
		return nil, fmt.Errorf("sourcemeta: unknown legacy source type %q", env.Type)
	}

	configBytes, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("sourcemeta: marshal migrated config: %w", err)
	}

	out := map[string]json.RawMessage{
		"type":   mustMarshal(env.Type),
		"config": configBytes,
	}
	if env.Ref != "" {
		out["resolvedRef"] = mustMarshal(env.Ref)
	}
	out["syncedAt"] = mustMarshal(time.Now().UTC().Format(time.RFC3339))
	return json.Marshal(out)
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func splitOwnerRepo(identifier string) (string, string) {
	for i := 0; i < len(identifier); i++ {
		if identifier[i] == '/' {
			return identifier[:i], identifier[i+1:]
		}
	}
	return identifier, ""
}

// Encode marshals a Metadata value back to its wire form, always in the
// current (non-legacy) shape.
func Encode(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("sourcemeta: encode nil metadata")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	fields["type"] = mustMarshal(m.Type())
	return json.Marshal(fields)
}
