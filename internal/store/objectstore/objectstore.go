// Package objectstore implements internal/store.Writer against an
// S3-compatible object store, for deployments that want index state
// shared across machines instead of pinned to one local directory.
// Atomicity for Save relies on the object store's own single-PUT
// overwrite semantics rather than a temp-then-rename dance.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
	"github.com/augmentcode/auggie-index/internal/store"
)

// Config describes how to reach the bucket backing a Store.
type Config struct {
	Bucket       string
	Prefix       string
	Endpoint     string // custom endpoint, e.g. for MinIO/R2; empty selects AWS default
	Region       string
	UsePathStyle bool
}

// Store persists IndexState as one object per sanitized name under
// Config.Prefix.
type Store struct {
	client *s3.Client
	cfg    Config
}

// New constructs a Store, loading AWS credentials from the SDK's
// standard chain (env vars, shared config, IAM role) unless overridden
// by Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("objectstore: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("objectstore: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{client: client, cfg: cfg}, nil
}

func (s *Store) key(name string) string {
	sanitized := store.SanitizeName(name)
	if s.cfg.Prefix == "" {
		return sanitized + ".json"
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + sanitized + ".json"
}

// Load implements store.Reader.
func (s *Store) Load(ctx context.Context, name string) (*model.IndexState, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("objectstore: load %q: %w", name, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read body for %q: %w", name, err)
	}
	return decodeIndexState(data)
}

// List implements store.Reader.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var names []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("objectstore: list: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			base := key
			if idx := strings.LastIndexByte(key, '/'); idx >= 0 {
				base = key[idx+1:]
			}
			names = append(names, strings.TrimSuffix(base, ".json"))
		}
	}
	return names, nil
}

// LoadSearch implements store.SearchOnlyLoader: like Load but skipping
// the source-metadata decode, which the search path never needs.
func (s *Store) LoadSearch(ctx context.Context, name string) (*model.IndexState, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("objectstore: load %q: %w", name, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read body for %q: %w", name, err)
	}
	var wire struct {
		ContextState json.RawMessage `json:"contextState"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("objectstore: decode index state: %w", err)
	}
	return &model.IndexState{ContextState: wire.ContextState}, nil
}

// Save implements store.Writer via a single PUT, atomic per the object
// store's own guarantees.
func (s *Store) Save(ctx context.Context, name string, state *model.IndexState) error {
	src, err := sourcemeta.Encode(state.Source)
	if err != nil {
		return fmt.Errorf("objectstore: encode source metadata for %q: %w", name, err)
	}
	data, err := json.Marshal(struct {
		ContextState json.RawMessage `json:"contextState"`
		Source       json.RawMessage `json:"source"`
	}{ContextState: state.ContextState, Source: src})
	if err != nil {
		return fmt.Errorf("objectstore: marshal state for %q: %w", name, err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %q: %w", name, err)
	}
	return nil
}

// Delete implements store.Writer.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return fmt.Errorf("objectstore: delete %q: %w", name, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var notFound *s3types.NotFound
	return errors.As(err, &notFound)
}

func decodeIndexState(data []byte) (*model.IndexState, error) {
	var wire struct {
		ContextState json.RawMessage `json:"contextState"`
		Source       json.RawMessage `json:"source"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("objectstore: decode index state: %w", err)
	}
	meta, err := sourcemeta.Decode(wire.Source)
	if err != nil {
		return nil, fmt.Errorf("objectstore: decode source metadata: %w", err)
	}
	return &model.IndexState{ContextState: wire.ContextState, Source: meta}, nil
}
