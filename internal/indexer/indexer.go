// Package indexer drives one end-to-end indexing operation: it consults
// a Store for prior state, asks a Source for a full snapshot or an
// incremental diff, and replays the result into a Context Engine,
// writing the new state back to the Store at most once per run.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/contextengine"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
	"github.com/augmentcode/auggie-index/internal/store"
)

// Config bundles the Indexer's fixed collaborators: how to reach the
// Context Engine and where to log. One Config can drive many Index
// calls against different (source, store, name) triples.
type Config struct {
	Factory  contextengine.Factory
	APIToken string
	APIURL   string
	Logger   *slog.Logger
}

// Indexer drives indexing runs against an opaque Context Engine.
type Indexer struct {
	cfg Config
}

// New constructs an Indexer. Factory must be non-nil.
func New(cfg Config) (*Indexer, error) {
	if cfg.Factory == nil {
		return nil, apperrors.ConfigError("indexer: Factory is required", nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Indexer{cfg: cfg}, nil
}

// Index runs exactly one end-to-end indexing operation for name: load
// prior state; full-index if absent; otherwise ask the source for
// changes and either short-circuit to "unchanged", apply them
// incrementally, or fall back to full. progress may be nil, in which
// case NoopProgress is used.
func (ix *Indexer) Index(ctx context.Context, src source.Source, st store.Writer, name string, progress Progress) (*model.IndexResult, error) {
	if progress == nil {
		progress = NoopProgress
	}
	start := time.Now()
	log := ix.cfg.Logger.With(slog.String("index", name))

	prev, err := st.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("indexer: load prior state for %q: %w", name, err)
	}

	if prev == nil {
		log.Info("no prior state, running full index")
		return ix.runFull(ctx, src, st, name, start, progress)
	}

	changes, err := src.FetchChanges(ctx, prev.Source)
	if err != nil {
		return nil, fmt.Errorf("indexer: fetch changes for %q: %w", name, err)
	}

	if changes == nil {
		log.Info("source declined incremental diff, falling back to full index")
		return ix.runFull(ctx, src, st, name, start, progress)
	}

	if changes.Empty() {
		log.Info("no changes since prior sync")
		progress.Done("unchanged")
		return &model.IndexResult{
			Type:       model.IndexResultTypeUnchanged,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	log.Info("applying incremental changes",
		slog.Int("added", len(changes.Added)),
		slog.Int("modified", len(changes.Modified)),
		slog.Int("removed", len(changes.Removed)))
	return ix.runIncremental(ctx, src, st, name, prev, changes, start, progress)
}

// runFull builds a fresh context from every entry Source.FetchAll
// streams, then saves once.
func (ix *Indexer) runFull(ctx context.Context, src source.Source, st store.Writer, name string, start time.Time, progress Progress) (*model.IndexResult, error) {
	engine, err := ix.cfg.Factory.Create(ctx, ix.cfg.APIToken, ix.cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("indexer: create context: %w", err)
	}

	// fetchCtx is cancelled on any early exit so the FetchAll goroutine's
	// blocked channel send (if any) unblocks via its own ctx.Done() select
	// instead of leaking for the lifetime of the process.
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries, errs := src.FetchAll(fetchCtx)
	count := 0
	for entry := range entries {
		if err := engine.AddToIndex(ctx, []contextengine.FileEntry{{Path: entry.Path, Contents: entry.Contents}}); err != nil {
			cancel()
			drainErrChan(errs)
			return nil, fmt.Errorf("indexer: add %q to index: %w", entry.Path, err)
		}
		count++
		progress.Update(count)
	}
	if err := <-errs; err != nil {
		return nil, fmt.Errorf("indexer: fetch all: %w", err)
	}

	meta, err := src.GetMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexer: get metadata: %w", err)
	}

	if err := ix.save(ctx, st, name, engine, meta); err != nil {
		return nil, err
	}

	result := &model.IndexResult{
		Type:         model.IndexResultTypeFull,
		FilesIndexed: count,
		DurationMs:   time.Since(start).Milliseconds(),
	}
	progress.Done(fmt.Sprintf("full: %d files", count))
	return result, nil
}

// runIncremental imports the prior context, applies removals before
// additions (in enumeration order), then saves once.
func (ix *Indexer) runIncremental(ctx context.Context, src source.Source, st store.Writer, name string, prev *model.IndexState, changes *model.FileChanges, start time.Time, progress Progress) (*model.IndexResult, error) {
	engine, err := ix.cfg.Factory.Import(ctx, prev.ContextState, ix.cfg.APIToken, ix.cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("indexer: import context: %w", err)
	}

	if len(changes.Removed) > 0 {
		if err := engine.RemoveFromIndex(ctx, changes.Removed); err != nil {
			return nil, fmt.Errorf("indexer: remove from index: %w", err)
		}
	}

	count := 0
	for _, entry := range append(append([]model.FileEntry{}, changes.Added...), changes.Modified...) {
		if err := engine.AddToIndex(ctx, []contextengine.FileEntry{{Path: entry.Path, Contents: entry.Contents}}); err != nil {
			return nil, fmt.Errorf("indexer: add %q to index: %w", entry.Path, err)
		}
		count++
		progress.Update(count)
	}

	meta, err := src.GetMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexer: get metadata: %w", err)
	}

	if err := ix.save(ctx, st, name, engine, meta); err != nil {
		return nil, err
	}

	result := &model.IndexResult{
		Type:         model.IndexResultTypeIncremental,
		FilesIndexed: count,
		FilesRemoved: len(changes.Removed),
		DurationMs:   time.Since(start).Milliseconds(),
	}
	progress.Done(fmt.Sprintf("incremental: +%d -%d", count, len(changes.Removed)))
	return result, nil
}

// drainErrChan consumes (and discards) a Source.FetchAll error channel
// after the entries channel was abandoned mid-stream, so the
// background goroutine feeding it is never left blocked on a send.
func drainErrChan(errs <-chan error) {
	for range errs {
	}
}

// save exports the engine's state and writes the new IndexState. A save
// failure is reported to the caller unchanged: the Context Engine's
// server-side state may now be ahead of the persisted state, and that
// asymmetry is resolved by the next Index call re-running and
// converging rather than by any rollback attempted here.
func (ix *Indexer) save(ctx context.Context, st store.Writer, name string, engine contextengine.Engine, meta sourcemeta.Metadata) error {
	blob, err := engine.Export(ctx)
	if err != nil {
		return fmt.Errorf("indexer: export context: %w", err)
	}
	state := &model.IndexState{ContextState: blob, Source: meta}
	if err := st.Save(ctx, name, state); err != nil {
		return fmt.Errorf("indexer: save state for %q: %w", name, err)
	}
	return nil
}
