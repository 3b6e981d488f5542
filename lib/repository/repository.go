// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/meridian-quant/meridian/lib/clock"
	"github.com/meridian-quant/meridian/lib/codec"
	"github.com/meridian-quant/meridian/lib/index"
	"github.com/meridian-quant/meridian/lib/lineage"
	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/replay"
	"github.com/meridian-quant/meridian/lib/schema"
)

// File names inside the repository root, next to the object store's
// directories.
const (
	lineageFile = "lineage.log"
	indexFile   = "index.db"
)

// Options configures opening a repository.
type Options struct {
	// Root is the repository directory. Created if absent.
	Root string

	// Clock supplies commit timestamps. Nil means the real clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Repository ties the three stores together: the content-addressed
// object store (payloads), the lineage log (history, the source of
// truth), and the SQLite metadata index (a derived, searchable view).
//
// Commit order is objects first, then log, then index. Each earlier
// store tolerates the later ones missing: an object without a commit
// is unreferenced and harmless, and a commit without index rows is
// repaired by the rebuild check on the next Open.
type Repository struct {
	root   string
	logger *slog.Logger

	objects *object.Store
	log     *lineage.Log
	index   *index.Index

	// commitMu serializes Commit. Reads take no repository lock.
	commitMu sync.Mutex
}

// Open opens or initializes a repository at opts.Root. If the
// metadata index is behind the lineage log (a crash between log
// append and index write, or a deleted index file), it is rebuilt
// from the log before Open returns.
func Open(ctx context.Context, opts Options) (*Repository, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating repository root: %w", err)
	}
	cfg, err := loadOrInitConfig(opts.Root, clk.Now())
	if err != nil {
		return nil, err
	}

	objects, err := object.NewStore(opts.Root)
	if err != nil {
		return nil, err
	}

	log, err := lineage.Open(lineage.Config{
		Path:   filepath.Join(opts.Root, lineageFile),
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	ix, err := index.Open(index.Config{
		Path:     filepath.Join(opts.Root, indexFile),
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	repo := &Repository{
		root:    opts.Root,
		logger:  logger,
		objects: objects,
		log:     log,
		index:   ix,
	}

	if err := repo.reconcileIndex(ctx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// reconcileIndex rebuilds the index when it disagrees with the log
// head. A rebuild covers both the behind case (crash before index
// write) and the ahead case (log restored from backup under a newer
// index).
func (r *Repository) reconcileIndex(ctx context.Context) error {
	indexed, err := r.index.LastSequence(ctx)
	if err != nil {
		return err
	}
	head := r.log.Len()
	if indexed == head {
		return nil
	}

	r.logger.Warn("metadata index out of sync with lineage log, rebuilding",
		"indexed", indexed,
		"log_head", head)

	commits := r.log.All()
	entries := make([]index.Entry, 0, len(commits))
	for _, commit := range commits {
		artifact, err := r.loadArtifact(commit.Hash)
		if err != nil {
			return fmt.Errorf("rebuilding index at sequence %d: %w", commit.Sequence, err)
		}
		entries = append(entries, index.EntryFromCommit(commit, artifact))
	}
	return r.index.Rebuild(ctx, entries)
}

// Commit validates and stores an artifact, records its lineage, and
// indexes it. Parents must already be committed. Committing an
// artifact that is already committed is idempotent and returns the
// existing commit.
func (r *Repository) Commit(ctx context.Context, artifact *schema.Artifact, parents []object.Hash, message string) (lineage.Commit, error) {
	if err := artifact.Validate(); err != nil {
		return lineage.Commit{}, err
	}

	hash, raw, err := object.HashArtifact(artifact)
	if err != nil {
		return lineage.Commit{}, err
	}

	r.commitMu.Lock()
	defer r.commitMu.Unlock()

	if existing, err := r.log.Get(hash); err == nil {
		return existing, nil
	}

	if _, err := r.objects.Put(raw); err != nil {
		return lineage.Commit{}, err
	}

	commit, err := r.log.Append(hash, parents, artifact.Kind, message)
	if err != nil {
		// The object is stored but unreferenced. That is fine;
		// content addressing means a later successful commit of the
		// same artifact reuses it.
		return lineage.Commit{}, err
	}

	if err := r.index.Put(ctx, index.EntryFromCommit(commit, artifact)); err != nil {
		// The commit is durable in the log; the index self-heals on
		// the next Open. Losing search freshness beats failing a
		// commit that already happened.
		r.logger.Warn("indexing committed artifact failed",
			"ref", object.FormatRef(hash),
			"sequence", commit.Sequence,
			"error", err)
	}

	return commit, nil
}

// Get returns a committed artifact and its commit.
func (r *Repository) Get(hash object.Hash) (*schema.Artifact, lineage.Commit, error) {
	commit, err := r.log.Get(hash)
	if err != nil {
		return nil, lineage.Commit{}, err
	}
	artifact, err := r.loadArtifact(hash)
	if err != nil {
		return nil, lineage.Commit{}, err
	}
	return artifact, commit, nil
}

// Exists reports whether hash has a commit.
func (r *Repository) Exists(hash object.Hash) bool {
	return r.log.Contains(hash)
}

// Metadata returns the index entry for a committed artifact without
// touching the object payload.
func (r *Repository) Metadata(ctx context.Context, hash object.Hash) (index.Entry, error) {
	return r.index.Get(ctx, hash)
}

// Search queries the metadata index. Results are newest first.
func (r *Repository) Search(ctx context.Context, query index.Query) ([]index.Entry, error) {
	return r.index.Search(ctx, query)
}

// Diff loads two committed artifacts and returns their field-level
// differences.
func (r *Repository) Diff(hashA, hashB object.Hash) ([]schema.FieldDiff, error) {
	a, err := r.loadArtifact(hashA)
	if err != nil {
		return nil, err
	}
	b, err := r.loadArtifact(hashB)
	if err != nil {
		return nil, err
	}
	return schema.Diff(a, b)
}

// History returns the commit for hash followed by its full ancestry,
// newest first.
func (r *Repository) History(hash object.Hash) ([]lineage.Commit, error) {
	return r.log.History(hash)
}

// Log returns every commit in log order.
func (r *Repository) Log() []lineage.Commit {
	return r.log.All()
}

// Head returns the most recent commit, or false for an empty
// repository.
func (r *Repository) Head() (lineage.Commit, bool) {
	return r.log.Head()
}

// Replay recomputes a committed backtest result with the given engine
// and reports whether the stored bytes are reproducible.
func (r *Repository) Replay(ctx context.Context, resultHash object.Hash, compute replay.Compute) (*replay.Outcome, error) {
	verifier := &replay.Verifier{
		Objects: r.objects,
		Logger:  r.logger,
	}
	return verifier.Replay(ctx, resultHash, compute)
}

// Close releases the index pool and the lineage log.
func (r *Repository) Close() error {
	return errors.Join(r.index.Close(), r.log.Close())
}

// loadArtifact fetches and decodes one object as an artifact.
func (r *Repository) loadArtifact(hash object.Hash) (*schema.Artifact, error) {
	raw, err := r.objects.Get(hash)
	if err != nil {
		return nil, err
	}
	var artifact schema.Artifact
	if err := codec.Unmarshal(raw, &artifact); err != nil {
		return nil, fmt.Errorf("decoding artifact %s: %w", object.FormatRef(hash), err)
	}
	return &artifact, nil
}
