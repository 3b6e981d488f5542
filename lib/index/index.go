// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/schema"
	"github.com/meridian-quant/meridian/lib/sqlitepool"
)

// ErrNotIndexed is returned by Get for a hash with no index row.
var ErrNotIndexed = errors.New("artifact is not indexed")

// dbSchema creates the index tables. The artifacts table keys on the
// commit sequence; regime tags and policy keys are one row per value
// so any-of matching is a join, not string munging.
const dbSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	sequence      INTEGER PRIMARY KEY,
	hash          TEXT NOT NULL UNIQUE,
	kind          TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	goal          TEXT NOT NULL DEFAULT '',
	strategy_type TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	fidelity_tier TEXT NOT NULL DEFAULT '',
	committed_at  INTEGER NOT NULL,
	message       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS artifacts_kind ON artifacts(kind);
CREATE INDEX IF NOT EXISTS artifacts_goal ON artifacts(goal);
CREATE INDEX IF NOT EXISTS artifacts_committed_at ON artifacts(committed_at);

CREATE TABLE IF NOT EXISTS regime_tags (
	sequence INTEGER NOT NULL,
	tag      TEXT NOT NULL,
	PRIMARY KEY (sequence, tag)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS regime_tags_tag ON regime_tags(tag);

CREATE TABLE IF NOT EXISTS policy_keys (
	sequence INTEGER NOT NULL,
	key      TEXT NOT NULL,
	PRIMARY KEY (sequence, key)
) WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS policy_keys_key ON policy_keys(key);
`

// Config configures an index.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// PoolSize is passed through to the connection pool.
	PoolSize int

	// Logger receives operational messages. Nil discards.
	Logger *slog.Logger
}

// Index is the searchable metadata view of the lineage log, stored in
// SQLite. It holds no data of its own: every row is derived from a
// commit plus the committed artifact, and [Index.Rebuild] can recreate
// the whole database from the log at any time.
type Index struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens or creates the index database.
func Open(cfg Config) (*Index, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, dbSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}

	return &Index{pool: pool, logger: logger}, nil
}

// Put inserts or replaces the index rows for one entry. Replacing is
// what makes index writes idempotent: re-indexing a commit after a
// crash between log append and index write converges on the same
// rows.
func (ix *Index) Put(ctx context.Context, entry Entry) (err error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer ix.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	defer endFn(&err)

	return putInTransaction(conn, entry)
}

// putInTransaction writes one entry's rows. The caller owns the
// transaction.
func putInTransaction(conn *sqlite.Conn, entry Entry) error {
	err := sqlitex.Execute(conn, `
		INSERT OR REPLACE INTO artifacts
			(sequence, hash, kind, name, goal, strategy_type,
			 provider, fidelity_tier, committed_at, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			int64(entry.Sequence),
			object.FormatHash(entry.Hash),
			string(entry.Kind),
			entry.Name,
			entry.Goal,
			entry.StrategyType,
			entry.Provider,
			entry.FidelityTier,
			entry.CommittedAt,
			entry.Message,
		}},
	)
	if err != nil {
		return fmt.Errorf("indexing artifact %s: %w", object.FormatRef(entry.Hash), err)
	}

	// Replacement may shrink the tag and key sets, so clear first.
	for _, table := range []string{"regime_tags", "policy_keys"} {
		err := sqlitex.Execute(conn,
			fmt.Sprintf("DELETE FROM %s WHERE sequence = ?", table),
			&sqlitex.ExecOptions{Args: []any{int64(entry.Sequence)}},
		)
		if err != nil {
			return fmt.Errorf("clearing %s for sequence %d: %w", table, entry.Sequence, err)
		}
	}

	for _, tag := range entry.RegimeTags {
		err := sqlitex.Execute(conn,
			"INSERT INTO regime_tags (sequence, tag) VALUES (?, ?)",
			&sqlitex.ExecOptions{Args: []any{int64(entry.Sequence), tag}},
		)
		if err != nil {
			return fmt.Errorf("indexing regime tag %q: %w", tag, err)
		}
	}
	for _, key := range entry.PolicyKeys {
		err := sqlitex.Execute(conn,
			"INSERT INTO policy_keys (sequence, key) VALUES (?, ?)",
			&sqlitex.ExecOptions{Args: []any{int64(entry.Sequence), key}},
		)
		if err != nil {
			return fmt.Errorf("indexing policy key %q: %w", key, err)
		}
	}

	return nil
}

// Get returns the entry for a hash, or ErrNotIndexed.
func (ix *Index) Get(ctx context.Context, hash object.Hash) (Entry, error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer ix.pool.Put(conn)

	var entry Entry
	found := false
	err = sqlitex.Execute(conn, `
		SELECT sequence, hash, kind, name, goal, strategy_type,
		       provider, fidelity_tier, committed_at, message
		FROM artifacts WHERE hash = ?`,
		&sqlitex.ExecOptions{
			Args: []any{object.FormatHash(hash)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				entry, err = entryFromRow(stmt)
				return err
			},
		},
	)
	if err != nil {
		return Entry{}, fmt.Errorf("reading index entry for %s: %w", object.FormatRef(hash), err)
	}
	if !found {
		return Entry{}, fmt.Errorf("%s: %w", object.FormatRef(hash), ErrNotIndexed)
	}

	if err := ix.loadValueRows(conn, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Query selects index entries. Zero-valued fields do not constrain
// the result. RegimeTags and PolicyKeys match any-of. Results come
// back newest first.
type Query struct {
	Kind         schema.Kind
	Goal         string
	StrategyType string
	Provider     string
	RegimeTags   []string
	PolicyKeys   []string

	// Since and Until bound CommittedAt (inclusive), Unix
	// nanoseconds. Nil means unbounded.
	Since *int64
	Until *int64

	// Limit caps the result count. Zero means no cap.
	Limit int
}

// Search runs a query and returns matching entries, newest commits
// first.
func (ix *Index) Search(ctx context.Context, query Query) ([]Entry, error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer ix.pool.Put(conn)

	var (
		conditions []string
		args       []any
	)

	if query.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(query.Kind))
	}
	if query.Goal != "" {
		conditions = append(conditions, "goal = ?")
		args = append(args, query.Goal)
	}
	if query.StrategyType != "" {
		conditions = append(conditions, "strategy_type = ?")
		args = append(args, query.StrategyType)
	}
	if query.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, query.Provider)
	}
	if query.Since != nil {
		conditions = append(conditions, "committed_at >= ?")
		args = append(args, *query.Since)
	}
	if query.Until != nil {
		conditions = append(conditions, "committed_at <= ?")
		args = append(args, *query.Until)
	}
	if len(query.RegimeTags) > 0 {
		conditions = append(conditions, fmt.Sprintf(
			"sequence IN (SELECT sequence FROM regime_tags WHERE tag IN (%s))",
			placeholders(len(query.RegimeTags))))
		for _, tag := range query.RegimeTags {
			args = append(args, tag)
		}
	}
	if len(query.PolicyKeys) > 0 {
		conditions = append(conditions, fmt.Sprintf(
			"sequence IN (SELECT sequence FROM policy_keys WHERE key IN (%s))",
			placeholders(len(query.PolicyKeys))))
		for _, key := range query.PolicyKeys {
			args = append(args, key)
		}
	}

	sql := `SELECT sequence, hash, kind, name, goal, strategy_type,
	               provider, fidelity_tier, committed_at, message
	        FROM artifacts`
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	sql += " ORDER BY committed_at DESC, sequence DESC"
	if query.Limit > 0 {
		sql += " LIMIT ?"
		args = append(args, int64(query.Limit))
	}

	var entries []Entry
	err = sqlitex.Execute(conn, sql, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry, err := entryFromRow(stmt)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	for i := range entries {
		if err := ix.loadValueRows(conn, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// LastSequence returns the highest indexed commit sequence, or zero
// for an empty index. The repository compares this against the log
// head to detect a stale index.
func (ix *Index) LastSequence(ctx context.Context) (uint64, error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer ix.pool.Put(conn)

	var last uint64
	err = sqlitex.Execute(conn,
		"SELECT COALESCE(MAX(sequence), 0) FROM artifacts",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				last = uint64(stmt.ColumnInt64(0))
				return nil
			},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("reading index head: %w", err)
	}
	return last, nil
}

// Rebuild replaces the entire index with the given entries in one
// transaction. Readers see either the old view or the new one.
func (ix *Index) Rebuild(ctx context.Context, entries []Entry) (err error) {
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer ix.pool.Put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("beginning rebuild transaction: %w", err)
	}
	defer endFn(&err)

	for _, table := range []string{"artifacts", "regime_tags", "policy_keys"} {
		if err := sqlitex.Execute(conn, "DELETE FROM "+table, nil); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	for _, entry := range entries {
		if err := putInTransaction(conn, entry); err != nil {
			return err
		}
	}

	ix.logger.Info("index rebuilt", "entries", len(entries))
	return nil
}

// Close closes the underlying pool.
func (ix *Index) Close() error {
	return ix.pool.Close()
}

// entryFromRow decodes the artifacts-table columns in select order.
func entryFromRow(stmt *sqlite.Stmt) (Entry, error) {
	hash, err := object.ParseHash(stmt.ColumnText(1))
	if err != nil {
		return Entry{}, fmt.Errorf("index row %d has bad hash: %w", stmt.ColumnInt64(0), err)
	}
	return Entry{
		Sequence:     uint64(stmt.ColumnInt64(0)),
		Hash:         hash,
		Kind:         schema.Kind(stmt.ColumnText(2)),
		Name:         stmt.ColumnText(3),
		Goal:         stmt.ColumnText(4),
		StrategyType: stmt.ColumnText(5),
		Provider:     stmt.ColumnText(6),
		FidelityTier: stmt.ColumnText(7),
		CommittedAt:  stmt.ColumnInt64(8),
		Message:      stmt.ColumnText(9),
	}, nil
}

// loadValueRows fills an entry's regime tags and policy keys.
func (ix *Index) loadValueRows(conn *sqlite.Conn, entry *Entry) error {
	err := sqlitex.Execute(conn,
		"SELECT tag FROM regime_tags WHERE sequence = ? ORDER BY tag",
		&sqlitex.ExecOptions{
			Args: []any{int64(entry.Sequence)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry.RegimeTags = append(entry.RegimeTags, stmt.ColumnText(0))
				return nil
			},
		},
	)
	if err != nil {
		return fmt.Errorf("reading regime tags for sequence %d: %w", entry.Sequence, err)
	}

	err = sqlitex.Execute(conn,
		"SELECT key FROM policy_keys WHERE sequence = ? ORDER BY key",
		&sqlitex.ExecOptions{
			Args: []any{int64(entry.Sequence)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry.PolicyKeys = append(entry.PolicyKeys, stmt.ColumnText(0))
				return nil
			},
		},
	)
	if err != nil {
		return fmt.Errorf("reading policy keys for sequence %d: %w", entry.Sequence, err)
	}
	return nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
