// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package lineage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/meridian-quant/meridian/lib/clock"
	"github.com/meridian-quant/meridian/lib/codec"
	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/schema"
)

// Sentinel errors returned by Log operations.
var (
	// ErrUnknownParent is returned by Append when a parent hash has
	// no commit in the log. Lineage must be committed bottom-up.
	ErrUnknownParent = errors.New("parent is not committed")

	// ErrDuplicateCommit is returned by Append when the hash already
	// has a commit. An artifact's lineage is fixed at first commit.
	ErrDuplicateCommit = errors.New("artifact is already committed")

	// ErrUnknownCommit is returned by Get and History for a hash
	// with no commit.
	ErrUnknownCommit = errors.New("no commit for artifact")
)

// Record framing: a 4-byte big-endian payload length, a 4-byte
// big-endian CRC-32C of the payload, then the canonical CBOR payload.
// The checksum bounds what a torn write can do: a partial or damaged
// tail record fails its CRC and is discarded on open, never parsed.
const recordHeaderSize = 4 + 4

// maxRecordSize bounds a single record. A length prefix beyond this
// is treated as a damaged tail rather than an allocation request.
const maxRecordSize = 16 << 20

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Config configures a lineage log.
type Config struct {
	// Path is the log file. Created if absent.
	Path string

	// Clock supplies commit timestamps. Nil means the real clock.
	Clock clock.Clock

	// Logger receives recovery and append diagnostics. Nil discards.
	Logger *slog.Logger
}

// Log is the append-only record of every commit ever made, in order.
// It is the source of truth for lineage: the metadata index is a
// derived view that can always be rebuilt from the log.
//
// All records are kept in memory (commits are small; the payloads
// live in the object store), so reads never touch disk. Appends take
// a mutex, frame the record, and fsync before acknowledging.
type Log struct {
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	file      *os.File
	commits   []Commit
	bySubject map[object.Hash]uint64
}

// Open reads an existing log (recovering from a torn tail write if
// needed) or creates an empty one.
func Open(cfg Config) (*Log, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	file, err := os.OpenFile(cfg.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lineage log: %w", err)
	}

	log := &Log{
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		file:      file,
		bySubject: make(map[object.Hash]uint64),
	}

	if err := log.load(); err != nil {
		file.Close()
		return nil, err
	}
	return log, nil
}

// load reads all records, verifying framing and sequence continuity.
// A damaged or partial tail is truncated away; damage anywhere else
// is a hard error, because records after it would be unreachable.
func (l *Log) load() error {
	data, err := io.ReadAll(l.file)
	if err != nil {
		return fmt.Errorf("reading lineage log: %w", err)
	}

	offset := 0
	for offset < len(data) {
		rest := data[offset:]
		if len(rest) < recordHeaderSize {
			return l.truncateTail(int64(offset), "partial record header")
		}

		length := binary.BigEndian.Uint32(rest[:4])
		checksum := binary.BigEndian.Uint32(rest[4:8])
		if length == 0 || length > maxRecordSize {
			return l.truncateTail(int64(offset), "implausible record length")
		}
		if len(rest) < recordHeaderSize+int(length) {
			return l.truncateTail(int64(offset), "partial record payload")
		}

		payload := rest[recordHeaderSize : recordHeaderSize+int(length)]
		if crc32.Checksum(payload, crcTable) != checksum {
			return l.truncateTail(int64(offset), "record checksum mismatch")
		}

		var commit Commit
		if err := codec.Unmarshal(payload, &commit); err != nil {
			return fmt.Errorf("decoding commit at offset %d: %w", offset, err)
		}

		wantSequence := uint64(len(l.commits)) + 1
		if commit.Sequence != wantSequence {
			return fmt.Errorf("lineage log sequence %d at offset %d, want %d",
				commit.Sequence, offset, wantSequence)
		}
		if _, dup := l.bySubject[commit.Hash]; dup {
			return fmt.Errorf("lineage log has two commits for %s", object.FormatRef(commit.Hash))
		}

		l.commits = append(l.commits, commit)
		l.bySubject[commit.Hash] = commit.Sequence
		offset += recordHeaderSize + int(length)
	}

	return nil
}

// truncateTail discards everything at and after offset. Only called
// for the damaged tail a crash mid-append leaves behind; every record
// before offset has already been verified.
func (l *Log) truncateTail(offset int64, reason string) error {
	l.logger.Warn("discarding damaged lineage log tail",
		"offset", offset,
		"reason", reason,
		"recovered_commits", len(l.commits))

	if err := l.file.Truncate(offset); err != nil {
		return fmt.Errorf("truncating damaged lineage log tail: %w", err)
	}
	// Truncate does not move the file offset; without the seek the
	// next append would leave a zero-filled hole at the old offset.
	if _, err := l.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to truncated lineage log tail: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing truncated lineage log: %w", err)
	}
	return nil
}

// Append records a commit for hash with the given parents and returns
// it. Every parent must already be committed and the hash must not
// be. The record is fsynced before Append returns.
func (l *Log) Append(hash object.Hash, parents []object.Hash, kind schema.Kind, message string) (Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.bySubject[hash]; exists {
		return Commit{}, fmt.Errorf("%s: %w", object.FormatRef(hash), ErrDuplicateCommit)
	}
	for _, parent := range parents {
		if _, ok := l.bySubject[parent]; !ok {
			return Commit{}, fmt.Errorf("%s: %w", object.FormatRef(parent), ErrUnknownParent)
		}
	}

	now := l.clock.Now().UnixNano()
	if n := len(l.commits); n > 0 && now <= l.commits[n-1].Time {
		// Wall clock stalled or stepped back. Commit times must
		// strictly increase, so nudge past the previous record.
		now = l.commits[n-1].Time + 1
	}

	commit := Commit{
		Sequence:     uint64(len(l.commits)) + 1,
		Hash:         hash,
		Parents:      slices.Clone(parents),
		ArtifactKind: kind,
		Message:      message,
		Time:         now,
	}

	payload, err := codec.Marshal(&commit)
	if err != nil {
		return Commit{}, fmt.Errorf("encoding commit: %w", err)
	}

	frame := make([]byte, recordHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[4:8], crc32.Checksum(payload, crcTable))
	copy(frame[recordHeaderSize:], payload)

	if _, err := l.file.Write(frame); err != nil {
		return Commit{}, fmt.Errorf("appending commit: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return Commit{}, fmt.Errorf("syncing lineage log: %w", err)
	}

	l.commits = append(l.commits, commit)
	l.bySubject[hash] = commit.Sequence

	l.logger.Debug("lineage commit appended",
		"ref", object.FormatRef(hash),
		"sequence", commit.Sequence,
		"kind", string(kind),
		"parents", len(parents))

	return commit, nil
}

// Get returns the commit for hash, or ErrUnknownCommit.
func (l *Log) Get(hash object.Hash) (Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sequence, ok := l.bySubject[hash]
	if !ok {
		return Commit{}, fmt.Errorf("%s: %w", object.FormatRef(hash), ErrUnknownCommit)
	}
	return l.commits[sequence-1], nil
}

// Contains reports whether hash has a commit.
func (l *Log) Contains(hash object.Hash) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.bySubject[hash]
	return ok
}

// Head returns the most recent commit, or false for an empty log.
func (l *Log) Head() (Commit, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.commits) == 0 {
		return Commit{}, false
	}
	return l.commits[len(l.commits)-1], true
}

// Len returns the number of commits (which is also the head
// sequence number).
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.commits))
}

// All returns every commit in log order.
func (l *Log) All() []Commit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.commits)
}

// Since returns every commit with a sequence strictly greater than
// after, in log order.
func (l *Log) Since(after uint64) []Commit {
	l.mu.Lock()
	defer l.mu.Unlock()

	if after >= uint64(len(l.commits)) {
		return nil
	}
	return slices.Clone(l.commits[after:])
}

// InRange returns every commit whose timestamp falls within
// [start, end] (Unix nanoseconds, inclusive), in log order. Commit
// times strictly increase, so the result is a contiguous slice of the
// log.
func (l *Log) InRange(start, end int64) []Commit {
	l.mu.Lock()
	defer l.mu.Unlock()

	lo, _ := slices.BinarySearchFunc(l.commits, start, func(c Commit, t int64) int {
		switch {
		case c.Time < t:
			return -1
		case c.Time > t:
			return 1
		default:
			return 0
		}
	})
	hi := lo
	for hi < len(l.commits) && l.commits[hi].Time <= end {
		hi++
	}
	if lo == hi {
		return nil
	}
	return slices.Clone(l.commits[lo:hi])
}

// History returns the full ancestry of hash: its commit first, then
// every transitively reachable parent commit, newest first. Parents
// always precede children in the log, so descending sequence order is
// a valid reverse topological order.
func (l *Log) History(hash object.Hash) ([]Commit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start, ok := l.bySubject[hash]
	if !ok {
		return nil, fmt.Errorf("%s: %w", object.FormatRef(hash), ErrUnknownCommit)
	}

	reachable := map[uint64]struct{}{start: {}}
	frontier := []uint64{start}
	for len(frontier) > 0 {
		sequence := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		for _, parent := range l.commits[sequence-1].Parents {
			parentSequence := l.bySubject[parent]
			if _, seen := reachable[parentSequence]; seen {
				continue
			}
			reachable[parentSequence] = struct{}{}
			frontier = append(frontier, parentSequence)
		}
	}

	sequences := make([]uint64, 0, len(reachable))
	for sequence := range reachable {
		sequences = append(sequences, sequence)
	}
	slices.SortFunc(sequences, func(a, b uint64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	})

	history := make([]Commit, len(sequences))
	for i, sequence := range sequences {
		history[i] = l.commits[sequence-1]
	}
	return history, nil
}

// Close syncs and closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Sync()
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil
	return err
}
