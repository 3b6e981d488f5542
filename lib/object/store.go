// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Directory names within the object store root.
const (
	objectsDir = "objects"
	tmpDir     = "tmp"
)

// Object file frame layout: a 1-byte compression tag, the uncompressed
// payload size as an 8-byte big-endian integer, then the (possibly
// compressed) payload.
const frameHeaderSize = 1 + 8

// ErrNotFound is returned by Get and Stat for a hash with no stored
// object.
var ErrNotFound = errors.New("object not found")

// ErrCorrupt is returned by Get when a stored object's bytes no
// longer hash to its name. The store never repairs or deletes the
// damaged file; the caller decides what to do with it.
var ErrCorrupt = errors.New("object is corrupt")

// Store is a content-addressed object store on the local filesystem.
// Each object is the canonical encoding of one artifact, written once
// under its own hash and never modified. Writes go through a temp
// file and an atomic rename, so a crash leaves either the complete
// object or nothing.
//
// The store is safe for concurrent use: Put for the same hash is
// idempotent (last rename wins over identical bytes) and Get only
// reads immutable files.
type Store struct {
	root string
}

// NewStore creates a Store rooted at the given directory, creating
// the layout if it does not exist.
func NewStore(root string) (*Store, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, objectsDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Put stores canonical bytes under their hash and returns it. If the
// object already exists the write is skipped; content addressing
// guarantees the existing file holds the same bytes.
func (s *Store) Put(data []byte) (Hash, error) {
	if len(data) == 0 {
		return Hash{}, fmt.Errorf("cannot store empty object")
	}

	hash := HashBytes(data)
	finalPath := s.objectPath(hash)

	// Dedup fast path.
	if _, err := os.Stat(finalPath); err == nil {
		return hash, nil
	}

	payload, tag, err := compressAuto(data)
	if err != nil {
		return Hash{}, fmt.Errorf("compressing object %s: %w", FormatRef(hash), err)
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	frame[0] = byte(tag)
	binary.BigEndian.PutUint64(frame[1:9], uint64(len(data)))
	copy(frame[frameHeaderSize:], payload)

	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "object-*.bin")
	if err != nil {
		return Hash{}, fmt.Errorf("creating temp object file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(frame); err != nil {
		tmpFile.Close()
		return Hash{}, fmt.Errorf("writing object data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return Hash{}, fmt.Errorf("syncing object data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return Hash{}, fmt.Errorf("closing temp object file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return Hash{}, fmt.Errorf("creating object shard directory: %w", err)
	}

	// A concurrent Put of the same bytes may have landed first. The
	// rename still succeeds and replaces an identical file.
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Hash{}, fmt.Errorf("renaming object to %s: %w", finalPath, err)
	}

	success = true
	return hash, nil
}

// Get reads an object's canonical bytes, verifying them against the
// requested hash. Returns ErrNotFound if no object is stored under
// the hash and ErrCorrupt if the stored bytes fail verification.
func (s *Store) Get(hash Hash) ([]byte, error) {
	frame, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", FormatRef(hash), ErrNotFound)
		}
		return nil, fmt.Errorf("reading object %s: %w", FormatRef(hash), err)
	}

	if len(frame) < frameHeaderSize {
		return nil, fmt.Errorf("object %s: frame is %d bytes, want at least %d: %w",
			FormatRef(hash), len(frame), frameHeaderSize, ErrCorrupt)
	}

	tag := CompressionTag(frame[0])
	uncompressedSize := binary.BigEndian.Uint64(frame[1:9])

	data, err := decompress(frame[frameHeaderSize:], tag, int(uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("object %s: %v: %w", FormatRef(hash), err, ErrCorrupt)
	}

	// Re-hash on every read. Disk corruption under the store's own
	// name must never surface as valid data.
	if HashBytes(data) != hash {
		return nil, fmt.Errorf("object %s: content does not match hash: %w",
			FormatRef(hash), ErrCorrupt)
	}

	return data, nil
}

// Exists reports whether an object is stored under the hash. It does
// not verify content; Get does.
func (s *Store) Exists(hash Hash) bool {
	_, err := os.Stat(s.objectPath(hash))
	return err == nil
}

// Stat returns the on-disk (framed, possibly compressed) size of an
// object and its compression tag. Returns ErrNotFound if the object
// is not stored.
func (s *Store) Stat(hash Hash) (size int64, tag CompressionTag, err error) {
	path := s.objectPath(hash)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, fmt.Errorf("object %s: %w", FormatRef(hash), ErrNotFound)
		}
		return 0, 0, fmt.Errorf("stating object %s: %w", FormatRef(hash), err)
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("opening object %s: %w", FormatRef(hash), err)
	}
	defer file.Close()

	var header [1]byte
	if _, err := file.Read(header[:]); err != nil {
		return 0, 0, fmt.Errorf("reading object %s header: %w", FormatRef(hash), err)
	}
	return info.Size(), CompressionTag(header[0]), nil
}

// objectPath returns the sharded filesystem path for an object.
// Objects are sharded by the first two bytes of the hash hex:
// objects/a3/f9/a3f9b2c1e7d4...
func (s *Store) objectPath(hash Hash) string {
	hex := FormatHash(hash)
	return filepath.Join(s.root, objectsDir, hex[:2], hex[2:4], hex)
}
