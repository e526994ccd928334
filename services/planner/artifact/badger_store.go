// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/wayfinder/services/planner/storage"
)

// artifactKeyPrefix namespaces artifact records in the shared keyspace.
const artifactKeyPrefix = "art:"

// BadgerStore is the Badger-backed artifact store.
//
// Values are checksum-framed JSON (storage.FrameChecksum) so torn writes
// are detected on read rather than surfacing as corrupt artifacts
// downstream.
type BadgerStore struct {
	db     *storage.DB
	closed atomic.Bool
}

// Compile-time interface check.
var _ Store = (*BadgerStore)(nil)

// NewBadgerStore creates a store on an open database.
func NewBadgerStore(db *storage.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func artifactKey(id string) []byte {
	return []byte(artifactKeyPrefix + id)
}

// encodeValue frames the artifact JSON with a checksum.
func encodeValue(art *Artifact) ([]byte, error) {
	payload, err := json.Marshal(art)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact %s: %w", art.ID, err)
	}
	return storage.FrameChecksum(payload), nil
}

// decodeValue verifies the checksum and unmarshals the artifact.
func decodeValue(raw []byte) (*Artifact, error) {
	payload, err := storage.UnframeChecksum(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	var art Artifact
	if err := json.Unmarshal(payload, &art); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return &art, nil
}

// Append validates and persists a new artifact.
func (s *BadgerStore) Append(ctx context.Context, art *Artifact) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := art.Validate(); err != nil {
		return err
	}

	value, err := encodeValue(art)
	if err != nil {
		return err
	}

	key := artifactKey(art.ID)
	return s.db.WithTxn(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrDuplicateID, art.ID)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("check duplicate %s: %w", art.ID, err)
		}
		return txn.Set(key, value)
	})
}

// Supersede links oldID to newID. The link is set exactly once.
func (s *BadgerStore) Supersede(ctx context.Context, oldID, newID string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.WithTxn(func(txn *badger.Txn) error {
		old, err := getInTxn(txn, oldID)
		if err != nil {
			return err
		}
		if old.SupersededBy != "" {
			return fmt.Errorf("%w: %s -> %s", ErrAlreadySuperseded, oldID, old.SupersededBy)
		}

		repl, err := getInTxn(txn, newID)
		if err != nil {
			return err
		}
		if repl.Kind != old.Kind {
			return fmt.Errorf("%w: %s is %s, %s is %s",
				ErrKindMismatch, oldID, old.Kind, newID, repl.Kind)
		}

		old.SupersededBy = newID
		value, err := encodeValue(old)
		if err != nil {
			return err
		}
		return txn.Set(artifactKey(oldID), value)
	})
}

func getInTxn(txn *badger.Txn, id string) (*Artifact, error) {
	item, err := txn.Get(artifactKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	var art *Artifact
	err = item.Value(func(val []byte) error {
		art, err = decodeValue(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return art, nil
}

// Get returns one artifact by ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*Artifact, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var art *Artifact
	err := s.db.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		art, err = getInTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return art, nil
}

// List returns artifacts matching opts, ordered by ID for determinism.
func (s *BadgerStore) List(ctx context.Context, opts ListOptions) ([]*Artifact, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*Artifact
	prefix := []byte(artifactKeyPrefix)
	err := s.db.WithReadTxn(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var art *Artifact
			err := it.Item().Value(func(val []byte) error {
				var derr error
				art, derr = decodeValue(val)
				return derr
			})
			if err != nil {
				return err
			}
			if opts.Kind != "" && art.Kind != opts.Kind {
				continue
			}
			if opts.ActiveOnly && !art.Active() {
				continue
			}
			if opts.SourcePhase != "" && art.SourcePhase != opts.SourcePhase {
				continue
			}
			out = append(out, art)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close marks the store closed. The underlying DB is shared and owned by
// the caller; it is not closed here.
func (s *BadgerStore) Close() error {
	s.closed.Store(true)
	return nil
}
