// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/wayfinder/services/planner/storage"
)

// Key layout in the shared keyspace:
//
//	state:<run-id>:rev:<revision %016d>  checksum-framed state JSON
//	state:<run-id>:latest                big-endian uint64 revision
const (
	stateKeyPrefix  = "state:"
	revKeySegment   = ":rev:"
	latestKeySuffix = ":latest"
)

// Store persists run states with full revision history.
//
// # Description
//
// Every Save writes a new revision record and moves the run's latest
// pointer, never overwriting history; resume reads the latest revision
// and inspection tools can read any. Saves enforce strict revision
// monotonicity, so a skipped Bump or a second engine process surfaces as
// ErrRevisionConflict instead of silent divergence.
//
// # Thread Safety
//
// Safe for concurrent use. The engine is the only writer by convention.
type Store struct {
	db     *storage.DB
	closed atomic.Bool
}

// NewStore creates a state store on an open database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

func revKey(runID string, rev uint64) []byte {
	return []byte(fmt.Sprintf("%s%s%s%016d", stateKeyPrefix, runID, revKeySegment, rev))
}

func latestKey(runID string) []byte {
	return []byte(stateKeyPrefix + runID + latestKeySuffix)
}

// Save validates and persists one snapshot as the run's next revision.
//
// Errors: ErrInvalidState, ErrSchemaIncompatible, ErrRevisionConflict,
// ErrStoreClosed.
func (s *Store) Save(ctx context.Context, st *State) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := st.Validate(); err != nil {
		return err
	}
	if !CompatibleSchema(st.SchemaVersion) {
		return fmt.Errorf("%w: snapshot is %s, build is %s",
			ErrSchemaIncompatible, st.SchemaVersion, SchemaVersion)
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state %s rev %d: %w", st.RunID, st.Revision, err)
	}

	return s.db.WithTxn(func(txn *badger.Txn) error {
		latest, err := readLatest(txn, st.RunID)
		if err != nil {
			return err
		}
		if st.Revision != latest+1 {
			return fmt.Errorf("%w: %s has revision %d, snapshot is %d",
				ErrRevisionConflict, st.RunID, latest, st.Revision)
		}

		if err := txn.Set(revKey(st.RunID, st.Revision), storage.FrameChecksum(payload)); err != nil {
			return err
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], st.Revision)
		return txn.Set(latestKey(st.RunID), buf[:])
	})
}

// Load returns the latest revision of a run.
//
// Errors: ErrNotFound, ErrSchemaIncompatible, ErrStoreClosed.
func (s *Store) Load(ctx context.Context, runID string) (*State, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var st *State
	err := s.db.WithReadTxn(func(txn *badger.Txn) error {
		latest, err := readLatest(txn, runID)
		if err != nil {
			return err
		}
		if latest == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		st, err = readRevision(txn, runID, latest)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// LoadRevision returns one specific revision of a run.
//
// Errors: ErrNotFound, ErrSchemaIncompatible, ErrStoreClosed.
func (s *Store) LoadRevision(ctx context.Context, runID string, rev uint64) (*State, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var st *State
	err := s.db.WithReadTxn(func(txn *badger.Txn) error {
		var err error
		st, err = readRevision(txn, runID, rev)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// History returns a run's revision numbers in ascending order.
func (s *Store) History(ctx context.Context, runID string) ([]uint64, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(stateKeyPrefix + runID + revKeySegment)
	var revs []uint64
	err := s.db.WithReadTxn(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			var rev uint64
			if _, err := fmt.Sscanf(key[len(prefix):], "%d", &rev); err != nil {
				return fmt.Errorf("malformed state key %q: %w", key, err)
			}
			revs = append(revs, rev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return revs, nil
}

// Runs returns every run ID with state, in lexical order.
func (s *Store) Runs(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(stateKeyPrefix)
	var runs []string
	err := s.db.WithReadTxn(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			if !strings.HasSuffix(key, latestKeySuffix) {
				continue
			}
			runs = append(runs, key[len(stateKeyPrefix):len(key)-len(latestKeySuffix)])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// Close marks the store closed. The underlying DB is shared and owned by
// the caller; it is not closed here.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

// readLatest returns the run's latest revision, 0 when the run is new.
func readLatest(txn *badger.Txn, runID string) (uint64, error) {
	item, err := txn.Get(latestKey(runID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read latest for %s: %w", runID, err)
	}
	var rev uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("%w: latest pointer for %s is %d bytes", ErrInvalidState, runID, len(val))
		}
		rev = binary.BigEndian.Uint64(val)
		return nil
	})
	return rev, err
}

// readRevision loads and decodes one revision record.
func readRevision(txn *badger.Txn, runID string, rev uint64) (*State, error) {
	item, err := txn.Get(revKey(runID, rev))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s rev %d", ErrNotFound, runID, rev)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s rev %d: %w", runID, rev, err)
	}

	var st State
	err = item.Value(func(val []byte) error {
		payload, err := storage.UnframeChecksum(val)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		if err := json.Unmarshal(payload, &st); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !CompatibleSchema(st.SchemaVersion) {
		return nil, fmt.Errorf("%w: snapshot is %s, build is %s",
			ErrSchemaIncompatible, st.SchemaVersion, SchemaVersion)
	}
	return &st, nil
}
