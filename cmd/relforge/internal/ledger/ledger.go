// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Outcome is the final state of a release attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("ledger: run not found")

// keyPrefix namespaces release records. Keys sort by start time:
// "run/<unix nanos, zero padded>/<run id>".
const keyPrefix = "run/"

// Record is one release attempt.
type Record struct {
	RunID      string    `json:"run_id"`
	Counter    int       `json:"counter"`
	Version    string    `json:"version"`
	Tag        string    `json:"tag"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    Outcome   `json:"outcome"`
	ReleaseURL string    `json:"release_url,omitempty"`
	Uploaded   []string  `json:"uploaded,omitempty"`
	Missing    []string  `json:"missing,omitempty"`
	Failed     []string  `json:"failed,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Duration is FinishedAt minus StartedAt, or zero if unfinished.
func (r Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Record) key() []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", keyPrefix, r.StartedAt.UnixNano(), r.RunID))
}

// Ledger is the release history.
//
// # Thread Safety
//
// Safe for concurrent use. Only one process may open a persistent ledger at
// a time; release runs are serialized by the release lock anyway.
type Ledger struct {
	db *badger.DB
}

// Open opens (creating if needed) the ledger described by cfg.
func Open(cfg StoreConfig) (*Ledger, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// OpenInMemory opens an empty ledger that lives until Close.
func OpenInMemory() (*Ledger, error) {
	return Open(StoreConfig{InMemory: true})
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Put stores rec, replacing any record with the same start time and run ID.
//
// # Inputs
//
//   - ctx: Checked before the write
//   - rec: RunID and StartedAt must be set
func (l *Ledger) Put(ctx context.Context, rec Record) error {
	if rec.RunID == "" || rec.StartedAt.IsZero() {
		return errors.New("ledger: record needs a run ID and start time")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(rec.key(), data)
	})
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (l *Ledger) List(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the last key <= seek.
		seek := append([]byte(keyPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode ledger record %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// Get returns the record for runID.
func (l *Ledger) Get(ctx context.Context, runID string) (Record, error) {
	records, err := l.List(ctx, 0)
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.RunID == runID {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

// Latest returns the newest record, or ErrNotFound on an empty ledger.
func (l *Ledger) Latest(ctx context.Context) (Record, error) {
	records, err := l.List(ctx, 1)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[0], nil
}
