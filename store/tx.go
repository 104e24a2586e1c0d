// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package store

import "github.com/starlingdb/starling/internal/document"

// Tx is the staged view of a Store given to a Begin/BeginWithResult
// callback. All of its methods operate against an in-memory staged
// copy; nothing is visible outside the transaction until it commits.
type Tx struct {
	store      *Store
	staged     map[string]*document.Document
	touched    map[string]struct{}
	rolledBack bool
}

// Add stages a new document. An empty id is replaced with one from the
// Store's id generator. Adding over a live id returns ErrDuplicateID.
// Adding over a tombstoned id is permitted: the new fields are merged
// against the retained tombstone with ordinary field-level LWW, so the
// tombstone still wins (the id stays dead) but its individual field
// values can still be overwritten by a later stamp.
func (tx *Tx) Add(id string, record Record) (string, error) {
	if id == "" {
		id = tx.store.idGen()
	}

	existing, exists := tx.staged[id]
	if exists && document.IsLive(existing) {
		return "", ErrDuplicateID
	}

	stamp := tx.store.clock.Now()
	fresh, err := document.MakeResource(id, record, stamp)
	if err != nil {
		return "", err
	}

	if exists {
		fresh, err = document.Merge(existing, fresh)
		if err != nil {
			return "", err
		}
	}

	tx.staged[id] = fresh
	tx.touched[id] = struct{}{}
	return id, nil
}

// Update stages a field-level merge of record into the live document
// at id. Fields record omits are left as they were. Returns
// ErrNotFound if id has no live document (including a tombstoned one).
func (tx *Tx) Update(id string, record Record) error {
	existing, exists := tx.staged[id]
	if !exists || !document.IsLive(existing) {
		return ErrNotFound
	}

	stamp := tx.store.clock.Now()
	incoming, err := document.MakeResource(id, record, stamp)
	if err != nil {
		return err
	}

	merged, err := document.Merge(existing, incoming)
	if err != nil {
		return err
	}

	tx.staged[id] = merged
	tx.touched[id] = struct{}{}
	return nil
}

// Remove stages a tombstone for id. Returns ErrNotFound if id has no
// document at all. Removing an already-tombstoned id is a harmless
// no-op: the existing tombstone is left as it is.
func (tx *Tx) Remove(id string) error {
	existing, exists := tx.staged[id]
	if !exists {
		return ErrNotFound
	}
	if !document.IsLive(existing) {
		return nil
	}

	stamp := tx.store.clock.Now()
	tombstoned, err := document.Delete(existing, stamp)
	if err != nil {
		return err
	}

	tx.staged[id] = tombstoned
	tx.touched[id] = struct{}{}
	return nil
}

// Get reads the staged value for id, reflecting any earlier writes
// this same transaction made (read-your-writes), or falling back to
// the Store's state if this transaction has not touched id.
func (tx *Tx) Get(id string) (Record, bool, error) {
	doc, ok := tx.staged[id]
	if !ok || !document.IsLive(doc) {
		return nil, false, nil
	}
	rec, err := document.Decode(doc)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Rollback aborts the transaction: every staged write made so far
// (including ones from before this call) is discarded and the Store is
// left exactly as it was before Begin. Calling it does not itself
// return an error from Begin; fn may still return nil afterward.
func (tx *Tx) Rollback() {
	tx.rolledBack = true
}
