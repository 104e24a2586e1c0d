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

// Record is the application-level value a Store holds: a tree of
// JSON-compatible values.
type Record = document.Record

// AddedEntry describes one document whose first live state arose in a
// batch.
type AddedEntry struct {
	ID     string
	Record Record
}

// UpdatedEntry describes one document that was live before and after a
// batch, with its latest stamp advanced.
type UpdatedEntry struct {
	ID     string
	Before Record
	After  Record
}

// RemovedEntry describes one document tombstoned during a batch, along
// with the last record it held while live.
type RemovedEntry struct {
	ID     string
	Record Record
}

// Batch is the grouped add/update/remove set emitted once per commit
// (a direct mutation via Begin, or an incoming Merge).
type Batch struct {
	Added   []AddedEntry
	Updated []UpdatedEntry
	Removed []RemovedEntry
}

// IsEmpty reports whether the batch carries no changes at all (the
// case store.Merge(store.Snapshot()) always produces, per the
// idempotence law).
func (b Batch) IsEmpty() bool {
	return len(b.Added) == 0 && len(b.Updated) == 0 && len(b.Removed) == 0
}
