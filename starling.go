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

// Package starling is a local-first, reactive document store: multiple
// replicas keep their own copy of a collection and converge without a
// central coordinator, using a Hybrid-Logical-Clock-ordered,
// field-level last-write-wins merge. This file re-exports the pieces
// of internal/hlc, internal/document, and store an application
// embeds Starling needs day to day, so most callers only import this
// package.
package starling

import (
	"github.com/starlingdb/starling/internal/document"
	"github.com/starlingdb/starling/internal/hlc"
	"github.com/starlingdb/starling/store"
)

type (
	// Eventstamp is the totally-ordered timestamp every write and
	// merge is sequenced by. See internal/hlc for its grammar.
	Eventstamp = hlc.Eventstamp

	// Record is the application-level value a Store holds.
	Record = document.Record

	// Store is a single reactive, transactional collection.
	Store = store.Store

	// Tx is the staged view of a Store handed to a Begin callback.
	Tx = store.Tx

	// Query is a live, predicate-indexed view over a Store.
	Query = store.Query

	// QuerySpec describes a Query to register with Store.Query.
	QuerySpec = store.QuerySpec

	// QueryResult is one entry of a Query's result sequence.
	QueryResult = store.QueryResult

	// Batch is the grouped add/update/remove set emitted once per
	// commit.
	Batch = store.Batch

	// Snapshot is the wire format used for persistence and sync.
	Snapshot = store.Snapshot

	// Option configures a Store at construction time.
	Option = store.Option

	// LifecycleHooks lets a persistence or sync adapter observe a
	// Store's life without depending on the core.
	LifecycleHooks = store.LifecycleHooks

	// StorageAdapter persists Documents outside the process.
	StorageAdapter = store.StorageAdapter

	// SyncPort exchanges Snapshots with a remote replica.
	SyncPort = store.SyncPort
)

// New constructs a Store. name identifies the collection in logs and
// metrics.
func New(name string, opts ...Option) (*Store, error) {
	return store.New(name, opts...)
}

// BeginWithResult runs fn against a staged copy of s's documents and
// returns whatever fn computes, alongside Begin's usual commit/abort
// semantics. It is a free function because Go methods cannot
// introduce a new type parameter.
func BeginWithResult[R any](s *Store, fn func(tx *Tx) (R, error)) (R, error) {
	return store.BeginWithResult(s, fn)
}

var (
	// WithIDGenerator overrides the default random-UUID id generator.
	WithIDGenerator = store.WithIDGenerator
	// WithClock overrides the Store's Hybrid Logical Clock.
	WithClock = store.WithClock
	// WithLogger overrides the Store's logrus.FieldLogger.
	WithLogger = store.WithLogger
	// WithLifecycleHooks registers a set of lifecycle hooks.
	WithLifecycleHooks = store.WithLifecycleHooks
)

// Errors re-exported for callers that want to errors.Is against them
// without importing the store package directly.
var (
	ErrDuplicateID = store.ErrDuplicateID
	ErrNotFound    = store.ErrNotFound
	ErrDisposed    = store.ErrDisposed
)
