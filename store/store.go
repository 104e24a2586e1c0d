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

// Package store implements the transactional, reactive document store:
// a single in-memory collection of Documents, mutated through Begin
// transactions (or the Add / Update / Remove sugar built on top of it)
// and through Merge, with add/update/remove event batches fanned out to
// subscribers and live Query results after every commit.
package store

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/starlingdb/starling/internal/document"
	"github.com/starlingdb/starling/internal/hlc"
	"github.com/starlingdb/starling/metrics"
)

// AddHandler observes a document's first live appearance.
type AddHandler func(AddedEntry)

// UpdateHandler observes a document that was live both before and
// after a commit.
type UpdateHandler func(UpdatedEntry)

// DeleteHandler observes a document transitioning from live to
// tombstoned.
type DeleteHandler func(RemovedEntry)

// MutationHandler observes every non-empty commit batch as a whole,
// regardless of which entries it carries.
type MutationHandler func(Batch)

// Subscription is returned by the On* registration methods. Calling
// Unsubscribe more than once is a harmless no-op.
type Subscription interface {
	Unsubscribe()
}

// Store is a single collection of Documents. The zero value is not
// usable; construct one with New.
type Store struct {
	name string

	mu   sync.Mutex
	docs map[string]*document.Document

	clock    *hlc.Clock
	idGen    func() string
	logger   logrus.FieldLogger
	hooks    []LifecycleHooks
	disposed bool

	handlersMu       sync.Mutex
	nextSubID        uint64
	addHandlers      map[uint64]AddHandler
	updateHandlers   map[uint64]UpdateHandler
	deleteHandlers   map[uint64]DeleteHandler
	mutationHandlers map[uint64]MutationHandler
	queries          map[uint64]*Query
}

// New constructs a Store. name identifies the collection in logs and
// metrics; it need not be globally unique, but should be stable for a
// given application's use of Starling.
func New(name string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{
		name:             name,
		docs:             make(map[string]*document.Document),
		clock:            o.clock,
		idGen:            o.idGen,
		logger:           o.logger,
		hooks:            o.hooks,
		addHandlers:      make(map[uint64]AddHandler),
		updateHandlers:   make(map[uint64]UpdateHandler),
		deleteHandlers:   make(map[uint64]DeleteHandler),
		mutationHandlers: make(map[uint64]MutationHandler),
		queries:          make(map[uint64]*Query),
	}

	if err := runInitHooks(context.Background(), s, s.hooks); err != nil {
		return nil, errors.Wrap(err, "store: init hook failed")
	}

	return s, nil
}

// Begin runs fn against a staged copy of the Store's documents. fn's
// mutations through the supplied Tx are invisible to everyone else
// until fn returns nil, at which point they are swapped in atomically
// and a single event batch is computed and emitted. If fn returns an
// error, panics, or calls Tx.Rollback, the staged copy is discarded and
// the Store is left exactly as it was.
func (s *Store) Begin(fn func(tx *Tx) error) error {
	_, err := BeginWithResult(s, func(tx *Tx) (struct{}, error) {
		return struct{}{}, fn(tx)
	})
	return err
}

// BeginWithResult is Begin for callers that want to compute and return
// a value from inside the transaction, e.g. the id an Add assigned. It
// is a free function, not a method, because Go methods cannot
// introduce a new type parameter.
func BeginWithResult[R any](s *Store, fn func(tx *Tx) (R, error)) (result R, err error) {
	started := time.Now()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		var zero R
		return zero, ErrDisposed
	}

	original := s.docs
	staged := make(map[string]*document.Document, len(original))
	for id, doc := range original {
		staged[id] = doc
	}
	tx := &Tx{store: s, staged: staged, touched: make(map[string]struct{})}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("store: transaction panicked: %v", r)
			}
		}()
		result, err = fn(tx)
	}()

	if err != nil || tx.rolledBack {
		s.mu.Unlock()
		if tx.rolledBack {
			var zero R
			return zero, nil
		}
		var zero R
		return zero, err
	}

	batch := diffBatch(original, staged, tx.touched)
	s.docs = staged
	name := s.name
	hooks := s.hooks
	s.mu.Unlock()

	metrics.CommitDurations.WithLabelValues(name).Observe(time.Since(started).Seconds())

	if !batch.IsEmpty() {
		recordMutationMetrics(name, batch)
		s.emit(batch)
	}
	runCommitHooks(context.Background(), hooks, batch)

	return result, nil
}

// Add stages and commits a new document in its own transaction. An
// empty id is replaced with a freshly generated one. The id is returned
// on success; on error the returned id is empty.
func (s *Store) Add(id string, record Record) (string, error) {
	return BeginWithResult(s, func(tx *Tx) (string, error) {
		return tx.Add(id, record)
	})
}

// Update stages and commits a partial update to an existing live
// document in its own transaction. Fields absent from record are left
// untouched.
func (s *Store) Update(id string, record Record) error {
	return s.Begin(func(tx *Tx) error {
		return tx.Update(id, record)
	})
}

// Remove stages and commits a tombstone for id in its own transaction.
func (s *Store) Remove(id string) error {
	return s.Begin(func(tx *Tx) error {
		return tx.Remove(id)
	})
}

// Get returns the current live record for id, decoded fresh.
func (s *Store) Get(id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok || !document.IsLive(doc) {
		return nil, false, nil
	}
	rec, err := document.Decode(doc)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Collection returns a snapshot map of every currently live document,
// each decoded fresh. The caller owns the result; mutating it has no
// effect on the Store.
func (s *Store) Collection() (map[string]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Record, len(s.docs))
	for id, doc := range s.docs {
		if !document.IsLive(doc) {
			continue
		}
		rec, err := document.Decode(doc)
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	return out, nil
}

// Entries ranges over every live document. When iteration starts it
// builds the whole decoded collection with Collection, then yields
// from that map.
func (s *Store) Entries() iter.Seq2[string, Record] {
	return func(yield func(string, Record) bool) {
		coll, err := s.Collection()
		if err != nil {
			return
		}
		for id, rec := range coll {
			if !yield(id, rec) {
				return
			}
		}
	}
}

// Snapshot captures the Store's full state, tombstones included, for
// persistence or sync.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]*document.Document, 0, len(s.docs))
	latest := hlc.MinEventstamp
	for _, doc := range s.docs {
		docs = append(docs, doc)
		latest = hlc.Max(latest, doc.Latest)
	}
	return Snapshot{Docs: docs, Eventstamp: latest}
}

// Merge folds an incoming Snapshot (typically received from another
// replica via a SyncPort) into the Store, applying field-level LWW to
// every id present on both sides and forwarding the clock so that
// subsequent local writes sort after anything just observed. A
// merge that changes nothing emits no batch at all, satisfying the
// idempotence law.
func (s *Store) Merge(snapshot Snapshot) error {
	started := time.Now()

	remote := make(map[string]*document.Document, len(snapshot.Docs))
	for _, doc := range snapshot.Docs {
		remote[doc.ID] = doc
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}

	merged, transitions, err := document.MergeCollections(s.docs, remote)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if err := s.clock.Forward(snapshot.Eventstamp); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "store: merge could not forward clock")
	}

	batch := batchFromTransitions(transitions)
	s.docs = merged
	name := s.name
	hooks := s.hooks
	s.mu.Unlock()

	metrics.MergeDurations.WithLabelValues(name).Observe(time.Since(started).Seconds())

	if !batch.IsEmpty() {
		recordMutationMetrics(name, batch)
		s.emit(batch)
	}
	runCommitHooks(context.Background(), hooks, batch)

	return nil
}

// Dispose stops the Store from accepting further mutations and runs
// every registered LifecycleHooks.OnDispose, most-recently-registered
// first. It is idempotent.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	hooks := s.hooks
	s.mu.Unlock()

	runDisposeHooks(hooks)

	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	for _, q := range s.queries {
		q.dispose()
	}
	s.queries = nil
	s.addHandlers = nil
	s.updateHandlers = nil
	s.deleteHandlers = nil
	s.mutationHandlers = nil
}

func diffBatch(original, staged map[string]*document.Document, touched map[string]struct{}) Batch {
	var batch Batch
	for id := range touched {
		before := original[id]
		after := staged[id]

		switch document.Classify(before, after) {
		case document.Added:
			rec, err := document.Decode(after)
			if err != nil {
				continue
			}
			batch.Added = append(batch.Added, AddedEntry{ID: id, Record: rec})
		case document.Updated:
			beforeRec, err := document.Decode(before)
			if err != nil {
				continue
			}
			afterRec, err := document.Decode(after)
			if err != nil {
				continue
			}
			batch.Updated = append(batch.Updated, UpdatedEntry{ID: id, Before: beforeRec, After: afterRec})
		case document.Removed:
			rec, err := document.Decode(before)
			if err != nil {
				continue
			}
			batch.Removed = append(batch.Removed, RemovedEntry{ID: id, Record: rec})
		}
	}
	return batch
}

func batchFromTransitions(transitions []document.Transition) Batch {
	var batch Batch
	for _, t := range transitions {
		switch t.Kind {
		case document.Added:
			rec, err := document.Decode(t.After)
			if err != nil {
				continue
			}
			batch.Added = append(batch.Added, AddedEntry{ID: t.ID, Record: rec})
		case document.Updated:
			beforeRec, err := document.Decode(t.Before)
			if err != nil {
				continue
			}
			afterRec, err := document.Decode(t.After)
			if err != nil {
				continue
			}
			batch.Updated = append(batch.Updated, UpdatedEntry{ID: t.ID, Before: beforeRec, After: afterRec})
		case document.Removed:
			rec, err := document.Decode(t.Before)
			if err != nil {
				continue
			}
			batch.Removed = append(batch.Removed, RemovedEntry{ID: t.ID, Record: rec})
		}
	}
	return batch
}

func recordMutationMetrics(collection string, batch Batch) {
	if n := len(batch.Added); n > 0 {
		metrics.MutationsTotal.WithLabelValues(collection, "add").Add(float64(n))
	}
	if n := len(batch.Updated); n > 0 {
		metrics.MutationsTotal.WithLabelValues(collection, "update").Add(float64(n))
	}
	if n := len(batch.Removed); n > 0 {
		metrics.MutationsTotal.WithLabelValues(collection, "remove").Add(float64(n))
	}
}

// emit fans a commit's batch out to every registered subscriber and
// live query, recovering and logging any callback panic so that one
// misbehaving subscriber cannot break the commit or its peers (the
// same posture a resolver loop takes toward per-mutation
// callbacks).
func (s *Store) emit(batch Batch) {
	s.handlersMu.Lock()
	mutationHandlers := make([]MutationHandler, 0, len(s.mutationHandlers))
	for _, h := range s.mutationHandlers {
		mutationHandlers = append(mutationHandlers, h)
	}
	addHandlers := make([]AddHandler, 0, len(s.addHandlers))
	for _, h := range s.addHandlers {
		addHandlers = append(addHandlers, h)
	}
	updateHandlers := make([]UpdateHandler, 0, len(s.updateHandlers))
	for _, h := range s.updateHandlers {
		updateHandlers = append(updateHandlers, h)
	}
	deleteHandlers := make([]DeleteHandler, 0, len(s.deleteHandlers))
	for _, h := range s.deleteHandlers {
		deleteHandlers = append(deleteHandlers, h)
	}
	queries := make([]*Query, 0, len(s.queries))
	for _, q := range s.queries {
		queries = append(queries, q)
	}
	s.handlersMu.Unlock()

	for _, h := range mutationHandlers {
		s.safeCall("mutation", func() { h(batch) })
	}
	for _, entry := range batch.Added {
		for _, h := range addHandlers {
			e := entry
			s.safeCall("add", func() { h(e) })
		}
	}
	for _, entry := range batch.Updated {
		for _, h := range updateHandlers {
			e := entry
			s.safeCall("update", func() { h(e) })
		}
	}
	for _, entry := range batch.Removed {
		for _, h := range deleteHandlers {
			e := entry
			s.safeCall("delete", func() { h(e) })
		}
	}
	for _, q := range queries {
		q.apply(batch)
	}
}

func (s *Store) safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberPanicsTotal.WithLabelValues(s.name, kind).Inc()
			s.logger.WithFields(logrus.Fields{
				"collection": s.name,
				"kind":       kind,
				"panic":      r,
			}).Warn("store: recovered subscriber panic")
		}
	}()
	fn()
}

func (s *Store) nextHandlerID() uint64 {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.nextSubID++
	return s.nextSubID
}

type handlerSub struct {
	unsubscribe func()
	once        sync.Once
}

func (h *handlerSub) Unsubscribe() {
	h.once.Do(h.unsubscribe)
}

// OnAdd registers a handler invoked once per added entry in every
// commit batch, after the commit is already visible.
func (s *Store) OnAdd(h AddHandler) Subscription {
	id := s.nextHandlerID()
	s.handlersMu.Lock()
	if s.addHandlers != nil {
		s.addHandlers[id] = h
	}
	s.handlersMu.Unlock()
	return &handlerSub{unsubscribe: func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		delete(s.addHandlers, id)
	}}
}

// OnUpdate registers a handler invoked once per updated entry in every
// commit batch.
func (s *Store) OnUpdate(h UpdateHandler) Subscription {
	id := s.nextHandlerID()
	s.handlersMu.Lock()
	if s.updateHandlers != nil {
		s.updateHandlers[id] = h
	}
	s.handlersMu.Unlock()
	return &handlerSub{unsubscribe: func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		delete(s.updateHandlers, id)
	}}
}

// OnDelete registers a handler invoked once per removed entry in every
// commit batch.
func (s *Store) OnDelete(h DeleteHandler) Subscription {
	id := s.nextHandlerID()
	s.handlersMu.Lock()
	if s.deleteHandlers != nil {
		s.deleteHandlers[id] = h
	}
	s.handlersMu.Unlock()
	return &handlerSub{unsubscribe: func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		delete(s.deleteHandlers, id)
	}}
}

// OnMutation registers a handler invoked once per non-empty commit
// batch as a whole.
func (s *Store) OnMutation(h MutationHandler) Subscription {
	id := s.nextHandlerID()
	s.handlersMu.Lock()
	if s.mutationHandlers != nil {
		s.mutationHandlers[id] = h
	}
	s.handlersMu.Unlock()
	return &handlerSub{unsubscribe: func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		delete(s.mutationHandlers, id)
	}}
}
