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

import (
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/starlingdb/starling/internal/notify"
	"github.com/starlingdb/starling/metrics"
)

// QuerySpec describes a live, predicate-indexed query. Name is
// optional and only used to label the starling_store_query_result_size
// metric; when empty, the query's internal id is used instead.
//
// Predicate is the query's "where" clause. Select optionally projects
// a matching record down to whatever value the caller wants indexed
// (identity if nil). Order, if set, is used to sort Results' returned
// sequence by the projected value; if nil, the sequence comes back in
// an unspecified but stable order.
type QuerySpec struct {
	Name      string
	Predicate func(id string, rec Record) bool
	Select    func(rec Record) any
	Order     func(a, b any) int
}

// QueryResult is one entry of a Query's result sequence: an id paired
// with its projected value (the record itself if the query has no
// Select).
type QueryResult struct {
	ID    string
	Value any
}

// Query is a predicate-indexed view over a Store's live documents that
// incrementally updates as commit batches arrive, rather than
// rescanning the whole collection on every change.
type Query struct {
	store *Store
	id    uint64
	spec  QuerySpec

	mu       sync.Mutex
	results  map[string]any
	disposed bool

	watch *notify.Var[struct{}]
}

// Query registers a new live query over the Store's current and future
// documents. The returned Query's initial Results already reflects the
// Store's state at the moment of the call.
func (s *Store) Query(spec QuerySpec) (*Query, error) {
	coll, err := s.Collection()
	if err != nil {
		return nil, err
	}

	q := &Query{
		store:   s,
		spec:    spec,
		results: make(map[string]any),
		watch:   notify.NewVar(struct{}{}),
	}
	for id, rec := range coll {
		if value, matched := q.evaluate(id, rec); matched {
			q.results[id] = value
		}
	}

	q.id = s.nextHandlerID()

	s.handlersMu.Lock()
	if s.queries == nil {
		s.handlersMu.Unlock()
		return nil, ErrDisposed
	}
	s.queries[q.id] = q
	s.handlersMu.Unlock()

	metrics.QueryResultSizes.WithLabelValues(s.name, q.label()).Set(float64(len(q.results)))

	return q, nil
}

// Results returns a snapshot sequence of the documents currently
// matching the query's predicate (projected through Select, if set),
// along with a channel that is closed the next time the result set
// changes. Callers select on the channel and call Results again to see
// the new state and obtain a fresh channel. The sequence is sorted by
// Order when the QuerySpec supplies one; otherwise its order is
// unspecified but stable across unchanged result sets.
func (q *Query) Results() ([]QueryResult, <-chan struct{}) {
	_, changed := q.watch.Get()

	q.mu.Lock()
	out := make([]QueryResult, 0, len(q.results))
	for id, value := range q.results {
		out = append(out, QueryResult{ID: id, Value: value})
	}
	q.mu.Unlock()

	if q.spec.Order != nil {
		sort.Slice(out, func(i, j int) bool {
			return q.spec.Order(out[i].Value, out[j].Value) < 0
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return out, changed
}

// Dispose unregisters the query from its Store. Further calls to
// Results still work but will never again observe a change.
func (q *Query) Dispose() {
	q.store.handlersMu.Lock()
	if q.store.queries != nil {
		delete(q.store.queries, q.id)
	}
	q.store.handlersMu.Unlock()
	q.dispose()
}

func (q *Query) dispose() {
	q.mu.Lock()
	q.disposed = true
	q.mu.Unlock()
}

// apply folds one commit batch into the query's result set. It is
// invoked from Store.emit, outside the Store's own lock.
func (q *Query) apply(batch Batch) {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}

	changed := false
	for _, e := range batch.Added {
		if value, matched := q.evaluate(e.ID, e.Record); matched {
			q.results[e.ID] = value
			changed = true
		}
	}
	for _, e := range batch.Updated {
		if value, matched := q.evaluate(e.ID, e.After); matched {
			q.results[e.ID] = value
			changed = true
		} else if _, ok := q.results[e.ID]; ok {
			delete(q.results, e.ID)
			changed = true
		}
	}
	for _, e := range batch.Removed {
		if _, ok := q.results[e.ID]; ok {
			delete(q.results, e.ID)
			changed = true
		}
	}
	size := len(q.results)
	q.mu.Unlock()

	if !changed {
		return
	}
	metrics.QueryResultSizes.WithLabelValues(q.store.name, q.label()).Set(float64(size))
	q.watch.Set(struct{}{})
}

// evaluate runs the query's predicate and, on a match, its optional
// projection. A panic from either is recovered and logged as a
// non-match rather than letting it escape into the commit path that is
// driving it.
func (q *Query) evaluate(id string, rec Record) (value any, matched bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberPanicsTotal.WithLabelValues(q.store.name, "query-predicate").Inc()
			q.store.logger.WithFields(logrus.Fields{
				"collection": q.store.name,
				"query":      q.label(),
				"panic":      r,
			}).Warn("store: recovered query predicate panic")
			value, matched = nil, false
		}
	}()
	if !q.spec.Predicate(id, rec) {
		return nil, false
	}
	if q.spec.Select != nil {
		return q.spec.Select(rec), true
	}
	return rec, true
}

func (q *Query) label() string {
	if q.spec.Name != "" {
		return q.spec.Name
	}
	return strconv.FormatUint(q.id, 10)
}
