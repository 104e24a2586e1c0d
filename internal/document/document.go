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

// Package document implements the encoded document model and the
// field-level LWW merge engine: a Document pairs a Record's value
// tree with a parallel tree of per-leaf Eventstamps, plus a tombstone
// and a bubbled latest stamp.
package document

import (
	"reflect"

	"github.com/pkg/errors"
	"github.com/starlingdb/starling/internal/hlc"
)

// Record is the application-level value: a tree of JSON-compatible
// values. Arrays are opaque leaves; they are never merged element-wise.
type Record = map[string]any

// Document is the authoritative on-disk/on-wire form of one record. Its
// JSON field names are fixed: they are part of the Snapshot wire
// format and must round-trip bit-exactly.
type Document struct {
	ID          string         `json:"id"`
	Data        Record         `json:"data"`
	Eventstamps map[string]any `json:"eventstamps"`
	DeletedAt   *hlc.Eventstamp `json:"deletedAt"`
	Latest      hlc.Eventstamp `json:"latest"`
}

// ErrCyclicRecord is returned when a Record contains a self-referential
// map, which cannot be represented as the tree the encoded document
// model requires.
var ErrCyclicRecord = errors.New("document: record contains a cycle")

// MakeResource builds a fresh Document from a Record: data is a deep
// copy of record, eventstamps mirrors its shape with stamp at every
// leaf (including array leaves), deletedAt is nil, and latest is
// stamp.
func MakeResource(id string, record Record, stamp hlc.Eventstamp) (*Document, error) {
	data, err := cloneRecord(record)
	if err != nil {
		return nil, err
	}

	stamps, err := stampTree(record, stamp, map[uintptr]bool{})
	if err != nil {
		return nil, err
	}

	return &Document{
		ID:          id,
		Data:        data,
		Eventstamps: stamps.(map[string]any),
		DeletedAt:   nil,
		Latest:      stamp,
	}, nil
}

// Decode returns the decoded Record carried by doc. It never exposes
// the eventstamps tree, and the result is a fresh copy the caller may
// freely mutate.
func Decode(doc *Document) (Record, error) {
	return cloneRecord(doc.Data)
}

// Delete returns a new Document with deletedAt set to stamp (bubbled
// with Max against any prior tombstone) and latest advanced to match.
// data and eventstamps are preserved verbatim so that a later merge can
// still apply field-level LWW against a not-yet-observed concurrent
// update.
func Delete(doc *Document, stamp hlc.Eventstamp) (*Document, error) {
	data, err := cloneRecord(doc.Data)
	if err != nil {
		return nil, err
	}
	stamps, err := cloneStampTree(doc.Eventstamps)
	if err != nil {
		return nil, err
	}

	deletedAt := stamp
	if doc.DeletedAt != nil {
		deletedAt = hlc.Max(*doc.DeletedAt, stamp)
	}

	return &Document{
		ID:          doc.ID,
		Data:        data,
		Eventstamps: stamps,
		DeletedAt:   &deletedAt,
		Latest:      hlc.Max(doc.Latest, deletedAt),
	}, nil
}

// IsLive reports whether doc represents a live (non-tombstoned)
// document. A nil Document is not live.
func IsLive(doc *Document) bool {
	return doc != nil && doc.DeletedAt == nil
}

// stampTree walks record and produces a tree of the same shape where
// every leaf (including array leaves) holds stamp, and every nested
// record produces a nested map[string]any. visited guards against
// cyclic maps.
func stampTree(value any, stamp hlc.Eventstamp, visited map[uintptr]bool) (any, error) {
	m, isMap := value.(map[string]any)
	if !isMap {
		return string(stamp), nil
	}

	ptr := reflect.ValueOf(m).Pointer()
	if visited[ptr] {
		return nil, ErrCyclicRecord
	}
	visited[ptr] = true
	defer delete(visited, ptr)

	out := make(map[string]any, len(m))
	for k, v := range m {
		sub, err := stampTree(v, stamp, visited)
		if err != nil {
			return nil, err
		}
		out[k] = sub
	}
	return out, nil
}

// cloneRecord deep-copies a Record so that returned Documents never
// alias caller-owned state.
func cloneRecord(r Record) (Record, error) {
	cloned, err := cloneValue(r, map[uintptr]bool{})
	if err != nil {
		return nil, err
	}
	if cloned == nil {
		return Record{}, nil
	}
	return cloned.(Record), nil
}

func cloneValue(value any, visited map[uintptr]bool) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		ptr := reflect.ValueOf(v).Pointer()
		if visited[ptr] {
			return nil, ErrCyclicRecord
		}
		visited[ptr] = true
		defer delete(visited, ptr)

		out := make(map[string]any, len(v))
		for k, sub := range v {
			clonedSub, err := cloneValue(sub, visited)
			if err != nil {
				return nil, err
			}
			out[k] = clonedSub
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		copy(out, v)
		return out, nil
	default:
		return v, nil
	}
}

// cloneStampTree deep-copies an eventstamps tree (no cycle risk beyond
// what cloneValue already guards against, since it is built exclusively
// by this package).
func cloneStampTree(tree map[string]any) (map[string]any, error) {
	cloned, err := cloneValue(tree, map[uintptr]bool{})
	if err != nil {
		return nil, err
	}
	return cloned.(map[string]any), nil
}
