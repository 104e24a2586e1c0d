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

package document

import (
	"github.com/pkg/errors"
	"github.com/starlingdb/starling/internal/hlc"
)

// ErrStructureMismatch is returned when a merge finds a nested record
// on one side and a leaf on the other at the same path, or when the
// data tree and the eventstamps tree disagree about a node's shape
// between the two sides.
var ErrStructureMismatch = errors.New("document: structure mismatch between merge sides")

// ErrTypeMismatch is returned when a merge finds incompatible leaf
// shapes at the same path that ErrStructureMismatch does not already
// cover (reserved for dialects/adapters that add stricter typing on
// top of this package; the core treats all non-record leaves
// uniformly, so this package itself only ever raises
// ErrStructureMismatch, but callers may wrap it as ErrTypeMismatch
// depending on their own schema).
var ErrTypeMismatch = errors.New("document: type mismatch between merge sides")

// Merge performs the field-level LWW merge of two Documents with the
// same id. It is commutative up to the deterministic A-wins tie-break,
// associative, idempotent, and monotone in latest.
func Merge(a, b *Document) (*Document, error) {
	if a.ID != b.ID {
		return nil, errors.Errorf("document: cannot merge documents with different ids (%q vs %q)", a.ID, b.ID)
	}

	data, stamps, err := mergeAttributes(a.Data, a.Eventstamps, b.Data, b.Eventstamps, "")
	if err != nil {
		return nil, err
	}

	deletedAt := maxDeletedAt(a.DeletedAt, b.DeletedAt)

	latest := hlc.Max(a.Latest, b.Latest)
	if deletedAt != nil {
		latest = hlc.Max(latest, *deletedAt)
	}

	return &Document{
		ID:          a.ID,
		Data:        data.(map[string]any),
		Eventstamps: stamps.(map[string]any),
		DeletedAt:   deletedAt,
		Latest:      latest,
	}, nil
}

func maxDeletedAt(a, b *hlc.Eventstamp) *hlc.Eventstamp {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	default:
		v := hlc.Max(*a, *b)
		return &v
	}
}

// mergeAttributes recursively merges two (data, eventstamps) subtrees
// rooted at the same path. It is driven by the stamp tree, not the
// data tree: a node is a leaf or a record according to what
// eventstamps says at that path, and data is required to agree with
// that shape.
func mergeAttributes(dataA, stampsA, dataB, stampsB any, path string) (mergedData, mergedStamps any, err error) {
	mapStampsA, aIsRecord := stampsA.(map[string]any)
	mapStampsB, bIsRecord := stampsB.(map[string]any)

	switch {
	case !aIsRecord && !bIsRecord:
		// Both leaves: the data must agree that this is a leaf too.
		if _, isMap := dataA.(map[string]any); isMap {
			return nil, nil, errors.Wrapf(ErrStructureMismatch, "path %q: eventstamps is a leaf but data is a record (side a)", path)
		}
		if _, isMap := dataB.(map[string]any); isMap {
			return nil, nil, errors.Wrapf(ErrStructureMismatch, "path %q: eventstamps is a leaf but data is a record (side b)", path)
		}

		stampA, okA := stampsA.(string)
		stampB, okB := stampsB.(string)
		if !okA || !okB {
			return nil, nil, errors.Wrapf(ErrStructureMismatch, "path %q: eventstamp leaf is not a string", path)
		}

		if hlc.Compare(hlc.Eventstamp(stampB), hlc.Eventstamp(stampA)) > 0 {
			return dataB, stampB, nil
		}
		// Tie or a strictly greater: A wins, matching the deterministic
		// deterministic tie-break.
		return dataA, stampA, nil

	case aIsRecord && bIsRecord:
		mapDataA, okA := asRecord(dataA)
		if !okA {
			return nil, nil, errors.Wrapf(ErrStructureMismatch, "path %q: eventstamps is a record but data is a leaf (side a)", path)
		}
		mapDataB, okB := asRecord(dataB)
		if !okB {
			return nil, nil, errors.Wrapf(ErrStructureMismatch, "path %q: eventstamps is a record but data is a leaf (side b)", path)
		}

		outData := make(map[string]any, len(mapStampsA)+len(mapStampsB))
		outStamps := make(map[string]any, len(mapStampsA)+len(mapStampsB))

		for key := range unionKeys(mapStampsA, mapStampsB) {
			childPath := path + "/" + key

			stampChildA, hasA := mapStampsA[key]
			stampChildB, hasB := mapStampsB[key]

			switch {
			case hasA && hasB:
				mergedChildData, mergedChildStamps, err := mergeAttributes(
					mapDataA[key], stampChildA, mapDataB[key], stampChildB, childPath)
				if err != nil {
					return nil, nil, err
				}
				outData[key] = mergedChildData
				outStamps[key] = mergedChildStamps
			case hasA:
				outData[key] = mapDataA[key]
				outStamps[key] = stampChildA
			default: // hasB
				outData[key] = mapDataB[key]
				outStamps[key] = stampChildB
			}
		}

		return outData, outStamps, nil

	default:
		return nil, nil, errors.Wrapf(ErrStructureMismatch, "path %q: one side is a record and the other is a leaf", path)
	}
}

func asRecord(v any) (map[string]any, bool) {
	if v == nil {
		return map[string]any{}, true
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func unionKeys(a, b map[string]any) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// TransitionKind classifies how a document changed as the result of a
// collection merge.
type TransitionKind int

const (
	// NoOp indicates a live document whose latest stamp did not
	// advance, a document that was already tombstoned before, or a
	// first-seen document that arrives already tombstoned.
	NoOp TransitionKind = iota
	// Added indicates the document did not previously exist locally.
	Added
	// Updated indicates the document existed, was live both before and
	// after, and its latest stamp advanced.
	Updated
	// Removed indicates the document transitioned from live to
	// tombstoned in this merge.
	Removed
)

// Transition describes one document's before/after state across a
// MergeCollections call.
type Transition struct {
	ID     string
	Kind   TransitionKind
	Before *Document // nil if the document did not previously exist
	After  *Document
}

// MergeCollections merges every document in remote into local: ids
// absent locally are inserted, ids present on both sides are merged
// with Merge. Documents present only in local are left untouched.
// Returns the merged collection (a new map; inputs are not mutated)
// and one Transition per document in remote, including those whose
// Kind is NoOp.
func MergeCollections(local, remote map[string]*Document) (map[string]*Document, []Transition, error) {
	merged := make(map[string]*Document, len(local))
	for id, doc := range local {
		merged[id] = doc
	}

	var transitions []Transition
	for id, remoteDoc := range remote {
		before, existed := local[id]

		var after *Document
		var err error
		if !existed {
			after = remoteDoc
		} else {
			after, err = Merge(before, remoteDoc)
			if err != nil {
				return nil, nil, err
			}
		}
		merged[id] = after

		transitions = append(transitions, Transition{
			ID:     id,
			Kind:   Classify(before, after),
			Before: before,
			After:  after,
		})
	}

	return merged, transitions, nil
}

// Classify reports how a document changed between before (nil if it
// did not previously exist) and after. It is exported so that callers
// driving their own before/after pairs (e.g. a transactional store
// diffing staged writes against its pre-transaction state) can reuse
// the same classification rules that MergeCollections applies to
// incoming snapshots.
func Classify(before, after *Document) TransitionKind {
	if before == nil {
		if IsLive(after) {
			return Added
		}
		// First sighting of an already-dead document; still recorded in
		// the collection, but it never lived here and must not surface
		// as an add.
		return NoOp
	}

	beforeLive := IsLive(before)
	afterLive := IsLive(after)

	switch {
	case beforeLive && !afterLive:
		return Removed
	case beforeLive && afterLive:
		if hlc.Compare(before.Latest, after.Latest) != 0 {
			return Updated
		}
		return NoOp
	default:
		// Was already tombstoned; deletedAt can only grow via Max, so it
		// cannot become live again (no revival path in this merge).
		return NoOp
	}
}
