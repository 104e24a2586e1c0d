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
	"context"
	"iter"

	"github.com/starlingdb/starling/internal/document"
)

// StorageAdapter persists Documents outside the process. The core
// Store never talks to one directly — a LifecycleHooks set built on
// top of an adapter wires it in (see adapter/fsstore for a reference
// implementation).
type StorageAdapter interface {
	Get(ctx context.Context, key string) (*document.Document, bool, error)
	Put(ctx context.Context, key string, doc *document.Document) error
	Delete(ctx context.Context, key string) (bool, error)
	Entries(ctx context.Context) (iter.Seq2[string, *document.Document], error)
	Clear(ctx context.Context) error
}

// SyncPort exchanges Snapshots with a remote replica. Like
// StorageAdapter, the core never calls one directly; it is wired
// through LifecycleHooks (see adapter/memsync for a reference
// implementation).
type SyncPort interface {
	Push(ctx context.Context, snap Snapshot) error
	Pull(ctx context.Context) (Snapshot, error)
}
