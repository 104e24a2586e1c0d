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

import "context"

// LifecycleHooks lets a persistence or sync adapter observe a Store's
// life without the core depending on any concrete adapter. All
// fields are optional; a nil field is simply skipped. Hooks are run
// synchronously on the goroutine that committed the batch; an adapter
// that needs to do I/O should hand the batch off to its own
// stopper-managed goroutine rather than block here.
type LifecycleHooks struct {
	// OnInit runs once before New returns. An error here aborts
	// construction and is returned from New.
	OnInit func(ctx context.Context, s *Store) error

	// OnAdd runs after a commit whose batch carries at least one added
	// entry, after the batch has already been emitted to subscribers
	// and queries.
	OnAdd func(ctx context.Context, batch Batch)

	// OnUpdate runs after a commit whose batch carries at least one
	// updated entry.
	OnUpdate func(ctx context.Context, batch Batch)

	// OnDelete runs after a commit whose batch carries at least one
	// removed entry.
	OnDelete func(ctx context.Context, batch Batch)

	// OnDispose runs when Dispose is called, in reverse registration
	// order across all registered hook sets, so a hook set registered
	// last (and therefore more likely to depend on one registered
	// earlier, e.g. a sync adapter depending on a persistence adapter)
	// tears down first.
	OnDispose func()
}

func runInitHooks(ctx context.Context, s *Store, hooks []LifecycleHooks) error {
	for _, h := range hooks {
		if h.OnInit == nil {
			continue
		}
		if err := h.OnInit(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func runCommitHooks(ctx context.Context, hooks []LifecycleHooks, batch Batch) {
	for _, h := range hooks {
		if len(batch.Added) > 0 && h.OnAdd != nil {
			h.OnAdd(ctx, batch)
		}
		if len(batch.Updated) > 0 && h.OnUpdate != nil {
			h.OnUpdate(ctx, batch)
		}
		if len(batch.Removed) > 0 && h.OnDelete != nil {
			h.OnDelete(ctx, batch)
		}
	}
}

func runDisposeHooks(hooks []LifecycleHooks) {
	for i := len(hooks) - 1; i >= 0; i-- {
		if hooks[i].OnDispose != nil {
			hooks[i].OnDispose()
		}
	}
}
