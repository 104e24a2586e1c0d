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

import "github.com/pkg/errors"

var (
	// ErrDuplicateID is returned by Add (and Tx.Add) when the id already
	// exists as a live document. Re-adding a tombstoned id is not an
	// error; it merges the new values against the retained tombstone.
	ErrDuplicateID = errors.New("store: duplicate id")

	// ErrNotFound is returned by Update and Remove when the id has no
	// document at all. Update also returns it for a tombstoned id,
	// since a tombstone has no live document to update.
	ErrNotFound = errors.New("store: not found")

	// ErrDisposed is returned by any operation on a Store after Dispose
	// has been called.
	ErrDisposed = errors.New("store: disposed")
)

// ValidationError wraps a validation failure raised by an application
// or plugin validator outside the core. The core itself never
// constructs one; it is provided so that adapters have a single,
// consistent error shape to report external validation failures with.
type ValidationError struct {
	Cause error
}

func (e *ValidationError) Error() string {
	return "store: validation failed: " + e.Cause.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}
