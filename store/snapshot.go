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
	"github.com/starlingdb/starling/internal/document"
	"github.com/starlingdb/starling/internal/hlc"
)

// Snapshot is the wire format used for persistence and sync. It
// must JSON round-trip bit-exactly: every field name and shape here is
// load-bearing for interop between replicas running different Starling
// builds.
type Snapshot struct {
	Docs       []*document.Document `json:"docs"`
	Eventstamp hlc.Eventstamp       `json:"eventstamp"`
}
