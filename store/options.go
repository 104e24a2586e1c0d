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
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/starlingdb/starling/internal/hlc"
)

// Option configures a Store at construction time. The shape follows
// the usual functional-option idiom, preferred here over a DI
// container since a Store has few enough collaborators that wiring
// them in one constructor is simpler than generating a provider graph.
type Option func(*options)

type options struct {
	idGen  func() string
	clock  *hlc.Clock
	logger logrus.FieldLogger
	hooks  []LifecycleHooks
}

func defaultOptions() *options {
	return &options{
		idGen:  func() string { return uuid.NewString() },
		clock:  hlc.NewClock(),
		logger: logrus.StandardLogger(),
	}
}

// WithIDGenerator overrides the default random-UUID id generator used
// by Add when no explicit id is supplied. Useful for deterministic
// tests.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.idGen = gen }
}

// WithClock overrides the Store's Hybrid Logical Clock, e.g. to resume
// from a persisted Eventstamp via hlc.NewClockFromEventstamp.
func WithClock(clock *hlc.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger overrides the logrus.FieldLogger the Store uses for
// warnings about recovered subscriber and query-predicate panics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLifecycleHooks registers a set of persistence/sync lifecycle
// hooks. Multiple sets may be registered; OnInit hooks run in
// registration order before New returns, and OnDispose hooks run in
// reverse registration order (see DESIGN.md's "plugin ordering" note).
func WithLifecycleHooks(hooks LifecycleHooks) Option {
	return func(o *options) { o.hooks = append(o.hooks, hooks) }
}
