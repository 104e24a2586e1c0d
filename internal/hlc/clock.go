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

package hlc

import (
	"sync"
	"time"
)

// wallNow is overridden by tests to produce deterministic clock
// sequences without sleeping past millisecond boundaries.
var wallNow = func() int64 { return time.Now().UnixMilli() }

// Clock is a single-owner Hybrid Logical Clock. It is safe for
// concurrent use; the Store that owns a Clock still serializes access
// to it under its own lock, but the clock guards itself so it can also
// be used standalone (e.g. in tests).
type Clock struct {
	mu        sync.Mutex
	lastMs    int64
	counter   uint32
	lastNonce [2]byte
}

// NewClock creates a Clock with no prior history.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockFromEventstamp seeds a Clock's state from a persisted or
// observed Eventstamp, so that a restarted replica resumes strictly
// after whatever it last produced.
func NewClockFromEventstamp(s Eventstamp) (*Clock, error) {
	ms, counter, nonce, err := Decode(s)
	if err != nil {
		return nil, err
	}
	return &Clock{lastMs: ms, counter: counter, lastNonce: nonce}, nil
}

// Now allocates a new Eventstamp that is strictly greater than any
// stamp previously produced by Now or observed via Forward on this
// Clock.
func (c *Clock) Now() Eventstamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := wallNow()
	if w > c.lastMs {
		c.lastMs = w
		c.counter = 0
	} else {
		c.counter++
	}
	c.lastNonce = GenerateNonce()

	return Encode(c.lastMs, c.counter, c.lastNonce)
}

// Latest returns the current clock state as an Eventstamp without
// advancing it.
func (c *Clock) Latest() Eventstamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Encode(c.lastMs, c.counter, c.lastNonce)
}

// Forward fast-forwards the clock so that its next Now() call produces
// a stamp strictly after s, provided s is itself after the clock's
// current state. Invalid stamps are rejected; a stale or equal stamp is
// a no-op.
func (c *Clock) Forward(s Eventstamp) error {
	ms, counter, nonce, err := Decode(s)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if Compare(s, Encode(c.lastMs, c.counter, c.lastNonce)) <= 0 {
		return nil
	}

	c.lastMs = ms
	c.counter = counter
	c.lastNonce = nonce
	return nil
}
