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

// Package metrics holds the Prometheus collectors shared by every
// Store. Collections are labeled by name so that an application
// running many Stores still gets per-collection breakdowns.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CollectionLabels is the shared label set across every collector in
// this package.
var CollectionLabels = []string{"collection"}

// LatencyBuckets are the histogram buckets (in seconds) used for every
// duration metric in this package; local operations are expected to
// complete in well under a millisecond, so the buckets skew small.
var LatencyBuckets = []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1}

var (
	// MutationsTotal counts committed add/update/remove operations.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_store_mutations_total",
		Help: "the number of mutations committed to a collection",
	}, append(CollectionLabels, "op"))

	// CommitDurations measures how long Store.Begin transactions take
	// to commit, from Begin to the atomic swap.
	CommitDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "starling_store_commit_duration_seconds",
		Help:    "the length of time it took to commit a transaction",
		Buckets: LatencyBuckets,
	}, CollectionLabels)

	// MergeDurations measures how long Store.Merge takes to fold an
	// incoming snapshot into the local collection.
	MergeDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "starling_store_merge_duration_seconds",
		Help:    "the length of time it took to merge an incoming snapshot",
		Buckets: LatencyBuckets,
	}, CollectionLabels)

	// QueryResultSizes tracks how many documents currently match a
	// live query, sampled on every batch that changes it.
	QueryResultSizes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "starling_store_query_result_size",
		Help: "the number of documents currently matched by a live query",
	}, append(CollectionLabels, "query"))

	// SubscriberPanicsTotal counts event subscriber or predicate/select
	// callbacks that panicked and were recovered.
	SubscriberPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "starling_store_subscriber_panics_total",
		Help: "the number of subscriber or query callback panics recovered",
	}, append(CollectionLabels, "kind"))
)
