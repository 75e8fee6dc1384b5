// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exports call lifecycle events as Prometheus metrics.
//
// A [Collector] is a call.EventSink: attach it to a Manager (usually
// inside a call.MultiSink next to the UI sink) and serve its registry
// with promhttp.
package metrics
