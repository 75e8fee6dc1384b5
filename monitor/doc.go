// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor runs the periodic tasks of an active call: the
// duration [Timer] and the microphone [LevelMonitor].
//
// Both are driven by a ticker from an injected [clock.Clock] and gate
// every tick on a caller-supplied Active predicate plus their own
// stopped flag. Stop is synchronous with emission: once it returns, no
// callback is running and none will run again. Callbacks execute with
// the monitor's lock held, so they must not call back into the
// monitor, and whoever calls Stop must not hold a lock the callback
// takes.
package monitor
