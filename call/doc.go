// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package call owns the lifecycle of a single audio or audio+video
// call.
//
// A [Manager] moves one session at a time through
//
//	Idle → RequestingPermission → Connecting → Active → Ended
//
// with Failed as the terminal state for attempts that never became
// Active. It asks the permission probe, opens capture devices, runs
// the peer transport negotiation under a timeout, and while Active
// drives the duration timer and the microphone level monitor. Every
// way out (hangup, failure, remote disconnect, cancellation, timeout)
// goes through one teardown path that releases local capture exactly
// once and drops the hold on remote media.
//
// Public operations are serialized by a mutex. The slow steps (probe,
// acquire, negotiate) run with the mutex released and are tagged with
// an attempt generation: EndCall bumps the generation, so a completion
// that arrives afterwards is recognized as stale and whatever it
// produced is released instead of being applied.
//
// Events reach the [EventSink] in order on a dispatcher goroutine,
// never while the Manager's lock is held, so a sink may call back into
// the Manager. A sink must not call [Manager.Close].
package call
