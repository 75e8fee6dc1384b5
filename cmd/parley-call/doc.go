// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Parley-call runs one call from the terminal. Capture devices are
// synthetic; the peer is either the built-in loopback or a second
// parley-call reached over WebRTC through a parley-signal relay.
//
// By default the call is driven by line commands on stdin (m, v, s, e,
// status, q). With --tui it runs a full-screen interface instead.
package main
