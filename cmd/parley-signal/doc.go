// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Parley-signal is the WebSocket signaling relay for parley-call. Two
// parley-call processes in webrtc mode connect to /signal with their
// localparts and exchange SDP offers and answers through it; media
// flows directly between them.
package main
