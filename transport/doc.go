// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport establishes the peer media path for a call.
//
// A [PeerSession] turns local tracks into [RemoteMedia]: Negotiate
// blocks until the remote side is sending (or the context ends) and
// returns a handle the caller holds for the lifetime of the call. The
// handle's Disconnected channel closes when the remote side goes away,
// and Release tears the connection down. Release is idempotent and the
// transport remains the owner of everything behind the handle.
//
// Two implementations exist. [Loopback] synthesizes remote tracks
// after a configurable delay on an injected clock; it backs tests and
// the offline demo. [WebRTC] creates one pion PeerConnection per call,
// adds the local tracks, and performs a single vanilla-ICE offer/answer
// round trip through a [Signaler]: all candidates are gathered before
// the SDP is published, so no trickle channel is needed.
//
// Signaling is abstracted behind [Signaler]. [MemorySignaler] serves
// tests in one process. [WebSocketSignaler] talks to a [Relay] over a
// WebSocket, exchanging CBOR-encoded [Envelope] frames; the relay
// holds the latest offer and answer for parties that have not
// connected yet.
//
// [ICEConfig] carries STUN/TURN servers into the PeerConnection
// configuration. An empty ICEConfig uses host candidates only, which
// includes loopback so two sessions on one machine can connect.
package transport
