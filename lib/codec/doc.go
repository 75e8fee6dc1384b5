// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is parley's binary encoding for signaling traffic.
//
// Signaling envelopes travel as WebSocket binary frames encoded with
// CBOR Core Deterministic Encoding (RFC 8949 §4.2): the same envelope
// always produces the same bytes, which keeps relay logs and tests
// comparable byte for byte. The fxamacker/cbor modes are configured
// once at init; callers use [Marshal] and [Unmarshal] and never import
// the CBOR library directly.
package codec
