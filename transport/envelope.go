// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/parley-rtc/parley/lib/codec"
)

// Envelope types.
const (
	EnvelopeOffer  = "offer"
	EnvelopeAnswer = "answer"
)

// Envelope is one signaling frame between a WebSocketSignaler and a
// Relay. Frames are CBOR in binary WebSocket messages.
type Envelope struct {
	Type string `cbor:"type"`

	// From is the sender. The relay overwrites it with the localpart
	// the sender connected as.
	From string `cbor:"from"`
	To   string `cbor:"to"`

	SDP       string `cbor:"sdp"`
	Timestamp string `cbor:"timestamp"`
}

func newEnvelope(kind, from, to, sdp string) Envelope {
	return Envelope{
		Type:      kind,
		From:      from,
		To:        to,
		SDP:       sdp,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Validate checks the fields a relay needs to route the envelope.
func (e Envelope) Validate() error {
	var errs []error
	if e.Type != EnvelopeOffer && e.Type != EnvelopeAnswer {
		errs = append(errs, fmt.Errorf("unknown envelope type %q", e.Type))
	}
	if e.To == "" {
		errs = append(errs, errors.New("envelope has no recipient"))
	}
	if e.SDP == "" {
		errs = append(errs, errors.New("envelope has no SDP"))
	}
	return errors.Join(errs...)
}

func encodeEnvelope(envelope Envelope) ([]byte, error) {
	data, err := codec.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", envelope.Type, err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return envelope, nil
}

func (e Envelope) message() SignalMessage {
	return SignalMessage{PeerLocalpart: e.From, SDP: e.SDP, Timestamp: e.Timestamp}
}
