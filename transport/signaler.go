// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Signaler exchanges complete session descriptions between two
// parties. The model is vanilla ICE: each SDP already embeds every
// candidate, so a call needs exactly one round trip (offer, answer).
type Signaler interface {
	// PublishOffer makes an offer from localpart visible to
	// targetLocalpart.
	PublishOffer(ctx context.Context, localpart, targetLocalpart, sdp string) error

	// PublishAnswer answers the offer offererLocalpart sent to
	// localpart.
	PublishAnswer(ctx context.Context, offererLocalpart, localpart, sdp string) error

	// PollOffers returns offers addressed to localpart that this
	// consumer has not seen yet.
	PollOffers(ctx context.Context, localpart string) ([]SignalMessage, error)

	// PollAnswers returns answers to offers localpart sent that this
	// consumer has not seen yet.
	PollAnswers(ctx context.Context, localpart string) ([]SignalMessage, error)
}

// SignalMessage is one received offer or answer.
type SignalMessage struct {
	// PeerLocalpart is the other party: the offerer for an offer, the
	// answerer for an answer.
	PeerLocalpart string

	// SDP is the complete session description, candidates included.
	SDP string

	// Timestamp is the RFC 3339 creation time.
	Timestamp string
}

// signalingSeparator joins a sender and an envelope type in relay
// keys. No localpart may contain it.
const signalingSeparator = "|"
