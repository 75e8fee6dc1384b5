// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"sync"
)

var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler with the delivery rules of
// a Relay: every party has a mailbox, and a mailbox holds only the
// latest envelope per sender and type until its owner polls. Two WebRTC
// sessions sharing one MemorySignaler negotiate without a network.
type MemorySignaler struct {
	mu        sync.Mutex
	mailboxes map[string]*mailbox
	published int
}

// mailbox is one party's undelivered envelopes, in arrival order.
type mailbox struct {
	envelopes []Envelope
}

// put queues envelope, replacing an older one from the same sender
// and of the same type.
func (m *mailbox) put(envelope Envelope) {
	for i, held := range m.envelopes {
		if held.From == envelope.From && held.Type == envelope.Type {
			m.envelopes = append(m.envelopes[:i], m.envelopes[i+1:]...)
			break
		}
	}
	m.envelopes = append(m.envelopes, envelope)
}

// take removes and returns the envelopes of type kind.
func (m *mailbox) take(kind string) []SignalMessage {
	var messages []SignalMessage
	kept := m.envelopes[:0]
	for _, envelope := range m.envelopes {
		if envelope.Type != kind {
			kept = append(kept, envelope)
			continue
		}
		messages = append(messages, SignalMessage{
			PeerLocalpart: envelope.From,
			SDP:           envelope.SDP,
			Timestamp:     envelope.Timestamp,
		})
	}
	m.envelopes = kept
	return messages
}

// NewMemorySignaler creates a signaler with no parties.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{mailboxes: make(map[string]*mailbox)}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, localpart, targetLocalpart, sdp string) error {
	return s.deliver(newEnvelope(EnvelopeOffer, localpart, targetLocalpart, sdp))
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offererLocalpart, localpart, sdp string) error {
	return s.deliver(newEnvelope(EnvelopeAnswer, localpart, offererLocalpart, sdp))
}

func (s *MemorySignaler) PollOffers(_ context.Context, localpart string) ([]SignalMessage, error) {
	return s.take(localpart, EnvelopeOffer), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, localpart string) ([]SignalMessage, error) {
	return s.take(localpart, EnvelopeAnswer), nil
}

// Published returns how many envelopes were accepted.
func (s *MemorySignaler) Published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published
}

func (s *MemorySignaler) deliver(envelope Envelope) error {
	if err := envelope.Validate(); err != nil {
		return fmt.Errorf("transport: rejecting %s from %q: %w", envelope.Type, envelope.From, err)
	}
	if envelope.From == envelope.To {
		return fmt.Errorf("transport: %q cannot signal itself", envelope.From)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	box, ok := s.mailboxes[envelope.To]
	if !ok {
		box = &mailbox{}
		s.mailboxes[envelope.To] = box
	}
	box.put(envelope)
	s.published++
	return nil
}

func (s *MemorySignaler) take(localpart, kind string) []SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	box, ok := s.mailboxes[localpart]
	if !ok {
		return nil
	}
	return box.take(kind)
}
