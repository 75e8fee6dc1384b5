// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"time"

	"github.com/parley-rtc/parley/media"
)

// Session is a snapshot of a call. The live record stays inside the
// Manager; callers only ever see copies.
type Session struct {
	ID     string
	Kind   media.Kind
	State  State
	Reason Reason

	// StartedAt is set on entry to Active, EndedAt on entry to Ended
	// or Failed. Zero means not yet.
	StartedAt time.Time
	EndedAt   time.Time

	Muted        bool
	VideoEnabled bool

	// SpeakerOn is presentation state only; it does not change audio
	// routing.
	SpeakerOn bool

	// Duration counts whole seconds spent Active.
	Duration int

	// LocalMediaID and RemoteMediaID identify the capture handle and
	// the remote stream while the call holds them.
	LocalMediaID  string
	RemoteMediaID string
}

// Summary is the final event of every session.
type Summary struct {
	SessionID string
	Kind      media.Kind
	State     State
	Reason    Reason
	Duration  int
	StartedAt time.Time
	EndedAt   time.Time
}

func (s Session) summary() Summary {
	return Summary{
		SessionID: s.ID,
		Kind:      s.Kind,
		State:     s.State,
		Reason:    s.Reason,
		Duration:  s.Duration,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
}
