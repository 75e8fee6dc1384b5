// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-rtc/parley/lib/clock"
	"github.com/parley-rtc/parley/media"
)

// LoopbackConfig configures a Loopback transport.
type LoopbackConfig struct {
	// Clock drives Delay. Defaults to clock.Real().
	Clock clock.Clock

	// Delay is how long Negotiate takes. Zero resolves immediately.
	Delay time.Duration

	Logger *slog.Logger
}

// Loopback is a PeerSession with no network. Negotiate waits Delay and
// then reports placeholder remote tracks mirroring the local kinds.
type Loopback struct {
	clock  clock.Clock
	delay  time.Duration
	logger *slog.Logger

	mu           sync.Mutex
	failure      error
	negotiations int
	live         int
	last         *RemoteMedia
}

var _ PeerSession = (*Loopback)(nil)

// NewLoopback creates a loopback transport.
func NewLoopback(config LoopbackConfig) *Loopback {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Loopback{clock: config.Clock, delay: config.Delay, logger: config.Logger}
}

// FailWith makes subsequent negotiations fail with err once the delay
// elapses. A nil err restores success.
func (l *Loopback) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failure = err
}

// Negotiate waits for the configured delay, then returns remote audio
// (and video, when local carries video).
func (l *Loopback) Negotiate(ctx context.Context, local LocalMedia) (*RemoteMedia, error) {
	if l.delay > 0 {
		select {
		case <-l.clock.After(l.delay):
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	} else if err := context.Cause(ctx); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.negotiations++
	if l.failure != nil {
		return nil, l.failure
	}

	streamID := "loopback-" + uuid.NewString()
	tracks := []RemoteTrack{{ID: "remote-audio", StreamID: streamID, Kind: media.TrackAudio}}
	if local.HasVideo() {
		tracks = append(tracks, RemoteTrack{ID: "remote-video", StreamID: streamID, Kind: media.TrackVideo})
	}

	remote := NewRemoteMedia(streamID, tracks, func() {
		l.mu.Lock()
		l.live--
		l.mu.Unlock()
		l.logger.Debug("loopback remote media released", "stream", streamID)
	})
	l.live++
	l.last = remote
	l.logger.Debug("loopback negotiated", "stream", streamID, "tracks", len(tracks))
	return remote, nil
}

// Last returns the most recent RemoteMedia, so a caller can Disconnect
// it to simulate the remote party hanging up.
func (l *Loopback) Last() *RemoteMedia {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Negotiations returns how many negotiations got past the delay.
func (l *Loopback) Negotiations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.negotiations
}

// Live returns how many RemoteMedia handles have not been released.
func (l *Loopback) Live() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live
}
