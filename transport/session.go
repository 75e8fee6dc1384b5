// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/parley-rtc/parley/media"
)

// ErrRemoteDisconnected is returned by Negotiate when the remote side
// went away after answering but before media flowed.
var ErrRemoteDisconnected = errors.New("transport: remote peer disconnected")

// PeerSession establishes the media path for one call at a time.
type PeerSession interface {
	// Negotiate sends local's tracks to the remote party and blocks
	// until remote media is available. When ctx ends first, Negotiate
	// tears down whatever it opened and returns a nil RemoteMedia with
	// the context's cause.
	Negotiate(ctx context.Context, local LocalMedia) (*RemoteMedia, error)
}

// LocalMedia is the set of tracks a call sends.
type LocalMedia struct {
	Tracks []media.Track
}

// HasVideo reports whether any local track is video.
func (l LocalMedia) HasVideo() bool {
	for _, track := range l.Tracks {
		if track.Kind() == media.TrackVideo {
			return true
		}
	}
	return false
}

// RemoteTrack describes one track the remote side sends.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     media.TrackKind
}

// RemoteMedia is the caller's hold on the remote side of a call. The
// transport owns the underlying connection; Release gives it back.
type RemoteMedia struct {
	id     string
	tracks []RemoteTrack

	disconnectOnce sync.Once
	disconnected   chan struct{}

	releaseOnce sync.Once
	released    atomic.Bool
	release     func()
}

// NewRemoteMedia creates a handle. release, if set, runs once on the
// first Release.
func NewRemoteMedia(id string, tracks []RemoteTrack, release func()) *RemoteMedia {
	return &RemoteMedia{
		id:           id,
		tracks:       tracks,
		disconnected: make(chan struct{}),
		release:      release,
	}
}

// ID identifies the remote stream.
func (r *RemoteMedia) ID() string { return r.id }

// Tracks returns the remote tracks.
func (r *RemoteMedia) Tracks() []RemoteTrack {
	tracks := make([]RemoteTrack, len(r.tracks))
	copy(tracks, r.tracks)
	return tracks
}

// HasVideo reports whether the remote side sends video.
func (r *RemoteMedia) HasVideo() bool {
	for _, track := range r.tracks {
		if track.Kind == media.TrackVideo {
			return true
		}
	}
	return false
}

// Disconnected is closed when the remote side goes away. It is not
// closed by Release.
func (r *RemoteMedia) Disconnected() <-chan struct{} { return r.disconnected }

// Disconnect marks the remote side as gone. Transports call it when
// the connection drops; the loopback transport exposes it to simulate
// a remote hangup. Has no effect after Release.
func (r *RemoteMedia) Disconnect() {
	if r.released.Load() {
		return
	}
	r.disconnectOnce.Do(func() { close(r.disconnected) })
}

// Release drops the hold on the remote media. Idempotent.
func (r *RemoteMedia) Release() {
	r.releaseOnce.Do(func() {
		r.released.Store(true)
		if r.release != nil {
			r.release()
		}
	})
}

// Released reports whether Release has run.
func (r *RemoteMedia) Released() bool { return r.released.Load() }
