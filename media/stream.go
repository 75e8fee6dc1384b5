// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package media

import "sync"

// Stream is the set of tracks returned by one RequestCapture call.
type Stream struct {
	id     string
	tracks []Track

	stopOnce sync.Once
	stopped  chan struct{}
	onStop   func()
}

// NewStream wraps tracks opened together. onStop, if set, runs once
// after every track has been stopped.
func NewStream(id string, tracks []Track, onStop func()) *Stream {
	return &Stream{
		id:      id,
		tracks:  tracks,
		stopped: make(chan struct{}),
		onStop:  onStop,
	}
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// Tracks returns the stream's tracks, audio before video.
func (s *Stream) Tracks() []Track {
	tracks := make([]Track, len(s.tracks))
	copy(tracks, s.tracks)
	return tracks
}

// Track returns the first track of the given kind.
func (s *Stream) Track(kind TrackKind) (Track, bool) {
	for _, track := range s.tracks {
		if track.Kind() == kind {
			return track, true
		}
	}
	return nil, false
}

// Stop stops every track. Only the first call has any effect.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		for _, track := range s.tracks {
			track.Stop()
		}
		close(s.stopped)
		if s.onStop != nil {
			s.onStop()
		}
	})
}

// Stopped is closed once Stop has run.
func (s *Stream) Stopped() <-chan struct{} { return s.stopped }
