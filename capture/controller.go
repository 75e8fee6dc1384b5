// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/parley-rtc/parley/media"
)

var (
	// ErrHandleOpen is returned by Acquire while another handle or
	// acquisition is outstanding.
	ErrHandleOpen = errors.New("capture: a capture handle is already open")

	// ErrStale is returned by Acquire when Abort ran while the devices
	// were being opened. The devices have already been stopped.
	ErrStale = errors.New("capture: acquisition superseded")

	// ErrReleased is returned when operating on a released handle.
	ErrReleased = errors.New("capture: handle released")

	// ErrNoTrack is returned by SetTrackEnabled when the handle has no
	// track of the requested kind.
	ErrNoTrack = errors.New("capture: no such track")
)

// Handle is exclusive ownership of one captured stream.
type Handle struct {
	id         string
	generation uint64
	kind       media.Kind
	stream     *media.Stream
	released   atomic.Bool
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string { return h.id }

// Generation returns the controller generation the handle was opened
// under.
func (h *Handle) Generation() uint64 { return h.generation }

// Kind returns the call kind the handle was acquired for.
func (h *Handle) Kind() media.Kind { return h.kind }

// Tracks returns the captured tracks.
func (h *Handle) Tracks() []media.Track { return h.stream.Tracks() }

// Track returns the track of the given kind.
func (h *Handle) Track(kind media.TrackKind) (media.Track, bool) {
	return h.stream.Track(kind)
}

// Released reports whether Release or Abort has stopped the handle.
func (h *Handle) Released() bool { return h.released.Load() }

// Controller opens and closes capture devices.
type Controller struct {
	provider media.DeviceProvider
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	acquiring  bool
	open       *Handle
}

// NewController creates a controller over provider. A nil logger
// discards output.
func NewController(provider media.DeviceProvider, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{provider: provider, logger: logger}
}

// Acquire opens the devices a call of kind needs. Provider refusals
// come back wrapping media.ErrPermissionDenied or
// media.ErrDeviceNotFound.
func (c *Controller) Acquire(ctx context.Context, kind media.Kind) (*Handle, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("capture: invalid call kind %v", kind)
	}

	c.mu.Lock()
	if c.open != nil || c.acquiring {
		c.mu.Unlock()
		return nil, ErrHandleOpen
	}
	c.acquiring = true
	generation := c.generation
	c.mu.Unlock()

	stream, err := c.provider.RequestCapture(ctx, kind.Kinds())

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		if stream != nil {
			stream.Stop()
			c.logger.Debug("stopped capture that completed after abort",
				"stream", stream.ID(),
				"generation", generation,
			)
		}
		return nil, ErrStale
	}
	c.acquiring = false
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("acquiring %s capture: %w", kind, err)
	}
	handle := &Handle{
		id:         uuid.NewString(),
		generation: generation,
		kind:       kind,
		stream:     stream,
	}
	c.open = handle
	c.mu.Unlock()

	c.logger.Debug("capture acquired",
		"handle", handle.id,
		"kind", kind,
		"tracks", len(stream.Tracks()),
	)
	return handle, nil
}

// Release stops every track of handle. Releasing a nil or already
// released handle does nothing.
func (c *Controller) Release(handle *Handle) {
	if handle == nil {
		return
	}
	c.mu.Lock()
	if c.open == handle {
		c.open = nil
	}
	c.mu.Unlock()
	c.stop(handle)
}

// Abort supersedes any in-flight acquisition and releases the open
// handle, if any.
func (c *Controller) Abort() {
	c.mu.Lock()
	c.generation++
	c.acquiring = false
	open := c.open
	c.open = nil
	c.mu.Unlock()

	if open != nil {
		c.stop(open)
	}
}

func (c *Controller) stop(handle *Handle) {
	if handle.released.Swap(true) {
		return
	}
	handle.stream.Stop()
	c.logger.Debug("capture released", "handle", handle.id)
}

// SetTrackEnabled enables or disables the handle's track of the given
// kind without closing the device, and returns the track's new state.
func (c *Controller) SetTrackEnabled(handle *Handle, kind media.TrackKind, enabled bool) (bool, error) {
	if handle == nil || handle.Released() {
		return false, ErrReleased
	}
	track, ok := handle.Track(kind)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoTrack, kind)
	}
	track.SetEnabled(enabled)
	return track.Enabled(), nil
}

// Open reports whether a handle is currently outstanding.
func (c *Controller) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open != nil
}
