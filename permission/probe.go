// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/parley-rtc/parley/media"
)

// Status is the permission decision for one device kind.
type Status int

const (
	Unknown Status = iota
	Granted
	Denied
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// State is the last known decision per device kind.
type State struct {
	Audio Status
	Video Status
}

// Of returns the status for kind.
func (s State) Of(kind media.TrackKind) Status {
	if kind == media.TrackVideo {
		return s.Video
	}
	return s.Audio
}

// Allows reports whether every kind in kinds is Granted.
func (s State) Allows(kinds media.Kinds) bool {
	for _, kind := range kinds.List() {
		if s.Of(kind) != Granted {
			return false
		}
	}
	return true
}

func (s *State) set(kind media.TrackKind, status Status) {
	if kind == media.TrackVideo {
		s.Video = status
	} else {
		s.Audio = status
	}
}

// Probe checks device permissions against a provider and caches the
// result.
type Probe struct {
	provider media.DeviceProvider
	logger   *slog.Logger

	mu     sync.Mutex
	cached State
}

// NewProbe creates a probe. A nil logger discards output.
func NewProbe(provider media.DeviceProvider, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Probe{provider: provider, logger: logger}
}

// Probe requests transient access to each kind in kinds, one kind at
// a time, and stops every capture before returning. Kinds not
// requested keep their cached status.
//
// The returned State is valid even when err is non-nil: kinds probed
// before the failure carry their outcome.
func (p *Probe) Probe(ctx context.Context, kinds media.Kinds) (State, error) {
	p.mu.Lock()
	state := p.cached
	p.mu.Unlock()

	var probeErr error
	for _, kind := range kinds.List() {
		status, err := p.probeKind(ctx, kind)
		if err != nil {
			probeErr = err
			break
		}
		state.set(kind, status)
	}

	p.mu.Lock()
	p.cached = state
	p.mu.Unlock()

	if probeErr != nil {
		return state, probeErr
	}
	p.logger.Debug("permission probe complete",
		"audio", state.Audio,
		"video", state.Video,
	)
	return state, nil
}

func (p *Probe) probeKind(ctx context.Context, kind media.TrackKind) (Status, error) {
	stream, err := p.provider.RequestCapture(ctx, media.Only(kind))
	switch {
	case err == nil:
		stream.Stop()
		return Granted, nil
	case errors.Is(err, media.ErrPermissionDenied):
		p.logger.Info("device permission denied", "kind", kind)
		return Denied, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Unknown, err
	case errors.Is(err, media.ErrDeviceNotFound):
		return Unknown, fmt.Errorf("probing %s: %w", kind, err)
	default:
		return Unknown, fmt.Errorf("probing %s: %w: %w", kind, media.ErrDeviceNotFound, err)
	}
}

// Cached returns the state recorded by the last Probe.
func (p *Probe) Cached() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cached
}

// Devices lists the capture devices the provider reports.
func (p *Probe) Devices(ctx context.Context) ([]media.Device, error) {
	devices, err := p.provider.EnumerateDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	return devices, nil
}
