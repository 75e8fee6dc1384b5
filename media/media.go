// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	// ErrPermissionDenied means the user or platform refused access to
	// a device.
	ErrPermissionDenied = errors.New("media: permission denied")

	// ErrDeviceNotFound means the requested device kind does not exist
	// or the capture API is unavailable.
	ErrDeviceNotFound = errors.New("media: device not found")
)

// Kind is the kind of call a capture serves.
type Kind int

const (
	Audio Kind = iota + 1
	AudioVideo
)

func (k Kind) String() string {
	switch k {
	case Audio:
		return "audio"
	case AudioVideo:
		return "audio-video"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Kinds returns the device kinds a call of kind k needs.
func (k Kind) Kinds() Kinds {
	return Kinds{Audio: k == Audio || k == AudioVideo, Video: k == AudioVideo}
}

// Valid reports whether k is Audio or AudioVideo.
func (k Kind) Valid() bool { return k == Audio || k == AudioVideo }

// ParseKind accepts "audio", "video" and "audio-video".
func ParseKind(value string) (Kind, error) {
	switch value {
	case "audio":
		return Audio, nil
	case "video", "audio-video":
		return AudioVideo, nil
	}
	return 0, fmt.Errorf("unknown call kind %q (want audio or video)", value)
}

// TrackKind is the media type of a single track.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Kinds is a set of device kinds.
type Kinds struct {
	Audio bool
	Video bool
}

// List returns the kinds in the set, audio first.
func (k Kinds) List() []TrackKind {
	var list []TrackKind
	if k.Audio {
		list = append(list, TrackAudio)
	}
	if k.Video {
		list = append(list, TrackVideo)
	}
	return list
}

// Only returns the set containing just kind.
func Only(kind TrackKind) Kinds {
	return Kinds{Audio: kind == TrackAudio, Video: kind == TrackVideo}
}

// Device is one capture device reported by EnumerateDevices.
type Device struct {
	ID    string
	Label string
	Kind  TrackKind
}

// Track is one captured audio or video track.
type Track interface {
	ID() string
	Kind() TrackKind

	// Enabled reports whether the track currently carries media. A
	// disabled track stays open but sends silence or black frames.
	Enabled() bool
	SetEnabled(enabled bool)

	// Stop closes the underlying device. Idempotent.
	Stop()

	// Live reports whether Stop has not been called yet.
	Live() bool

	// Local returns the pion track used to send this media.
	Local() webrtc.TrackLocal
}

// LevelMeter reports the current signal energy of an audio track on a
// 0..100 scale.
type LevelMeter interface {
	Level() int
}

// DeviceProvider is the platform capture API.
type DeviceProvider interface {
	// RequestCapture opens the requested device kinds. It may trigger
	// the platform permission prompt. Refusal returns an error wrapping
	// ErrPermissionDenied; a missing device or capture API returns one
	// wrapping ErrDeviceNotFound.
	RequestCapture(ctx context.Context, kinds Kinds) (*Stream, error)

	// EnumerateDevices lists the capture devices present.
	EnumerateDevices(ctx context.Context) ([]Device, error)
}
