// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package media

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/parley-rtc/parley/lib/clock"
)

const (
	toneSampleRate = 48000
	toneFrequency  = 440
	// toneFrameSamples is one 20ms frame at 48kHz.
	toneFrameSamples = 960
)

// opusSilence is the three-byte Opus packet decoders treat as 20ms of
// comfort silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// blankVideoFrame is the payload written for the synthetic camera.
// Receivers see a track but no decodable picture.
var blankVideoFrame = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}

// SyntheticConfig configures the software devices.
type SyntheticConfig struct {
	// Audio and Video report whether each device exists.
	Audio bool
	Video bool

	// DenyAudio and DenyVideo make RequestCapture refuse that kind.
	DenyAudio bool
	DenyVideo bool

	// ToneAmplitude is the microphone level as a fraction of full
	// scale, 0..1.
	ToneAmplitude float64

	// SampleInterval, when positive, starts a writer per stream that
	// pushes one sample per interval into each enabled track so a
	// connected peer receives RTP. Zero leaves tracks idle.
	SampleInterval time.Duration

	// Clock drives the sample writer. Defaults to clock.Real().
	Clock clock.Clock
}

// SyntheticStats counts captures for leak checks.
type SyntheticStats struct {
	// Opened is the number of streams ever returned.
	Opened int
	// Live is the number of returned streams not yet stopped.
	Live int
}

// Synthetic is a DeviceProvider backed by software devices.
type Synthetic struct {
	mu     sync.Mutex
	config SyntheticConfig
	stats  SyntheticStats
}

var _ DeviceProvider = (*Synthetic)(nil)

// NewSynthetic creates a synthetic provider.
func NewSynthetic(config SyntheticConfig) *Synthetic {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return &Synthetic{config: config}
}

// SetPermission changes the permission decision for kind, as if the
// user changed it in the platform settings.
func (s *Synthetic) SetPermission(kind TrackKind, granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case TrackAudio:
		s.config.DenyAudio = !granted
	case TrackVideo:
		s.config.DenyVideo = !granted
	}
}

// SetDevicePresent plugs or unplugs the device of kind.
func (s *Synthetic) SetDevicePresent(kind TrackKind, present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case TrackAudio:
		s.config.Audio = present
	case TrackVideo:
		s.config.Video = present
	}
}

// Stats returns the capture counters.
func (s *Synthetic) Stats() SyntheticStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// EnumerateDevices lists the devices currently present.
func (s *Synthetic) EnumerateDevices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var devices []Device
	if s.config.Audio {
		devices = append(devices, Device{ID: "synthetic-microphone", Label: "Synthetic Microphone", Kind: TrackAudio})
	}
	if s.config.Video {
		devices = append(devices, Device{ID: "synthetic-camera", Label: "Synthetic Camera", Kind: TrackVideo})
	}
	return devices, nil
}

// RequestCapture opens the requested synthetic devices.
func (s *Synthetic) RequestCapture(ctx context.Context, kinds Kinds) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !kinds.Audio && !kinds.Video {
		return nil, fmt.Errorf("%w: no device kind requested", ErrDeviceNotFound)
	}

	s.mu.Lock()
	config := s.config
	s.mu.Unlock()

	if kinds.Audio && !config.Audio {
		return nil, fmt.Errorf("%w: no microphone", ErrDeviceNotFound)
	}
	if kinds.Video && !config.Video {
		return nil, fmt.Errorf("%w: no camera", ErrDeviceNotFound)
	}
	if kinds.Audio && config.DenyAudio {
		return nil, fmt.Errorf("%w: microphone", ErrPermissionDenied)
	}
	if kinds.Video && config.DenyVideo {
		return nil, fmt.Errorf("%w: camera", ErrPermissionDenied)
	}

	streamID := uuid.NewString()
	var tracks []Track
	if kinds.Audio {
		track, err := newToneTrack(streamID, config.ToneAmplitude)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	if kinds.Video {
		track, err := newBlankVideoTrack(streamID)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	done := make(chan struct{})
	stream := NewStream(streamID, tracks, func() {
		close(done)
		s.mu.Lock()
		s.stats.Live--
		s.mu.Unlock()
	})

	s.mu.Lock()
	s.stats.Opened++
	s.stats.Live++
	s.mu.Unlock()

	if config.SampleInterval > 0 {
		go writeSamples(config.Clock, config.SampleInterval, tracks, done)
	}
	return stream, nil
}

// writeSamples feeds every enabled live track until done closes.
func writeSamples(source clock.Clock, interval time.Duration, tracks []Track, done <-chan struct{}) {
	ticker := source.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for _, track := range tracks {
				if synthetic, ok := track.(sampleWriter); ok && track.Live() && track.Enabled() {
					// Write errors only mean no receiver is bound yet.
					_ = synthetic.writeSample(interval)
				}
			}
		}
	}
}

type sampleWriter interface {
	writeSample(duration time.Duration) error
}

// syntheticTrack is the state shared by the synthetic microphone and
// camera.
type syntheticTrack struct {
	id      string
	kind    TrackKind
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
	payload []byte
}

func newSyntheticTrack(kind TrackKind, streamID string, mimeType string, payload []byte) (*syntheticTrack, error) {
	id := string(kind) + "-" + uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mimeType}, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("creating %s track: %w", kind, err)
	}
	track := &syntheticTrack{id: id, kind: kind, local: local, payload: payload}
	track.enabled.Store(true)
	return track, nil
}

func (t *syntheticTrack) ID() string               { return t.id }
func (t *syntheticTrack) Kind() TrackKind          { return t.kind }
func (t *syntheticTrack) Enabled() bool            { return t.enabled.Load() }
func (t *syntheticTrack) SetEnabled(enabled bool)  { t.enabled.Store(enabled) }
func (t *syntheticTrack) Stop()                    { t.stopped.Store(true) }
func (t *syntheticTrack) Live() bool               { return !t.stopped.Load() }
func (t *syntheticTrack) Local() webrtc.TrackLocal { return t.local }

func (t *syntheticTrack) writeSample(duration time.Duration) error {
	return t.local.WriteSample(pionmedia.Sample{Data: t.payload, Duration: duration})
}

// toneTrack is the synthetic microphone: a 440Hz tone whose amplitude
// swells and fades so level meters move.
type toneTrack struct {
	*syntheticTrack
	amplitude float64
	frames    atomic.Uint64
}

func newToneTrack(streamID string, amplitude float64) (*toneTrack, error) {
	base, err := newSyntheticTrack(TrackAudio, streamID, webrtc.MimeTypeOpus, opusSilence)
	if err != nil {
		return nil, err
	}
	return &toneTrack{syntheticTrack: base, amplitude: amplitude}, nil
}

// Level generates the next 20ms frame and returns its energy. A
// disabled or stopped microphone reads 0.
func (t *toneTrack) Level() int {
	if !t.Enabled() || !t.Live() {
		return 0
	}
	index := t.frames.Add(1) - 1
	envelope := 0.5 + 0.5*math.Sin(float64(index)*0.35)
	frame := make([]int16, toneFrameSamples)
	toneFrame(frame, int(index)*toneFrameSamples, toneSampleRate, toneFrequency, t.amplitude*envelope)
	return PCMLevel(frame)
}

func newBlankVideoTrack(streamID string) (*syntheticTrack, error) {
	return newSyntheticTrack(TrackVideo, streamID, webrtc.MimeTypeVP8, blankVideoFrame)
}
