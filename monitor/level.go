// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"time"

	"github.com/parley-rtc/parley/lib/clock"
	"github.com/parley-rtc/parley/media"
)

// Sample is one microphone energy reading.
type Sample struct {
	// Level is 0 (silence) to 100 (full scale).
	Level      int
	CapturedAt time.Time
}

// LevelConfig configures a LevelMonitor.
type LevelConfig struct {
	// Clock drives the ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Interval between samples. Defaults to 100ms.
	Interval time.Duration

	// Active gates every sample. Nil means always active.
	Active func() bool

	// Meter is read on every tick. A track that does not report levels
	// produces constant zero samples.
	Meter media.LevelMeter

	// OnSample receives each reading.
	OnSample func(Sample)
}

// LevelMonitor samples a local audio track's energy while a call is
// active.
type LevelMonitor struct {
	loop     *periodic
	meter    media.LevelMeter
	onSample func(Sample)
	last     Sample
}

// NewLevelMonitor creates a monitor. Call Start to begin sampling.
func NewLevelMonitor(config LevelConfig) *LevelMonitor {
	if config.Interval <= 0 {
		config.Interval = 100 * time.Millisecond
	}
	monitor := &LevelMonitor{meter: config.Meter, onSample: config.OnSample}
	monitor.loop = newPeriodic(config.Clock, config.Interval, config.Active, monitor.tick)
	return monitor
}

// MeterFor returns track's LevelMeter, or nil when track does not
// report levels.
func MeterFor(track media.Track) media.LevelMeter {
	meter, _ := track.(media.LevelMeter)
	return meter
}

func (m *LevelMonitor) tick(at time.Time) {
	level := 0
	if m.meter != nil {
		level = min(max(m.meter.Level(), 0), 100)
	}
	m.last = Sample{Level: level, CapturedAt: at}
	if m.onSample != nil {
		m.onSample(m.last)
	}
}

// Start begins sampling. Calls after the first, or after Stop, do
// nothing.
func (m *LevelMonitor) Start() { m.loop.start() }

// Stop halts sampling. No OnSample call runs after Stop returns.
// Idempotent.
func (m *LevelMonitor) Stop() { m.loop.stop() }

// Last returns the most recent sample.
func (m *LevelMonitor) Last() Sample {
	m.loop.mu.Lock()
	defer m.loop.mu.Unlock()
	return m.last
}

// Done is closed once the sampling goroutine has exited.
func (m *LevelMonitor) Done() <-chan struct{} { return m.loop.done }
