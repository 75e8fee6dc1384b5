// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"time"

	"github.com/parley-rtc/parley/lib/clock"
)

// TimerConfig configures a Timer.
type TimerConfig struct {
	// Clock drives the ticker. Defaults to clock.Real().
	Clock clock.Clock

	// Interval is the length of one counted unit. Defaults to one
	// second.
	Interval time.Duration

	// Active gates every tick. A tick while Active reports false is
	// not counted. Nil means always active.
	Active func() bool

	// OnTick receives the elapsed count after each counted tick.
	OnTick func(elapsed int)
}

// Timer counts whole intervals of an active call, starting from 0.
type Timer struct {
	loop    *periodic
	onTick  func(int)
	elapsed int
}

// NewTimer creates a stopped-at-zero timer. Call Start to begin
// counting.
func NewTimer(config TimerConfig) *Timer {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	timer := &Timer{onTick: config.OnTick}
	timer.loop = newPeriodic(config.Clock, config.Interval, config.Active, timer.tick)
	return timer
}

// tick runs with loop.mu held.
func (t *Timer) tick(time.Time) {
	t.elapsed++
	if t.onTick != nil {
		t.onTick(t.elapsed)
	}
}

// Start begins counting. Calls after the first, or after Stop, do
// nothing.
func (t *Timer) Start() { t.loop.start() }

// Stop halts the timer and returns the final count. No OnTick call
// runs after Stop returns. Idempotent.
func (t *Timer) Stop() int {
	t.loop.stop()
	return t.Elapsed()
}

// Elapsed returns the intervals counted so far.
func (t *Timer) Elapsed() int {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	return t.elapsed
}

// Done is closed once the timer goroutine has exited.
func (t *Timer) Done() <-chan struct{} { return t.loop.done }
