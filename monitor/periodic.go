// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"sync"
	"time"

	"github.com/parley-rtc/parley/lib/clock"
)

// periodic is the ticker loop shared by Timer and LevelMonitor.
type periodic struct {
	clock    clock.Clock
	interval time.Duration
	active   func() bool
	tick     func(at time.Time)

	mu      sync.Mutex
	started bool
	stopped bool
	ticker  *clock.Ticker
	quit    chan struct{}
	done    chan struct{}
}

func newPeriodic(source clock.Clock, interval time.Duration, active func() bool, tick func(time.Time)) *periodic {
	if source == nil {
		source = clock.Real()
	}
	if active == nil {
		active = func() bool { return true }
	}
	return &periodic{
		clock:    source,
		interval: interval,
		active:   active,
		tick:     tick,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *periodic) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	p.ticker = p.clock.NewTicker(p.interval)
	go p.run(p.ticker)
}

func (p *periodic) run(ticker *clock.Ticker) {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			return
		case at := <-ticker.C:
			p.mu.Lock()
			if p.stopped {
				p.mu.Unlock()
				return
			}
			if p.active() {
				p.tick(at)
			}
			p.mu.Unlock()
		}
	}
}

// stop reports whether this call did the stopping.
func (p *periodic) stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopped = true
	close(p.quit)
	if p.ticker != nil {
		p.ticker.Stop()
	} else {
		close(p.done)
	}
	return true
}
