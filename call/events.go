// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"sync"

	"github.com/parley-rtc/parley/monitor"
	"github.com/parley-rtc/parley/transport"
)

// EventSink receives the notification stream of a Manager. Calls are
// made from one goroutine, in the order the events happened.
type EventSink interface {
	OnStateChange(sessionID string, state State, reason Reason)
	OnRemoteMediaReady(sessionID string, remote *transport.RemoteMedia)
	OnAudioLevel(sessionID string, sample monitor.Sample)
	OnDurationTick(sessionID string, seconds int)

	// OnError reports a failure. kind is one of the package's error
	// kinds; detail is human-readable.
	OnError(sessionID string, kind error, detail string)

	// OnNotice carries presence messages such as a participant joining
	// or leaving.
	OnNotice(sessionID string, message string)

	// OnSummary is the last event of every session.
	OnSummary(summary Summary)
}

// NopSink ignores every event. Embed it to implement only some
// methods.
type NopSink struct{}

var _ EventSink = NopSink{}

func (NopSink) OnStateChange(string, State, Reason)               {}
func (NopSink) OnRemoteMediaReady(string, *transport.RemoteMedia) {}
func (NopSink) OnAudioLevel(string, monitor.Sample)               {}
func (NopSink) OnDurationTick(string, int)                        {}
func (NopSink) OnError(string, error, string)                     {}
func (NopSink) OnNotice(string, string)                           {}
func (NopSink) OnSummary(Summary)                                 {}

// MultiSink fans every event out to each sink in order.
type MultiSink []EventSink

var _ EventSink = MultiSink(nil)

func (m MultiSink) OnStateChange(sessionID string, state State, reason Reason) {
	for _, sink := range m {
		sink.OnStateChange(sessionID, state, reason)
	}
}

func (m MultiSink) OnRemoteMediaReady(sessionID string, remote *transport.RemoteMedia) {
	for _, sink := range m {
		sink.OnRemoteMediaReady(sessionID, remote)
	}
}

func (m MultiSink) OnAudioLevel(sessionID string, sample monitor.Sample) {
	for _, sink := range m {
		sink.OnAudioLevel(sessionID, sample)
	}
}

func (m MultiSink) OnDurationTick(sessionID string, seconds int) {
	for _, sink := range m {
		sink.OnDurationTick(sessionID, seconds)
	}
}

func (m MultiSink) OnError(sessionID string, kind error, detail string) {
	for _, sink := range m {
		sink.OnError(sessionID, kind, detail)
	}
}

func (m MultiSink) OnNotice(sessionID string, message string) {
	for _, sink := range m {
		sink.OnNotice(sessionID, message)
	}
}

func (m MultiSink) OnSummary(summary Summary) {
	for _, sink := range m {
		sink.OnSummary(summary)
	}
}

// dispatcher delivers events to a sink on its own goroutine, in post
// order. post never blocks.
type dispatcher struct {
	sink EventSink

	mu     sync.Mutex
	queue  []func(EventSink)
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(sink EventSink) *dispatcher {
	d := &dispatcher{
		sink: sink,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) post(event func(EventSink)) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, event)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, event := range batch {
			event(d.sink)
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-d.wake
		}
	}
}

// close delivers everything already posted, then stops.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	<-d.done
}
