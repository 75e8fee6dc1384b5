// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parley-rtc/parley/capture"
	"github.com/parley-rtc/parley/lib/clock"
	"github.com/parley-rtc/parley/lib/testutil"
	"github.com/parley-rtc/parley/media"
	"github.com/parley-rtc/parley/monitor"
	"github.com/parley-rtc/parley/permission"
	"github.com/parley-rtc/parley/transport"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// event is one recorded sink call.
type event struct {
	kind    string
	state   State
	reason  Reason
	seconds int
	level   int
	err     error
	detail  string
	summary Summary
}

type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 4096)}
}

func (r *recorder) OnStateChange(_ string, state State, reason Reason) {
	r.events <- event{kind: "state", state: state, reason: reason}
}

func (r *recorder) OnRemoteMediaReady(string, *transport.RemoteMedia) {
	r.events <- event{kind: "remote"}
}

func (r *recorder) OnAudioLevel(_ string, sample monitor.Sample) {
	r.events <- event{kind: "level", level: sample.Level}
}

func (r *recorder) OnDurationTick(_ string, seconds int) {
	r.events <- event{kind: "tick", seconds: seconds}
}

func (r *recorder) OnError(_ string, kind error, detail string) {
	r.events <- event{kind: "error", err: kind, detail: detail}
}

func (r *recorder) OnNotice(_ string, message string) {
	r.events <- event{kind: "notice", detail: message}
}

func (r *recorder) OnSummary(summary Summary) {
	r.events <- event{kind: "summary", summary: summary}
}

// next returns the next event of kind, skipping others.
func (r *recorder) next(t *testing.T, kind string) event {
	t.Helper()
	for {
		got := testutil.RequireReceive(t, r.events, "waiting for %s event", kind)
		if got.kind == kind {
			return got
		}
	}
}

// terminal returns the next terminal state event.
func (r *recorder) terminal(t *testing.T) event {
	t.Helper()
	for {
		got := r.next(t, "state")
		if got.state.Terminal() {
			return got
		}
	}
}

// drain returns everything recorded so far. Call after Manager.Close.
func (r *recorder) drain() []event {
	var events []event
	for {
		select {
		case got := <-r.events:
			events = append(events, got)
		default:
			return events
		}
	}
}

// countingCapture records Acquire and Release calls.
type countingCapture struct {
	*capture.Controller

	mu       sync.Mutex
	acquired int
	released map[string]int
}

func (c *countingCapture) Acquire(ctx context.Context, kind media.Kind) (*capture.Handle, error) {
	handle, err := c.Controller.Acquire(ctx, kind)
	if err == nil {
		c.mu.Lock()
		c.acquired++
		c.mu.Unlock()
	}
	return handle, err
}

func (c *countingCapture) Release(handle *capture.Handle) {
	c.mu.Lock()
	if c.released == nil {
		c.released = make(map[string]int)
	}
	if handle != nil && !handle.Released() {
		c.released[handle.ID()]++
	}
	c.mu.Unlock()
	c.Controller.Release(handle)
}

// counts returns successful acquisitions and effective releases.
func (c *countingCapture) counts() (acquired, released int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, count := range c.released {
		released += count
	}
	return c.acquired, released
}

type fixture struct {
	clock    *clock.FakeClock
	devices  *media.Synthetic
	capture  *countingCapture
	loopback *transport.Loopback
	sink     *recorder
	manager  *Manager
}

type fixtureOptions struct {
	devices   media.SyntheticConfig
	delay     time.Duration
	transport transport.PeerSession
	timeout   time.Duration
}

func newFixture(t *testing.T, options fixtureOptions) *fixture {
	t.Helper()
	if options.devices == (media.SyntheticConfig{}) {
		options.devices = media.SyntheticConfig{Audio: true, Video: true, ToneAmplitude: 0.5}
	}
	fake := clock.Fake(epoch)
	devices := media.NewSynthetic(options.devices)
	counting := &countingCapture{Controller: capture.NewController(devices, nil)}
	loopback := transport.NewLoopback(transport.LoopbackConfig{Clock: fake, Delay: options.delay})
	var peer transport.PeerSession = loopback
	if options.transport != nil {
		peer = options.transport
	}
	sink := newRecorder()

	manager, err := NewManager(Config{
		Probe:              permission.NewProbe(devices, nil),
		Capture:            counting,
		Transport:          peer,
		Sink:               sink,
		Clock:              fake,
		NegotiationTimeout: options.timeout,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(manager.Close)

	return &fixture{
		clock:    fake,
		devices:  devices,
		capture:  counting,
		loopback: loopback,
		sink:     sink,
		manager:  manager,
	}
}

func (f *fixture) requireReleasedOnce(t *testing.T) {
	t.Helper()
	acquired, released := f.capture.counts()
	if acquired != released {
		t.Errorf("capture acquired %d times, released %d times", acquired, released)
	}
	if live := f.devices.Stats().Live; live != 0 {
		t.Errorf("%d capture streams still open", live)
	}
}

func TestAudioCallBecomesActive(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	session, err := f.manager.StartCall(context.Background(), media.Audio)
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if session.State != Active {
		t.Fatalf("State = %s, want active", session.State)
	}
	if !session.StartedAt.Equal(epoch) {
		t.Errorf("StartedAt = %v, want %v", session.StartedAt, epoch)
	}
	if !session.EndedAt.IsZero() {
		t.Errorf("EndedAt set on an active call: %v", session.EndedAt)
	}
	if session.VideoEnabled {
		t.Error("audio call has VideoEnabled")
	}
	if !session.SpeakerOn || session.Muted {
		t.Errorf("defaults: SpeakerOn=%v Muted=%v", session.SpeakerOn, session.Muted)
	}
	if session.LocalMediaID == "" || session.RemoteMediaID == "" {
		t.Errorf("media IDs not recorded: %+v", session)
	}

	for _, want := range []State{RequestingPermission, Connecting, Active} {
		if got := f.sink.next(t, "state"); got.state != want {
			t.Fatalf("state event = %s, want %s", got.state, want)
		}
	}
	f.sink.next(t, "remote")
	if notice := f.sink.next(t, "notice"); notice.detail != "participant joined" {
		t.Errorf("notice = %q", notice.detail)
	}

	if session.Duration != 0 {
		t.Errorf("Duration = %d before any tick, want 0", session.Duration)
	}
	f.clock.Advance(time.Second)
	if tick := f.sink.next(t, "tick"); tick.seconds != 1 {
		t.Fatalf("tick = %d, want 1", tick.seconds)
	}
	current, _ := f.manager.Current()
	if current.Duration != 1 {
		t.Errorf("Current().Duration = %d, want 1", current.Duration)
	}

	if err := f.manager.EndCall(); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	summary := f.sink.next(t, "summary").summary
	if summary.State != Ended || summary.Reason != UserHangup || summary.Duration != 1 {
		t.Errorf("summary = %+v", summary)
	}
	f.requireReleasedOnce(t)
	if f.loopback.Live() != 0 {
		t.Errorf("remote media still held after EndCall")
	}
}

func TestVideoPermissionDenied(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		devices: media.SyntheticConfig{Audio: true, Video: true, DenyVideo: true},
	})

	session, err := f.manager.StartCall(context.Background(), media.AudioVideo)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("StartCall error = %v, want ErrPermissionDenied", err)
	}
	if session.State != Failed || session.Reason != PermissionDenied {
		t.Fatalf("session = %s/%s, want failed/permission_denied", session.State, session.Reason)
	}
	if session.EndedAt.IsZero() || !session.StartedAt.IsZero() {
		t.Errorf("timestamps: StartedAt=%v EndedAt=%v", session.StartedAt, session.EndedAt)
	}
	if acquired, _ := f.capture.counts(); acquired != 0 {
		t.Errorf("local media acquired %d times after denial", acquired)
	}
	if live := f.devices.Stats().Live; live != 0 {
		t.Errorf("probe left %d captures open", live)
	}

	if got := f.sink.next(t, "error"); !errors.Is(got.err, ErrPermissionDenied) {
		t.Errorf("error event kind = %v", got.err)
	}
	if summary := f.sink.next(t, "summary").summary; summary.State != Failed {
		t.Errorf("summary state = %s", summary.State)
	}
}

// gatedTransport blocks Negotiate until released, ignoring ctx, so the
// result arrives after the caller has given up.
type gatedTransport struct {
	entered  chan struct{}
	release  chan struct{}
	released chan struct{}
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{
		entered:  make(chan struct{}, 1),
		release:  make(chan struct{}),
		released: make(chan struct{}, 4),
	}
}

func (g *gatedTransport) Negotiate(_ context.Context, _ transport.LocalMedia) (*transport.RemoteMedia, error) {
	g.entered <- struct{}{}
	<-g.release
	return transport.NewRemoteMedia("late", nil, func() { g.released <- struct{}{} }), nil
}

func TestEndCallBeforeNegotiationResolves(t *testing.T) {
	gate := newGatedTransport()
	f := newFixture(t, fixtureOptions{transport: gate})

	type result struct {
		session Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		session, err := f.manager.StartCall(context.Background(), media.Audio)
		done <- result{session, err}
	}()

	testutil.RequireReceive(t, gate.entered, "Negotiate never called")
	if err := f.manager.EndCall(); err != nil {
		t.Fatalf("EndCall: %v", err)
	}

	got := testutil.RequireReceive(t, done, "StartCall did not return after EndCall")
	if !errors.Is(got.err, ErrCallEnded) {
		t.Errorf("StartCall error = %v, want ErrCallEnded", got.err)
	}
	if got.session.State != Ended || got.session.Reason != UserHangup {
		t.Fatalf("session = %s/%s, want ended/user_hangup", got.session.State, got.session.Reason)
	}
	f.requireReleasedOnce(t)

	// The late success is discarded and its remote media released.
	close(gate.release)
	testutil.RequireReceive(t, gate.released, "late remote media never released")

	current, _ := f.manager.Current()
	if current.State != Ended {
		t.Errorf("late completion changed state to %s", current.State)
	}
	f.manager.Close()
	for _, recorded := range f.sink.drain() {
		if recorded.kind == "remote" {
			t.Error("remote-ready event fired for a stale negotiation")
		}
		if recorded.kind == "state" && recorded.state == Active {
			t.Error("stale negotiation resurrected the session")
		}
	}
	testutil.RequireEmpty(t, gate.released, "late remote media released twice")
	f.requireReleasedOnce(t)
}

func TestToggleVideoTwice(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	session, err := f.manager.StartCall(context.Background(), media.AudioVideo)
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if !session.VideoEnabled {
		t.Fatal("video call starts with video disabled")
	}

	first, err := f.manager.ToggleVideo()
	if err != nil || first {
		t.Fatalf("first ToggleVideo = %v, %v; want false, nil", first, err)
	}
	second, err := f.manager.ToggleVideo()
	if err != nil || !second {
		t.Fatalf("second ToggleVideo = %v, %v; want true, nil", second, err)
	}
	current, _ := f.manager.Current()
	if current.VideoEnabled != session.VideoEnabled {
		t.Errorf("VideoEnabled = %v, want original %v", current.VideoEnabled, session.VideoEnabled)
	}
}

func TestRemoteDisconnectStopsTimer(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	if _, err := f.manager.StartCall(context.Background(), media.Audio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	f.sink.next(t, "notice") // participant joined

	for want := 1; want <= 2; want++ {
		f.clock.Advance(time.Second)
		if tick := f.sink.next(t, "tick"); tick.seconds != want {
			t.Fatalf("tick = %d, want %d", tick.seconds, want)
		}
	}

	f.loopback.Last().Disconnect()

	state := f.sink.terminal(t)
	if state.state != Ended || state.reason != RemoteDisconnected {
		t.Fatalf("state event = %s/%s, want ended/remote_disconnected", state.state, state.reason)
	}
	if got := f.sink.next(t, "error"); !errors.Is(got.err, ErrRemoteDisconnected) {
		t.Errorf("error kind = %v, want ErrRemoteDisconnected", got.err)
	}
	if notice := f.sink.next(t, "notice"); notice.detail != "participant left" {
		t.Errorf("notice = %q, want participant left", notice.detail)
	}
	summary := f.sink.next(t, "summary").summary
	if summary.Duration != 2 || summary.Reason != RemoteDisconnected {
		t.Errorf("summary = %+v, want duration 2, remote_disconnected", summary)
	}

	f.clock.Advance(5 * time.Second)
	f.manager.Close()
	for _, recorded := range f.sink.drain() {
		if recorded.kind == "tick" || recorded.kind == "level" {
			t.Errorf("%s event after the call ended", recorded.kind)
		}
	}
	f.requireReleasedOnce(t)
	if f.loopback.Live() != 0 {
		t.Error("remote media still held")
	}
}

func TestEndCallIdempotent(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	if _, err := f.manager.StartCall(context.Background(), media.Audio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	for range 3 {
		if err := f.manager.EndCall(); err != nil {
			t.Fatalf("EndCall: %v", err)
		}
	}
	f.manager.Close()

	terminal, summaries := 0, 0
	for _, recorded := range f.sink.drain() {
		switch {
		case recorded.kind == "state" && recorded.state.Terminal():
			terminal++
		case recorded.kind == "summary":
			summaries++
		}
	}
	if terminal != 1 || summaries != 1 {
		t.Errorf("terminal transitions = %d, summaries = %d; want 1 each", terminal, summaries)
	}
	f.requireReleasedOnce(t)
}

func TestEndCallWithoutSession(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	if err := f.manager.EndCall(); err != nil {
		t.Errorf("EndCall with no session = %v, want nil", err)
	}
	if _, ok := f.manager.Current(); ok {
		t.Error("Current() reports a session before StartCall")
	}
}

func TestToggleMuteParity(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	if _, err := f.manager.StartCall(context.Background(), media.Audio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	for count := 1; count <= 7; count++ {
		muted, err := f.manager.ToggleMute()
		if err != nil {
			t.Fatalf("ToggleMute #%d: %v", count, err)
		}
		if want := count%2 == 1; muted != want {
			t.Fatalf("after %d toggles muted = %v, want %v", count, muted, want)
		}
	}
	current, _ := f.manager.Current()
	if !current.Muted {
		t.Error("Current().Muted = false after an odd number of toggles")
	}
}

func TestMutedMicrophoneReadsZero(t *testing.T) {
	f := newFixture(t, fixtureOptions{devices: media.SyntheticConfig{Audio: true, ToneAmplitude: 1}})
	if _, err := f.manager.StartCall(context.Background(), media.Audio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if _, err := f.manager.ToggleMute(); err != nil {
		t.Fatalf("ToggleMute: %v", err)
	}
	f.clock.Advance(100 * time.Millisecond)
	if sample := f.sink.next(t, "level"); sample.level != 0 {
		t.Errorf("muted level = %d, want 0", sample.level)
	}
}

func TestToggleSpeaker(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	if _, err := f.manager.ToggleSpeaker(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ToggleSpeaker before a call = %v, want ErrInvalidState", err)
	}
	if _, err := f.manager.StartCall(context.Background(), media.Audio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	on, err := f.manager.ToggleSpeaker()
	if err != nil || on {
		t.Fatalf("ToggleSpeaker = %v, %v; want false, nil", on, err)
	}
}

func TestInvalidStateOperations(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	if _, err := f.manager.ToggleMute(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ToggleMute with no call = %v, want ErrInvalidState", err)
	}
	if _, err := f.manager.StartCall(context.Background(), media.Audio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if _, err := f.manager.ToggleVideo(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ToggleVideo on an audio call = %v, want ErrInvalidState", err)
	}
	if err := f.manager.EndCall(); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if _, err := f.manager.ToggleMute(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ToggleMute after end = %v, want ErrInvalidState", err)
	}
	if _, err := f.manager.StartCall(context.Background(), media.Kind(99)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("StartCall(invalid kind) = %v, want ErrInvalidState", err)
	}
}

func TestAlreadyInCall(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	first, err := f.manager.StartCall(context.Background(), media.Audio)
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if _, err := f.manager.StartCall(context.Background(), media.AudioVideo); !errors.Is(err, ErrAlreadyInCall) {
		t.Fatalf("second StartCall = %v, want ErrAlreadyInCall", err)
	}
	current, _ := f.manager.Current()
	if current.ID != first.ID || current.State != Active {
		t.Errorf("rejected StartCall disturbed the live session: %+v", current)
	}

	if err := f.manager.EndCall(); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	second, err := f.manager.StartCall(context.Background(), media.AudioVideo)
	if err != nil {
		t.Fatalf("StartCall after end: %v", err)
	}
	if second.ID == first.ID {
		t.Error("session IDs repeat")
	}
}

func TestNegotiationTimeout(t *testing.T) {
	f := newFixture(t, fixtureOptions{delay: time.Minute, timeout: 5 * time.Second})

	type result struct {
		session Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		session, err := f.manager.StartCall(context.Background(), media.Audio)
		done <- result{session, err}
	}()

	// The timeout timer and the loopback delay.
	f.clock.WaitForTimers(2)
	f.clock.Advance(5 * time.Second)

	got := testutil.RequireReceive(t, done, "StartCall did not return after the timeout")
	if !errors.Is(got.err, ErrTransportNegotiationFailed) {
		t.Fatalf("error = %v, want ErrTransportNegotiationFailed", got.err)
	}
	if got.session.State != Failed || got.session.Reason != TransportNegotiationFailed {
		t.Errorf("session = %s/%s", got.session.State, got.session.Reason)
	}
	f.requireReleasedOnce(t)
}

func TestNegotiationTimeoutIgnoredByTransport(t *testing.T) {
	gate := newGatedTransport()
	f := newFixture(t, fixtureOptions{transport: gate, timeout: 5 * time.Second})

	type result struct {
		session Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		session, err := f.manager.StartCall(context.Background(), media.Audio)
		done <- result{session, err}
	}()

	testutil.RequireReceive(t, gate.entered, "Negotiate never called")
	f.clock.WaitForTimers(1)
	f.clock.Advance(5 * time.Second)

	// Negotiate is still blocked, yet the call has failed.
	got := testutil.RequireReceive(t, done, "StartCall still blocked after the timeout")
	if !errors.Is(got.err, ErrTransportNegotiationFailed) {
		t.Fatalf("error = %v, want ErrTransportNegotiationFailed", got.err)
	}
	if got.session.State != Failed || got.session.Reason != TransportNegotiationFailed {
		t.Errorf("session = %s/%s, want failed/transport_negotiation_failed", got.session.State, got.session.Reason)
	}
	f.requireReleasedOnce(t)

	close(gate.release)
	testutil.RequireReceive(t, gate.released, "late remote media never released")
	if current, _ := f.manager.Current(); current.State != Failed {
		t.Errorf("late completion changed state to %s", current.State)
	}
}

func TestVideoEnabledBeforeActive(t *testing.T) {
	gate := newGatedTransport()
	f := newFixture(t, fixtureOptions{transport: gate})

	go f.manager.StartCall(context.Background(), media.AudioVideo)
	testutil.RequireReceive(t, gate.entered, "Negotiate never called")

	session, ok := f.manager.Current()
	if !ok || session.State != Connecting {
		t.Fatalf("Current() = %s, %v; want connecting", session.State, ok)
	}
	if !session.VideoEnabled {
		t.Error("video call reports VideoEnabled = false while connecting")
	}

	if err := f.manager.EndCall(); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	close(gate.release)
	testutil.RequireReceive(t, gate.released, "late remote media never released")
}

func TestTransportError(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	f.loopback.FailWith(errors.New("no route to peer"))

	session, err := f.manager.StartCall(context.Background(), media.AudioVideo)
	if !errors.Is(err, ErrTransportNegotiationFailed) {
		t.Fatalf("error = %v, want ErrTransportNegotiationFailed", err)
	}
	if session.State != Failed {
		t.Errorf("State = %s, want failed", session.State)
	}
	f.requireReleasedOnce(t)

	// Recoverable with a fresh StartCall.
	f.loopback.FailWith(nil)
	if _, err := f.manager.StartCall(context.Background(), media.AudioVideo); err != nil {
		t.Fatalf("retry StartCall: %v", err)
	}
}

type disconnectingTransport struct{}

func (disconnectingTransport) Negotiate(context.Context, transport.LocalMedia) (*transport.RemoteMedia, error) {
	return nil, transport.ErrRemoteDisconnected
}

func TestRemoteDisconnectWhileConnecting(t *testing.T) {
	f := newFixture(t, fixtureOptions{transport: disconnectingTransport{}})
	session, err := f.manager.StartCall(context.Background(), media.Audio)
	if !errors.Is(err, ErrRemoteDisconnected) {
		t.Fatalf("error = %v, want ErrRemoteDisconnected", err)
	}
	if session.State != Ended || session.Reason != RemoteDisconnected {
		t.Errorf("session = %s/%s, want ended/remote_disconnected", session.State, session.Reason)
	}
	f.requireReleasedOnce(t)
}

func TestCancelStartCall(t *testing.T) {
	f := newFixture(t, fixtureOptions{delay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.StartCall(ctx, media.AudioVideo)
		done <- err
	}()
	f.clock.WaitForTimers(2)
	cancel()

	if err := testutil.RequireReceive(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	current, _ := f.manager.Current()
	if current.State != Ended || current.Reason != Cancelled {
		t.Errorf("session = %s/%s, want ended/cancelled", current.State, current.Reason)
	}
	f.requireReleasedOnce(t)
}

func TestCancelAfterActiveHasNoEffect(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := f.manager.StartCall(ctx, media.Audio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	cancel()
	// Give a misbehaving watcher a chance to run.
	time.Sleep(10 * time.Millisecond)
	current, _ := f.manager.Current()
	if current.State != Active {
		t.Errorf("State = %s after cancelling a settled StartCall, want active", current.State)
	}
}

type failingCapture struct {
	*capture.Controller
	err error
}

func (f failingCapture) Acquire(context.Context, media.Kind) (*capture.Handle, error) {
	return nil, f.err
}

func TestCaptureFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason Reason
	}{
		{"revoked", media.ErrPermissionDenied, PermissionDenied},
		{"unplugged", media.ErrDeviceNotFound, DeviceNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			devices := media.NewSynthetic(media.SyntheticConfig{Audio: true})
			manager, err := NewManager(Config{
				Probe:     permission.NewProbe(devices, nil),
				Capture:   failingCapture{Controller: capture.NewController(devices, nil), err: test.err},
				Transport: transport.NewLoopback(transport.LoopbackConfig{}),
				Clock:     clock.Fake(epoch),
			})
			if err != nil {
				t.Fatalf("NewManager: %v", err)
			}
			defer manager.Close()

			session, err := manager.StartCall(context.Background(), media.Audio)
			if !errors.Is(err, test.err) {
				t.Errorf("error = %v, want %v", err, test.err)
			}
			if session.State != Failed || session.Reason != test.reason {
				t.Errorf("session = %s/%s, want failed/%s", session.State, session.Reason, test.reason)
			}
		})
	}
}

func TestCloseEndsLiveCall(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	if _, err := f.manager.StartCall(context.Background(), media.Audio); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	f.manager.Close()
	f.manager.Close()

	current, _ := f.manager.Current()
	if current.State != Ended {
		t.Errorf("State after Close = %s, want ended", current.State)
	}
	if _, err := f.manager.StartCall(context.Background(), media.Audio); !errors.Is(err, ErrClosed) {
		t.Errorf("StartCall after Close = %v, want ErrClosed", err)
	}
	f.requireReleasedOnce(t)
}

func TestNewManagerRequiresCollaborators(t *testing.T) {
	if _, err := NewManager(Config{}); err == nil {
		t.Fatal("NewManager(Config{}) succeeded")
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	first, second := newRecorder(), newRecorder()
	sink := MultiSink{first, second, NopSink{}}
	sink.OnNotice("session", "hello")
	for _, r := range []*recorder{first, second} {
		if got := testutil.RequireReceive(t, r.events); got.detail != "hello" {
			t.Errorf("notice = %q", got.detail)
		}
	}
}
