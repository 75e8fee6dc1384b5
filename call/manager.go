// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parley-rtc/parley/capture"
	"github.com/parley-rtc/parley/lib/clock"
	"github.com/parley-rtc/parley/media"
	"github.com/parley-rtc/parley/monitor"
	"github.com/parley-rtc/parley/permission"
	"github.com/parley-rtc/parley/transport"
)

// Prober checks device permissions.
type Prober interface {
	Probe(ctx context.Context, kinds media.Kinds) (permission.State, error)
}

// Capturer opens and closes local capture devices.
type Capturer interface {
	Acquire(ctx context.Context, kind media.Kind) (*capture.Handle, error)
	Release(handle *capture.Handle)
	Abort()
	SetTrackEnabled(handle *capture.Handle, kind media.TrackKind, enabled bool) (bool, error)
}

var (
	_ Prober   = (*permission.Probe)(nil)
	_ Capturer = (*capture.Controller)(nil)
)

// Config wires a Manager to its collaborators.
type Config struct {
	Probe     Prober
	Capture   Capturer
	Transport transport.PeerSession

	// Sink receives events. Defaults to NopSink.
	Sink EventSink

	// Clock drives the timeout and the periodic tasks. Defaults to
	// clock.Real().
	Clock clock.Clock

	// NegotiationTimeout bounds Negotiate. Defaults to 30s.
	NegotiationTimeout time.Duration

	// TickInterval is one unit of call duration. Defaults to 1s.
	TickInterval time.Duration

	// LevelInterval is the microphone sampling period. Defaults to
	// 100ms.
	LevelInterval time.Duration

	Logger *slog.Logger
}

// errNegotiationTimeout is the cancellation cause when the negotiation
// timer fires.
var errNegotiationTimeout = errors.New("negotiation timed out")

// Manager is the call session state machine. It holds at most one
// non-terminal session.
type Manager struct {
	probe     Prober
	capture   Capturer
	transport transport.PeerSession
	clock     clock.Clock
	logger    *slog.Logger

	negotiationTimeout time.Duration
	tickInterval       time.Duration
	levelInterval      time.Duration

	events   *dispatcher
	attempts sync.WaitGroup

	mu         sync.Mutex
	generation uint64
	current    *record
	closed     bool
}

// record is the live state of one session. Fields other than the
// atomics are guarded by Manager.mu.
type record struct {
	session    Session
	generation uint64

	// cancel aborts the in-flight probe, acquire or negotiate.
	cancel context.CancelCauseFunc

	// err is what StartCall returns once the attempt settles.
	err error

	handle *capture.Handle
	remote *transport.RemoteMedia
	timer  *monitor.Timer
	level  *monitor.LevelMonitor

	// active mirrors State == Active for the periodic tasks, which
	// must not take Manager.mu.
	active  atomic.Bool
	seconds atomic.Int64

	settleOnce sync.Once
	settled    chan struct{} // closed on Active or terminal
	done       chan struct{} // closed on terminal
}

func (r *record) settle() {
	r.settleOnce.Do(func() { close(r.settled) })
}

// NewManager validates config and starts the event dispatcher.
func NewManager(config Config) (*Manager, error) {
	var errs []error
	if config.Probe == nil {
		errs = append(errs, errors.New("call: Config.Probe is required"))
	}
	if config.Capture == nil {
		errs = append(errs, errors.New("call: Config.Capture is required"))
	}
	if config.Transport == nil {
		errs = append(errs, errors.New("call: Config.Transport is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if config.Sink == nil {
		config.Sink = NopSink{}
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.NegotiationTimeout <= 0 {
		config.NegotiationTimeout = 30 * time.Second
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.LevelInterval <= 0 {
		config.LevelInterval = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	return &Manager{
		probe:              config.Probe,
		capture:            config.Capture,
		transport:          config.Transport,
		clock:              config.Clock,
		logger:             config.Logger,
		negotiationTimeout: config.NegotiationTimeout,
		tickInterval:       config.TickInterval,
		levelInterval:      config.LevelInterval,
		events:             newDispatcher(config.Sink),
	}, nil
}

// StartCall begins a call of kind and blocks until the attempt
// settles: Active, Failed, or Ended by a concurrent EndCall or remote
// disconnect. It returns the session snapshot at that point; the
// error is nil only when the call is Active.
//
// Cancelling ctx before the call is Active ends it with reason
// Cancelled. Once Active, ctx no longer affects the call.
func (m *Manager) StartCall(ctx context.Context, kind media.Kind) (Session, error) {
	if !kind.Valid() {
		return Session{}, fmt.Errorf("%w: unknown call kind %v", ErrInvalidState, kind)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Session{}, ErrClosed
	}
	if m.current != nil && !m.current.session.State.Terminal() {
		m.mu.Unlock()
		return Session{}, ErrAlreadyInCall
	}

	m.generation++
	attemptCtx, cancel := context.WithCancelCause(context.Background())
	rec := &record{
		session: Session{
			ID:           uuid.NewString(),
			Kind:         kind,
			State:        Idle,
			VideoEnabled: kind == media.AudioVideo,
			SpeakerOn:    true,
		},
		generation: m.generation,
		cancel:     cancel,
		settled:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	m.current = rec
	m.logger.Info("starting call", "session", rec.session.ID, "kind", kind)
	m.transitionLocked(rec, RequestingPermission, NoReason)
	m.attempts.Add(1)
	m.mu.Unlock()

	stopWatch := context.AfterFunc(ctx, func() {
		m.abandon(rec, context.Cause(ctx))
	})
	defer stopWatch()

	go func() {
		defer m.attempts.Done()
		m.run(attemptCtx, rec)
	}()

	<-rec.settled

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(rec), rec.err
}

// run performs the slow steps of an attempt. After each one it
// re-checks that rec is still the live attempt; if not, it releases
// what the step produced and stops.
func (m *Manager) run(ctx context.Context, rec *record) {
	kind := rec.session.Kind

	state, err := m.probe.Probe(ctx, kind.Kinds())
	m.mu.Lock()
	if !m.liveLocked(rec) {
		m.mu.Unlock()
		return
	}
	switch {
	case err != nil:
		m.terminateLocked(rec, Failed, DeviceNotFound, err.Error())
		m.mu.Unlock()
		return
	case !state.Allows(kind.Kinds()):
		detail := fmt.Sprintf("audio %s, video %s", state.Audio, state.Video)
		m.terminateLocked(rec, Failed, PermissionDenied, detail)
		m.mu.Unlock()
		return
	}
	m.transitionLocked(rec, Connecting, NoReason)
	m.mu.Unlock()

	handle, err := m.capture.Acquire(ctx, kind)
	m.mu.Lock()
	if !m.liveLocked(rec) {
		m.mu.Unlock()
		if handle != nil {
			m.capture.Release(handle)
		}
		return
	}
	if err != nil {
		reason := DeviceNotFound
		if errors.Is(err, media.ErrPermissionDenied) {
			reason = PermissionDenied
		}
		m.terminateLocked(rec, Failed, reason, err.Error())
		m.mu.Unlock()
		return
	}
	rec.handle = handle
	rec.session.LocalMediaID = handle.ID()
	m.mu.Unlock()

	timeoutDetail := fmt.Sprintf("negotiation timed out after %s", m.negotiationTimeout)
	negotiateCtx, cancelNegotiate := context.WithCancelCause(ctx)
	// The timeout fails the call directly; a Negotiate that returns
	// later takes the superseded-attempt path below.
	timeout := m.clock.AfterFunc(m.negotiationTimeout, func() {
		cancelNegotiate(errNegotiationTimeout)
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.liveLocked(rec) {
			m.terminateLocked(rec, Failed, TransportNegotiationFailed, timeoutDetail)
		}
	})
	remote, err := m.transport.Negotiate(negotiateCtx, transport.LocalMedia{Tracks: handle.Tracks()})
	timeout.Stop()
	timedOut := errors.Is(context.Cause(negotiateCtx), errNegotiationTimeout)
	cancelNegotiate(nil)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.liveLocked(rec) {
		if remote != nil {
			remote.Release()
			m.logger.Debug("released remote media from superseded attempt", "session", rec.session.ID)
		}
		return
	}
	switch {
	case err == nil && timedOut:
		remote.Release()
		m.terminateLocked(rec, Failed, TransportNegotiationFailed, timeoutDetail)
		return
	case timedOut:
		m.terminateLocked(rec, Failed, TransportNegotiationFailed, timeoutDetail)
		return
	case errors.Is(err, transport.ErrRemoteDisconnected):
		m.terminateLocked(rec, Ended, RemoteDisconnected, err.Error())
		return
	case err != nil:
		m.terminateLocked(rec, Failed, TransportNegotiationFailed, err.Error())
		return
	}
	m.activateLocked(rec, remote)
}

// liveLocked reports whether rec is still the attempt in progress.
func (m *Manager) liveLocked(rec *record) bool {
	return m.current == rec && rec.generation == m.generation && !rec.session.State.Terminal()
}

func (m *Manager) activateLocked(rec *record, remote *transport.RemoteMedia) {
	id := rec.session.ID

	rec.remote = remote
	rec.session.RemoteMediaID = remote.ID()
	rec.session.StartedAt = m.clock.Now()
	rec.active.Store(true)

	rec.timer = monitor.NewTimer(monitor.TimerConfig{
		Clock:    m.clock,
		Interval: m.tickInterval,
		Active:   rec.active.Load,
		OnTick: func(elapsed int) {
			rec.seconds.Store(int64(elapsed))
			m.events.post(func(sink EventSink) { sink.OnDurationTick(id, elapsed) })
		},
	})
	audio, _ := rec.handle.Track(media.TrackAudio)
	rec.level = monitor.NewLevelMonitor(monitor.LevelConfig{
		Clock:    m.clock,
		Interval: m.levelInterval,
		Active:   rec.active.Load,
		Meter:    monitor.MeterFor(audio),
		OnSample: func(sample monitor.Sample) {
			m.events.post(func(sink EventSink) { sink.OnAudioLevel(id, sample) })
		},
	})

	m.transitionLocked(rec, Active, NoReason)
	m.events.post(func(sink EventSink) { sink.OnRemoteMediaReady(id, remote) })
	m.events.post(func(sink EventSink) { sink.OnNotice(id, "participant joined") })

	rec.timer.Start()
	rec.level.Start()
	go m.watchRemote(rec, remote)
	rec.settle()
}

// watchRemote ends the call if the remote side goes away while rec is
// live.
func (m *Manager) watchRemote(rec *record, remote *transport.RemoteMedia) {
	select {
	case <-remote.Disconnected():
	case <-rec.done:
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != rec || rec.session.State.Terminal() {
		return
	}
	m.logger.Info("remote side disconnected", "session", rec.session.ID)
	m.terminateLocked(rec, Ended, RemoteDisconnected, "remote participant left the call")
}

// abandon handles cancellation of StartCall's context. It only affects
// an attempt that has not yet become Active.
func (m *Manager) abandon(rec *record, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != rec {
		return
	}
	switch rec.session.State {
	case RequestingPermission, Connecting:
		m.terminateLocked(rec, Ended, Cancelled, cause.Error())
	}
}

// EndCall hangs up. It is a no-op when there is no session or the
// session is already terminal.
func (m *Manager) EndCall() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.current
	if rec == nil || rec.session.State.Terminal() {
		return nil
	}
	m.terminateLocked(rec, Ended, UserHangup, "")
	return nil
}

// terminateLocked is the single teardown path. It supersedes any
// in-flight step, stops the periodic tasks, releases local capture and
// the remote hold, then emits the terminal events.
func (m *Manager) terminateLocked(rec *record, state State, reason Reason, detail string) {
	if rec.session.State.Terminal() {
		return
	}
	previous := rec.session.State
	m.generation++

	rec.active.Store(false)
	rec.cancel(fmt.Errorf("call %s: %s", state, reason))
	if rec.timer != nil {
		rec.seconds.Store(int64(rec.timer.Stop()))
	}
	if rec.level != nil {
		rec.level.Stop()
	}

	switch {
	case rec.handle != nil:
		m.capture.Release(rec.handle)
		rec.handle = nil
	case previous == Connecting:
		// An acquisition may be in flight; make its result stale.
		m.capture.Abort()
	}
	if rec.remote != nil {
		rec.remote.Release()
		rec.remote = nil
	}

	rec.session.Duration = int(rec.seconds.Load())
	rec.session.EndedAt = m.clock.Now()
	rec.session.LocalMediaID = ""
	rec.session.RemoteMediaID = ""

	kind := reason.errorKind()
	switch {
	case previous == Active:
		rec.err = nil
	case kind != nil:
		rec.err = fmt.Errorf("%w: %s", kind, detail)
	case reason == Cancelled:
		rec.err = fmt.Errorf("call cancelled: %w", context.Canceled)
	default:
		rec.err = ErrCallEnded
	}

	m.transitionLocked(rec, state, reason)

	id := rec.session.ID
	if kind != nil {
		m.events.post(func(sink EventSink) { sink.OnError(id, kind, detail) })
	}
	if reason == RemoteDisconnected && previous == Active {
		m.events.post(func(sink EventSink) { sink.OnNotice(id, "participant left") })
	}
	summary := rec.session.summary()
	m.events.post(func(sink EventSink) { sink.OnSummary(summary) })

	m.logger.Info("call finished",
		"session", id,
		"state", state,
		"reason", reason,
		"duration", rec.session.Duration,
	)

	close(rec.done)
	rec.settle()
}

func (m *Manager) transitionLocked(rec *record, state State, reason Reason) {
	rec.session.State = state
	rec.session.Reason = reason
	id := rec.session.ID
	m.events.post(func(sink EventSink) { sink.OnStateChange(id, state, reason) })
	m.logger.Debug("call state change", "session", id, "state", state, "reason", reason)
}

// ToggleMute flips the microphone and returns the new muted value.
// Only valid while Active.
func (m *Manager) ToggleMute() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.activeLocked()
	if err != nil {
		return false, err
	}
	enabled, err := m.capture.SetTrackEnabled(rec.handle, media.TrackAudio, rec.session.Muted)
	if err != nil {
		return rec.session.Muted, fmt.Errorf("toggling mute: %w", err)
	}
	rec.session.Muted = !enabled
	m.logger.Debug("mute toggled", "session", rec.session.ID, "muted", rec.session.Muted)
	return rec.session.Muted, nil
}

// ToggleVideo flips the camera and returns the new video-enabled
// value. Only valid while an AudioVideo call is Active.
func (m *Manager) ToggleVideo() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.activeLocked()
	if err != nil {
		return false, err
	}
	if rec.session.Kind != media.AudioVideo {
		return false, fmt.Errorf("%w: audio-only call has no video", ErrInvalidState)
	}
	enabled, err := m.capture.SetTrackEnabled(rec.handle, media.TrackVideo, !rec.session.VideoEnabled)
	if err != nil {
		return rec.session.VideoEnabled, fmt.Errorf("toggling video: %w", err)
	}
	rec.session.VideoEnabled = enabled
	m.logger.Debug("video toggled", "session", rec.session.ID, "video", enabled)
	return enabled, nil
}

// ToggleSpeaker flips the speaker flag and returns the new value. The
// flag is presentation state only. Only valid while Active.
func (m *Manager) ToggleSpeaker() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.activeLocked()
	if err != nil {
		return false, err
	}
	rec.session.SpeakerOn = !rec.session.SpeakerOn
	return rec.session.SpeakerOn, nil
}

func (m *Manager) activeLocked() (*record, error) {
	rec := m.current
	if rec == nil {
		return nil, fmt.Errorf("%w: no call", ErrInvalidState)
	}
	if rec.session.State != Active {
		return nil, fmt.Errorf("%w: call is %s", ErrInvalidState, rec.session.State)
	}
	return rec, nil
}

// Current returns a snapshot of the latest session, live or terminal.
// ok is false before the first StartCall.
func (m *Manager) Current() (session Session, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, false
	}
	return m.snapshotLocked(m.current), true
}

func (m *Manager) snapshotLocked(rec *record) Session {
	session := rec.session
	if !session.State.Terminal() {
		session.Duration = int(rec.seconds.Load())
	}
	return session
}

// Close ends any live call, waits for in-flight attempts to finish and
// delivers every pending event. The Manager rejects StartCall
// afterwards. Close must not be called from an EventSink.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if rec := m.current; rec != nil && !rec.session.State.Terminal() {
		m.terminateLocked(rec, Ended, UserHangup, "")
	}
	m.mu.Unlock()

	m.attempts.Wait()
	m.events.close()
}
