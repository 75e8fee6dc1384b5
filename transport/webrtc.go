// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/parley-rtc/parley/lib/clock"
	"github.com/parley-rtc/parley/media"
)

// Role decides which side of the offer/answer exchange a WebRTC
// session plays.
type Role string

const (
	RoleOffer  Role = "offer"
	RoleAnswer Role = "answer"
)

// iceGatherTimeout bounds candidate gathering before the SDP is
// published.
const iceGatherTimeout = 15 * time.Second

// defaultPollInterval is how often the signaler is polled for the
// other side's SDP.
const defaultPollInterval = 250 * time.Millisecond

// WebRTCConfig configures a WebRTC transport.
type WebRTCConfig struct {
	Signaler Signaler

	// Localpart names this party in signaling; Peer names the other.
	Localpart string
	Peer      string

	Role Role
	ICE  ICEConfig

	// Clock drives signaler polling and the gather timeout. Defaults
	// to clock.Real().
	Clock clock.Clock

	// PollInterval defaults to 250ms.
	PollInterval time.Duration

	Logger *slog.Logger
}

// WebRTC is the production PeerSession. Each Negotiate creates a fresh
// PeerConnection owned by the returned RemoteMedia.
type WebRTC struct {
	config WebRTCConfig
	api    *webrtc.API
	logger *slog.Logger
}

var _ PeerSession = (*WebRTC)(nil)

// NewWebRTC validates config and builds the pion API: default codecs,
// default interceptors (NACK, RTCP reports, TWCC) and loopback
// candidates for same-host peers.
func NewWebRTC(config WebRTCConfig) (*WebRTC, error) {
	if config.Signaler == nil {
		return nil, errors.New("transport: WebRTC requires a signaler")
	}
	if config.Localpart == "" || config.Peer == "" {
		return nil, errors.New("transport: WebRTC requires a localpart and a peer")
	}
	if strings.Contains(config.Localpart, signalingSeparator) || strings.Contains(config.Peer, signalingSeparator) {
		return nil, fmt.Errorf("transport: localparts may not contain %q", signalingSeparator)
	}
	if config.Role != RoleOffer && config.Role != RoleAnswer {
		return nil, fmt.Errorf("transport: unknown role %q", config.Role)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("registering interceptors: %w", err)
	}
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	)
	return &WebRTC{
		config: config,
		api:    api,
		logger: config.Logger.With("peer", config.Peer, "role", string(config.Role)),
	}, nil
}

// Negotiate adds local's tracks to a new PeerConnection, runs the
// offer/answer exchange and waits for the connection to come up.
func (w *WebRTC) Negotiate(ctx context.Context, local LocalMedia) (*RemoteMedia, error) {
	pc, err := w.api.NewPeerConnection(webrtc.Configuration{ICEServers: w.config.ICE.Servers})
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}
	call := &peerCall{
		transport: w,
		pc:        pc,
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
	}
	remote, err := call.negotiate(ctx, local)
	if err != nil {
		pc.Close()
		return nil, err
	}
	return remote, nil
}

// peerCall is the state of one PeerConnection.
type peerCall struct {
	transport *WebRTC
	pc        *webrtc.PeerConnection

	connectOnce sync.Once
	connected   chan struct{}
	failOnce    sync.Once
	failed      chan struct{}

	mu     sync.Mutex
	remote *RemoteMedia
}

func (c *peerCall) negotiate(ctx context.Context, local LocalMedia) (*RemoteMedia, error) {
	logger := c.transport.logger

	for _, track := range local.Tracks {
		sender, err := c.pc.AddTrack(track.Local())
		if err != nil {
			return nil, fmt.Errorf("adding %s track: %w", track.Kind(), err)
		}
		go drainRTCP(sender)
	}

	c.pc.OnConnectionStateChange(c.handleStateChange)
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Debug("remote track started",
			"track", track.ID(),
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
		go drainTrack(track)
	})

	var err error
	switch c.transport.config.Role {
	case RoleOffer:
		err = c.offer(ctx)
	case RoleAnswer:
		err = c.answer(ctx)
	}
	if err != nil {
		return nil, err
	}

	select {
	case <-c.connected:
	case <-c.failed:
		return nil, ErrRemoteDisconnected
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}

	var tracks []RemoteTrack
	if description := c.pc.RemoteDescription(); description != nil {
		tracks = remoteTracks(description.SDP)
	}
	streamID := uuid.NewString()
	if len(tracks) > 0 && tracks[0].StreamID != "" {
		streamID = tracks[0].StreamID
	}
	remote := NewRemoteMedia(streamID, tracks, func() {
		if err := c.pc.Close(); err != nil {
			logger.Warn("closing PeerConnection failed", "error", err)
		}
	})

	c.mu.Lock()
	c.remote = remote
	c.mu.Unlock()

	// The connection may have dropped between Connected and here.
	if isGone(c.pc.ConnectionState()) {
		remote.Disconnect()
	}

	logger.Info("WebRTC call connected", "stream", streamID, "remote_tracks", len(tracks))
	return remote, nil
}

func (c *peerCall) handleStateChange(state webrtc.PeerConnectionState) {
	c.transport.logger.Info("peer connection state change", "state", state.String())

	if state == webrtc.PeerConnectionStateConnected {
		c.connectOnce.Do(func() { close(c.connected) })
		return
	}
	if !isGone(state) {
		return
	}
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()
	if remote != nil {
		remote.Disconnect()
		return
	}
	c.failOnce.Do(func() { close(c.failed) })
}

func isGone(state webrtc.PeerConnectionState) bool {
	switch state {
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		return true
	}
	return false
}

func (c *peerCall) offer(ctx context.Context) error {
	config := c.transport.config

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP offer: %w", err)
	}
	sdp, err := c.setLocalAndGather(ctx, offer)
	if err != nil {
		return err
	}
	if err := config.Signaler.PublishOffer(ctx, config.Localpart, config.Peer, sdp); err != nil {
		return fmt.Errorf("publishing SDP offer: %w", err)
	}
	c.transport.logger.Info("WebRTC offer published")

	answerSDP, err := c.waitForSignal(ctx, config.Signaler.PollAnswers)
	if err != nil {
		return fmt.Errorf("waiting for SDP answer from %s: %w", config.Peer, err)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	return nil
}

func (c *peerCall) answer(ctx context.Context) error {
	config := c.transport.config

	offerSDP, err := c.waitForSignal(ctx, config.Signaler.PollOffers)
	if err != nil {
		return fmt.Errorf("waiting for SDP offer from %s: %w", config.Peer, err)
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("creating SDP answer: %w", err)
	}
	sdp, err := c.setLocalAndGather(ctx, answer)
	if err != nil {
		return err
	}
	if err := config.Signaler.PublishAnswer(ctx, config.Peer, config.Localpart, sdp); err != nil {
		return fmt.Errorf("publishing SDP answer: %w", err)
	}
	c.transport.logger.Info("WebRTC answer published")
	return nil
}

// setLocalAndGather applies description and waits for every ICE
// candidate, returning the complete SDP.
func (c *peerCall) setLocalAndGather(ctx context.Context, description webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(description); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-c.transport.config.Clock.After(iceGatherTimeout):
		return "", fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
	return c.pc.LocalDescription().SDP, nil
}

// waitForSignal polls until the configured peer's SDP shows up.
func (c *peerCall) waitForSignal(ctx context.Context, poll func(context.Context, string) ([]SignalMessage, error)) (string, error) {
	config := c.transport.config
	ticker := config.Clock.NewTicker(config.PollInterval)
	defer ticker.Stop()

	for {
		messages, err := poll(ctx, config.Localpart)
		if err != nil {
			c.transport.logger.Warn("polling signaler failed", "error", err)
		}
		for _, message := range messages {
			if message.PeerLocalpart == config.Peer {
				return message.SDP, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", context.Cause(ctx)
		case <-ticker.C:
		}
	}
}

// remoteTracks lists the tracks a remote SDP says the peer sends. It
// parses a private copy: the PeerConnection's own description caches
// its parse and is read concurrently by pion.
func remoteTracks(remoteSDP string) []RemoteTrack {
	if remoteSDP == "" {
		return nil
	}
	description := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: remoteSDP}
	parsed, err := description.Unmarshal()
	if err != nil {
		return nil
	}
	var tracks []RemoteTrack
	for _, section := range parsed.MediaDescriptions {
		var kind media.TrackKind
		switch section.MediaName.Media {
		case "audio":
			kind = media.TrackAudio
		case "video":
			kind = media.TrackVideo
		default:
			continue
		}
		if _, ok := section.Attribute("recvonly"); ok {
			continue
		}
		if _, ok := section.Attribute("inactive"); ok {
			continue
		}
		msid, ok := section.Attribute("msid")
		if !ok {
			continue
		}
		streamID, trackID, _ := strings.Cut(msid, " ")
		tracks = append(tracks, RemoteTrack{ID: trackID, StreamID: streamID, Kind: kind})
	}
	return tracks
}

// drainRTCP reads sender reports until the sender closes so the
// interceptors keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buffer := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buffer); err != nil {
			return
		}
	}
}

func drainTrack(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
