// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-rtc/parley/lib/codec"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead. Pings go out at pingPeriod, well inside it.
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ErrSignalerClosed is returned after Close.
var ErrSignalerClosed = errors.New("transport: signaler closed")

var _ Signaler = (*WebSocketSignaler)(nil)

// WebSocketSignaler is a Signaler connected to a Relay. Inbound
// envelopes are queued by a read pump and handed out by the Poll
// methods.
type WebSocketSignaler struct {
	conn      *websocket.Conn
	localpart string
	logger    *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	offers   []SignalMessage
	answers  []SignalMessage
	readErr  error
	closing  bool
	shutdown chan struct{}
	done     chan struct{}
}

// DialWebSocketSignaler connects to the relay at rawURL as localpart.
func DialWebSocketSignaler(ctx context.Context, rawURL, localpart string, logger *slog.Logger) (*WebSocketSignaler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing signal URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("localpart", localpart)
	endpoint.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to signaling relay %s: %w", endpoint.Redacted(), err)
	}
	conn.SetReadLimit(codec.MaxFrameSize)

	signaler := &WebSocketSignaler{
		conn:      conn,
		localpart: localpart,
		logger:    logger.With("localpart", localpart),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	go signaler.readPump()
	go signaler.keepalive()
	signaler.logger.Info("connected to signaling relay", "url", endpoint.Redacted())
	return signaler, nil
}

func (s *WebSocketSignaler) PublishOffer(ctx context.Context, localpart, targetLocalpart, sdp string) error {
	if localpart != s.localpart {
		return fmt.Errorf("signaler connected as %q cannot publish for %q", s.localpart, localpart)
	}
	return s.send(ctx, newEnvelope(EnvelopeOffer, localpart, targetLocalpart, sdp))
}

func (s *WebSocketSignaler) PublishAnswer(ctx context.Context, offererLocalpart, localpart, sdp string) error {
	if localpart != s.localpart {
		return fmt.Errorf("signaler connected as %q cannot publish for %q", s.localpart, localpart)
	}
	return s.send(ctx, newEnvelope(EnvelopeAnswer, localpart, offererLocalpart, sdp))
}

func (s *WebSocketSignaler) PollOffers(_ context.Context, localpart string) ([]SignalMessage, error) {
	return s.take(localpart, &s.offers)
}

func (s *WebSocketSignaler) PollAnswers(_ context.Context, localpart string) ([]SignalMessage, error) {
	return s.take(localpart, &s.answers)
}

func (s *WebSocketSignaler) take(localpart string, queue *[]SignalMessage) ([]SignalMessage, error) {
	if localpart != s.localpart {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := *queue
	*queue = nil
	if len(messages) == 0 && s.readErr != nil {
		return nil, s.readErr
	}
	return messages, nil
}

func (s *WebSocketSignaler) send(ctx context.Context, envelope Envelope) error {
	data, err := encodeEnvelope(envelope)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return ErrSignalerClosed
	}

	deadline := time.Now().Add(writeWait)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("sending %s to %s: %w", envelope.Type, envelope.To, err)
	}
	s.logger.Debug("signal sent", "type", envelope.Type, "to", envelope.To)
	return nil
}

func (s *WebSocketSignaler) readPump() {
	defer close(s.done)

	extend := func(string) error { return s.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	if err := extend(""); err != nil {
		s.fail(err)
		return
	}
	s.conn.SetPongHandler(extend)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.fail(err)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		envelope, err := decodeEnvelope(data)
		if err != nil {
			s.logger.Warn("dropping malformed signal", "error", err)
			continue
		}
		if envelope.To != s.localpart {
			continue
		}

		s.mu.Lock()
		switch envelope.Type {
		case EnvelopeOffer:
			s.offers = append(s.offers, envelope.message())
		case EnvelopeAnswer:
			s.answers = append(s.answers, envelope.message())
		}
		s.mu.Unlock()
		s.logger.Debug("signal received", "type", envelope.Type, "from", envelope.From)
	}
}

func (s *WebSocketSignaler) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		s.readErr = ErrSignalerClosed
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
		s.logger.Warn("signaling connection lost", "error", err)
	}
	s.readErr = fmt.Errorf("signaling connection lost: %w", err)
}

func (s *WebSocketSignaler) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// Close sends a close frame and waits for the read pump to exit.
func (s *WebSocketSignaler) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closing = true
	close(s.shutdown)
	s.mu.Unlock()

	s.writeMu.Lock()
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
	s.writeMu.Unlock()

	err := s.conn.Close()
	<-s.done
	return err
}
