// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-rtc/parley/lib/codec"
)

// relaySendBuffer is the per-client outbound queue. A client that lets
// it fill up is disconnected.
const relaySendBuffer = 32

// Relay forwards signaling envelopes between WebSocketSignalers. It is
// an http.Handler; clients connect with ?localpart=<name>.
//
// Envelopes for a party that is not connected are held, latest per
// sender and type, and delivered when it connects.
type Relay struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*relayClient
	held    map[string]map[string]Envelope // recipient → "from|type" → envelope
}

type relayClient struct {
	localpart string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *relayClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewRelay creates an empty relay.
func NewRelay(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Relay{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Signaling carries no ambient credentials; any origin may
			// connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]*relayClient),
		held:    make(map[string]map[string]Envelope),
	}
}

// ServeHTTP upgrades the request and serves the client until it
// disconnects.
func (r *Relay) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	localpart := request.URL.Query().Get("localpart")
	if localpart == "" || strings.Contains(localpart, signalingSeparator) {
		http.Error(writer, "missing or invalid localpart", http.StatusBadRequest)
		return
	}

	conn, err := r.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "localpart", localpart, "error", err)
		return
	}
	conn.SetReadLimit(codec.MaxFrameSize)

	client := &relayClient{
		localpart: localpart,
		conn:      conn,
		send:      make(chan []byte, relaySendBuffer),
		done:      make(chan struct{}),
	}
	r.register(client)
	defer r.unregister(client)

	go r.writePump(client)
	r.readPump(client)
}

func (r *Relay) register(client *relayClient) {
	r.mu.Lock()
	previous := r.clients[client.localpart]
	r.clients[client.localpart] = client

	pending := r.held[client.localpart]
	delete(r.held, client.localpart)
	keys := make([]string, 0, len(pending))
	for key := range pending {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return pending[keys[i]].Timestamp < pending[keys[j]].Timestamp
	})
	for _, key := range keys {
		r.enqueueLocked(client, pending[key])
	}
	r.mu.Unlock()

	if previous != nil {
		r.logger.Info("signaling client replaced", "localpart", client.localpart)
		previous.close()
	}
	r.logger.Info("signaling client connected",
		"localpart", client.localpart,
		"held_delivered", len(keys),
	)
}

func (r *Relay) unregister(client *relayClient) {
	r.mu.Lock()
	if r.clients[client.localpart] == client {
		delete(r.clients, client.localpart)
	}
	r.mu.Unlock()
	client.close()
	r.logger.Info("signaling client disconnected", "localpart", client.localpart)
}

func (r *Relay) readPump(client *relayClient) {
	extend := func(string) error { return client.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	if err := extend(""); err != nil {
		return
	}
	client.conn.SetPongHandler(extend)

	for {
		messageType, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Warn("signaling client read failed", "localpart", client.localpart, "error", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		envelope, err := decodeEnvelope(data)
		if err == nil {
			err = envelope.Validate()
		}
		if err != nil {
			r.logger.Warn("dropping invalid envelope", "localpart", client.localpart, "error", err)
			continue
		}
		envelope.From = client.localpart
		r.route(envelope)
	}
}

// route delivers envelope to its recipient or holds it.
func (r *Relay) route(envelope Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if target, ok := r.clients[envelope.To]; ok {
		r.enqueueLocked(target, envelope)
		return
	}
	pending := r.held[envelope.To]
	if pending == nil {
		pending = make(map[string]Envelope)
		r.held[envelope.To] = pending
	}
	pending[envelope.From+signalingSeparator+envelope.Type] = envelope
	r.logger.Debug("holding signal for offline party",
		"type", envelope.Type,
		"from", envelope.From,
		"to", envelope.To,
	)
}

func (r *Relay) enqueueLocked(client *relayClient, envelope Envelope) {
	data, err := encodeEnvelope(envelope)
	if err != nil {
		r.logger.Error("re-encoding envelope failed", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		r.logger.Warn("signaling client too slow, disconnecting", "localpart", client.localpart)
		go client.close()
	}
}

func (r *Relay) writePump(client *relayClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case data := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				client.close()
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				client.close()
				return
			}
		}
	}
}

// Held returns how many envelopes are waiting for localpart.
func (r *Relay) Held(localpart string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held[localpart])
}

// Connected lists the connected localparts, sorted.
func (r *Relay) Connected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close disconnects every client.
func (r *Relay) Close() {
	r.mu.Lock()
	clients := make([]*relayClient, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	r.mu.Unlock()
	for _, client := range clients {
		client.close()
	}
}
