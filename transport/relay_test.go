// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parley-rtc/parley/media"
)

func startRelay(t *testing.T) (*Relay, string) {
	t.Helper()
	relay := NewRelay(nil)
	server := httptest.NewServer(relay)
	t.Cleanup(func() {
		relay.Close()
		server.Close()
	})
	return relay, "ws" + strings.TrimPrefix(server.URL, "http") + "/signal"
}

func dialSignaler(t *testing.T, url, localpart string) *WebSocketSignaler {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	signaler, err := DialWebSocketSignaler(ctx, url, localpart, nil)
	if err != nil {
		t.Fatalf("DialWebSocketSignaler(%s): %v", localpart, err)
	}
	t.Cleanup(func() { signaler.Close() })
	return signaler
}

// pollUntil polls until messages arrive or the deadline passes.
func pollUntil(t *testing.T, poll func(context.Context, string) ([]SignalMessage, error), localpart string) []SignalMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		messages, err := poll(context.Background(), localpart)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if len(messages) > 0 {
			return messages
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no signal for %s within 5s", localpart)
	return nil
}

func waitConnected(t *testing.T, relay *Relay, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(relay.Connected()) < want {
		if time.Now().After(deadline) {
			t.Fatalf("Connected() = %v, want %d clients", relay.Connected(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelay_ForwardsOfferAndAnswer(t *testing.T) {
	relay, url := startRelay(t)
	alice := dialSignaler(t, url, "alice")
	bob := dialSignaler(t, url, "bob")
	waitConnected(t, relay, 2)
	ctx := context.Background()

	if err := alice.PublishOffer(ctx, "alice", "bob", "offer-sdp"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}
	offers := pollUntil(t, bob.PollOffers, "bob")
	if offers[0].PeerLocalpart != "alice" || offers[0].SDP != "offer-sdp" {
		t.Errorf("offer = %+v", offers[0])
	}

	if err := bob.PublishAnswer(ctx, "alice", "bob", "answer-sdp"); err != nil {
		t.Fatalf("PublishAnswer: %v", err)
	}
	answers := pollUntil(t, alice.PollAnswers, "alice")
	if answers[0].PeerLocalpart != "bob" || answers[0].SDP != "answer-sdp" {
		t.Errorf("answer = %+v", answers[0])
	}

	// Polls drain the queue.
	if offers, _ := bob.PollOffers(ctx, "bob"); len(offers) != 0 {
		t.Errorf("second PollOffers returned %d offers", len(offers))
	}
}

func TestRelay_HoldsForOfflineParty(t *testing.T) {
	relay, url := startRelay(t)
	alice := dialSignaler(t, url, "alice")
	waitConnected(t, relay, 1)

	ctx := context.Background()
	if err := alice.PublishOffer(ctx, "alice", "bob", "first"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}
	if err := alice.PublishOffer(ctx, "alice", "bob", "second"); err != nil {
		t.Fatalf("PublishOffer: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for relay.Held("bob") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	// Give the second frame time to replace the first.
	time.Sleep(50 * time.Millisecond)
	if held := relay.Held("bob"); held != 1 {
		t.Fatalf("Held(bob) = %d, want the latest offer only", held)
	}

	bob := dialSignaler(t, url, "bob")
	offers := pollUntil(t, bob.PollOffers, "bob")
	if len(offers) != 1 || offers[0].SDP != "second" {
		t.Errorf("delivered offers = %+v, want only the latest", offers)
	}
	if held := relay.Held("bob"); held != 0 {
		t.Errorf("Held(bob) after delivery = %d", held)
	}
}

func TestRelay_RejectsMissingLocalpart(t *testing.T) {
	relay := NewRelay(nil)
	for _, target := range []string{"/signal", "/signal?localpart=a%7Cb"} {
		recorder := httptest.NewRecorder()
		relay.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", target, recorder.Code)
		}
	}
}

func TestWebSocketSignaler_RejectsForeignLocalpart(t *testing.T) {
	_, url := startRelay(t)
	alice := dialSignaler(t, url, "alice")
	if err := alice.PublishOffer(context.Background(), "mallory", "bob", "sdp"); err == nil {
		t.Error("PublishOffer as another localpart succeeded")
	}
}

func TestWebRTC_OverRelay(t *testing.T) {
	relay, url := startRelay(t)
	aliceSignaler := dialSignaler(t, url, "alice")
	bobSignaler := dialSignaler(t, url, "bob")
	waitConnected(t, relay, 2)

	alice := newTestWebRTC(t, aliceSignaler, "alice", "bob", RoleOffer)
	bob := newTestWebRTC(t, bobSignaler, "bob", "alice", RoleAnswer)
	aliceLocal := captureLocal(t, media.Audio)
	bobLocal := captureLocal(t, media.Audio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := make(chan negotiation, 1)
	go func() {
		remote, err := bob.Negotiate(ctx, bobLocal)
		results <- negotiation{remote, err}
	}()
	remote, err := alice.Negotiate(ctx, aliceLocal)
	if err != nil {
		t.Fatalf("offerer Negotiate: %v", err)
	}
	defer remote.Release()

	answer := <-results
	if answer.err != nil {
		t.Fatalf("answerer Negotiate: %v", answer.err)
	}
	defer answer.remote.Release()

	if len(remote.Tracks()) != 1 || len(answer.remote.Tracks()) != 1 {
		t.Errorf("remote track counts = %d, %d; want 1, 1",
			len(remote.Tracks()), len(answer.remote.Tracks()))
	}
}
