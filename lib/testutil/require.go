// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// T is the subset of testing.TB the helpers use.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
}

// DefaultTimeout bounds every helper call that does not pass its own.
const DefaultTimeout = 10 * time.Second

// RequireReceive returns the next value from ch, failing the test if
// none arrives within DefaultTimeout or ch is closed.
//
//	event := testutil.RequireReceive(t, recorder.events, "waiting for Active")
func RequireReceive[V any](t T, ch <-chan V, msgAndArgs ...any) V {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed: %s", describe(msgAndArgs))
		}
		return value
	case <-time.After(DefaultTimeout):
		t.Fatalf("nothing received after %v: %s", DefaultTimeout, describe(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to close (or deliver a value).
func RequireClosed(t T, ch <-chan struct{}, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(DefaultTimeout):
		t.Fatalf("channel still open after %v: %s", DefaultTimeout, describe(msgAndArgs))
	}
}

// RequireEmpty fails the test if ch has a value ready or is closed.
// It does not wait.
func RequireEmpty[V any](t T, ch <-chan V, msgAndArgs ...any) {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("channel unexpectedly closed: %s", describe(msgAndArgs))
		}
		t.Fatalf("unexpected value %v: %s", value, describe(msgAndArgs))
	default:
	}
}

func describe(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return "(no message)"
	case 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
