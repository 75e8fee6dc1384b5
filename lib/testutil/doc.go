// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds channel helpers shared by parley's package
// tests.
//
// Call sessions report progress through channels (event recorders,
// Done channels of periodic tasks, disconnect channels of remote
// media). [RequireReceive] and [RequireClosed] wait for those with a
// wall-clock safety valve so a broken test fails instead of hanging;
// [RequireEmpty] asserts nothing is queued right now. Timing in the
// code under test is always driven by lib/clock's FakeClock; the
// timeouts here only bound how long a test may hang.
package testutil
