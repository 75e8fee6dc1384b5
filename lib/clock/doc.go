// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by call
// sessions.
//
// Everything in parley that waits (duration ticks, audio level sampling,
// loopback negotiation delay, negotiation timeouts, signaling polls)
// takes a [Clock] instead of calling the time package directly.
// Production wiring passes [Real]; tests pass [Fake] and drive time with
// [FakeClock.Advance].
//
// # FakeClock Synchronization
//
// A goroutine that calls After, AfterFunc or NewTicker on a FakeClock
// registers a pending waiter. Tests call [FakeClock.WaitForTimers]
// before Advance so the advance cannot race the registration:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	timer := monitor.NewTimer(monitor.TimerConfig{Clock: fake, ...})
//	timer.Start()
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
package clock
