/*
 * Flowdam - An OpenFlow Proxy
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */


package proxy

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeClock only moves when Advance is called.
type fakeClock struct {
	mutex   sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	c        chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *fakeClock) Now() time.Time {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.now
}

func (r *fakeClock) After(d time.Duration) <-chan time.Time {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	c := make(chan time.Time, 1)
	if d <= 0 {
		c <- r.now
		return c
	}
	r.waiters = append(r.waiters, fakeWaiter{deadline: r.now.Add(d), c: c})

	return c
}

func (r *fakeClock) Advance(d time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.now = r.now.Add(d)
	remain := r.waiters[:0]
	for _, w := range r.waiters {
		if r.now.Before(w.deadline) {
			remain = append(remain, w)
			continue
		}
		w.c <- r.now
	}
	r.waiters = remain
}

// Waiters returns the number of pending After calls.
func (r *fakeClock) Waiters() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.waiters)
}

func TestIdleMonitorFiresOnce(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewIdleMonitor(IdleThresholds{Read: 1000 * time.Millisecond}, start)

	if _, idle := m.Check(start.Add(999 * time.Millisecond)); idle {
		t.Fatal("unexpected idle state before the threshold")
	}
	state, idle := m.Check(start.Add(1001 * time.Millisecond))
	if !idle || state != ReaderIdle {
		t.Fatalf("expected READER_IDLE: state=%v, idle=%v", state, idle)
	}
	for _, d := range []time.Duration{1002, 2000, 5000} {
		if state, idle := m.Check(start.Add(d * time.Millisecond)); idle {
			t.Fatalf("unexpected repeated idle state at %vms: %v", d, state)
		}
	}

	// New traffic re-arms the monitor.
	m.Read(start.Add(6000 * time.Millisecond))
	if _, idle := m.Check(start.Add(6500 * time.Millisecond)); idle {
		t.Fatal("unexpected idle state after new traffic")
	}
	if state, idle := m.Check(start.Add(7000 * time.Millisecond)); !idle || state != ReaderIdle {
		t.Fatalf("expected READER_IDLE after re-arming: state=%v, idle=%v", state, idle)
	}
}

func TestIdleMonitorTrafficSuppresses(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewIdleMonitor(IdleThresholds{Read: 1000 * time.Millisecond}, start)

	m.Read(start.Add(900 * time.Millisecond))
	if _, idle := m.Check(start.Add(1001 * time.Millisecond)); idle {
		t.Fatal("unexpected idle state within the threshold since the last read")
	}
	if state, idle := m.Check(start.Add(1900 * time.Millisecond)); !idle || state != ReaderIdle {
		t.Fatalf("expected READER_IDLE: state=%v, idle=%v", state, idle)
	}
}

func TestIdleMonitorWriter(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewIdleMonitor(IdleThresholds{Read: 3 * time.Second, Write: time.Second}, start)

	m.Read(start.Add(2 * time.Second))
	state, idle := m.Check(start.Add(2 * time.Second))
	if !idle || state != WriterIdle {
		t.Fatalf("expected WRITER_IDLE: state=%v, idle=%v", state, idle)
	}

	wait, ok := m.Next(start.Add(2 * time.Second))
	if !ok || wait != 3*time.Second {
		t.Fatalf("unexpected next wait: wait=%v, ok=%v", wait, ok)
	}
	m.Write(start.Add(2500 * time.Millisecond))
	wait, ok = m.Next(start.Add(2500 * time.Millisecond))
	if !ok || wait != time.Second {
		t.Fatalf("unexpected next wait after a write: wait=%v, ok=%v", wait, ok)
	}
}

func TestIdleMonitorDisabled(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewIdleMonitor(IdleThresholds{}, start)

	if _, idle := m.Check(start.Add(24 * time.Hour)); idle {
		t.Fatal("unexpected idle state with zero thresholds")
	}
	if _, ok := m.Next(start); ok {
		t.Fatal("unexpected armed monitor with zero thresholds")
	}
}

func TestIdleMonitorNegative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a negative threshold")
		}
	}()
	NewIdleMonitor(IdleThresholds{Read: -time.Second}, time.Now())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition is not satisfied in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestIdleMonitorWatch(t *testing.T) {
	clock := newFakeClock()
	m := NewIdleMonitor(IdleThresholds{Read: time.Second}, clock.Now())

	type result struct {
		state IdleState
		err   error
	}
	c := make(chan result, 1)
	go func() {
		state, err := m.Watch(context.Background(), clock)
		c <- result{state, err}
	}()

	waitFor(t, func() bool { return clock.Waiters() == 1 })
	// Traffic before the deadline makes the watcher wait again.
	clock.Advance(900 * time.Millisecond)
	m.Read(clock.Now())
	clock.Advance(100 * time.Millisecond)
	waitFor(t, func() bool { return clock.Waiters() == 1 })
	select {
	case v := <-c:
		t.Fatalf("unexpected watch result: %v", v)
	default:
	}

	clock.Advance(900 * time.Millisecond)
	select {
	case v := <-c:
		if v.err != nil || v.state != ReaderIdle {
			t.Fatalf("unexpected watch result: state=%v, err=%v", v.state, v.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not fire")
	}
}

func TestIdleMonitorWatchCancel(t *testing.T) {
	clock := newFakeClock()
	m := NewIdleMonitor(IdleThresholds{}, clock.Now())

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan error, 1)
	go func() {
		_, err := m.Watch(ctx, clock)
		c <- err
	}()
	cancel()

	select {
	case err := <-c:
		if err != context.Canceled {
			t.Fatalf("unexpected watch error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher is not canceled")
	}
}
