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
	"fmt"
	"sync"
	"time"
)

// Clock is the time source of the idle monitor.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (r systemClock) Now() time.Time {
	return time.Now()
}

func (r systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// IdleThresholds are the allowed idle times of a connection. Zero disables the check in that direction.
type IdleThresholds struct {
	Read  time.Duration
	Write time.Duration
}

func (r IdleThresholds) String() string {
	return fmt.Sprintf("read=%v, write=%v", r.Read, r.Write)
}

type IdleState uint8

const (
	// No inbound traffic within the read threshold.
	ReaderIdle IdleState = iota + 1
	// No outbound traffic within the write threshold.
	WriterIdle
)

func (r IdleState) String() string {
	switch r {
	case ReaderIdle:
		return "READER_IDLE"
	case WriterIdle:
		return "WRITER_IDLE"
	default:
		return fmt.Sprintf("IdleState(%d)", uint8(r))
	}
}

// IdleMonitor measures the elapsed time since the last read and write of a
// connection. It has no timer of its own: Check is a pure function of the
// recorded timestamps and the given time.
type IdleMonitor struct {
	mutex      sync.Mutex
	thresholds IdleThresholds
	lastRead   time.Time
	lastWrite  time.Time
	// A direction fires only once until new traffic is observed in that direction.
	readFired  bool
	writeFired bool
}

func NewIdleMonitor(t IdleThresholds, now time.Time) *IdleMonitor {
	if t.Read < 0 || t.Write < 0 {
		panic("negative idle threshold")
	}

	return &IdleMonitor{
		thresholds: t,
		lastRead:   now,
		lastWrite:  now,
	}
}

func (r *IdleMonitor) Thresholds() IdleThresholds {
	return r.thresholds
}

// Read records inbound traffic.
func (r *IdleMonitor) Read(now time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if now.After(r.lastRead) {
		r.lastRead = now
	}
	r.readFired = false
}

// Write records outbound traffic.
func (r *IdleMonitor) Write(now time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if now.After(r.lastWrite) {
		r.lastWrite = now
	}
	r.writeFired = false
}

// Check returns the idle state that has been reached at now, if any. Each
// timeout occurrence is reported exactly once.
func (r *IdleMonitor) Check(now time.Time) (state IdleState, idle bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.thresholds.Read > 0 && !r.readFired && !now.Before(r.lastRead.Add(r.thresholds.Read)) {
		r.readFired = true
		return ReaderIdle, true
	}
	if r.thresholds.Write > 0 && !r.writeFired && !now.Before(r.lastWrite.Add(r.thresholds.Write)) {
		r.writeFired = true
		return WriterIdle, true
	}

	return 0, false
}

// Next returns how long to wait from now before Check can report a new idle
// state. ok is false if no direction is armed.
func (r *IdleMonitor) Next(now time.Time) (wait time.Duration, ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	armed := func(threshold time.Duration, fired bool, last time.Time) {
		if threshold <= 0 || fired {
			return
		}
		d := last.Add(threshold).Sub(now)
		if d < 0 {
			d = 0
		}
		if !ok || d < wait {
			wait = d
			ok = true
		}
	}
	armed(r.thresholds.Read, r.readFired, r.lastRead)
	armed(r.thresholds.Write, r.writeFired, r.lastWrite)

	return wait, ok
}

// Watch blocks until the monitor reaches an idle state or ctx is done.
func (r *IdleMonitor) Watch(ctx context.Context, clock Clock) (IdleState, error) {
	for {
		wait, ok := r.Next(clock.Now())
		if !ok {
			// Nothing to watch.
			<-ctx.Done()
			return 0, ctx.Err()
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-clock.After(wait):
		}

		if state, idle := r.Check(clock.Now()); idle {
			return state, nil
		}
	}
}
