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


// Package proxytest provides in-memory switch and controller connections for
// testing handlers against a real proxy session.
package proxytest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/openflow/transceiver"
	"github.com/superkkt/flowdam/proxy"
)

// Pair is an ACTIVE session whose switch and controller are driven by the test.
type Pair struct {
	Proxy   *proxy.Proxy
	Session *proxy.Session
	// Switch is the switch side of the switch connection.
	Switch *transceiver.Stream
	// Controller is the controller side of the controller connection.
	Controller *transceiver.Stream
}

// NewPair attaches both halves of a session of key and returns it once it is ACTIVE.
func NewPair(t testing.TB, key string, c proxy.Config, upstream, downstream proxy.Handler) *Pair {
	t.Helper()

	p := proxy.New(c, upstream, downstream)
	sw, swProxy := net.Pipe()
	ctrl, ctrlProxy := net.Pipe()

	s, err := p.Attach(context.Background(), key, proxy.RoleSwitch, swProxy)
	if err != nil {
		t.Fatalf("unexpected switch attach error: %v", err)
	}
	if _, err := p.Attach(context.Background(), key, proxy.RoleController, ctrlProxy); err != nil {
		t.Fatalf("unexpected controller attach error: %v", err)
	}
	if s.State() != proxy.StateActive {
		t.Fatalf("unexpected session state: expected=%v, actual=%v", proxy.StateActive, s.State())
	}

	v := &Pair{
		Proxy:      p,
		Session:    s,
		Switch:     transceiver.NewStream(sw, 0),
		Controller: transceiver.NewStream(ctrl, 0),
	}
	t.Cleanup(v.Close)

	return v
}

// Close releases the session and the test side connections.
func (r *Pair) Close() {
	r.Session.Close()
	r.Switch.Close()
	r.Controller.Close()
}

// Write writes f to s and fails the test on error.
func Write(t testing.TB, s *transceiver.Stream, f *openflow.Frame) {
	t.Helper()

	if err := s.WriteFrame(f); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
}

// Read reads a frame from s within timeout and fails the test otherwise.
func Read(t testing.TB, s *transceiver.Stream, timeout time.Duration) *openflow.Frame {
	t.Helper()

	type result struct {
		frame *openflow.Frame
		err   error
	}
	c := make(chan result, 1)
	go func() {
		f, err := s.ReadFrame()
		c <- result{f, err}
	}()

	select {
	case v := <-c:
		if v.err != nil {
			t.Fatalf("unexpected read error: %v", v.err)
		}
		return v.frame
	case <-time.After(timeout):
		t.Fatalf("no frame within %v", timeout)
	}

	return nil
}

// Silent reports whether s yields no frame within d. The read it starts stays
// pending until the stream is closed, so s must not be read afterwards.
func Silent(s *transceiver.Stream, d time.Duration) bool {
	c := make(chan struct{}, 1)
	go func() {
		if _, err := s.ReadFrame(); err == nil {
			c <- struct{}{}
		}
	}()

	select {
	case <-c:
		return false
	case <-time.After(d):
		return true
	}
}
