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
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/openflow/transceiver"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDuplicatedHalf = errors.New("duplicated half of a session")
	ErrSessionClosed  = errors.New("session has been closed")
	ErrInvalidRole    = errors.New("invalid channel role")
)

type State uint8

const (
	// Only one half has been attached.
	StatePending State = iota + 1
	// Both halves have been attached and are forwarding frames.
	StateActive
	// Either half has failed or the session has been closed locally.
	StateClosing
	// Both halves have been released.
	StateClosed
)

func (r State) String() string {
	switch r {
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", uint8(r))
	}
}

func (r State) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *State) UnmarshalText(text []byte) error {
	for s := StatePending; s <= StateClosed; s++ {
		if s.String() == string(text) {
			*r = s
			return nil
		}
	}

	return fmt.Errorf("unknown session state: %v", string(text))
}

// Stats are frame counters of a session.
type Stats struct {
	// Frames read from the switch.
	Upstream uint64 `json:"upstream"`
	// Frames read from the controller.
	Downstream uint64 `json:"downstream"`
	// Frames suppressed by the handlers.
	Dropped uint64 `json:"dropped"`
	// Frames originated by the handlers.
	Injected uint64 `json:"injected"`
}

// Status is a snapshot of a session.
type Status struct {
	Key        string    `json:"key"`
	ID         uint64    `json:"id"`
	State      State     `json:"state"`
	Switch     string    `json:"switch,omitempty"`
	Controller string    `json:"controller,omitempty"`
	Created    time.Time `json:"created"`
	Stats      Stats     `json:"stats"`
}

// half is one connection of a session.
type half struct {
	role    Role
	stream  *transceiver.Stream
	monitor *IdleMonitor
	handler Handler
	// Frames to be written to this connection.
	queue chan outbound
}

type outbound struct {
	frame  *openflow.Frame
	origin Role
}

type sessionConfig struct {
	key        string
	id         uint64
	config     Config
	upstream   Handler
	downstream Handler
	// Called once when the session starts closing.
	detach func(*Session)
	// Called once when the session has been closed.
	closed func(CloseEvent)
}

// Session pairs a switch connection with its controller connection. A session
// is single-use: once it starts closing it never becomes active again.
type Session struct {
	key        string
	id         uint64
	config     Config
	upstream   Handler
	downstream Handler
	created    time.Time
	detach     func(*Session)
	closed     func(CloseEvent)

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
	// Outbound queues indexed by roleIndex. They exist before the halves do so
	// that frames read while pending are kept in order.
	queues [2]chan outbound

	mutex  sync.Mutex
	state  State
	halves [2]*half
	reason Reason
	role   Role
	err    error
	event  CloseEvent

	stats struct {
		upstream   atomic.Uint64
		downstream atomic.Uint64
		dropped    atomic.Uint64
		injected   atomic.Uint64
	}
}

func roleIndex(role Role) int {
	switch role {
	case RoleSwitch:
		return 0
	case RoleController:
		return 1
	case RoleProxy:
		panic("proxy role does not have a connection")
	default:
		panic(fmt.Sprintf("unexpected role: %v", role))
	}
}

func newSession(c sessionConfig) *Session {
	if c.upstream == nil || c.downstream == nil {
		panic("handler is nil")
	}
	if c.config.Clock == nil {
		c.config.Clock = SystemClock
	}
	if c.config.QueueSize <= 0 {
		c.config.QueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)
	v := &Session{
		key:        c.key,
		id:         c.id,
		config:     c.config,
		upstream:   c.upstream,
		downstream: c.downstream,
		created:    c.config.Clock.Now(),
		detach:     c.detach,
		closed:     c.closed,
		ctx:        groupCtx,
		cancel:     cancel,
		group:      group,
		done:       make(chan struct{}),
		state:      StatePending,
	}
	for i := range v.queues {
		v.queues[i] = make(chan outbound, c.config.QueueSize)
	}
	if c.config.PairTimeout > 0 {
		v.group.Go(v.watchPairing)
	}
	go v.supervise()

	return v
}

func (r *Session) Key() string {
	return r.key
}

func (r *Session) ID() uint64 {
	return r.id
}

func (r *Session) State() State {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.state
}

// Done is closed when the session has reached the CLOSED state.
func (r *Session) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the session is closed and returns its close event.
func (r *Session) Wait() CloseEvent {
	<-r.done

	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.event
}

func (r *Session) Stats() Stats {
	return Stats{
		Upstream:   r.stats.upstream.Load(),
		Downstream: r.stats.downstream.Load(),
		Dropped:    r.stats.dropped.Load(),
		Injected:   r.stats.injected.Load(),
	}
}

func (r *Session) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v := Status{
		Key:     r.key,
		ID:      r.id,
		State:   r.state,
		Created: r.created,
		Stats:   r.Stats(),
	}
	if h := r.halves[roleIndex(RoleSwitch)]; h != nil {
		v.Switch = h.stream.RemoteAddr().String()
	}
	if h := r.halves[roleIndex(RoleController)]; h != nil {
		v.Controller = h.stream.RemoteAddr().String()
	}

	return v
}

func (r *Session) String() string {
	s := r.Status()
	return fmt.Sprintf("Session(key=%v, id=%v, state=%v, switch=%v, controller=%v, up=%v, down=%v, dropped=%v, injected=%v)",
		s.Key, s.ID, s.State, s.Switch, s.Controller, s.Stats.Upstream, s.Stats.Downstream, s.Stats.Dropped, s.Stats.Injected)
}

// Close shuts down the session by the proxy itself and waits until both halves
// are released. It must not be called from a Handler of the session; use Shutdown there.
func (r *Session) Close() error {
	r.Shutdown(ReasonLocalShutdown, errors.New("closed by the proxy"))
	<-r.done

	return nil
}

// Shutdown starts closing the session without waiting. Only the first reason is kept.
func (r *Session) Shutdown(reason Reason, err error) {
	r.shutdown(reason, 0, err)
}

func (r *Session) shutdown(reason Reason, role Role, err error) {
	r.mutex.Lock()
	if r.reason != ReasonNone {
		r.mutex.Unlock()
		return
	}
	r.reason = reason
	r.role = role
	r.err = err
	r.mutex.Unlock()

	logger.Debugf("shutting down the session (key=%v, id=%v): reason=%v, role=%v, err=%v", r.key, r.id, reason, role, err)
	if r.detach != nil {
		r.detach(r)
	}
	r.cancel()
}

// attach adds a connection of role to the session and starts its goroutines.
func (r *Session) attach(ctx context.Context, role Role, conn io.ReadWriteCloser) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	// The reason is set before the group is waited, so no goroutine is added afterwards.
	if r.reason != ReasonNone || r.state != StatePending {
		if r.state == StateActive && r.reason == ReasonNone {
			return ErrDuplicatedHalf
		}
		return ErrSessionClosed
	}
	idx := roleIndex(role)
	if r.halves[idx] != nil {
		return ErrDuplicatedHalf
	}

	stream := transceiver.NewStream(conn, 0)
	stream.SetWriteTimeout(r.config.WriteTimeout)
	h := &half{
		role:    role,
		stream:  stream,
		monitor: NewIdleMonitor(r.config.Idle, r.config.Clock.Now()),
		handler: r.handlerOf(role),
		queue:   r.queues[idx],
	}
	r.halves[idx] = h
	logger.Infof("%v connection (%v) is attached to the session (key=%v, id=%v)", role, stream.RemoteAddr(), r.key, r.id)

	r.group.Go(func() error { return r.runReader(h) })
	r.group.Go(func() error { return r.runWriter(h) })
	r.group.Go(func() error { return r.runIdleWatcher(h) })
	r.group.Go(func() error {
		select {
		case <-ctx.Done():
			r.shutdown(ReasonLocalShutdown, role, errors.Wrap(ctx.Err(), "attach context done"))
		case <-r.ctx.Done():
		}
		return nil
	})

	if r.halves[roleIndex(role.Peer())] != nil {
		r.state = StateActive
		logger.Infof("session (key=%v, id=%v) is active", r.key, r.id)
	}

	return nil
}

func (r *Session) handlerOf(role Role) Handler {
	switch role.Direction() {
	case Upstream:
		return r.upstream
	case Downstream:
		return r.downstream
	default:
		panic(fmt.Sprintf("unexpected role: %v", role))
	}
}

func (r *Session) watchPairing() error {
	select {
	case <-r.ctx.Done():
		return nil
	case <-r.config.Clock.After(r.config.PairTimeout):
	}

	if r.State() != StatePending {
		return nil
	}
	err := fmt.Errorf("the peer connection is not attached within %v", r.config.PairTimeout)
	r.shutdown(ReasonPairTimeout, 0, err)

	return err
}

func (r *Session) runReader(h *half) error {
	defer logger.Debugf("%v reader of the session (key=%v, id=%v) is closed", h.role, r.key, r.id)

	for {
		f, err := h.stream.ReadFrame()
		if err != nil {
			if r.ctx.Err() != nil {
				// Closed by the other goroutines.
				return nil
			}
			reason := ReasonTransportError
			if openflow.IsFramingError(err) {
				reason = ReasonFramingError
			}
			err = errors.Wrap(err, fmt.Sprintf("failed to read a frame from the %v", h.role))
			r.shutdown(reason, h.role, err)
			return err
		}
		h.monitor.Read(r.config.Clock.Now())
		r.count(h.role)
		logger.Debugf("%v from the %v (key=%v)", f, h.role, r.key)

		action, err := r.handle(h, f)
		if err != nil {
			err = errors.Wrap(err, fmt.Sprintf("failed to handle %v from the %v", f, h.role))
			r.shutdown(ReasonHandlerError, h.role, err)
			return err
		}
		if !r.apply(h, f, action) {
			return nil
		}
	}
}

func (r *Session) count(role Role) {
	switch role.Direction() {
	case Upstream:
		r.stats.upstream.Add(1)
	case Downstream:
		r.stats.downstream.Add(1)
	default:
		panic(fmt.Sprintf("unexpected role: %v", role))
	}
}

func (r *Session) handle(h *half, f *openflow.Frame) (action Action, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errors.Errorf("panic in the %v handler: %v", h.role.Direction(), v)
		}
	}()

	action, err = h.handler.Handle(r, h.role, f)
	if err != nil {
		return Action{}, err
	}
	for _, v := range action.frames() {
		if v == nil {
			return Action{}, errors.New("nil frame in the handler action")
		}
		if v.Length() > openflow.MaxFrameLength {
			return Action{}, openflow.ErrFrameTooLarge
		}
	}

	return action, nil
}

// apply queues the frames of action. It returns false if the session is closing.
func (r *Session) apply(h *half, f *openflow.Frame, action Action) bool {
	origin := r.queues[roleIndex(h.role)]
	peer := r.queues[roleIndex(h.role.Peer())]

	for _, v := range action.Reply {
		if !r.enqueue(origin, outbound{frame: v, origin: RoleProxy}) {
			return false
		}
		r.stats.injected.Add(1)
	}
	for _, v := range action.Before {
		if !r.enqueue(peer, outbound{frame: v, origin: RoleProxy}) {
			return false
		}
		r.stats.injected.Add(1)
	}
	if action.Drop {
		r.stats.dropped.Add(1)
		logger.Debugf("%v from the %v is dropped (key=%v)", f, h.role, r.key)
	} else {
		primary := f
		if action.Frame != nil {
			primary = action.Frame
		}
		if !r.enqueue(peer, outbound{frame: primary, origin: h.role}) {
			return false
		}
	}
	for _, v := range action.After {
		if !r.enqueue(peer, outbound{frame: v, origin: RoleProxy}) {
			return false
		}
		r.stats.injected.Add(1)
	}

	return true
}

// enqueue blocks while the queue is full, which applies back-pressure to the reader.
func (r *Session) enqueue(queue chan<- outbound, v outbound) bool {
	select {
	case queue <- v:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Session) runWriter(h *half) error {
	defer logger.Debugf("%v writer of the session (key=%v, id=%v) is closed", h.role, r.key, r.id)

	for {
		select {
		case <-r.ctx.Done():
			return nil
		case v := <-h.queue:
			// Do not write anything once the session starts closing.
			if r.ctx.Err() != nil {
				return nil
			}
			if err := h.stream.WriteFrame(v.frame); err != nil {
				if r.ctx.Err() != nil {
					return nil
				}
				err = errors.Wrap(err, fmt.Sprintf("failed to write %v to the %v", v.frame, h.role))
				r.shutdown(ReasonTransportError, h.role, err)
				return err
			}
			h.monitor.Write(r.config.Clock.Now())
			logger.Debugf("%v from the %v is written to the %v (key=%v)", v.frame, v.origin, h.role, r.key)
		}
	}
}

func (r *Session) runIdleWatcher(h *half) error {
	state, err := h.monitor.Watch(r.ctx, r.config.Clock)
	if err != nil {
		return nil
	}

	err = fmt.Errorf("%v on the %v connection (%v)", state, h.role, h.monitor.Thresholds())
	logger.Warningf("session (key=%v, id=%v): %v", r.key, r.id, err)
	r.shutdown(ReasonIdleTimeout, h.role, err)

	return err
}

func (r *Session) supervise() {
	<-r.ctx.Done()

	r.mutex.Lock()
	if r.reason == ReasonNone {
		r.reason = ReasonLocalShutdown
	}
	r.state = StateClosing
	halves := r.halves
	r.mutex.Unlock()
	if r.detach != nil {
		r.detach(r)
	}

	// Closing the connections unblocks the pending reads and writes.
	for _, h := range halves {
		if h == nil {
			continue
		}
		if err := h.stream.Close(); err != nil {
			logger.Debugf("failed to close the %v connection: %v", h.role, err)
		}
	}
	if err := r.group.Wait(); err != nil {
		logger.Debugf("session (key=%v, id=%v) goroutine error: %v", r.key, r.id, err)
	}

	r.mutex.Lock()
	r.state = StateClosed
	r.event = CloseEvent{
		Key:     r.key,
		ID:      r.id,
		Reason:  r.reason,
		Role:    r.role,
		Err:     r.err,
		Created: r.created,
		Closed:  r.config.Clock.Now(),
		Stats:   r.Stats(),
	}
	event := r.event
	r.mutex.Unlock()
	close(r.done)

	logger.Infof("%v", event)
	if r.closed != nil {
		r.closed(event)
	}
}
