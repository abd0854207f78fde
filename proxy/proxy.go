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
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("proxy")
)

const (
	DefaultQueueSize   = 1024
	DefaultPairTimeout = 30 * time.Second
)

// Config is the proxy-wide configuration applied to new sessions.
type Config struct {
	Idle IdleThresholds
	// Maximum time a session can stay PENDING. Zero disables the limit.
	PairTimeout time.Duration
	// Capacity of the outbound frame queue of each connection.
	QueueSize int
	// Write deadline of a single frame. Zero disables the deadline.
	WriteTimeout time.Duration
	// Time source of the idle monitors. SystemClock if nil.
	Clock Clock
}

// Proxy binds switch connections to controller connections by a pairing key
// chosen by the caller, and routes their frames through the upstream and
// downstream handlers.
type Proxy struct {
	upstream   Handler
	downstream Handler
	registry   *registry

	mutex    sync.Mutex
	config   Config
	listener EventListener
}

// New returns a proxy. upstream handles frames read from switches, downstream
// handles frames read from controllers.
func New(c Config, upstream, downstream Handler) *Proxy {
	if upstream == nil {
		panic("upstream handler is nil")
	}
	if downstream == nil {
		panic("downstream handler is nil")
	}

	return &Proxy{
		upstream:   upstream,
		downstream: downstream,
		registry:   newRegistry(),
		config:     c,
	}
}

// SetEventListener registers a listener that receives the close events of all sessions.
func (r *Proxy) SetEventListener(l EventListener) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.listener = l
}

// SetIdleThresholds changes the idle thresholds of sessions that will be created afterwards.
func (r *Proxy) SetIdleThresholds(t IdleThresholds) {
	if t.Read < 0 || t.Write < 0 {
		panic("negative idle threshold")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.config.Idle = t
	logger.Infof("idle thresholds are changed: %v", t)
}

func (r *Proxy) getConfig() Config {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.config
}

func (r *Proxy) onSessionClosed(e CloseEvent) {
	r.mutex.Lock()
	l := r.listener
	r.mutex.Unlock()

	if l != nil {
		l.OnSessionClosed(e)
	}
}

// Attach hands an established connection of role to the session of key,
// creating a PENDING session if there is none. The session becomes ACTIVE when
// the other half is attached under the same key. If the session already has a
// connection of role, ErrDuplicatedHalf is returned and conn is closed. Canceling
// ctx closes the session.
func (r *Proxy) Attach(ctx context.Context, key string, role Role, conn io.ReadWriteCloser) (*Session, error) {
	if conn == nil {
		panic("conn is nil")
	}
	if !role.valid() {
		conn.Close()
		return nil, errors.Wrap(ErrInvalidRole, role.String())
	}
	if len(key) == 0 {
		conn.Close()
		return nil, errors.New("empty pairing key")
	}

	r.registry.mutex.Lock()
	defer r.registry.mutex.Unlock()

	for {
		s, ok := r.registry.elems[key]
		if !ok {
			s = r.newSession(key)
			r.registry.elems[key] = s
			logger.Debugf("new session (key=%v, id=%v) is created by the %v", key, s.ID(), role)
		}

		err := s.attach(ctx, role, conn)
		if err == nil {
			return s, nil
		}
		if err == ErrSessionClosed {
			// The previous session is closing. Replace it with a new one.
			delete(r.registry.elems, key)
			continue
		}

		logger.Warningf("rejected the %v connection for the session (key=%v, id=%v): %v", role, key, s.ID(), err)
		conn.Close()
		return nil, err
	}
}

// NOTE: The caller should lock the registry mutex before calling this function.
func (r *Proxy) newSession(key string) *Session {
	return newSession(sessionConfig{
		key:        key,
		id:         r.registry.nextID(),
		config:     r.getConfig(),
		upstream:   r.upstream,
		downstream: r.downstream,
		detach:     r.registry.remove,
		closed:     r.onSessionClosed,
	})
}

// Session returns the live session of key.
func (r *Proxy) Session(key string) (*Session, bool) {
	return r.registry.get(key)
}

// Status returns the status of the live session of key.
func (r *Proxy) Status(key string) (Status, bool) {
	s, ok := r.registry.get(key)
	if !ok {
		return Status{}, false
	}

	return s.Status(), true
}

// Sessions returns the status of all live sessions sorted by key.
func (r *Proxy) Sessions() []Status {
	sessions := r.registry.all()
	v := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		v = append(v, s.Status())
	}

	return v
}

// Close closes the session of key and waits until it is released.
func (r *Proxy) Close(key string) bool {
	s, ok := r.registry.get(key)
	if !ok {
		return false
	}
	s.Close()

	return true
}

// Shutdown closes all the sessions and waits until they are released.
func (r *Proxy) Shutdown() {
	sessions := r.registry.all()
	for _, s := range sessions {
		s.Shutdown(ReasonLocalShutdown, errors.New("proxy shutdown"))
	}
	for _, s := range sessions {
		<-s.Done()
	}
}

func (r *Proxy) String() string {
	var buf bytes.Buffer

	c := r.getConfig()
	buf.WriteString(fmt.Sprintf("Proxy: idle=(%v), pair_timeout=%v, queue_size=%v, sessions=%v\n", c.Idle, c.PairTimeout, c.QueueSize, r.registry.len()))
	for _, s := range r.registry.all() {
		buf.WriteString(fmt.Sprintf("\t%v\n", s))
	}

	return buf.String()
}
