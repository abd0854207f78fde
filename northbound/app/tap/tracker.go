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

package tap

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/proxy"

	lru "github.com/hashicorp/golang-lru"
)

const (
	DefaultCacheSize  = 8192
	DefaultExpiration = 10 * time.Second
)

// Summary is the round-trip latency of requests answered by one side.
type Summary struct {
	Count   uint64        `json:"count"`
	Last    time.Duration `json:"last"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Average time.Duration `json:"average"`
	total   time.Duration
}

func (r *Summary) add(d time.Duration) {
	r.Count++
	r.Last = d
	if r.Count == 1 || d < r.Min {
		r.Min = d
	}
	if d > r.Max {
		r.Max = d
	}
	r.total += d
	r.Average = r.total / time.Duration(r.Count)
}

func (r Summary) String() string {
	return fmt.Sprintf("count=%v, last=%v, min=%v, max=%v, avg=%v", r.Count, r.Last, r.Min, r.Max, r.Average)
}

// Tracker matches requests with their replies by session and transaction ID.
// It is shared by the upstream and downstream taps.
type Tracker struct {
	once       sync.Once
	cache      *lru.Cache
	expiration time.Duration
	now        func() time.Time

	mutex   sync.Mutex
	samples map[proxy.Role]*Summary
}

func NewTracker() *Tracker {
	return &Tracker{
		now:     time.Now,
		samples: make(map[proxy.Role]*Summary),
	}
}

// configure sets up the pending request cache. Only the first call has effect.
func (r *Tracker) configure(size int, expiration time.Duration) error {
	var err error
	r.once.Do(func() {
		if size <= 0 {
			size = DefaultCacheSize
		}
		if expiration <= 0 {
			expiration = DefaultExpiration
		}
		r.expiration = expiration
		r.cache, err = lru.New(size)
	})

	return err
}

func (r *Tracker) key(sessionID uint64, requester proxy.Role, xid uint32) string {
	return fmt.Sprintf("%v/%v/%v", sessionID, requester, xid)
}

func isRequest(name string) bool {
	return strings.HasSuffix(name, "_REQUEST")
}

func isReply(f *openflow.Frame, name string) bool {
	return strings.HasSuffix(name, "_REPLY") || f.Type == openflow.OFPT_ERROR
}

func (r *Tracker) observe(sessionID uint64, origin proxy.Role, f *openflow.Frame) {
	if r.cache == nil {
		panic("tracker is not configured")
	}
	xid, ok := f.TransactionID()
	if !ok {
		return
	}

	name := openflow.TypeName(f.Version, f.Type)
	if isRequest(name) {
		r.cache.Add(r.key(sessionID, origin, xid), r.now())
		return
	}
	if !isReply(f, name) {
		return
	}

	// The request has been sent by the peer of the origin.
	key := r.key(sessionID, origin.Peer(), xid)
	v, ok := r.cache.Get(key)
	if !ok {
		return
	}
	r.cache.Remove(key)

	elapsed := r.now().Sub(v.(time.Time))
	// Timeout?
	if elapsed > r.expiration {
		logger.Debugf("ignored the expired request: key=%v, elapsed=%v", key, elapsed)
		return
	}
	r.record(origin, elapsed)
}

func (r *Tracker) record(responder proxy.Role, d time.Duration) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.samples[responder]
	if !ok {
		s = new(Summary)
		r.samples[responder] = s
	}
	s.add(d)
}

// Latency returns the latency summary of requests answered by responder.
func (r *Tracker) Latency(responder proxy.Role) Summary {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.samples[responder]
	if !ok {
		return Summary{}
	}
	return *s
}

// Pending returns the number of requests waiting for their replies.
func (r *Tracker) Pending() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}
