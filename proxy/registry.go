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
	"sort"
	"sync"
)

// registry holds the sessions by their pairing key. There is at most one
// session per key; a closing session is removed before it is released.
type registry struct {
	mutex  sync.Mutex
	elems  map[string]*Session
	lastID uint64
}

func newRegistry() *registry {
	return &registry{elems: make(map[string]*Session)}
}

// NOTE: The caller should lock the mutex before calling this function.
func (r *registry) nextID() uint64 {
	r.lastID++
	return r.lastID
}

func (r *registry) get(key string) (*Session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.elems[key]
	return s, ok
}

// remove deletes the session only if it is still the one registered under its key.
func (r *registry) remove(s *Session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if v, ok := r.elems[s.Key()]; ok && v == s {
		delete(r.elems, s.Key())
	}
}

func (r *registry) all() []*Session {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v := make([]*Session, 0, len(r.elems))
	for _, s := range r.elems {
		v = append(v, s)
	}
	sort.Slice(v, func(i, j int) bool { return v[i].Key() < v[j].Key() })

	return v
}

func (r *registry) len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.elems)
}
