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

package app

import (
	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/proxy"
)

// Processor is a link of a handler chain. It should prepare to be executed by
// multiple goroutines simultaneously because every session shares it.
type Processor interface {
	proxy.Handler
	// Init is called once before the processor handles frames of dir.
	Init(dir proxy.Direction) error
	// Name returns the application name that is globally unique.
	Name() string
	Next() (next Processor, ok bool)
	SetNext(Processor)
}

type BaseProcessor struct {
	next Processor
}

func (r *BaseProcessor) Init(dir proxy.Direction) error {
	return nil
}

func (r *BaseProcessor) Name() string {
	return "BaseProcessor"
}

func (r *BaseProcessor) Handle(s *proxy.Session, origin proxy.Role, f *openflow.Frame) (proxy.Action, error) {
	// Do nothing and execute the next processor if it exists
	next, ok := r.Next()
	if !ok {
		return proxy.Forward(), nil
	}
	return next.Handle(s, origin, f)
}

func (r *BaseProcessor) Next() (next Processor, ok bool) {
	if r.next == nil {
		return nil, false
	}
	return r.next, true
}

func (r *BaseProcessor) SetNext(next Processor) {
	r.next = next
}
