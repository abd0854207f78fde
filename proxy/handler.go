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
	"github.com/superkkt/flowdam/openflow"
)

// Handler processes frames read from one half of a session. The proxy uses
// one handler for upstream frames (read from a switch) and another for
// downstream frames (read from the controller).
//
// Handle is called on the reader goroutine of the originating connection, one
// frame at a time in arrival order. It must not block; the frames it returns
// are queued and written by the session. To close its session a handler
// calls s.Shutdown, never s.Close, which waits for the calling goroutine itself.
type Handler interface {
	Handle(s *Session, origin Role, f *openflow.Frame) (Action, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(s *Session, origin Role, f *openflow.Frame) (Action, error)

func (r HandlerFunc) Handle(s *Session, origin Role, f *openflow.Frame) (Action, error) {
	return r(s, origin, f)
}

// Action is the decision of a handler for a single frame. The zero value
// forwards the frame as-is.
type Action struct {
	// Drop suppresses the primary frame.
	Drop bool
	// Frame replaces the primary frame if it is not nil.
	Frame *openflow.Frame
	// Before and After are injected to the peer around the primary frame.
	Before []*openflow.Frame
	After  []*openflow.Frame
	// Reply is written back to the originating connection.
	Reply []*openflow.Frame
}

// Forward passes the frame to the peer unchanged.
func Forward() Action {
	return Action{}
}

// Transform forwards f instead of the original frame.
func Transform(f *openflow.Frame) Action {
	if f == nil {
		panic("transformed frame is nil")
	}
	return Action{Frame: f}
}

func Drop() Action {
	return Action{Drop: true}
}

// Inject writes additional frames to the peer before and after the original
// frame, which is forwarded only if forward is true.
func Inject(before, after []*openflow.Frame, forward bool) Action {
	return Action{
		Drop:   !forward,
		Before: before,
		After:  after,
	}
}

// Respond drops the original frame and answers the originating connection with replies.
func Respond(replies ...*openflow.Frame) Action {
	return Action{
		Drop:  true,
		Reply: replies,
	}
}

func (a Action) frames() []*openflow.Frame {
	v := make([]*openflow.Frame, 0, len(a.Before)+len(a.After)+len(a.Reply)+1)
	v = append(v, a.Before...)
	if a.Frame != nil {
		v = append(v, a.Frame)
	}
	v = append(v, a.After...)
	v = append(v, a.Reply...)

	return v
}
