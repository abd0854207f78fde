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

package echo

import (
	"fmt"

	"github.com/superkkt/flowdam/northbound/app"
	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/proxy"

	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("echo")
)

// Echo answers ECHO_REQUEST messages on behalf of the peer, so the liveness
// check of a connection does not depend on the responsiveness of the other side.
type Echo struct {
	app.BaseProcessor
	dir proxy.Direction
}

func New() *Echo {
	return &Echo{}
}

func (r *Echo) Init(dir proxy.Direction) error {
	r.dir = dir
	return nil
}

func (r *Echo) Name() string {
	return "Echo"
}

func (r *Echo) String() string {
	return fmt.Sprintf("%v (%v)", r.Name(), r.dir)
}

func (r *Echo) Handle(s *proxy.Session, origin proxy.Role, f *openflow.Frame) (proxy.Action, error) {
	if f.Type != openflow.OFPT_ECHO_REQUEST {
		return r.BaseProcessor.Handle(s, origin, f)
	}
	if _, ok := f.TransactionID(); !ok {
		return proxy.Action{}, fmt.Errorf("ECHO_REQUEST without a transaction ID from the %v", origin)
	}

	// Copy transaction ID and data from the incoming echo request message
	reply := f.Clone()
	reply.Type = openflow.OFPT_ECHO_REPLY
	logger.Debugf("answering %v from the %v (session=%v)", f, origin, s.Key())

	return proxy.Respond(reply), nil
}
