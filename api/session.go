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


package api

import (
	"github.com/ant0ine/go-json-rest/rest"
	"github.com/superkkt/flowdam/northbound/app/tap"
	"github.com/superkkt/flowdam/proxy"
)

func (r *Server) listSession(w rest.ResponseWriter, req *rest.Request) {
	sessions := r.Proxy.Sessions()
	logger.Debugf("session list request from %v: %v sessions", req.RemoteAddr, len(sessions))

	w.WriteJson(&Response{Status: StatusOkay, Data: sessions})
}

func (r *Server) getSession(w rest.ResponseWriter, req *rest.Request) {
	key := req.PathParam("key")
	if key == "" {
		w.WriteJson(&Response{Status: StatusInvalidParameter, Message: "empty session key"})
		return
	}

	status, ok := r.Proxy.Status(key)
	if !ok {
		w.WriteJson(&Response{Status: StatusNotFound, Message: "unknown session: " + key})
		return
	}

	w.WriteJson(&Response{Status: StatusOkay, Data: status})
}

func (r *Server) removeSession(w rest.ResponseWriter, req *rest.Request) {
	key := req.PathParam("key")
	if key == "" {
		w.WriteJson(&Response{Status: StatusInvalidParameter, Message: "empty session key"})
		return
	}
	logger.Infof("session remove request from %v: key=%v", req.RemoteAddr, key)

	if !r.Proxy.Close(key) {
		w.WriteJson(&Response{Status: StatusNotFound, Message: "unknown session: " + key})
		return
	}

	w.WriteJson(&Response{Status: StatusOkay})
}

type latency struct {
	Controller tap.Summary `json:"controller"`
	Switch     tap.Summary `json:"switch"`
	Pending    int         `json:"pending"`
}

func (r *Server) latency(w rest.ResponseWriter, req *rest.Request) {
	if r.Tracker == nil {
		w.WriteJson(&Response{Status: StatusServiceUnavailable, Message: "latency tap is not enabled"})
		return
	}

	w.WriteJson(&Response{
		Status: StatusOkay,
		Data: &latency{
			Controller: r.Tracker.Latency(proxy.RoleController),
			Switch:     r.Tracker.Latency(proxy.RoleSwitch),
			Pending:    r.Tracker.Pending(),
		},
	})
}
