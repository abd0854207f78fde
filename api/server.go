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
	"errors"
	"fmt"
	"net/http"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/op/go-logging"
	"github.com/superkkt/flowdam/northbound/app/tap"
	"github.com/superkkt/flowdam/proxy"
)

var (
	logger = logging.MustGetLogger("api")
)

type Server struct {
	Port uint16
	TLS  struct {
		Cert string // Path for a TLS certification file.
		Key  string // Path for a TLS private key file.
	}
	Proxy   Proxy
	Tracker Tracker // Optional.
}

type Proxy interface {
	Sessions() []proxy.Status
	Status(key string) (proxy.Status, bool)
	// Close closes the session of key. It returns false if there is no such session.
	Close(key string) bool
}

type Tracker interface {
	Latency(responder proxy.Role) tap.Summary
	Pending() int
}

func (r *Server) validate() error {
	if r.Proxy == nil {
		return errors.New("nil proxy")
	}

	return nil
}

// Handler returns the HTTP handler that serves the REST API.
func (r *Server) Handler() (http.Handler, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	api := rest.NewApi()
	// Middleware to set the CORS header.
	api.Use(rest.MiddlewareSimple(func(handler rest.HandlerFunc) rest.HandlerFunc {
		return func(writer rest.ResponseWriter, request *rest.Request) {
			writer.Header().Set("Access-Control-Allow-Origin", "*")
			handler(writer, request)
		}
	}))
	router, err := rest.MakeRouter(
		rest.Get("/api/v1/session", r.listSession),
		rest.Get("/api/v1/session/#key", r.getSession),
		rest.Delete("/api/v1/session/#key", r.removeSession),
		rest.Get("/api/v1/latency", r.latency),
	)
	if err != nil {
		return nil, err
	}
	api.SetApp(router)

	return api.MakeHandler(), nil
}

func (r *Server) Serve() error {
	handler, err := r.Handler()
	if err != nil {
		return err
	}

	// Listen on all interfaces.
	addr := fmt.Sprintf(":%v", r.Port)
	logger.Infof("serving the REST API on %v", addr)
	if r.TLS.Cert != "" && r.TLS.Key != "" {
		err = http.ListenAndServeTLS(addr, r.TLS.Cert, r.TLS.Key, handler)
	} else {
		err = http.ListenAndServe(addr, handler)
	}

	return err
}
