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

package northbound

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/superkkt/flowdam/northbound/app"
	"github.com/superkkt/flowdam/northbound/app/echo"
	"github.com/superkkt/flowdam/northbound/app/filter"
	"github.com/superkkt/flowdam/northbound/app/tap"
	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/proxy"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("northbound")
)

type factory func() app.Processor

type chain struct {
	head, tail app.Processor
	names      map[string]bool
}

// Manager builds the upstream and downstream handler chains from the registered applications.
type Manager struct {
	mutex     sync.Mutex
	factories map[string]factory
	chains    map[proxy.Direction]*chain
	tracker   *tap.Tracker
}

func NewManager() *Manager {
	v := &Manager{
		factories: make(map[string]factory),
		chains: map[proxy.Direction]*chain{
			proxy.Upstream:   {names: make(map[string]bool)},
			proxy.Downstream: {names: make(map[string]bool)},
		},
		tracker: tap.NewTracker(),
	}
	// Registering north-bound applications
	v.register("filter", func() app.Processor { return filter.New() })
	v.register("echo", func() app.Processor { return echo.New() })
	v.register("tap", func() app.Processor { return tap.New(v.tracker) })

	return v
}

func (r *Manager) register(name string, f factory) {
	r.factories[strings.ToUpper(name)] = f
}

// Tracker returns the latency tracker shared by the tap applications.
func (r *Manager) Tracker() *tap.Tracker {
	return r.tracker
}

// Enabled returns whether the application is enabled for any direction.
func (r *Manager) Enabled(appName string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	name := strings.ToUpper(appName)
	for _, c := range r.chains {
		if c.names[name] {
			return true
		}
	}

	return false
}

// Enable appends the application to the tail of the dir chain.
func (r *Manager) Enable(dir proxy.Direction, appName string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	logger.Debugf("enabling %v application for %v..", appName, dir)
	name := strings.ToUpper(appName)
	f, ok := r.factories[name]
	if !ok {
		return fmt.Errorf("unknown application: %v", appName)
	}
	c, ok := r.chains[dir]
	if !ok {
		return fmt.Errorf("unknown direction: %v", dir)
	}
	if c.names[name] {
		return fmt.Errorf("%v application is already enabled for %v", appName, dir)
	}

	app := f()
	if err := app.Init(dir); err != nil {
		return errors.Wrap(err, "initializing application")
	}
	c.names[name] = true
	logger.Infof("enabled %v application for %v", appName, dir)

	if c.head == nil {
		c.head = app
		c.tail = app
		return nil
	}
	c.tail.SetNext(app)
	c.tail = app

	return nil
}

// Handler returns the handler that runs the dir chain. Frames are forwarded
// as-is if no application is enabled.
func (r *Manager) Handler(dir proxy.Direction) proxy.Handler {
	return proxy.HandlerFunc(func(s *proxy.Session, origin proxy.Role, f *openflow.Frame) (proxy.Action, error) {
		r.mutex.Lock()
		head := r.chains[dir].head
		r.mutex.Unlock()

		if head == nil {
			return proxy.Forward(), nil
		}
		return head.Handle(s, origin, f)
	})
}

func (r *Manager) String() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var buf bytes.Buffer
	for _, dir := range []proxy.Direction{proxy.Upstream, proxy.Downstream} {
		buf.WriteString(fmt.Sprintf("%v:\n", dir))
		app := r.chains[dir].head
		for app != nil {
			buf.WriteString(fmt.Sprintf("\t%v\n", app))
			next, ok := app.Next()
			if !ok {
				break
			}
			app = next
		}
	}

	return buf.String()
}
