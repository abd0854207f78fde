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
	"time"

	"github.com/superkkt/flowdam/northbound/app"
	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/proxy"

	"github.com/op/go-logging"
	"github.com/spf13/viper"
)

var (
	logger = logging.MustGetLogger("tap")
)

// Tap measures how long switches and controllers take to answer requests. It
// never changes the frames.
type Tap struct {
	app.BaseProcessor
	dir     proxy.Direction
	tracker *Tracker
}

func New(tracker *Tracker) *Tap {
	if tracker == nil {
		panic("tracker is nil")
	}

	return &Tap{tracker: tracker}
}

func (r *Tap) Init(dir proxy.Direction) error {
	r.dir = dir

	size := viper.GetInt("tap.cache_size")
	expiration := time.Duration(viper.GetInt("tap.expiration_ms")) * time.Millisecond
	if size < 0 || expiration < 0 {
		return fmt.Errorf("invalid tap configuration: cache_size=%v, expiration=%v", size, expiration)
	}

	return r.tracker.configure(size, expiration)
}

func (r *Tap) Name() string {
	return "Tap"
}

func (r *Tap) String() string {
	return fmt.Sprintf("%v (%v): switch=(%v), controller=(%v), pending=%v", r.Name(), r.dir,
		r.tracker.Latency(proxy.RoleSwitch), r.tracker.Latency(proxy.RoleController), r.tracker.Pending())
}

func (r *Tap) Handle(s *proxy.Session, origin proxy.Role, f *openflow.Frame) (proxy.Action, error) {
	r.tracker.observe(s.ID(), origin, f)
	return r.BaseProcessor.Handle(s, origin, f)
}
