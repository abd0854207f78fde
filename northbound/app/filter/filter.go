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

package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/superkkt/flowdam/northbound/app"
	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/proxy"

	"github.com/op/go-logging"
	"github.com/spf13/viper"
)

var (
	logger = logging.MustGetLogger("filter")
)

// Filter drops the frames whose message type is listed in the configuration,
// for example "FLOW_MOD, PACKET_OUT". Type names are version independent.
type Filter struct {
	app.BaseProcessor
	dir   proxy.Direction
	types map[string]struct{}
}

func New() *Filter {
	return &Filter{
		types: make(map[string]struct{}),
	}
}

func (r *Filter) Init(dir proxy.Direction) error {
	r.dir = dir
	r.types = parseTypes(viper.GetString(fmt.Sprintf("filter.%v_drop_types", dir)))
	logger.Infof("%v filter drops %v", dir, r.Types())

	return nil
}

// SetTypes replaces the dropped message types.
func (r *Filter) SetTypes(types ...string) {
	r.types = parseTypes(strings.Join(types, ","))
}

func parseTypes(s string) map[string]struct{} {
	v := make(map[string]struct{})
	// Remove spaces, and then split it using comma
	for _, t := range strings.Split(strings.Replace(s, " ", "", -1), ",") {
		if len(t) == 0 {
			continue
		}
		v[strings.ToUpper(t)] = struct{}{}
	}

	return v
}

func (r *Filter) Types() []string {
	v := make([]string, 0, len(r.types))
	for t := range r.types {
		v = append(v, t)
	}
	sort.Strings(v)

	return v
}

func (r *Filter) Name() string {
	return "Filter"
}

func (r *Filter) String() string {
	return fmt.Sprintf("%v (%v): drop=%v", r.Name(), r.dir, r.Types())
}

func (r *Filter) Handle(s *proxy.Session, origin proxy.Role, f *openflow.Frame) (proxy.Action, error) {
	if _, ok := r.types[openflow.TypeName(f.Version, f.Type)]; ok {
		logger.Debugf("dropping %v from the %v (session=%v)", f, origin, s.Key())
		return proxy.Drop(), nil
	}

	return r.BaseProcessor.Handle(s, origin, f)
}
