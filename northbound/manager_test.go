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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/superkkt/flowdam/openflow"
	"github.com/superkkt/flowdam/proxy"
	"github.com/superkkt/flowdam/proxy/proxytest"
)

func TestEnable(t *testing.T) {
	m := NewManager()

	if err := m.Enable(proxy.Upstream, "echo"); err != nil {
		t.Fatalf("unexpected enable error: %v", err)
	}
	if err := m.Enable(proxy.Upstream, "TAP"); err != nil {
		t.Fatalf("unexpected enable error: %v", err)
	}
	if err := m.Enable(proxy.Upstream, "Echo"); err == nil {
		t.Fatal("expected an error for a duplicated application")
	}
	if err := m.Enable(proxy.Downstream, "l2switch"); err == nil {
		t.Fatal("expected an error for an unknown application")
	}
	if err := m.Enable(proxy.Direction(0), "echo"); err == nil {
		t.Fatal("expected an error for an unknown direction")
	}

	s := m.String()
	if !strings.Contains(s, "Echo (upstream)") || !strings.Contains(s, "Tap (upstream)") {
		t.Fatalf("unexpected manager string: %v", s)
	}
}

func TestEmptyChainForwards(t *testing.T) {
	m := NewManager()

	action, err := m.Handler(proxy.Downstream).Handle(nil, proxy.RoleController, openflow.NewFrame(openflow.OF13_VERSION, 14, 1, nil))
	if err != nil {
		t.Fatalf("unexpected handle error: %v", err)
	}
	if cmp.Equal(action, proxy.Forward()) == false {
		t.Fatalf("unexpected action: %+v", action)
	}
}

func TestChain(t *testing.T) {
	viper.Set("filter.downstream_drop_types", "FLOW_MOD")
	defer viper.Set("filter.downstream_drop_types", "")

	m := NewManager()
	for _, name := range []string{"tap", "echo"} {
		if err := m.Enable(proxy.Upstream, name); err != nil {
			t.Fatalf("unexpected enable error: %v", err)
		}
	}
	for _, name := range []string{"tap", "filter"} {
		if err := m.Enable(proxy.Downstream, name); err != nil {
			t.Fatalf("unexpected enable error: %v", err)
		}
	}
	pair := proxytest.NewPair(t, "switch-1", proxy.Config{}, m.Handler(proxy.Upstream), m.Handler(proxy.Downstream))

	// Echo answers the switch.
	proxytest.Write(t, pair.Switch, openflow.NewFrame(openflow.OF13_VERSION, openflow.OFPT_ECHO_REQUEST, 1, nil))
	if v := proxytest.Read(t, pair.Switch, 5*time.Second); v.Type != openflow.OFPT_ECHO_REPLY {
		t.Fatalf("unexpected frame: %v", v)
	}

	// Filter drops FLOW_MOD, and the barrier round trip is measured by the taps.
	proxytest.Write(t, pair.Controller, openflow.NewFrame(openflow.OF13_VERSION, 14, 2, nil))
	proxytest.Write(t, pair.Controller, openflow.NewFrame(openflow.OF13_VERSION, 20, 3, nil))
	if v := proxytest.Read(t, pair.Switch, 5*time.Second); v.Type != 20 {
		t.Fatalf("unexpected frame: %v", v)
	}
	proxytest.Write(t, pair.Switch, openflow.NewFrame(openflow.OF13_VERSION, 21, 3, nil))
	if v := proxytest.Read(t, pair.Controller, 5*time.Second); v.Type != 21 {
		t.Fatalf("unexpected frame: %v", v)
	}

	if v := m.Tracker().Latency(proxy.RoleSwitch); v.Count != 1 {
		t.Fatalf("unexpected switch latency: %v", v)
	}
	if stats := pair.Session.Stats(); stats.Dropped != 2 || stats.Injected != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
