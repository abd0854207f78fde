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
	"fmt"
)

// Role tells which kind of peer a connection belongs to. It is fixed when the
// connection is attached and is only used to pick the route of its frames.
type Role uint8

const (
	RoleSwitch Role = iota + 1
	RoleController
	// RoleProxy marks frames that the proxy itself originates. It never
	// belongs to a live network peer.
	RoleProxy
)

func (r Role) String() string {
	switch r {
	case RoleSwitch:
		return "SWITCH"
	case RoleController:
		return "CONTROLLER"
	case RoleProxy:
		return "PROXY"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Peer returns the role on the other side of a session.
func (r Role) Peer() Role {
	switch r {
	case RoleSwitch:
		return RoleController
	case RoleController:
		return RoleSwitch
	case RoleProxy:
		panic("proxy role does not have a peer")
	default:
		panic(fmt.Sprintf("unexpected role: %v", r))
	}
}

// Direction is the direction of frames that are read from a connection of this role.
type Direction uint8

const (
	// Upstream is the direction from a switch to the controller.
	Upstream Direction = iota + 1
	// Downstream is the direction from the controller to a switch.
	Downstream
)

func (r Direction) String() string {
	switch r {
	case Upstream:
		return "upstream"
	case Downstream:
		return "downstream"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(r))
	}
}

func (r Role) Direction() Direction {
	switch r {
	case RoleSwitch:
		return Upstream
	case RoleController:
		return Downstream
	case RoleProxy:
		panic("proxy role does not have a direction")
	default:
		panic(fmt.Sprintf("unexpected role: %v", r))
	}
}

func (r Role) valid() bool {
	return r == RoleSwitch || r == RoleController
}
