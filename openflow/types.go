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

package openflow

import (
	"fmt"
)

const (
	OF10_VERSION = 0x01
	OF13_VERSION = 0x04
)

// Message types shared by every OpenFlow version.
const (
	OFPT_HELLO        uint8 = 0x00
	OFPT_ERROR        uint8 = 0x01
	OFPT_ECHO_REQUEST uint8 = 0x02
	OFPT_ECHO_REPLY   uint8 = 0x03
)

var of10Types = []string{
	"HELLO",
	"ERROR",
	"ECHO_REQUEST",
	"ECHO_REPLY",
	"VENDOR",
	"FEATURES_REQUEST",
	"FEATURES_REPLY",
	"GET_CONFIG_REQUEST",
	"GET_CONFIG_REPLY",
	"SET_CONFIG",
	"PACKET_IN",
	"FLOW_REMOVED",
	"PORT_STATUS",
	"PACKET_OUT",
	"FLOW_MOD",
	"PORT_MOD",
	"STATS_REQUEST",
	"STATS_REPLY",
	"BARRIER_REQUEST",
	"BARRIER_REPLY",
	"QUEUE_GET_CONFIG_REQUEST",
	"QUEUE_GET_CONFIG_REPLY",
}

var of13Types = []string{
	"HELLO",
	"ERROR",
	"ECHO_REQUEST",
	"ECHO_REPLY",
	"EXPERIMENTER",
	"FEATURES_REQUEST",
	"FEATURES_REPLY",
	"GET_CONFIG_REQUEST",
	"GET_CONFIG_REPLY",
	"SET_CONFIG",
	"PACKET_IN",
	"FLOW_REMOVED",
	"PORT_STATUS",
	"PACKET_OUT",
	"FLOW_MOD",
	"GROUP_MOD",
	"PORT_MOD",
	"TABLE_MOD",
	"MULTIPART_REQUEST",
	"MULTIPART_REPLY",
	"BARRIER_REQUEST",
	"BARRIER_REPLY",
	"QUEUE_GET_CONFIG_REQUEST",
	"QUEUE_GET_CONFIG_REPLY",
	"ROLE_REQUEST",
	"ROLE_REPLY",
	"GET_ASYNC_REQUEST",
	"GET_ASYNC_REPLY",
	"SET_ASYNC",
	"METER_MOD",
}

// TypeName returns the symbolic name of a message type, for example FLOW_MOD.
// Versions other than 1.0 and 1.3 only resolve the version-independent types.
func TypeName(version, msgType uint8) string {
	var names []string
	switch version {
	case OF10_VERSION:
		names = of10Types
	case OF13_VERSION:
		names = of13Types
	default:
		names = of13Types[:OFPT_ECHO_REPLY+1]
	}

	if int(msgType) < len(names) {
		return names[msgType]
	}

	return fmt.Sprintf("UNKNOWN(%v)", msgType)
}
