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
	"time"
)

// Reason explains why a session has been closed.
type Reason uint8

const (
	ReasonNone Reason = iota
	// Malformed OpenFlow header on either half.
	ReasonFramingError
	// Read or write failure, including an orderly disconnect of the peer.
	ReasonTransportError
	// A message handler returned an error or panicked.
	ReasonHandlerError
	// The idle monitor of either half fired.
	ReasonIdleTimeout
	// Closed by the proxy itself.
	ReasonLocalShutdown
	// The second half did not attach within the pairing timeout.
	ReasonPairTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonFramingError:
		return "framing-error"
	case ReasonTransportError:
		return "transport-error"
	case ReasonHandlerError:
		return "handler-error"
	case ReasonIdleTimeout:
		return "idle-timeout"
	case ReasonLocalShutdown:
		return "local-shutdown"
	case ReasonPairTimeout:
		return "pair-timeout"
	default:
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// CloseEvent is emitted exactly once per session when it reaches the CLOSED state.
type CloseEvent struct {
	Key    string
	ID     uint64
	Reason Reason
	// Role of the half that caused the closure. Zero if not caused by a half.
	Role    Role
	Err     error
	Created time.Time
	Closed  time.Time
	Stats   Stats
}

func (r CloseEvent) String() string {
	return fmt.Sprintf("session (key=%v, id=%v) closed: reason=%v, role=%v, err=%v, lifetime=%v", r.Key, r.ID, r.Reason, r.Role, r.Err, r.Closed.Sub(r.Created))
}

// EventListener receives session closure events.
type EventListener interface {
	OnSessionClosed(CloseEvent)
}
