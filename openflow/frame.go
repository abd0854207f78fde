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
	"encoding/binary"
	"fmt"
)

const (
	// HeaderLength is the size of the fixed part of the OpenFlow header that
	// carries version, type and length.
	HeaderLength = 4
	// MaxFrameLength is the largest frame the 16-bit length field can describe.
	MaxFrameLength = 0xFFFF
)

// Frame is one complete, length-delimited OpenFlow message as it appears on the wire.
type Frame struct {
	Version uint8
	Type    uint8
	// Body holds everything after the 4-byte header, including the transaction ID.
	Body []byte
}

func NewFrame(version, msgType uint8, xid uint32, payload []byte) *Frame {
	body := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(body[0:4], xid)
	copy(body[4:], payload)

	return &Frame{
		Version: version,
		Type:    msgType,
		Body:    body,
	}
}

// Length returns the total frame length including the header.
func (r *Frame) Length() int {
	return HeaderLength + len(r.Body)
}

// TransactionID returns the transaction ID if the body is long enough to carry one.
func (r *Frame) TransactionID() (xid uint32, ok bool) {
	if len(r.Body) < 4 {
		return 0, false
	}

	return binary.BigEndian.Uint32(r.Body[0:4]), true
}

func (r *Frame) SetTransactionID(xid uint32) error {
	if len(r.Body) < 4 {
		return ErrInvalidPacketLength
	}
	binary.BigEndian.PutUint32(r.Body[0:4], xid)

	return nil
}

// Payload returns the message body that follows the transaction ID.
func (r *Frame) Payload() []byte {
	if len(r.Body) <= 4 {
		return nil
	}

	return r.Body[4:]
}

// Clone returns a deep copy of the frame.
func (r *Frame) Clone() *Frame {
	v := &Frame{
		Version: r.Version,
		Type:    r.Type,
	}
	if r.Body != nil {
		v.Body = make([]byte, len(r.Body))
		copy(v.Body, r.Body)
	}

	return v
}

func (r *Frame) String() string {
	xid, _ := r.TransactionID()
	return fmt.Sprintf("Frame(ver=%v, type=%v, len=%v, xid=%v)", r.Version, TypeName(r.Version, r.Type), r.Length(), xid)
}

func (r *Frame) MarshalBinary() ([]byte, error) {
	return Encode(r)
}

func (r *Frame) UnmarshalBinary(data []byte) error {
	f, n, err := Decode(data)
	if err != nil {
		return err
	}
	if f == nil || n != len(data) {
		return ErrInvalidPacketLength
	}
	*r = *f

	return nil
}

// Encode serializes the header fields in wire byte order followed by the body verbatim.
func Encode(f *Frame) ([]byte, error) {
	if f == nil {
		return nil, ErrInvalidPacketLength
	}
	length := f.Length()
	if length > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}

	v := make([]byte, length)
	v[0] = f.Version
	v[1] = f.Type
	binary.BigEndian.PutUint16(v[2:4], uint16(length))
	copy(v[HeaderLength:], f.Body)

	return v, nil
}

// Decode parses at most one frame from the head of buf. It returns a nil frame
// and zero consumed bytes if buf does not yet hold a complete frame, so the caller
// can simply retry after the next read. A declared length smaller than the header
// is a framing error.
func Decode(buf []byte) (f *Frame, consumed int, err error) {
	if len(buf) < HeaderLength {
		return nil, 0, nil
	}

	length := int(binary.BigEndian.Uint16(buf[2:4]))
	if length < HeaderLength {
		return nil, 0, ErrInvalidPacketLength
	}
	if len(buf) < length {
		return nil, 0, nil
	}

	body := make([]byte, length-HeaderLength)
	copy(body, buf[HeaderLength:length])

	return &Frame{Version: buf[0], Type: buf[1], Body: body}, length, nil
}
