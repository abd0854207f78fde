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
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestCodec(t *testing.T) {
	samples := []struct {
		Packet   string
		Expected Frame
	}{
		{
			// OF1.3 HELLO with a version bitmap element.
			Packet: "04000010000000010001000800000010",
			Expected: Frame{
				Version: OF13_VERSION,
				Type:    OFPT_HELLO,
				Body:    []byte{0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x08, 0x00, 0x00, 0x00, 0x10},
			},
		},
		{
			// OF1.0 ECHO_REQUEST without data.
			Packet: "010200080000beef",
			Expected: Frame{
				Version: OF10_VERSION,
				Type:    OFPT_ECHO_REQUEST,
				Body:    []byte{0x00, 0x00, 0xbe, 0xef},
			},
		},
		{
			// Header only frame.
			Packet: "04030004",
			Expected: Frame{
				Version: OF13_VERSION,
				Type:    OFPT_ECHO_REPLY,
				Body:    []byte{},
			},
		},
	}

	for _, v := range samples {
		p, err := hex.DecodeString(v.Packet)
		if err != nil {
			t.Fatal(err)
		}

		f, n, err := Decode(p)
		if err != nil {
			t.Fatalf("unexpected decode error: %v", err)
		}
		if n != len(p) {
			t.Fatalf("unexpected consumed length: expected=%v, actual=%v", len(p), n)
		}
		if cmp.Equal(*f, v.Expected) == false {
			t.Fatalf("unexpected decoded frame: expected=%v, actual=%v, diff=%v", spew.Sdump(v.Expected), spew.Sdump(f), cmp.Diff(v.Expected, *f))
		}

		m, err := Encode(f)
		if err != nil {
			t.Fatalf("unexpected encode error: %v", err)
		}
		if bytes.Equal(m, p) == false {
			t.Fatalf("unexpected encoded frame: expected=%x, actual=%x", p, m)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	samples := []*Frame{
		NewFrame(OF13_VERSION, OFPT_HELLO, 1, nil),
		NewFrame(OF13_VERSION, 14, 0xdeadbeef, bytes.Repeat([]byte{0xab}, 100)),
		NewFrame(OF10_VERSION, OFPT_ECHO_REPLY, 7, []byte("ping")),
		NewFrame(OF13_VERSION, 10, 3, make([]byte, MaxFrameLength-HeaderLength-4)),
	}

	for _, v := range samples {
		p, err := v.MarshalBinary()
		if err != nil {
			t.Fatalf("unexpected marshal error: %v", err)
		}
		if len(p) != v.Length() {
			t.Fatalf("unexpected marshaled length: expected=%v, actual=%v", v.Length(), len(p))
		}

		f := new(Frame)
		if err := f.UnmarshalBinary(p); err != nil {
			t.Fatalf("unexpected unmarshal error: %v", err)
		}
		if cmp.Equal(f, v) == false {
			t.Fatalf("unexpected unmarshaled frame: %v", cmp.Diff(v, f))
		}
	}
}

func TestDecodeNeedMoreData(t *testing.T) {
	p, _ := Encode(NewFrame(OF13_VERSION, OFPT_ECHO_REQUEST, 9, []byte{1, 2, 3, 4}))

	for i := 0; i < len(p); i++ {
		f, n, err := Decode(p[:i])
		if err != nil {
			t.Fatalf("unexpected decode error at %v bytes: %v", i, err)
		}
		if f != nil || n != 0 {
			t.Fatalf("expected no frame and zero consumed bytes at %v bytes: frame=%v, consumed=%v", i, f, n)
		}
	}
}

func TestDecodeInvalidLength(t *testing.T) {
	for _, length := range []string{"0000", "0001", "0003"} {
		p, _ := hex.DecodeString("0400" + length + "00000000")
		f, n, err := Decode(p)
		if errors.Cause(err) != ErrInvalidPacketLength {
			t.Fatalf("expected ErrInvalidPacketLength for length 0x%v: %v", length, err)
		}
		if f != nil || n != 0 {
			t.Fatalf("unexpected result for length 0x%v: frame=%v, consumed=%v", length, f, n)
		}
		if IsFramingError(errors.Wrap(err, "read")) == false {
			t.Fatalf("expected a framing error: %v", err)
		}
	}
}

func TestEncodeTooLarge(t *testing.T) {
	f := &Frame{Version: OF13_VERSION, Type: 10, Body: make([]byte, MaxFrameLength-HeaderLength+1)}
	if _, err := Encode(f); err != ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge: %v", err)
	}

	f.Body = f.Body[:MaxFrameLength-HeaderLength]
	p, err := Encode(f)
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	if len(p) != MaxFrameLength {
		t.Fatalf("unexpected encoded length: expected=%v, actual=%v", MaxFrameLength, len(p))
	}
}

func TestTransactionID(t *testing.T) {
	f := NewFrame(OF13_VERSION, OFPT_ECHO_REQUEST, 0x01020304, []byte{0xff})
	xid, ok := f.TransactionID()
	if !ok || xid != 0x01020304 {
		t.Fatalf("unexpected transaction ID: xid=%#x, ok=%v", xid, ok)
	}
	if err := f.SetTransactionID(42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if xid, _ := f.TransactionID(); xid != 42 {
		t.Fatalf("unexpected transaction ID: expected=42, actual=%v", xid)
	}
	if bytes.Equal(f.Payload(), []byte{0xff}) == false {
		t.Fatalf("unexpected payload: %x", f.Payload())
	}

	short := &Frame{Version: OF13_VERSION, Type: OFPT_HELLO, Body: []byte{0x00, 0x01}}
	if _, ok := short.TransactionID(); ok {
		t.Fatal("expected no transaction ID in a 2-byte body")
	}
	if err := short.SetTransactionID(1); err != ErrInvalidPacketLength {
		t.Fatalf("expected ErrInvalidPacketLength: %v", err)
	}
}

func TestClone(t *testing.T) {
	f := NewFrame(OF13_VERSION, OFPT_ECHO_REQUEST, 1, []byte{1, 2, 3})
	c := f.Clone()
	c.Body[4] = 0xff
	if f.Body[4] != 1 {
		t.Fatal("clone shares the body with the original frame")
	}
}

func TestTypeName(t *testing.T) {
	samples := []struct {
		Version  uint8
		Type     uint8
		Expected string
	}{
		{OF10_VERSION, OFPT_HELLO, "HELLO"},
		{OF10_VERSION, 14, "FLOW_MOD"},
		{OF13_VERSION, 14, "FLOW_MOD"},
		{OF13_VERSION, 18, "MULTIPART_REQUEST"},
		{OF10_VERSION, 16, "STATS_REQUEST"},
		{0x05, OFPT_ECHO_REPLY, "ECHO_REPLY"},
		{0x05, 14, "UNKNOWN(14)"},
		{OF13_VERSION, 200, "UNKNOWN(200)"},
	}

	for _, v := range samples {
		if name := TypeName(v.Version, v.Type); name != v.Expected {
			t.Fatalf("unexpected type name of (%v, %v): expected=%v, actual=%v", v.Version, v.Type, v.Expected, name)
		}
	}
}
