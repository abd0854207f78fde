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


package transceiver

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/superkkt/flowdam/openflow"
)

// chunkConn returns one scripted chunk per read and records the writes.
type chunkConn struct {
	chunks  [][]byte
	err     error
	written bytes.Buffer
	closed  bool
}

func (r *chunkConn) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	if len(r.chunks) == 0 && r.err != nil {
		return n, r.err
	}

	return n, nil
}

func (r *chunkConn) Write(p []byte) (int, error) {
	return r.written.Write(p)
}

func (r *chunkConn) Close() error {
	r.closed = true
	return nil
}

func encode(t *testing.T, frames ...*openflow.Frame) []byte {
	var v []byte
	for _, f := range frames {
		p, err := openflow.Encode(f)
		if err != nil {
			t.Fatal(err)
		}
		v = append(v, p...)
	}

	return v
}

func TestReadFrameFragmented(t *testing.T) {
	f1 := openflow.NewFrame(openflow.OF13_VERSION, openflow.OFPT_HELLO, 1, nil)
	f2 := openflow.NewFrame(openflow.OF13_VERSION, openflow.OFPT_ECHO_REQUEST, 2, []byte("abcdefgh"))
	p := encode(t, f1, f2)

	conn := &chunkConn{chunks: [][]byte{p[:3], p[3:10], p[10:11], p[11:]}}
	s := NewStream(conn, 0)

	for _, expected := range []*openflow.Frame{f1, f2} {
		f, err := s.ReadFrame()
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		if cmp.Equal(f, expected) == false {
			t.Fatalf("unexpected frame: %v", cmp.Diff(expected, f))
		}
	}
	if _, err := s.ReadFrame(); err != io.EOF {
		t.Fatalf("expected EOF: %v", err)
	}
}

func TestReadFrameBeforeError(t *testing.T) {
	f1 := openflow.NewFrame(openflow.OF13_VERSION, openflow.OFPT_HELLO, 1, nil)
	f2 := openflow.NewFrame(openflow.OF13_VERSION, openflow.OFPT_HELLO, 2, nil)

	// Both frames arrive together with the end of the stream.
	conn := &chunkConn{chunks: [][]byte{encode(t, f1, f2)}, err: io.EOF}
	s := NewStream(conn, 0)

	for _, expected := range []*openflow.Frame{f1, f2} {
		f, err := s.ReadFrame()
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		if cmp.Equal(f, expected) == false {
			t.Fatalf("unexpected frame: %v", cmp.Diff(expected, f))
		}
	}
	if _, err := s.ReadFrame(); err != io.EOF {
		t.Fatalf("expected EOF: %v", err)
	}
}

func TestReadFrameInvalidLength(t *testing.T) {
	conn := &chunkConn{chunks: [][]byte{{0x04, 0x00, 0x00, 0x01, 0x00}}}
	s := NewStream(conn, 0)

	_, err := s.ReadFrame()
	if openflow.IsFramingError(err) == false {
		t.Fatalf("expected a framing error: %v", err)
	}
}

func TestWriteFrame(t *testing.T) {
	conn := new(chunkConn)
	s := NewStream(conn, 0)

	f := openflow.NewFrame(openflow.OF10_VERSION, openflow.OFPT_ECHO_REPLY, 9, []byte{1, 2})
	if err := s.WriteFrame(f); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if bytes.Equal(conn.written.Bytes(), encode(t, f)) == false {
		t.Fatalf("unexpected written bytes: %x", conn.written.Bytes())
	}

	large := &openflow.Frame{Version: openflow.OF13_VERSION, Body: make([]byte, openflow.MaxFrameLength)}
	if err := s.WriteFrame(large); err != openflow.ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge: %v", err)
	}

	if err := s.Close(); err != nil || !conn.closed {
		t.Fatalf("unexpected close result: err=%v, closed=%v", err, conn.closed)
	}
}

func TestWriteTimeout(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	s := NewStream(local, 0)
	defer s.Close()
	s.SetWriteTimeout(50 * time.Millisecond)

	// Nobody reads the remote end.
	err := s.WriteFrame(openflow.NewFrame(openflow.OF13_VERSION, openflow.OFPT_HELLO, 1, nil))
	if err == nil {
		t.Fatal("expected a write timeout")
	}
	if v, ok := err.(net.Error); !ok || !v.Timeout() {
		t.Fatalf("expected a timeout error: %v", err)
	}
}

func TestRemoteAddr(t *testing.T) {
	s := NewStream(new(chunkConn), 0)
	if s.RemoteAddr().Network() != "DummyAddress" {
		t.Fatalf("unexpected remote address: %v", s.RemoteAddr())
	}
}
