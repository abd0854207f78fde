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
	"io"
	"net"
	"sync"
	"time"

	"github.com/superkkt/flowdam/openflow"

	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("transceiver")
)

const (
	// Size of a single socket read. One read can hold the largest OpenFlow frame.
	DefaultBufferSize = openflow.MaxFrameLength + 1
)

// Stream is a framed I/O channel that reads OpenFlow frames from an underlying
// socket and writes encoded frames back to it.
type Stream struct {
	// Underlying socket.
	channel io.ReadWriteCloser

	reader struct {
		mutex   sync.Mutex
		decoder openflow.Decoder
		buf     []byte
		// Read error deferred until the frames decoded before it are consumed.
		err error
	}

	writer struct {
		mutex   sync.Mutex
		timeout time.Duration
	}
}

type deadline interface {
	SetWriteDeadline(time.Time) error
}

// NewStream returns a new framed I/O channel. channel is an underlying I/O channel that implements io.ReadWriteCloser.
func NewStream(channel io.ReadWriteCloser, bufSize int) *Stream {
	if channel == nil {
		panic("channel is nil")
	}
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	c := new(Stream)
	c.channel = channel
	c.reader.buf = make([]byte, bufSize)

	return c
}

type dummyAddr struct{}

func (r dummyAddr) Network() string {
	return "DummyAddress"
}

func (r dummyAddr) String() string {
	return ""
}

func (r *Stream) RemoteAddr() net.Addr {
	type addr interface {
		RemoteAddr() net.Addr
	}

	v, ok := r.channel.(addr)
	if !ok {
		return dummyAddr{}
	}

	return v.RemoteAddr()
}

// SetWriteTimeout sets write timeout of the underlying socket if it implements deadline interface.
func (r *Stream) SetWriteTimeout(t time.Duration) {
	r.writer.mutex.Lock()
	defer r.writer.mutex.Unlock()

	r.writer.timeout = t
	logger.Debugf("set write timeout to %v", t)
}

// ReadFrame blocks until a complete frame has been received. Partial frames are
// kept in the decoder across calls, so a frame may arrive in any number of reads.
func (r *Stream) ReadFrame() (*openflow.Frame, error) {
	r.reader.mutex.Lock()
	defer r.reader.mutex.Unlock()

	for {
		f, err := r.reader.decoder.Next()
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
		if r.reader.err != nil {
			return nil, r.reader.err
		}

		n, err := r.channel.Read(r.reader.buf)
		if n > 0 {
			r.reader.decoder.Feed(r.reader.buf[:n])
		}
		if err != nil {
			if err == io.EOF && r.reader.decoder.Buffered() > 0 {
				logger.Debugf("connection closed in the middle of a frame: %v bytes are buffered", r.reader.decoder.Buffered())
			}
			r.reader.err = err
		}
	}
}

// WriteFrame encodes f and writes it to the underlying socket as a single write.
func (r *Stream) WriteFrame(f *openflow.Frame) error {
	packet, err := openflow.Encode(f)
	if err != nil {
		return err
	}

	r.writer.mutex.Lock()
	defer r.writer.mutex.Unlock()

	r.setWriteDeadline()
	_, err = r.channel.Write(packet)

	return err
}

// NOTE: The caller should lock the writer mutex before calling this function.
func (r *Stream) setWriteDeadline() {
	d, ok := r.channel.(deadline)
	if !ok {
		return
	}

	if r.writer.timeout > 0 {
		d.SetWriteDeadline(time.Now().Add(r.writer.timeout))
	} else {
		d.SetWriteDeadline(time.Time{})
	}
}

// Close is a wrapper function of net.Conn.Close().
func (r *Stream) Close() error {
	return r.channel.Close()
}
