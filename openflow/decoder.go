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

// Decoder splits an arbitrarily fragmented byte stream into frames.
type Decoder struct {
	buf []byte
	// Start of the bytes that have not been decoded yet.
	off int
}

// Feed appends p to the pending bytes. p can be reused by the caller afterwards.
func (r *Decoder) Feed(p []byte) {
	if r.off > 0 {
		// Move the undecoded tail to the front once per read, not once per frame.
		n := copy(r.buf, r.buf[r.off:])
		r.buf = r.buf[:n]
		r.off = 0
	}
	r.buf = append(r.buf, p...)
}

// Buffered returns the number of bytes waiting for the rest of their frame.
func (r *Decoder) Buffered() int {
	return len(r.buf) - r.off
}

// Next returns the next complete frame, or nil if more bytes are needed.
func (r *Decoder) Next() (*Frame, error) {
	f, n, err := Decode(r.buf[r.off:])
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}

	r.off += n
	if r.off == len(r.buf) {
		// Fully drained. Reuse the backing array for the next read.
		r.buf = r.buf[:0]
		r.off = 0
	}

	return f, nil
}
