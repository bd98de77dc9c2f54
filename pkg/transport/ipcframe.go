// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrFrameEOF is returned by ReadIPCFrame when the reader is at a clean
// frame boundary and reports io.EOF.
var ErrFrameEOF = errors.New("transport: ipc stream closed at frame boundary")

// WriteIPCFrame writes a single length-prefixed frame: an 8-byte
// big-endian length followed by body. This is the framing handed to an
// external UI client; the body is expected to already
// be MessagePack-encoded by the caller, but this helper is agnostic to
// body contents.
func WriteIPCFrame(w io.Writer, body []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadIPCFrame reads one length-prefixed frame from r. An EOF encountered
// while reading the 8-byte length (a clean boundary between frames) is
// reported as ErrFrameEOF rather than io.EOF, so callers can distinguish
// "stream ended cleanly" from "stream ended mid-frame".
func ReadIPCFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrFrameEOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint64(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
