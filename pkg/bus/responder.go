// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import "sync"

// responderKind discriminates the three responder shapes.
type responderKind int

const (
	responderNoVerify responderKind = iota
	responderVerify
	responderRespond
)

// responder is the write-once reply slot attached to a Request message.
// A sync.Once guards a single buffered channel write, giving the same
// write-once-wins semantics a CAS'd cell would.
type responder struct {
	kind responderKind

	verifyOnce sync.Once
	verified   chan struct{}

	respondOnce sync.Once
	value       chan any
}

func newResponder(kind responderKind) *responder {
	r := &responder{kind: kind}
	switch kind {
	case responderVerify:
		r.verified = make(chan struct{})
	case responderRespond:
		r.verified = make(chan struct{})
		r.value = make(chan any, 1)
	}
	return r
}

// signalVerified marks that some handler has accepted (began handling)
// the message. Idempotent: only the first call has any effect.
func (r *responder) signalVerified() {
	if r == nil || r.verified == nil {
		return
	}
	r.verifyOnce.Do(func() { close(r.verified) })
}

// respond writes v into the response slot. Returns false if a value was
// already written, in which case the caller must log
// ErrResponseAlreadySet rather than silently drop it.
func (r *responder) respond(v any) bool {
	won := false
	r.respondOnce.Do(func() {
		won = true
		r.value <- v
	})
	return won
}
