// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hayselnut/stationd/pkg/log"
)

// QueryTimeout is the fixed deadline for Dispatch/Query verification.
const QueryTimeout = 60 * time.Second

// mailboxCapacity bounds a handler's private inbox; spillover warns.
const mailboxCapacity = 512

type mailbox struct {
	instance HandlerInstance
	ch       chan *Message
}

// Dispatcher is the bus's single routing point: every Announce/Dispatch/
// Query call resolves the message's target against the set of registered
// mailboxes and delivers it directly to each match. Go has no broadcast
// channel primitive, and a single routing point feeding per-handler
// mailboxes is simpler to reason about than N filter tasks racing a
// shared channel.
type Dispatcher struct {
	mu        sync.RWMutex
	mailboxes map[HandlerInstance]*mailbox

	msgIDGen atomic.Uint64
	discGen  atomic.Uint64
}

// NewDispatcher constructs an empty bus.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{mailboxes: make(map[HandlerInstance]*mailbox)}
}

// NewInstance allocates a fresh HandlerInstance for t, drawing the
// discriminant from the dispatcher's process-wide counter.
func (d *Dispatcher) NewInstance(t HandlerType) HandlerInstance {
	return HandlerInstance{Type: t, Discriminant: d.discGen.Add(1)}
}

// Register creates inst's mailbox and returns the channel its runtime
// task should read from. Calling Register twice for the same instance
// replaces the mailbox (only used by tests / restart paths).
func (d *Dispatcher) Register(inst HandlerInstance) <-chan *Message {
	mb := &mailbox{instance: inst, ch: make(chan *Message, mailboxCapacity)}
	d.mu.Lock()
	d.mailboxes[inst] = mb
	d.mu.Unlock()
	return mb.ch
}

// Unregister removes inst's mailbox; messages published afterward are
// simply not delivered to it.
func (d *Dispatcher) Unregister(inst HandlerInstance) {
	d.mu.Lock()
	delete(d.mailboxes, inst)
	d.mu.Unlock()
}

// listenerCount reports how many handler instances are currently
// registered, used to fast-fail Dispatch/Query when nobody could ever
// answer.
func (d *Dispatcher) listenerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.mailboxes)
}

// publish routes msg to every mailbox whose instance matches msg.Target.
// A full mailbox is not allowed to drop a message silently: delivery is
// retried in a background goroutine with a warning.
func (d *Dispatcher) publish(msg *Message) {
	d.mu.RLock()
	matches := make([]*mailbox, 0, 4)
	for inst, mb := range d.mailboxes {
		if msg.Target.Matches(inst) {
			matches = append(matches, mb)
		}
	}
	d.mu.RUnlock()

	for _, mb := range matches {
		select {
		case mb.ch <- msg:
		default:
			log.Warnf("bus: mailbox for %s is full, blocking delivery of method %s", mb.instance.Type.Desc, msg.Method.Desc)
			go func(mb *mailbox) { mb.ch <- msg }(mb)
		}
	}
}

// Announce is fire-and-forget: no verification that any handler accepted
// it.
func (d *Dispatcher) Announce(source HandlerInstance, target Target, method MethodID, args any) {
	msg := &Message{
		ID:        d.msgIDGen.Add(1),
		Source:    source,
		Target:    target,
		Method:    method,
		Arguments: args,
		responder: newResponder(responderNoVerify),
	}
	d.publish(msg)
}

// Dispatch fires a message and waits for at least one matching handler to
// accept it (validate the method and begin handling), up to QueryTimeout.
func (d *Dispatcher) Dispatch(ctx context.Context, source HandlerInstance, target Target, method MethodID, args any) error {
	if d.listenerCount() == 0 {
		return ErrNoListeners
	}
	r := newResponder(responderVerify)
	msg := &Message{
		ID:        d.msgIDGen.Add(1),
		Source:    source,
		Target:    target,
		Method:    method,
		Arguments: args,
		responder: r,
	}
	d.publish(msg)

	cctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	select {
	case <-r.verified:
		return nil
	case <-cctx.Done():
		return ErrDispatchTimeout
	}
}

// Query fires a message and waits for exactly one response, up to
// QueryTimeout. A handler method that fails answers the query with its
// error, which Query unwraps and returns.
func (d *Dispatcher) Query(ctx context.Context, source HandlerInstance, target Target, method MethodID, args any) (any, error) {
	if d.listenerCount() == 0 {
		return nil, ErrNoListeners
	}
	r := newResponder(responderRespond)
	msg := &Message{
		ID:        d.msgIDGen.Add(1),
		Source:    source,
		Target:    target,
		Method:    method,
		Arguments: args,
		responder: r,
	}
	d.publish(msg)

	cctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	select {
	case v := <-r.value:
		if err, ok := v.(error); ok {
			return nil, err
		}
		return v, nil
	case <-cctx.Done():
		return nil, ErrQueryTimeout
	}
}
