// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"context"

	"github.com/hayselnut/stationd/pkg/log"
)

// MethodFunc handles one Request matched to the declaring handler. args is
// whatever the caller passed to Announce/Dispatch/Query; it is the Go
// stand-in for the source's borrowed-args method flavor. The returned
// value is delivered to a Query caller's response slot; it is ignored for
// Announce/Dispatch.
type MethodFunc func(ctx context.Context, args any, local *LocalInterface) (any, error)

// OwnedMethodFunc is the owned-args flavor: it is never invoked from an
// incoming bus Message, only as the completion callback of a background
// task spawned via LocalInterface.SpawnBackground.
type OwnedMethodFunc func(ctx context.Context, args any, local *LocalInterface) error

// Handler is one class of bus participant. Implementations declare their
// methods statically via Methods/OwnedMethods; the Runtime invokes
// exactly one at a time, never concurrently with itself.
type Handler interface {
	Type() HandlerType
	Describe() string

	// Methods returns this handler's normal (borrowed-args) methods,
	// keyed by MethodID.
	Methods() map[MethodID]MethodFunc

	// OwnedMethods returns this handler's background-task-completion
	// (owned-args) methods, keyed by MethodID.
	OwnedMethods() map[MethodID]OwnedMethodFunc

	// Init runs once before the runtime's message loop starts.
	Init(ctx context.Context, local *LocalInterface) error

	// OnError is invoked whenever a method returns an error. It may
	// itself request shutdown via local.RequestShutdown().
	OnError(err error, local *LocalInterface)
}

// bgCompletion is what a background task reports back to its owning
// Runtime once it finishes.
type bgCompletion struct {
	method MethodID
	value  any
}

// LocalInterface is the handle a Handler uses to talk back to the bus;
// every method invocation receives one.
type LocalInterface struct {
	disp     *Dispatcher
	instance HandlerInstance
	bg       chan bgCompletion
	shutdown chan struct{}
}

// Instance returns this handler's own address.
func (l *LocalInterface) Instance() HandlerInstance { return l.instance }

// Announce fires a message with no verification.
func (l *LocalInterface) Announce(target Target, method MethodID, args any) {
	l.disp.Announce(l.instance, target, method, args)
}

// Dispatch fires a message and waits for a handler to accept it.
func (l *LocalInterface) Dispatch(ctx context.Context, target Target, method MethodID, args any) error {
	return l.disp.Dispatch(ctx, l.instance, target, method, args)
}

// Query fires a message and waits for exactly one response.
func (l *LocalInterface) Query(ctx context.Context, target Target, method MethodID, args any) (any, error) {
	return l.disp.Query(ctx, l.instance, target, method, args)
}

// SpawnBackground runs fn in its own goroutine; its result is delivered
// back to this handler's Runtime as an OwnedMethods[method] invocation
// once it completes. This is how network reads and timer ticks become
// bus events.
func (l *LocalInterface) SpawnBackground(method MethodID, fn func(ctx context.Context) any) {
	go func() {
		v := fn(context.Background())
		select {
		case l.bg <- bgCompletion{method: method, value: v}:
		case <-l.shutdown:
		}
	}()
}

// RequestShutdown cooperatively stops this handler's Runtime: the next
// time its message loop selects, it picks the shutdown branch and exits.
func (l *LocalInterface) RequestShutdown() {
	select {
	case <-l.shutdown:
	default:
		close(l.shutdown)
	}
}

// Runtime is the long-lived scheduler task for one handler instance.
// Method invocations within a Runtime are strictly serialized; a handler
// never races against itself.
type Runtime struct {
	handler Handler
	inst    HandlerInstance
	disp    *Dispatcher
	inbox   <-chan *Message
	local   *LocalInterface

	methods      map[MethodID]MethodFunc
	ownedMethods map[MethodID]OwnedMethodFunc
}

// NewRuntime registers h with disp and builds its Runtime. The returned
// Runtime owns h; Run must be called (typically in its own goroutine) to
// actually start processing messages.
func NewRuntime(disp *Dispatcher, h Handler) *Runtime {
	inst := disp.NewInstance(h.Type())
	inbox := disp.Register(inst)
	local := &LocalInterface{
		disp:     disp,
		instance: inst,
		bg:       make(chan bgCompletion, 16),
		shutdown: make(chan struct{}),
	}
	return &Runtime{
		handler:      h,
		inst:         inst,
		disp:         disp,
		inbox:        inbox,
		local:        local,
		methods:      h.Methods(),
		ownedMethods: h.OwnedMethods(),
	}
}

// Instance returns the handler instance this runtime drives.
func (rt *Runtime) Instance() HandlerInstance { return rt.inst }

// Local returns the LocalInterface bound to this runtime, for callers
// that need to drive background tasks from outside the handler itself
// (chiefly tests; handler code receives the same value as an argument).
func (rt *Runtime) Local() *LocalInterface { return rt.local }

// Shutdown requests cooperative shutdown from outside the handler itself
// (e.g. the daemon's signal handler announcing a cluster-wide shutdown).
func (rt *Runtime) Shutdown() { rt.local.RequestShutdown() }

// Run drives the handler's message loop until ctx is cancelled or the
// handler requests shutdown. It returns nil on any cooperative exit; a
// non-nil error is the error Init returned, after it has been passed to
// OnError.
func (rt *Runtime) Run(ctx context.Context) error {
	defer rt.disp.Unregister(rt.inst)

	if err := rt.handler.Init(ctx, rt.local); err != nil {
		rt.handler.OnError(err, rt.local)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rt.local.shutdown:
			return nil
		case msg := <-rt.inbox:
			rt.handleMessage(ctx, msg)
		case comp := <-rt.local.bg:
			rt.handleOwned(ctx, comp)
		}
	}
}

// handleMessage runs one method invocation. A method error is routed
// through the handler's OnError hook, which may itself request shutdown;
// the runtime does not exit on its own, so one failing request cannot
// tear down the handler. For queries, the error is also written into the
// response slot so the querier is not left waiting out the timeout.
func (rt *Runtime) handleMessage(ctx context.Context, msg *Message) {
	fn, ok := rt.methods[msg.Method]
	if !ok {
		return
	}
	msg.responder.signalVerified()

	result, err := fn(ctx, msg.Arguments, rt.local)
	if err != nil {
		if msg.responder != nil && msg.responder.kind == responderRespond {
			msg.responder.respond(err)
		}
		rt.handler.OnError(err, rt.local)
		return
	}
	if msg.responder != nil && msg.responder.kind == responderRespond {
		if !msg.responder.respond(result) {
			log.Errorf("bus: %v", ErrResponseAlreadySet)
		}
	}
}

func (rt *Runtime) handleOwned(ctx context.Context, comp bgCompletion) {
	fn, ok := rt.ownedMethods[comp.method]
	if !ok {
		log.Warnf("bus: background task completed for unregistered method %s on handler %s, dropping result", comp.method.Desc, rt.inst.Type.Desc)
		return
	}
	if err := fn(ctx, comp.value, rt.local); err != nil {
		rt.handler.OnError(err, rt.local)
	}
}
