// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	typ     HandlerType
	pingID  MethodID
	calls   int
	initErr error
}

func newEchoHandler() *echoHandler {
	return &echoHandler{
		typ:    HandlerType{ID: uuid.New(), Desc: "echo"},
		pingID: MethodID{ID: uuid.New(), Desc: "ping"},
	}
}

func (h *echoHandler) Type() HandlerType   { return h.typ }
func (h *echoHandler) Describe() string    { return "test echo handler" }
func (h *echoHandler) Init(context.Context, *LocalInterface) error { return h.initErr }
func (h *echoHandler) OnError(error, *LocalInterface)              {}

func (h *echoHandler) Methods() map[MethodID]MethodFunc {
	return map[MethodID]MethodFunc{
		h.pingID: func(ctx context.Context, args any, local *LocalInterface) (any, error) {
			h.calls++
			return args, nil
		},
	}
}

func (h *echoHandler) OwnedMethods() map[MethodID]OwnedMethodFunc { return nil }

func startRuntime(t *testing.T, disp *Dispatcher, h Handler) (*Runtime, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rt := NewRuntime(disp, h)
	go func() {
		_ = rt.Run(ctx)
	}()
	return rt, cancel
}

func TestQueryRoundTrip(t *testing.T) {
	disp := NewDispatcher()
	h := newEchoHandler()
	rt, cancel := startRuntime(t, disp, h)
	defer cancel()

	// give the runtime goroutine a moment to reach its select loop
	time.Sleep(10 * time.Millisecond)

	ctx := context.Background()
	result, err := disp.Query(ctx, HandlerInstance{}, ToInstance(rt.Instance()), h.pingID, "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", result)
	require.Equal(t, 1, h.calls)
}

func TestDispatchVerifiesAcceptance(t *testing.T) {
	disp := NewDispatcher()
	h := newEchoHandler()
	_, cancel := startRuntime(t, disp, h)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	err := disp.Dispatch(context.Background(), HandlerInstance{}, ToType(h.typ), h.pingID, 42)
	require.NoError(t, err)
	// Dispatch returns once the handler has accepted the message; give
	// the method itself a moment to run before counting calls.
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, h.calls)
}

func TestQueryNoListenersFailsFast(t *testing.T) {
	disp := NewDispatcher()
	start := time.Now()
	_, err := disp.Query(context.Background(), HandlerInstance{}, ToAny(), MethodID{ID: uuid.New()}, nil)
	require.ErrorIs(t, err, ErrNoListeners)
	require.Less(t, time.Since(start), time.Second)
}

func TestQueryTimeoutWhenNoHandlerImplementsMethod(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 60s timeout scenario in -short mode")
	}
	disp := NewDispatcher()
	h := newEchoHandler()
	_, cancel := startRuntime(t, disp, h)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	unknownMethod := MethodID{ID: uuid.New(), Desc: "never-registered"}
	start := time.Now()
	_, err := disp.Query(context.Background(), HandlerInstance{}, ToType(h.typ), unknownMethod, nil)
	require.ErrorIs(t, err, ErrQueryTimeout)
	require.GreaterOrEqual(t, time.Since(start), QueryTimeout)
}

func TestAnnounceDoesNotBlock(t *testing.T) {
	disp := NewDispatcher()
	h := newEchoHandler()
	_, cancel := startRuntime(t, disp, h)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	disp.Announce(HandlerInstance{}, ToAny(), h.pingID, "fire-and-forget")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, h.calls)
}

func TestQueryPropagatesHandlerError(t *testing.T) {
	disp := NewDispatcher()
	typ := HandlerType{ID: uuid.New(), Desc: "failing"}
	method := MethodID{ID: uuid.New(), Desc: "always-fails"}
	wantErr := errors.New("store unavailable")

	h := &failingHandler{typ: typ, method: method, err: wantErr}
	rt := NewRuntime(disp, h)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)

	// The querier gets the method's error back instead of waiting out the
	// timeout, and the handler's runtime survives to serve the next call.
	_, err := disp.Query(context.Background(), HandlerInstance{}, ToType(typ), method, nil)
	require.ErrorIs(t, err, wantErr)

	h.err = nil
	result, err := disp.Query(context.Background(), HandlerInstance{}, ToType(typ), method, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", result)
}

type failingHandler struct {
	typ    HandlerType
	method MethodID
	err    error
}

func (h *failingHandler) Type() HandlerType                           { return h.typ }
func (h *failingHandler) Describe() string                            { return "failing handler" }
func (h *failingHandler) Init(context.Context, *LocalInterface) error { return nil }
func (h *failingHandler) OnError(error, *LocalInterface)              {}
func (h *failingHandler) OwnedMethods() map[MethodID]OwnedMethodFunc  { return nil }
func (h *failingHandler) Methods() map[MethodID]MethodFunc {
	return map[MethodID]MethodFunc{
		h.method: func(ctx context.Context, args any, local *LocalInterface) (any, error) {
			if h.err != nil {
				return nil, h.err
			}
			return "ok", nil
		},
	}
}

func TestSecondResponseWriteLoses(t *testing.T) {
	r := newResponder(responderRespond)
	require.True(t, r.respond("first"))
	require.False(t, r.respond("second"))
	require.Equal(t, "first", <-r.value)
}

func TestBackgroundTaskDeliversAsOwnedEvent(t *testing.T) {
	disp := NewDispatcher()
	typ := HandlerType{ID: uuid.New(), Desc: "bg"}
	ownedMethod := MethodID{ID: uuid.New(), Desc: "bg-done"}
	done := make(chan any, 1)

	h := &bgHandler{typ: typ, ownedMethod: ownedMethod, done: done}
	rt := NewRuntime(disp, h)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	rt.Local().SpawnBackground(ownedMethod, func(context.Context) any { return "background result" })

	select {
	case v := <-done:
		require.Equal(t, "background result", v)
	case <-time.After(time.Second):
		t.Fatal("background completion was never delivered")
	}
}

type bgHandler struct {
	typ         HandlerType
	ownedMethod MethodID
	done        chan any
}

func (h *bgHandler) Type() HandlerType                                  { return h.typ }
func (h *bgHandler) Describe() string                                   { return "background handler" }
func (h *bgHandler) Init(context.Context, *LocalInterface) error        { return nil }
func (h *bgHandler) OnError(error, *LocalInterface)                     {}
func (h *bgHandler) Methods() map[MethodID]MethodFunc                   { return nil }
func (h *bgHandler) OwnedMethods() map[MethodID]OwnedMethodFunc {
	return map[MethodID]OwnedMethodFunc{
		h.ownedMethod: func(ctx context.Context, args any, local *LocalInterface) error {
			h.done <- args
			return nil
		},
	}
}
