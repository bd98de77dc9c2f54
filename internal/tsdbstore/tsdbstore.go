// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tsdbstore wraps pkg/tsdb as a bus handler: the backing store is
// owned by exactly one handler instance, and every other component talks
// to it only through Dispatch/Query on that instance, never by holding a
// *tsdb.DB directly.
package tsdbstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hayselnut/stationd/internal/metrics"
	"github.com/hayselnut/stationd/pkg/bus"
	"github.com/hayselnut/stationd/pkg/log"
	"github.com/hayselnut/stationd/pkg/tsdb"
)

// Type identifies this handler class on the bus. There is exactly one
// running instance per daemon.
var Type = bus.HandlerType{ID: uuid.MustParse("8f3f9f8e-6b0e-4c7b-9f0a-6c7f6a9b3a01"), Desc: "tsdb-store"}

var (
	// MethodResolveChannel ensures a station and one of its channels are
	// registered, creating them on first sight; idempotent from the
	// caller's point of view (ErrDuplicate* is swallowed here).
	// Args: ResolveChannelRequest. Result: none (nil).
	MethodResolveChannel = bus.MethodID{ID: uuid.MustParse("8f3f9f8e-6b0e-4c7b-9f0a-6c7f6a9b3a02"), Desc: "resolve-channel"}

	// MethodInsert persists one reading. Args: InsertRequest. Result: none.
	MethodInsert = bus.MethodID{ID: uuid.MustParse("8f3f9f8e-6b0e-4c7b-9f0a-6c7f6a9b3a03"), Desc: "insert"}

	// MethodQuery runs a read query. Args: tsdb.QueryParams. Result: []tsdb.Reading.
	MethodQuery = bus.MethodID{ID: uuid.MustParse("8f3f9f8e-6b0e-4c7b-9f0a-6c7f6a9b3a04"), Desc: "query"}

	// MethodHealth reports per-station liveness. Args: HealthRequest.
	// Result: HealthStatus.
	MethodHealth = bus.MethodID{ID: uuid.MustParse("8f3f9f8e-6b0e-4c7b-9f0a-6c7f6a9b3a05"), Desc: "health"}

	// MethodAutosave is a regular (Methods) method invoked by the daemon's
	// gocron autosave job via Announce, not by a handler directly.
	MethodAutosave = bus.MethodID{ID: uuid.MustParse("8f3f9f8e-6b0e-4c7b-9f0a-6c7f6a9b3a06"), Desc: "autosave"}
)

// ResolveChannelRequest asks the store to ensure stationID and channelID
// exist, creating either if this is the first time either has been seen.
type ResolveChannelRequest struct {
	StationID uuid.UUID
	ChannelID uuid.UUID
	GroupType uint8
}

// InsertRequest is one reading bound for the store.
type InsertRequest struct {
	StationID uuid.UUID
	ChannelID uuid.UUID
	Time      int64
	Value     float32
}

// HealthRequest asks whether stationID has reported recently.
type HealthRequest struct {
	StationID  uuid.UUID
	StaleAfter time.Duration
}

// HealthStatus is MethodHealth's result.
type HealthStatus struct {
	LastSeen int64 // unix seconds of the most recent reading across all channels, 0 if none
	Stale    bool
}

// Handler is the bus.Handler implementation wrapping a *tsdb.DB.
type Handler struct {
	db *tsdb.DB
	m  *metrics.Metrics // nil disables instrumentation
}

// New wraps db as a bus handler. db must not be touched by any other
// goroutine afterward. m may be nil to disable instrumentation.
func New(db *tsdb.DB, m *metrics.Metrics) *Handler {
	return &Handler{db: db, m: m}
}

func (h *Handler) Type() bus.HandlerType { return Type }
func (h *Handler) Describe() string      { return "owns the mmap-backed time-series store" }

func (h *Handler) Init(ctx context.Context, local *bus.LocalInterface) error { return nil }

// OnError logs and keeps the handler alive: a single bad request must not
// take down the only component capable of persisting data.
func (h *Handler) OnError(err error, local *bus.LocalInterface) {
	log.Errorf("tsdbstore: %v", err)
}

func (h *Handler) Methods() map[bus.MethodID]bus.MethodFunc {
	return map[bus.MethodID]bus.MethodFunc{
		MethodResolveChannel: h.resolveChannel,
		MethodInsert:         h.insert,
		MethodQuery:          h.query,
		MethodHealth:         h.health,
		MethodAutosave:       h.autosave,
	}
}

func (h *Handler) OwnedMethods() map[bus.MethodID]bus.OwnedMethodFunc { return nil }

func (h *Handler) resolveChannel(ctx context.Context, args any, local *bus.LocalInterface) (any, error) {
	req := args.(ResolveChannelRequest)
	if err := h.db.AddStation(req.StationID); err != nil && err != tsdb.ErrDuplicateStation {
		return nil, err
	}
	if err := h.db.AddChannel(req.StationID, req.ChannelID, req.GroupType); err != nil && err != tsdb.ErrDuplicateChannel {
		return nil, err
	}
	return nil, nil
}

func (h *Handler) insert(ctx context.Context, args any, local *bus.LocalInterface) (any, error) {
	req := args.(InsertRequest)
	err := h.db.Insert(req.StationID, req.ChannelID, req.Time, req.Value)
	if h.m != nil {
		if err != nil {
			h.m.Inserts.WithLabelValues("error").Inc()
		} else {
			h.m.Inserts.WithLabelValues("ok").Inc()
		}
	}
	return nil, err
}

func (h *Handler) query(ctx context.Context, args any, local *bus.LocalInterface) (any, error) {
	params := args.(tsdb.QueryParams)
	if h.m != nil {
		h.m.Queries.Inc()
	}
	return h.db.Query(params)
}

func (h *Handler) health(ctx context.Context, args any, local *bus.LocalInterface) (any, error) {
	req := args.(HealthRequest)
	channels, err := h.db.ListChannels(req.StationID)
	if err != nil {
		return nil, err
	}
	var lastSeen int64
	for _, ch := range channels {
		r, ok, err := h.db.LastReading(req.StationID, ch)
		if err != nil {
			return nil, err
		}
		if ok && r.Time > lastSeen {
			lastSeen = r.Time
		}
	}
	stale := lastSeen == 0 || time.Since(time.Unix(lastSeen, 0)) > req.StaleAfter
	return HealthStatus{LastSeen: lastSeen, Stale: stale}, nil
}

// autosave flushes the store, invoked by the daemon's gocron job via
// Announce.
func (h *Handler) autosave(ctx context.Context, args any, local *bus.LocalInterface) (any, error) {
	if err := h.db.Flush(); err != nil {
		return nil, err
	}
	log.Infof("tsdbstore: autosave flush complete")
	return nil, nil
}
