// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hayselnut/stationd/internal/relay"
	"github.com/hayselnut/stationd/internal/tsdbstore"
	"github.com/hayselnut/stationd/pkg/bus"
	"github.com/hayselnut/stationd/pkg/log"
	"github.com/hayselnut/stationd/pkg/tsdb"
)

// Type identifies the per-station link handler class. One instance of it
// runs per station the daemon has accepted a transport connection from
// (cmd/stationd spawns one the first time a new source address appears).
var Type = bus.HandlerType{ID: uuid.MustParse("d3b6f9a2-7e4d-4a9b-9c3e-5f6a8b1d2e01"), Desc: "station-link"}

// MethodPacketReceived is invoked once per reassembled application
// payload the transport layer hands up. Args: []byte. Result: none.
var MethodPacketReceived = bus.MethodID{ID: uuid.MustParse("d3b6f9a2-7e4d-4a9b-9c3e-5f6a8b1d2e02"), Desc: "packet-received"}

// deriveChannelID assigns a channel its server-side UUID deterministically
// from (station, name) rather than through a persisted name registry: a
// stable derivation gives the same round-trip property (a reconnecting
// station gets byte-identical ChannelMappings) without the daemon having
// to keep a name table on disk.
func deriveChannelID(stationID uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(stationID, []byte(name))
}

// Handler is the per-station application-layer bus handler: it decodes
// Connect/Data packets, resolves channel identity against tsdbstore, and
// forwards accepted readings to relay.
type Handler struct {
	tsdbInst  bus.HandlerInstance
	relayInst bus.HandlerInstance
	send      func([]byte) error

	stationID *uuid.UUID
}

// New builds a station-link handler. send queues a reply payload on the
// station's transport connection (typically *transport.ServerConn.Queue);
// tsdbInst and relayInst are the running instances of tsdbstore.Handler
// and relay.Handler to route persistence and forwarding through.
func New(tsdbInst, relayInst bus.HandlerInstance, send func([]byte) error) *Handler {
	return &Handler{tsdbInst: tsdbInst, relayInst: relayInst, send: send}
}

func (h *Handler) Type() bus.HandlerType { return Type }
func (h *Handler) Describe() string      { return "decodes one station's application packets" }

func (h *Handler) Init(ctx context.Context, local *bus.LocalInterface) error { return nil }

func (h *Handler) OnError(err error, local *bus.LocalInterface) {
	log.Errorf("ingest: %v", err)
}

func (h *Handler) Methods() map[bus.MethodID]bus.MethodFunc {
	return map[bus.MethodID]bus.MethodFunc{
		MethodPacketReceived: h.onReceived,
	}
}

func (h *Handler) OwnedMethods() map[bus.MethodID]bus.OwnedMethodFunc { return nil }

func (h *Handler) onReceived(ctx context.Context, args any, local *bus.LocalInterface) (any, error) {
	raw, ok := args.([]byte)
	if !ok {
		return nil, fmt.Errorf("ingest: expected []byte payload, got %T", args)
	}
	pkt, err := DecodePacket(raw)
	if err != nil {
		// Malformed application payload: a protocol-local error, logged
		// and dropped rather than killing the station's runtime.
		log.Warnf("ingest: %v", err)
		return nil, nil
	}
	switch p := pkt.(type) {
	case Connect:
		h.onConnect(ctx, p, local)
	case Data:
		h.onData(ctx, p, local)
	case ChannelMappings:
		log.Warnf("ingest: station sent a ChannelMappings packet, which only the server ever originates; ignoring")
	}
	return nil, nil
}

func (h *Handler) onConnect(ctx context.Context, c Connect, local *bus.LocalInterface) {
	h.stationID = &c.StationID
	mapping := make(map[string]uuid.UUID, len(c.Channels))
	for _, decl := range c.Channels {
		id := deriveChannelID(c.StationID, decl.Name)
		groupType := tsdb.GroupTypePeriodic
		if decl.Type == ChannelTriggered {
			groupType = tsdb.GroupTypeSporadic
		}
		req := tsdbstore.ResolveChannelRequest{StationID: c.StationID, ChannelID: id, GroupType: groupType}
		if _, err := local.Query(ctx, bus.ToInstance(h.tsdbInst), tsdbstore.MethodResolveChannel, req); err != nil {
			log.Errorf("ingest: resolve channel %q for station %s: %v", decl.Name, c.StationID, err)
			continue
		}
		mapping[decl.Name] = id
	}

	reply, err := EncodeChannelMappings(ChannelMappings{Map: mapping})
	if err != nil {
		log.Errorf("ingest: encode channel mappings for station %s: %v", c.StationID, err)
		return
	}
	if err := h.send(reply); err != nil {
		log.Errorf("ingest: send channel mappings to station %s: %v", c.StationID, err)
	}
}

func (h *Handler) onData(ctx context.Context, d Data, local *bus.LocalInterface) {
	if h.stationID == nil {
		log.Warnf("ingest: received Data before Connect, dropping")
		return
	}
	now := time.Now().Unix()
	for chID, cd := range d.PerChannel {
		if cd.Kind == DataEvent {
			// The store has no event representation; accept the wire
			// shape but drop the value itself.
			log.Warnf("ingest: dropping event-kind reading for channel %s (sub=%q)", chID, cd.EventSub)
			continue
		}

		insertReq := tsdbstore.InsertRequest{StationID: *h.stationID, ChannelID: chID, Time: now, Value: cd.Float}
		if _, err := local.Query(ctx, bus.ToInstance(h.tsdbInst), tsdbstore.MethodInsert, insertReq); err != nil {
			// A failing insert is logged and the station simply retries
			// on its next upload; it does not tear down this handler's
			// runtime.
			log.Errorf("ingest: insert channel %s for station %s: %v", chID, *h.stationID, err)
			continue
		}

		local.Announce(bus.ToInstance(h.relayInst), relay.MethodPublish, relay.Reading{
			StationID: *h.stationID,
			ChannelID: chID,
			Time:      now,
			Value:     cd.Float,
		})
	}
}
