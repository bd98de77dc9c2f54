// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest decodes the application-level CS:Squirrel payloads
// (Connect, Data, ChannelMappings) and turns them into tsdbstore bus
// calls.
package ingest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ChannelType says whether the station reports this channel on a fixed
// cadence (Periodic, stored delta-compressed) or only when an event fires
// (Triggered, stored as absolute offsets).
type ChannelType string

const (
	ChannelPeriodic  ChannelType = "periodic"
	ChannelTriggered ChannelType = "triggered"
)

// ChannelDecl is one entry of Connect.Channels: a station announcing a
// channel it intends to report on, named (not yet identified by UUID -
// the server assigns that and returns it via ChannelMappings).
type ChannelDecl struct {
	Name string      `msgpack:"name"`
	Type ChannelType `msgpack:"type"`
}

// Connect is the first packet a station sends on a new transaction: its
// identity plus every channel it is about to report.
type Connect struct {
	StationID uuid.UUID     `msgpack:"station_id"`
	BuildRev  string        `msgpack:"build_rev"`
	BuildDate string        `msgpack:"build_date"`
	Channels  []ChannelDecl `msgpack:"channels"`
}

// ChannelDataKind discriminates ChannelData's two wire shapes.
type ChannelDataKind string

const (
	DataFloat ChannelDataKind = "float"
	DataEvent ChannelDataKind = "event"
)

// ChannelData is one channel's payload within a Data packet. Only Float
// has a home in the time-series store; Event readings are accepted on
// the wire (so a future store extension is a wire-compatible change) but
// dropped before reaching the TSDB.
type ChannelData struct {
	Kind     ChannelDataKind `msgpack:"kind"`
	Float    float32         `msgpack:"float,omitempty"`
	EventSub string          `msgpack:"event_sub,omitempty"`
}

// Data is a station's periodic or triggered upload: one reading per
// channel it is currently reporting, keyed by the server-assigned channel
// UUID returned in an earlier ChannelMappings.
type Data struct {
	PerChannel map[uuid.UUID]ChannelData `msgpack:"per_channel"`
}

// ChannelMappings is the server's reply to Connect: the name -> UUID
// table a station uses to tag every subsequent Data upload.
type ChannelMappings struct {
	Map map[string]uuid.UUID `msgpack:"map"`
}

// envelope is the tagged-union wire wrapper carrying exactly one of the
// three packet kinds.
type envelope struct {
	Kind     string           `msgpack:"kind"`
	Connect  *Connect         `msgpack:"connect,omitempty"`
	Data     *Data            `msgpack:"data,omitempty"`
	Mappings *ChannelMappings `msgpack:"mappings,omitempty"`
}

// DecodePacket unmarshals one application-layer payload (the bytes
// delivered inside a transport.ReceivedEvent) into a Connect, Data, or
// ChannelMappings value.
func DecodePacket(b []byte) (any, error) {
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("ingest: decode packet: %w", err)
	}
	switch env.Kind {
	case "connect":
		if env.Connect == nil {
			return nil, fmt.Errorf("ingest: connect envelope missing payload")
		}
		return *env.Connect, nil
	case "data":
		if env.Data == nil {
			return nil, fmt.Errorf("ingest: data envelope missing payload")
		}
		return *env.Data, nil
	case "mappings":
		if env.Mappings == nil {
			return nil, fmt.Errorf("ingest: mappings envelope missing payload")
		}
		return *env.Mappings, nil
	default:
		return nil, fmt.Errorf("ingest: unknown packet kind %q", env.Kind)
	}
}

// EncodeChannelMappings wraps m in its envelope and serializes it, ready
// to be queued on a transport.ServerConn as the reply to Connect.
func EncodeChannelMappings(m ChannelMappings) ([]byte, error) {
	return msgpack.Marshal(envelope{Kind: "mappings", Mappings: &m})
}

// EncodeConnect and EncodeData exist for symmetry with the client side of
// this protocol (tests, and any future station simulator) - the daemon
// itself only ever decodes them.
func EncodeConnect(c Connect) ([]byte, error) {
	return msgpack.Marshal(envelope{Kind: "connect", Connect: &c})
}

func EncodeData(d Data) ([]byte, error) {
	return msgpack.Marshal(envelope{Kind: "data", Data: &d})
}
