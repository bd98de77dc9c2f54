// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package relay forwards accepted readings onto an optional downstream
// NATS subject so an external aggregation tier can mirror the store in
// real time. It is entirely optional: when no NATS client is configured,
// its handler still registers on the bus but every publish is a no-op.
package relay

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hayselnut/stationd/pkg/bus"
	"github.com/hayselnut/stationd/pkg/log"
	"github.com/hayselnut/stationd/pkg/nats"
)

// Type identifies this handler class on the bus.
var Type = bus.HandlerType{ID: uuid.MustParse("3c9a2f14-9b7a-4b7e-8e8f-2b1f6d5a7c01"), Desc: "relay"}

// MethodPublish is an Announce-only, fire-and-forget method: nothing
// downstream of relay exists that could accept/verify it, so ingest never
// waits on this call.
var MethodPublish = bus.MethodID{ID: uuid.MustParse("3c9a2f14-9b7a-4b7e-8e8f-2b1f6d5a7c02"), Desc: "publish"}

// Reading is one accepted (non-Event) channel value, published as JSON on
// the configured subject.
type Reading struct {
	StationID uuid.UUID `json:"station_id"`
	ChannelID uuid.UUID `json:"channel_id"`
	Time      int64     `json:"time"`
	Value     float32   `json:"value"`
}

// Handler publishes Reading values onto Subject via the pkg/nats
// singleton client. Subject is empty when relay is disabled in config.
type Handler struct {
	Subject string
}

// New builds a relay handler publishing to subject. An empty subject
// disables publishing without disabling the handler itself.
func New(subject string) *Handler {
	return &Handler{Subject: subject}
}

func (h *Handler) Type() bus.HandlerType { return Type }
func (h *Handler) Describe() string      { return "forwards accepted readings to NATS" }

func (h *Handler) Init(ctx context.Context, local *bus.LocalInterface) error { return nil }

func (h *Handler) OnError(err error, local *bus.LocalInterface) {
	log.Errorf("relay: %v", err)
}

func (h *Handler) Methods() map[bus.MethodID]bus.MethodFunc {
	return map[bus.MethodID]bus.MethodFunc{
		MethodPublish: h.publish,
	}
}

func (h *Handler) OwnedMethods() map[bus.MethodID]bus.OwnedMethodFunc { return nil }

func (h *Handler) publish(ctx context.Context, args any, local *bus.LocalInterface) (any, error) {
	if h.Subject == "" {
		return nil, nil
	}
	reading := args.(Reading)
	body, err := json.Marshal(reading)
	if err != nil {
		return nil, err
	}
	client := nats.GetClient()
	if client == nil {
		return nil, nil
	}
	if err := client.Publish(h.Subject, body); err != nil {
		return nil, err
	}
	return nil, nil
}
