// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the daemon's own operational counters over
// Prometheus: packets, bus dispatches, inserts, and queries, registered
// against a caller-supplied registry so tests stay hermetic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter/gauge this daemon reports.
type Metrics struct {
	PacketsReceived *prometheus.CounterVec
	PacketsDropped  *prometheus.CounterVec
	BusDispatches   *prometheus.CounterVec
	Inserts         *prometheus.CounterVec
	Queries         prometheus.Counter
	StationsKnown   prometheus.Gauge
}

// New registers every metric against reg and returns the handle. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer)
// keeps tests hermetic.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PacketsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stationd_transport_packets_received_total",
			Help: "CS:Squirrel packets received, by type (frame, command).",
		}, []string{"type"}),
		PacketsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stationd_ingest_packets_dropped_total",
			Help: "Packets and payloads dropped by the UDP pump, by reason (decode-error, rate-limited, bad-digest).",
		}, []string{"reason"}),
		BusDispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stationd_bus_dispatches_total",
			Help: "Bus Announce/Dispatch/Query calls, by outcome.",
		}, []string{"outcome"}),
		Inserts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stationd_tsdb_inserts_total",
			Help: "Readings persisted to the time-series store, by outcome.",
		}, []string{"outcome"}),
		Queries: f.NewCounter(prometheus.CounterOpts{
			Name: "stationd_tsdb_queries_total",
			Help: "Read queries served by the time-series store.",
		}),
		StationsKnown: f.NewGauge(prometheus.GaugeOpts{
			Name: "stationd_stations_known",
			Help: "Number of stations currently registered in the store.",
		}),
	}
}

// Handler returns the HTTP handler to mount at /metrics, built from the
// same registry New was called with.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
