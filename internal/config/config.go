// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the daemon's JSON configuration:
// nested structs with JSON tags, built-in defaults, and a JSON Schema
// checked via Validate (validate.go) before unmarshalling.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"time"
)

const (
	DefaultListenAddr         = ":7400"
	DefaultDBPath             = "./var/stationd.tsdb"
	DefaultAutosaveInterval   = "5m"
	DefaultHealthStaleAfter   = "10m"
	DefaultTransactionTimeout = 30 * time.Second
)

// Relay configures the optional NATS forwarding of accepted readings
// (internal/relay). Address is passed straight through to pkg/nats.
type Relay struct {
	Address string `json:"address"`
	Subject string `json:"subject"`
}

// Metrics configures the optional self-instrumentation HTTP endpoint
// (internal/metrics).
type Metrics struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Keys is the top-level daemon configuration, loaded from the file passed
// via cmd/stationd's -config flag.
type Keys struct {
	// ListenAddr is the UDP address the CS:Squirrel transport listens on.
	ListenAddr string `json:"listen-addr"`

	// DBPath is the backing file for the time-series store.
	DBPath string `json:"db-path"`

	// AutosaveInterval is a duration string (e.g. "5m") between periodic
	// store flushes.
	AutosaveInterval string `json:"autosave-interval"`

	// HealthStaleAfter is a duration string. It is loaded and defaulted
	// but not read by cmd/stationd; MethodHealth takes its staleness
	// window from each HealthRequest.
	HealthStaleAfter string `json:"health-stale-after"`

	// TransactionTimeout overrides the transport's default 30s
	// transaction timeout, mostly useful for tests.
	TransactionTimeout string `json:"transaction-timeout"`

	// UseMmap maps the store into the process address space instead of
	// going through pread/pwrite. Only honored on unix; elsewhere it is
	// ignored with a warning.
	UseMmap bool `json:"use-mmap"`

	// VerifyDigest requires every reassembled application payload to carry
	// a BLAKE2b-256 prefix, checked before delivery upstream and prepended
	// to every queued reply. Off by default; the digest detects accidental
	// corruption, not tampering.
	VerifyDigest bool `json:"verify-digest"`

	Relay   Relay   `json:"relay"`
	Metrics Metrics `json:"metrics"`

	// EnableGops starts github.com/google/gops/agent for live debugging.
	EnableGops bool `json:"gops"`
}

// Default returns the built-in configuration.
func Default() Keys {
	return Keys{
		ListenAddr:         DefaultListenAddr,
		DBPath:             DefaultDBPath,
		AutosaveInterval:   DefaultAutosaveInterval,
		HealthStaleAfter:   DefaultHealthStaleAfter,
		TransactionTimeout: "30s",
	}
}

// Load reads path as JSON over top of Default(), validating it against
// Schema first. A missing file at the default path is not an error; a
// missing file at an explicitly requested path is.
func Load(path string, isDefaultPath bool) (Keys, error) {
	keys := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && isDefaultPath {
			return keys, nil
		}
		return keys, err
	}

	Validate(Schema, raw)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&keys); err != nil {
		return keys, err
	}
	return keys, nil
}
