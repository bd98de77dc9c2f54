// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// Schema validates a daemon config file against Keys' shape before it is
// json.Unmarshal'd.
const Schema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"listen-addr":         { "type": "string" },
		"db-path":             { "type": "string" },
		"autosave-interval":   { "type": "string" },
		"health-stale-after":  { "type": "string" },
		"transaction-timeout": { "type": "string" },
		"use-mmap":            { "type": "boolean" },
		"verify-digest":       { "type": "boolean" },
		"gops":                { "type": "boolean" },
		"relay": {
			"type": "object",
			"properties": {
				"address": { "type": "string" },
				"subject": { "type": "string" }
			}
		},
		"metrics": {
			"type": "object",
			"properties": {
				"enabled": { "type": "boolean" },
				"addr":    { "type": "string" }
			}
		}
	}
}`
