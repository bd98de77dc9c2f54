// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"fmt"

	"github.com/google/uuid"
)

// Reading is one (time, value) pair returned by a query.
type Reading struct {
	Time  int64
	Value float32
}

// QueryParams are the parameters of a query. QueryBuilder.Verify produces
// them with both IDs set and the bounds checked; a QueryParams literal
// skips those checks.
type QueryParams struct {
	StationID  uuid.UUID
	ChannelID  uuid.UUID
	After      *int64
	Before     *int64
	MaxResults int
}

// QueryBuilder accumulates query parameters. Go cannot express the
// required-field typestate in the type system, so Verify enforces it at
// runtime instead: WithStation and WithChannel are required, and Verify
// reports their absence the same way it reports BeforeAfterAfter.
type QueryBuilder struct {
	params                 QueryParams
	hasStation, hasChannel bool
}

func NewQuery() *QueryBuilder {
	return &QueryBuilder{}
}

func (b *QueryBuilder) WithStation(id uuid.UUID) *QueryBuilder {
	b.params.StationID = id
	b.hasStation = true
	return b
}

func (b *QueryBuilder) WithChannel(id uuid.UUID) *QueryBuilder {
	b.params.ChannelID = id
	b.hasChannel = true
	return b
}

func (b *QueryBuilder) WithAfter(t int64) *QueryBuilder {
	b.params.After = &t
	return b
}

func (b *QueryBuilder) WithBefore(t int64) *QueryBuilder {
	b.params.Before = &t
	return b
}

func (b *QueryBuilder) WithMaxResults(n int) *QueryBuilder {
	b.params.MaxResults = n
	return b
}

// Verify returns the finished QueryParams, or an error if the builder is
// incomplete or its bounds are contradictory.
func (b *QueryBuilder) Verify() (QueryParams, error) {
	if !b.hasStation || !b.hasChannel {
		return QueryParams{}, fmt.Errorf("tsdb: query requires both with_station and with_channel")
	}
	if b.params.Before != nil && b.params.After != nil && *b.params.Before < *b.params.After {
		return QueryParams{}, ErrBeforeAfterAfter
	}
	return b.params, nil
}

// Query executes a verified query: a newest-first walk of the channel's
// index list, expanding every group that overlaps the bounds.
func (db *DB) Query(p QueryParams) ([]Reading, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ep, err := db.readEntrypoint()
	if err != nil {
		return nil, err
	}
	station, _, found, err := db.findStation(ep, p.StationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnknownStation
	}
	channel, _, found, err := db.findChannel(station, p.ChannelID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnknownChannel
	}
	if channel.IndexHead.Null() {
		return nil, nil
	}

	var entries []indexEntry
	cur := channel.IndexHead
	for !cur.Null() {
		node, err := db.index.read(cur)
		if err != nil {
			return nil, err
		}
		entries = append(entries, node.Slots[0])
		cur = node.Next
	}

	var results []Reading
	for i, e := range entries {
		if p.Before != nil && e.After > *p.Before {
			// This window starts after the upper bound; older entries
			// further down the list might still be relevant.
			continue
		}
		if p.After != nil && i > 0 && entries[i-1].After < *p.After {
			// This window and its newer neighbour both start before the
			// lower bound; readings here are no later than the neighbour's
			// start, so nothing from here down the list can match.
			break
		}

		readings, err := db.expandGroup(channel.GroupType, e)
		if err != nil {
			return nil, err
		}
		for _, r := range readings {
			if p.After != nil && r.Time < *p.After {
				continue
			}
			if p.Before != nil && r.Time > *p.Before {
				continue
			}
			results = append(results, r)
			if p.MaxResults > 0 && len(results) >= p.MaxResults {
				return results, nil
			}
		}
	}
	return results, nil
}

// LastReading returns the most recent reading on one channel, or ok=false
// if the channel has never been written to. Only the head (newest) index
// entry is consulted: the index list is newest-first, so no
// entry reachable from IndexHead.Next can hold a more recent window.
func (db *DB) LastReading(stationID, channelID uuid.UUID) (Reading, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ep, err := db.readEntrypoint()
	if err != nil {
		return Reading{}, false, err
	}
	station, _, found, err := db.findStation(ep, stationID)
	if err != nil {
		return Reading{}, false, err
	}
	if !found {
		return Reading{}, false, ErrUnknownStation
	}
	channel, _, found, err := db.findChannel(station, channelID)
	if err != nil {
		return Reading{}, false, err
	}
	if !found {
		return Reading{}, false, ErrUnknownChannel
	}
	if channel.IndexHead.Null() {
		return Reading{}, false, nil
	}

	node, err := db.index.read(channel.IndexHead)
	if err != nil {
		return Reading{}, false, err
	}
	readings, err := db.expandGroup(channel.GroupType, node.Slots[0])
	if err != nil {
		return Reading{}, false, err
	}
	if len(readings) == 0 {
		return Reading{}, false, nil
	}
	last := readings[0]
	for _, r := range readings[1:] {
		if r.Time > last.Time {
			last = r
		}
	}
	return last, true, nil
}

func (db *DB) expandGroup(groupType uint8, e indexEntry) ([]Reading, error) {
	if groupType == GroupTypeSporadic {
		g, err := db.readSporadic(Cast[DataGroupSporadic](e.Group))
		if err != nil {
			return nil, err
		}
		out := make([]Reading, 0, e.Used)
		for i := 0; i < int(e.Used); i++ {
			out = append(out, Reading{Time: e.After + int64(g.Dt[i]), Value: g.Data[i]})
		}
		return out, nil
	}
	g, err := db.readPeriodic(Cast[DataGroupPeriodic](e.Group))
	if err != nil {
		return nil, err
	}
	out := make([]Reading, 0, e.Used)
	for i := 0; i < int(e.Used); i++ {
		t := e.After + int64(i)*int64(g.AvgDt) + int64(g.Dt[i])
		out = append(out, Reading{Time: t, Value: g.Data[i]})
	}
	return out, nil
}
