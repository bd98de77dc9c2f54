// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"sync"

	"github.com/google/uuid"
)

// DB is the single-file, single-writer time-series store: a fixed-block
// allocator underneath a station → channel → data-group hierarchy, each
// level a chunked linked list.
//
// All methods are safe for concurrent use; internally a single mutex
// serializes every read and write, so the store behaves as the
// single-writer resource its on-disk format requires.
type DB struct {
	mu    sync.Mutex
	store Store
	alloc *Allocator

	stations *chunkedList[Station]
	channels *chunkedList[Channel]
	index    *chunkedList[indexEntry]

	entrypoint Ptr[DBEntrypoint]
	tuning     TuningParams

	periodicCat int
	sporadicCat int
}

var entrypointCodecSize = dbEntrypointSize

// Open opens or initializes a store at path under the given growth Mode.
func Open(path string, mode Mode) (*DB, error) {
	store, err := OpenFile(path, mode)
	if err != nil {
		return nil, err
	}
	return openDB(store)
}

// OpenWith opens or initializes a database over a caller-constructed Store
// (OpenFile, OpenBlockDevice, or the unix-only OpenMmap). The DB takes
// ownership of the store; Close closes it.
func OpenWith(store Store) (*DB, error) {
	return openDB(store)
}

func openDB(store Store) (*DB, error) {
	alloc, fresh, err := OpenAllocator(store)
	if err != nil {
		return nil, err
	}

	stations, err := newChunkedList(alloc, store, StationChunkFanout, stationCodec)
	if err != nil {
		return nil, err
	}
	channels, err := newChunkedList(alloc, store, ChannelChunkFanout, channelCodec)
	if err != nil {
		return nil, err
	}
	// The index list's chunks deliberately hold one entry each regardless
	// of IndexChunkFanout (see chunklist.go's prepend doc comment): fanout
	// is forced to 1 here rather than read from the tuning constant, which
	// exists only to be written into TuningParams for the reopen check.
	index, err := newChunkedList(alloc, store, 1, indexEntryCodec)
	if err != nil {
		return nil, err
	}

	db := &DB{
		store:    store,
		alloc:    alloc,
		stations: stations,
		channels: channels,
		index:    index,
	}

	entCategory, err := alloc.RegisterCategory(uint32(entrypointCodecSize), 8)
	if err != nil {
		return nil, err
	}

	periodicCat, err := alloc.RegisterCategory(uint32(dataGroupPeriodicSize), 8)
	if err != nil {
		return nil, err
	}
	sporadicCat, err := alloc.RegisterCategory(uint32(dataGroupSporadicSize), 8)
	if err != nil {
		return nil, err
	}
	db.periodicCat = periodicCat
	db.sporadicCat = sporadicCat

	if fresh {
		ep := DBEntrypoint{Tuning: compiledTuning()}
		payload, err := alloc.Allocate(entCategory, uint32(entrypointCodecSize))
		if err != nil {
			return nil, err
		}
		db.entrypoint = Ptr[DBEntrypoint](payload)
		db.tuning = ep.Tuning
		if err := db.writeEntrypoint(ep); err != nil {
			return nil, err
		}
		if err := alloc.SetEntrypoint(db.entrypoint); err != nil {
			return nil, err
		}
		return db, nil
	}

	db.entrypoint = alloc.Entrypoint()
	ep, err := db.readEntrypoint()
	if err != nil {
		return nil, err
	}
	if !ep.Tuning.equal(compiledTuning()) {
		return nil, ErrCorrupt
	}
	db.tuning = ep.Tuning
	return db, nil
}

func (db *DB) readEntrypoint() (DBEntrypoint, error) {
	buf := make([]byte, entrypointCodecSize)
	if err := db.store.ReadAt(buf, int64(db.entrypoint)); err != nil {
		return DBEntrypoint{}, err
	}
	var ep DBEntrypoint
	ep.unmarshal(buf)
	return ep, nil
}

func (db *DB) writeEntrypoint(ep DBEntrypoint) error {
	buf := make([]byte, entrypointCodecSize)
	ep.marshal(buf)
	return db.store.WriteAt(buf, int64(db.entrypoint))
}

// Close syncs the backing store and releases it. There is no journal; a
// clean shutdown's sync is the durability point.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.store.Sync(); err != nil {
		return err
	}
	return db.store.Close()
}

// Flush syncs the backing store without closing it, used by the periodic
// autosave job.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.store.Sync()
}

func uuidEq(b [16]byte, id uuid.UUID) bool {
	return [16]byte(id) == b
}

// AddStation registers a new station. Returns ErrDuplicateStation if it
// already exists.
func (db *DB) AddStation(id uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	ep, err := db.readEntrypoint()
	if err != nil {
		return err
	}
	_, _, found, err := db.stations.find(ep.StationsHead, func(s Station) bool {
		return uuidEq(s.ID, id)
	})
	if err != nil {
		return err
	}
	if found {
		return ErrDuplicateStation
	}

	newHead, err := db.stations.push(ep.StationsHead, Station{ID: [16]byte(id)})
	if err != nil {
		return err
	}
	if newHead != ep.StationsHead {
		ep.StationsHead = newHead
		if err := db.writeEntrypoint(ep); err != nil {
			return err
		}
	}
	return nil
}

// ListStations returns every registered station UUID.
func (db *DB) ListStations() ([]uuid.UUID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ep, err := db.readEntrypoint()
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	err = db.stations.forEach(ep.StationsHead, func(s Station) bool {
		out = append(out, uuid.UUID(s.ID))
		return false
	})
	return out, err
}

func (db *DB) findStation(ep DBEntrypoint, id uuid.UUID) (Station, slotLoc[Station], bool, error) {
	return db.stations.find(ep.StationsHead, func(s Station) bool { return uuidEq(s.ID, id) })
}

func (db *DB) findChannel(station Station, id uuid.UUID) (Channel, slotLoc[Channel], bool, error) {
	return db.channels.find(station.ChannelsHead, func(c Channel) bool { return uuidEq(c.ID, id) })
}

// AddChannel registers a new channel on an existing station. groupType is
// GroupTypePeriodic or GroupTypeSporadic.
func (db *DB) AddChannel(stationID, channelID uuid.UUID, groupType uint8) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	ep, err := db.readEntrypoint()
	if err != nil {
		return err
	}
	station, loc, found, err := db.findStation(ep, stationID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownStation
	}
	_, _, found, err = db.findChannel(station, channelID)
	if err != nil {
		return err
	}
	if found {
		return ErrDuplicateChannel
	}

	newHead, err := db.channels.push(station.ChannelsHead, Channel{ID: [16]byte(channelID), GroupType: groupType})
	if err != nil {
		return err
	}
	if newHead != station.ChannelsHead {
		station.ChannelsHead = newHead
		if err := db.stations.updateAt(loc, station); err != nil {
			return err
		}
	}
	return nil
}

// ListChannels returns every channel UUID registered on a station.
func (db *DB) ListChannels(stationID uuid.UUID) ([]uuid.UUID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ep, err := db.readEntrypoint()
	if err != nil {
		return nil, err
	}
	station, _, found, err := db.findStation(ep, stationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnknownStation
	}
	var out []uuid.UUID
	err = db.channels.forEach(station.ChannelsHead, func(c Channel) bool {
		out = append(out, uuid.UUID(c.ID))
		return false
	})
	return out, err
}
