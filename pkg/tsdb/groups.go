// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

// readPeriodic / writePeriodic / readSporadic / writeSporadic move a whole
// data group between the store and memory. Groups are small enough
// (≈(PeriodicN-1)*6 bytes) that round-tripping the entire group on every
// insert stays simple, at the cost of a copy that direct access into the
// mapping would avoid.
func (db *DB) readPeriodic(p Ptr[DataGroupPeriodic]) (DataGroupPeriodic, error) {
	buf := make([]byte, dataGroupPeriodicSize)
	if err := db.store.ReadAt(buf, int64(p)); err != nil {
		return DataGroupPeriodic{}, err
	}
	var g DataGroupPeriodic
	g.unmarshal(buf)
	return g, nil
}

func (db *DB) writePeriodic(p Ptr[DataGroupPeriodic], g DataGroupPeriodic) error {
	buf := make([]byte, dataGroupPeriodicSize)
	g.marshal(buf)
	return db.store.WriteAt(buf, int64(p))
}

func (db *DB) readSporadic(p Ptr[DataGroupSporadic]) (DataGroupSporadic, error) {
	buf := make([]byte, dataGroupSporadicSize)
	if err := db.store.ReadAt(buf, int64(p)); err != nil {
		return DataGroupSporadic{}, err
	}
	var g DataGroupSporadic
	g.unmarshal(buf)
	return g, nil
}

func (db *DB) writeSporadic(p Ptr[DataGroupSporadic], g DataGroupSporadic) error {
	buf := make([]byte, dataGroupSporadicSize)
	g.marshal(buf)
	return db.store.WriteAt(buf, int64(p))
}

// allocEmptyGroup allocates a freshly zeroed data group of the kind
// channel.GroupType names, returning it as the untyped Ptr an indexEntry
// stores.
func (db *DB) allocEmptyGroup(groupType uint8) (Ptr[byte], error) {
	if groupType == GroupTypeSporadic {
		payload, err := db.alloc.Allocate(db.sporadicCat, uint32(dataGroupSporadicSize))
		if err != nil {
			return 0, err
		}
		return Ptr[byte](payload), nil
	}
	payload, err := db.alloc.Allocate(db.periodicCat, uint32(dataGroupPeriodicSize))
	if err != nil {
		return 0, err
	}
	return Ptr[byte](payload), nil
}
