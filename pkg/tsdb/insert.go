// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"math"
	"sort"

	"github.com/google/uuid"
)

// groupCapacity returns the number of entries one data group can hold:
// PeriodicN-1 slots for periodic groups, SporadicN for sporadic.
func groupCapacity(groupType uint8) int {
	if groupType == GroupTypeSporadic {
		return SporadicN
	}
	return PeriodicN - 1
}

// Insert persists one reading. Timestamps are Unix seconds; negative
// values are permitted.
func (db *DB) Insert(stationID, channelID uuid.UUID, ts int64, value float32) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	ep, err := db.readEntrypoint()
	if err != nil {
		return err
	}
	station, _, found, err := db.findStation(ep, stationID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownStation
	}
	channel, chLoc, found, err := db.findChannel(station, channelID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownChannel
	}

	capacity := groupCapacity(channel.GroupType)

	// Walk the newest-first index list, tracking the previous node so a
	// brand-new entry can be spliced in at the correct sorted position.
	// A full group is never split or repacked; the new entry simply lands
	// in front of it.
	var prevPtr Ptr[chunk[indexEntry]]
	cur := channel.IndexHead
	for !cur.Null() {
		node, err := db.index.read(cur)
		if err != nil {
			return err
		}
		e := node.Slots[0]
		dt := ts - e.After
		if dt > 0 {
			if int(e.Used) < capacity {
				newEntry, err := db.insertIntoGroup(channel.GroupType, e, ts, value)
				if err != nil {
					return err
				}
				node.Slots[0] = newEntry
				return db.index.write(cur, node)
			}
			return db.spliceNewEntry(&channel, chLoc, channel.GroupType, prevPtr, cur, ts, value)
		}
		prevPtr = cur
		cur = node.Next
	}

	// Nothing preceded ts in time: either the list is empty, or ts is
	// older than every existing window. Either way the new entry becomes
	// the tail (when prevPtr is set) or the sole/head entry.
	return db.spliceNewEntry(&channel, chLoc, channel.GroupType, prevPtr, 0, ts, value)
}

// spliceNewEntry allocates a fresh empty data group, inserts (ts, value)
// as its first record, and links a new single-entry chunk into the index
// list immediately before `before` (null meaning "at the tail").
func (db *DB) spliceNewEntry(channel *Channel, chLoc slotLoc[Channel], groupType uint8, prevPtr, before Ptr[chunk[indexEntry]], ts int64, value float32) error {
	groupPtr, err := db.allocEmptyGroup(groupType)
	if err != nil {
		return err
	}
	entry := indexEntry{After: ts, Group: groupPtr}
	entry, err = db.insertIntoGroup(groupType, entry, ts, value)
	if err != nil {
		return err
	}
	// prepend always allocates a chunk whose Next points at the node it is
	// being spliced in front of; the caller below decides whether that
	// slot is the channel's IndexHead or a predecessor's Next.
	newPtr, err := db.index.prepend(before, entry)
	if err != nil {
		return err
	}

	if prevPtr.Null() {
		channel.IndexHead = newPtr
		return db.channels.updateAt(chLoc, *channel)
	}
	prevNode, err := db.index.read(prevPtr)
	if err != nil {
		return err
	}
	prevNode.Next = newPtr
	return db.index.write(prevPtr, prevNode)
}

// insertIntoGroup inserts (ts, value) into an existing (possibly empty)
// data group, keeping reconstructed times non-decreasing; an equal
// timestamp lands immediately after the last equal one (stable).
func (db *DB) insertIntoGroup(groupType uint8, e indexEntry, ts int64, value float32) (indexEntry, error) {
	if groupType == GroupTypeSporadic {
		return db.insertSporadic(e, ts, value)
	}
	return db.insertPeriodic(e, ts, value)
}

func (db *DB) insertSporadic(e indexEntry, ts int64, value float32) (indexEntry, error) {
	p := Cast[DataGroupSporadic](e.Group)
	g, err := db.readSporadic(p)
	if err != nil {
		return e, err
	}
	n := int(e.Used)
	offset := ts - e.After
	if offset < 0 || offset > math.MaxUint32 {
		return e, ErrDeltaTimeOutOfRange
	}
	off32 := uint32(offset)

	idx := sort.Search(n, func(i int) bool { return g.Dt[i] > off32 })
	copy(g.Dt[idx+1:n+1], g.Dt[idx:n])
	copy(g.Data[idx+1:n+1], g.Data[idx:n])
	g.Dt[idx] = off32
	g.Data[idx] = value
	e.Used = uint64(n + 1)

	if err := db.writeSporadic(p, g); err != nil {
		return e, err
	}
	return e, nil
}

func (db *DB) insertPeriodic(e indexEntry, ts int64, value float32) (indexEntry, error) {
	p := Cast[DataGroupPeriodic](e.Group)
	g, err := db.readPeriodic(p)
	if err != nil {
		return e, err
	}
	n := int(e.Used)
	newOffset := ts - e.After
	if newOffset < 0 {
		return e, ErrDeltaTimeOutOfRange
	}

	offsets := make([]int64, n+1)
	for i := 0; i < n; i++ {
		offsets[i] = int64(i)*int64(g.AvgDt) + int64(g.Dt[i])
	}
	idx := sort.Search(n, func(i int) bool { return offsets[i] > newOffset })
	copy(offsets[idx+1:n+1], offsets[idx:n])
	offsets[idx] = newOffset

	data := make([]float32, n+1)
	copy(data[:idx], g.Data[:idx])
	data[idx] = value
	copy(data[idx+1:n+1], g.Data[idx:n])

	newN := n + 1
	avgDt := recomputeAvgDt(offsets[:newN])

	dt := make([]int16, newN)
	for i := 0; i < newN; i++ {
		d := offsets[i] - int64(i)*int64(avgDt)
		if d < math.MinInt16 || d > math.MaxInt16 {
			return e, ErrDeltaTimeOutOfRange
		}
		dt[i] = int16(d)
	}

	g.AvgDt = avgDt
	for i := 0; i < newN; i++ {
		g.Dt[i] = dt[i]
		g.Data[i] = data[i]
	}
	e.Used = uint64(newN)

	if err := db.writePeriodic(p, g); err != nil {
		return e, err
	}
	return e, nil
}

// recomputeAvgDt fits avg_dt so that offsets[i] ≈ i*avg_dt, by
// least-squares regression through the origin. With a single sample the fit is
// undetermined (i=0 contributes nothing); avg_dt is then left at the raw
// offset itself as a reasonable first estimate for the next insert.
func recomputeAvgDt(offsets []int64) uint32 {
	n := len(offsets)
	if n == 0 {
		return 0
	}
	if n == 1 {
		if offsets[0] < 0 {
			return 0
		}
		return uint32(offsets[0])
	}
	var sumIOffset, sumI2 int64
	for i := 1; i < n; i++ {
		sumIOffset += int64(i) * offsets[i]
		sumI2 += int64(i) * int64(i)
	}
	if sumI2 == 0 {
		return 0
	}
	avg := sumIOffset / sumI2
	if avg < 0 {
		return 0
	}
	if avg > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(avg)
}
