// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"encoding/binary"
	"math"
)

// Tuning constants. These are compiled in rather than read purely from
// the file: the data-group arrays are fixed-size on disk, so their
// lengths must be compile-time constants. TuningParams still records them
// in the DBEntrypoint so a reopen against a mismatched binary is caught
// as ErrCorrupt rather than silently misreading the layout.
const (
	// MaxCategories bounds the allocator's (size, align) free-list table.
	MaxCategories = 1024

	// PeriodicN / SporadicN: capacity of one data group.
	PeriodicN = 1024
	SporadicN = 1024

	// Chunk fanout for the three chunked lists stationd maintains. The
	// index list is opened with one entry per chunk regardless of
	// IndexChunkFanout, which is recorded in TuningParams only.
	StationChunkFanout = 16
	ChannelChunkFanout = 32
	IndexChunkFanout   = 64

	magicString = "Haysel DB v3"
)

const (
	GroupTypePeriodic uint8 = 0
	GroupTypeSporadic uint8 = 1
)

// chunkHeaderFreeFlag is bit 31 of ChunkHeader.Flags.
const chunkHeaderFreeFlag uint32 = 1 << 31

// ChunkHeader precedes every live or free allocator block.
type ChunkHeader struct {
	Flags uint32
	Len   uint32
	Next  Ptr[ChunkHeader] // valid only when Free()
}

const chunkHeaderSize = 4 + 4 + 8

func (h ChunkHeader) Free() bool { return h.Flags&chunkHeaderFreeFlag != 0 }

func (h *ChunkHeader) setFree(v bool) {
	if v {
		h.Flags |= chunkHeaderFreeFlag
	} else {
		h.Flags &^= chunkHeaderFreeFlag
	}
}

func (h ChunkHeader) marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.Flags)
	binary.LittleEndian.PutUint32(b[4:8], h.Len)
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.Next))
}

func (h *ChunkHeader) unmarshal(b []byte) {
	h.Flags = binary.LittleEndian.Uint32(b[0:4])
	h.Len = binary.LittleEndian.Uint32(b[4:8])
	h.Next = Ptr[ChunkHeader](binary.LittleEndian.Uint64(b[8:16]))
}

// AllocCategoryHeader is one entry in AllocHeader's fixed category table.
type AllocCategoryHeader struct {
	Size  uint32
	Align uint32
	Head  Ptr[ChunkHeader]
}

const allocCategoryHeaderSize = 4 + 4 + 8

func (c AllocCategoryHeader) marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], c.Size)
	binary.LittleEndian.PutUint32(b[4:8], c.Align)
	binary.LittleEndian.PutUint64(b[8:16], uint64(c.Head))
}

func (c *AllocCategoryHeader) unmarshal(b []byte) {
	c.Size = binary.LittleEndian.Uint32(b[0:4])
	c.Align = binary.LittleEndian.Uint32(b[4:8])
	c.Head = Ptr[ChunkHeader](binary.LittleEndian.Uint64(b[8:16]))
}

// AllocHeader lives at offset 0. magic, entrypoint, bump cursor, category
// count, then a fixed table of MaxCategories entries.
type AllocHeader struct {
	Entrypoint    Ptr[DBEntrypoint]
	Used          uint64
	NumCategories uint32
	Categories    [MaxCategories]AllocCategoryHeader
}

const allocHeaderSize = 16 /*magic*/ + 8 /*entrypoint*/ + 8 /*used*/ + 4 /*numCategories*/ + 4 /*pad*/ + MaxCategories*allocCategoryHeaderSize

func (h AllocHeader) marshal(b []byte) {
	copy(b[0:16], magicString)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.Entrypoint))
	binary.LittleEndian.PutUint64(b[24:32], h.Used)
	binary.LittleEndian.PutUint32(b[32:36], h.NumCategories)
	off := 40
	for i := range h.Categories {
		h.Categories[i].marshal(b[off : off+allocCategoryHeaderSize])
		off += allocCategoryHeaderSize
	}
}

func (h *AllocHeader) unmarshal(b []byte) error {
	if string(b[0:len(magicString)]) != magicString {
		return ErrBadMagic
	}
	h.Entrypoint = Ptr[DBEntrypoint](binary.LittleEndian.Uint64(b[16:24]))
	h.Used = binary.LittleEndian.Uint64(b[24:32])
	h.NumCategories = binary.LittleEndian.Uint32(b[32:36])
	off := 40
	for i := range h.Categories {
		h.Categories[i].unmarshal(b[off : off+allocCategoryHeaderSize])
		off += allocCategoryHeaderSize
	}
	return nil
}

// TuningParams is written once at DB init and checked against the
// compiled-in constants on every reopen; a mismatch is corruption, fatal
// at open.
type TuningParams struct {
	PeriodicN          uint32
	SporadicN          uint32
	StationChunkFanout uint32
	ChannelChunkFanout uint32
	IndexChunkFanout   uint32
}

const tuningParamsSize = 4 * 5

func (t TuningParams) marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], t.PeriodicN)
	binary.LittleEndian.PutUint32(b[4:8], t.SporadicN)
	binary.LittleEndian.PutUint32(b[8:12], t.StationChunkFanout)
	binary.LittleEndian.PutUint32(b[12:16], t.ChannelChunkFanout)
	binary.LittleEndian.PutUint32(b[16:20], t.IndexChunkFanout)
}

func (t *TuningParams) unmarshal(b []byte) {
	t.PeriodicN = binary.LittleEndian.Uint32(b[0:4])
	t.SporadicN = binary.LittleEndian.Uint32(b[4:8])
	t.StationChunkFanout = binary.LittleEndian.Uint32(b[8:12])
	t.ChannelChunkFanout = binary.LittleEndian.Uint32(b[12:16])
	t.IndexChunkFanout = binary.LittleEndian.Uint32(b[16:20])
}

func compiledTuning() TuningParams {
	return TuningParams{
		PeriodicN:          PeriodicN,
		SporadicN:          SporadicN,
		StationChunkFanout: StationChunkFanout,
		ChannelChunkFanout: ChannelChunkFanout,
		IndexChunkFanout:   IndexChunkFanout,
	}
}

func (t TuningParams) equal(o TuningParams) bool {
	return t == o
}

// DBEntrypoint is the root of the user data graph, reached via
// AllocHeader.Entrypoint.
type DBEntrypoint struct {
	StationsHead Ptr[chunk[Station]]
	Tuning       TuningParams
}

const dbEntrypointSize = 8 + tuningParamsSize

func (e DBEntrypoint) marshal(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(e.StationsHead))
	e.Tuning.marshal(b[8 : 8+tuningParamsSize])
}

func (e *DBEntrypoint) unmarshal(b []byte) {
	e.StationsHead = Ptr[chunk[Station]](binary.LittleEndian.Uint64(b[0:8]))
	e.Tuning.unmarshal(b[8 : 8+tuningParamsSize])
}

// Station is one field device.
type Station struct {
	ID           [16]byte
	ChannelsHead Ptr[chunk[Channel]]
}

const stationSize = 16 + 8

func (s Station) marshal(b []byte) {
	copy(b[0:16], s.ID[:])
	binary.LittleEndian.PutUint64(b[16:24], uint64(s.ChannelsHead))
}

func (s *Station) unmarshal(b []byte) {
	copy(s.ID[:], b[0:16])
	s.ChannelsHead = Ptr[chunk[Channel]](binary.LittleEndian.Uint64(b[16:24]))
}

// Channel is one named reading stream on a station.
type Channel struct {
	ID        [16]byte
	GroupType uint8
	IndexHead Ptr[chunk[indexEntry]]
}

const channelSize = 16 + 1 + 7 /*pad*/ + 8

func (c Channel) marshal(b []byte) {
	copy(b[0:16], c.ID[:])
	b[16] = c.GroupType
	binary.LittleEndian.PutUint64(b[24:32], uint64(c.IndexHead))
}

func (c *Channel) unmarshal(b []byte) {
	copy(c.ID[:], b[0:16])
	c.GroupType = b[16]
	c.IndexHead = Ptr[chunk[indexEntry]](binary.LittleEndian.Uint64(b[24:32]))
}

// indexEntry is one element of a channel's data-group-index chunked
// list. Group is an untyped offset;
// GroupType on the owning Channel says whether to cast it to
// Ptr[DataGroupPeriodic] or Ptr[DataGroupSporadic].
type indexEntry struct {
	After int64
	Used  uint64
	Group Ptr[byte]
}

const indexEntrySize = 8 + 8 + 8

func (e indexEntry) marshal(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], uint64(e.After))
	binary.LittleEndian.PutUint64(b[8:16], e.Used)
	binary.LittleEndian.PutUint64(b[16:24], uint64(e.Group))
}

func (e *indexEntry) unmarshal(b []byte) {
	e.After = int64(binary.LittleEndian.Uint64(b[0:8]))
	e.Used = binary.LittleEndian.Uint64(b[8:16])
	e.Group = Ptr[byte](binary.LittleEndian.Uint64(b[16:24]))
}

// DataGroupPeriodic holds up to PeriodicN-1 readings at roughly regular
// intervals, compressed as a mean spacing plus per-slot signed deltas.
type DataGroupPeriodic struct {
	AvgDt uint32
	Dt    [PeriodicN - 1]int16
	Data  [PeriodicN - 1]float32
}

const dataGroupPeriodicSize = 4 + 4 /*pad*/ + (PeriodicN-1)*2 + (PeriodicN-1)*4

func (g DataGroupPeriodic) marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], g.AvgDt)
	off := 8
	for i := 0; i < PeriodicN-1; i++ {
		binary.LittleEndian.PutUint16(b[off:off+2], uint16(g.Dt[i]))
		off += 2
	}
	for i := 0; i < PeriodicN-1; i++ {
		binary.LittleEndian.PutUint32(b[off:off+4], math.Float32bits(g.Data[i]))
		off += 4
	}
}

func (g *DataGroupPeriodic) unmarshal(b []byte) {
	g.AvgDt = binary.LittleEndian.Uint32(b[0:4])
	off := 8
	for i := 0; i < PeriodicN-1; i++ {
		g.Dt[i] = int16(binary.LittleEndian.Uint16(b[off : off+2]))
		off += 2
	}
	for i := 0; i < PeriodicN-1; i++ {
		g.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
	}
}

// DataGroupSporadic holds up to SporadicN readings at irregular
// intervals, as an absolute offset from the index entry's After plus a
// value, the offsets non-decreasing in time.
type DataGroupSporadic struct {
	Dt   [SporadicN]uint32
	Data [SporadicN]float32
}

const dataGroupSporadicSize = SporadicN*4 + SporadicN*4

func (g DataGroupSporadic) marshal(b []byte) {
	off := 0
	for i := 0; i < SporadicN; i++ {
		binary.LittleEndian.PutUint32(b[off:off+4], g.Dt[i])
		off += 4
	}
	for i := 0; i < SporadicN; i++ {
		binary.LittleEndian.PutUint32(b[off:off+4], math.Float32bits(g.Data[i]))
		off += 4
	}
}

func (g *DataGroupSporadic) unmarshal(b []byte) {
	off := 0
	for i := 0; i < SporadicN; i++ {
		g.Dt[i] = binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
	}
	for i := 0; i < SporadicN; i++ {
		g.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
	}
}
