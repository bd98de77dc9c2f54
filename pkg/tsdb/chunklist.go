// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import "encoding/binary"

// chunk is one link of an on-disk chunked linked list: a next pointer, a
// fill count, and up to fanout slots. Slots beyond Used
// are unspecified on disk but always zeroed at allocation time.
type chunk[T any] struct {
	Next Ptr[chunk[T]]
	Used uint32
	Slots []T
}

// slotCodec describes how to marshal/unmarshal one slot, letting
// chunkedList stay generic over the three entity types stationd chains
// (Station, Channel, the index entry).
type slotCodec[T any] struct {
	size      int
	marshal   func(T, []byte)
	unmarshal func([]byte) T
}

func chunkByteSize[T any](fanout int, codec slotCodec[T]) int {
	return 8 + 4 + 4 + fanout*codec.size
}

func marshalChunk[T any](c *chunk[T], fanout int, codec slotCodec[T]) []byte {
	b := make([]byte, chunkByteSize(fanout, codec))
	binary.LittleEndian.PutUint64(b[0:8], uint64(c.Next))
	binary.LittleEndian.PutUint32(b[8:12], c.Used)
	off := 16
	for i := 0; i < fanout; i++ {
		var v T
		if i < len(c.Slots) {
			v = c.Slots[i]
		}
		codec.marshal(v, b[off:off+codec.size])
		off += codec.size
	}
	return b
}

func unmarshalChunk[T any](b []byte, fanout int, codec slotCodec[T]) *chunk[T] {
	c := &chunk[T]{Slots: make([]T, fanout)}
	c.Next = Ptr[chunk[T]](binary.LittleEndian.Uint64(b[0:8]))
	c.Used = binary.LittleEndian.Uint32(b[8:12])
	off := 16
	for i := 0; i < fanout; i++ {
		c.Slots[i] = codec.unmarshal(b[off : off+codec.size])
		off += codec.size
	}
	return c
}

// chunkedList is the runtime handle for walking/growing one chunked list:
// station lists, channel lists, and (with fanout forced to 1, see below)
// a channel's data-group index list.
type chunkedList[T any] struct {
	alloc    *Allocator
	store    Store
	category int
	fanout   int
	codec    slotCodec[T]
}

func newChunkedList[T any](a *Allocator, store Store, fanout int, codec slotCodec[T]) (*chunkedList[T], error) {
	size := chunkByteSize(fanout, codec)
	cat, err := a.RegisterCategory(uint32(size), 8)
	if err != nil {
		return nil, err
	}
	return &chunkedList[T]{alloc: a, store: store, category: cat, fanout: fanout, codec: codec}, nil
}

func (l *chunkedList[T]) read(p Ptr[chunk[T]]) (*chunk[T], error) {
	b := make([]byte, chunkByteSize(l.fanout, l.codec))
	if err := l.store.ReadAt(b, int64(p)); err != nil {
		return nil, err
	}
	return unmarshalChunk(b, l.fanout, l.codec), nil
}

func (l *chunkedList[T]) write(p Ptr[chunk[T]], c *chunk[T]) error {
	b := marshalChunk(c, l.fanout, l.codec)
	return l.store.WriteAt(b, int64(p))
}

func (l *chunkedList[T]) newChunk(c *chunk[T]) (Ptr[chunk[T]], error) {
	size := uint32(chunkByteSize(l.fanout, l.codec))
	payload, err := l.alloc.Allocate(l.category, size)
	if err != nil {
		return 0, err
	}
	p := Ptr[chunk[T]](payload)
	if err := l.write(p, c); err != nil {
		return 0, err
	}
	return p, nil
}

// push appends value to the last chunk with Used < fanout, allocating a
// new tail chunk if every existing one is full.
func (l *chunkedList[T]) push(head Ptr[chunk[T]], value T) (Ptr[chunk[T]], error) {
	if head.Null() {
		c := &chunk[T]{Slots: make([]T, l.fanout), Used: 1}
		c.Slots[0] = value
		return l.newChunk(c)
	}
	cur := head
	for {
		c, err := l.read(cur)
		if err != nil {
			return 0, err
		}
		if int(c.Used) < l.fanout {
			c.Slots[c.Used] = value
			c.Used++
			if err := l.write(cur, c); err != nil {
				return 0, err
			}
			return head, nil
		}
		if c.Next.Null() {
			nc := &chunk[T]{Slots: make([]T, l.fanout), Used: 1}
			nc.Slots[0] = value
			np, err := l.newChunk(nc)
			if err != nil {
				return 0, err
			}
			c.Next = np
			if err := l.write(cur, c); err != nil {
				return 0, err
			}
			return head, nil
		}
		cur = c.Next
	}
}

// slotLoc locates a slot within the list so callers can update it in
// place after a find.
type slotLoc[T any] struct {
	Chunk Ptr[chunk[T]]
	Index int
}

// find performs a linear walk, returning the first slot matching pred.
func (l *chunkedList[T]) find(head Ptr[chunk[T]], pred func(T) bool) (T, slotLoc[T], bool, error) {
	var zero T
	cur := head
	for !cur.Null() {
		c, err := l.read(cur)
		if err != nil {
			return zero, slotLoc[T]{}, false, err
		}
		for i := 0; i < int(c.Used); i++ {
			if pred(c.Slots[i]) {
				return c.Slots[i], slotLoc[T]{Chunk: cur, Index: i}, true, nil
			}
		}
		cur = c.Next
	}
	return zero, slotLoc[T]{}, false, nil
}

// findBest walks the whole list and retains the entry with the greatest
// key(value), for callers that need a maximum rather than a match.
func (l *chunkedList[T]) findBest(head Ptr[chunk[T]], key func(T) int64) (T, bool, error) {
	var best T
	var bestKey int64
	found := false
	err := l.forEach(head, func(v T) bool {
		if k := key(v); !found || k > bestKey {
			best, bestKey, found = v, k, true
		}
		return false
	})
	return best, found, err
}

func (l *chunkedList[T]) updateAt(loc slotLoc[T], value T) error {
	c, err := l.read(loc.Chunk)
	if err != nil {
		return err
	}
	c.Slots[loc.Index] = value
	return l.write(loc.Chunk, c)
}

// forEach walks every populated slot in chunk order, stopping early if fn
// returns true.
func (l *chunkedList[T]) forEach(head Ptr[chunk[T]], fn func(T) (stop bool)) error {
	cur := head
	for !cur.Null() {
		c, err := l.read(cur)
		if err != nil {
			return err
		}
		for i := 0; i < int(c.Used); i++ {
			if fn(c.Slots[i]) {
				return nil
			}
		}
		cur = c.Next
	}
	return nil
}

// prepend allocates a brand-new single-entry chunk pointing at the
// current head and returns it as the new head.
//
// This is how the channel index list grows: its newest-first order needs
// O(1) insertion at the front, which tail-append (push) cannot provide
// without shifting every existing entry on each insert. The index list
// sidesteps that with a fanout of 1 (forced in openDB; IndexChunkFanout is
// only recorded in TuningParams): every chunk holds
// exactly one index entry, so "prepend a chunk" and "prepend an entry"
// are the same operation and no shifting is ever needed.
func (l *chunkedList[T]) prepend(head Ptr[chunk[T]], value T) (Ptr[chunk[T]], error) {
	c := &chunk[T]{Slots: make([]T, l.fanout), Used: 1, Next: head}
	c.Slots[0] = value
	return l.newChunk(c)
}
