// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import "sync"

// Allocator implements the fixed-block, free-list-per-(size,align)
// allocator: a bump cursor for new categories/sizes, and a LIFO free
// list per registered category for reuse after Free.
//
// Reads and writes never form a typed pointer directly into the backing
// store (every access goes through encoding/binary on a copied byte
// slice), so alignment padding between a ChunkHeader and its payload is
// not required for correctness. The (size, align) category key is still
// honored so two types that happen to share a size but declare different
// alignments get independent free lists; the padding itself is simply
// zero.
type Allocator struct {
	mu     sync.Mutex
	store  Store
	header AllocHeader
}

// OpenAllocator opens or initializes an allocator over store. fresh
// reports whether a brand-new header was written (the store was empty).
func OpenAllocator(store Store) (a *Allocator, fresh bool, err error) {
	a = &Allocator{store: store}
	if store.Size() < allocHeaderSize {
		if err := a.initHeader(); err != nil {
			return nil, false, err
		}
		return a, true, nil
	}
	buf := make([]byte, allocHeaderSize)
	if err := store.ReadAt(buf, 0); err != nil {
		return nil, false, err
	}
	if err := a.header.unmarshal(buf); err != nil {
		return nil, false, err
	}
	return a, false, nil
}

func (a *Allocator) initHeader() error {
	if err := a.store.Grow(allocHeaderSize); err != nil {
		return err
	}
	a.header = AllocHeader{Used: allocHeaderSize}
	return a.flushHeader()
}

func (a *Allocator) flushHeader() error {
	buf := make([]byte, allocHeaderSize)
	a.header.marshal(buf)
	return a.store.WriteAt(buf, 0)
}

// Entrypoint / SetEntrypoint persist the root of the user data graph.
func (a *Allocator) Entrypoint() Ptr[DBEntrypoint] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.header.Entrypoint
}

func (a *Allocator) SetEntrypoint(p Ptr[DBEntrypoint]) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.header.Entrypoint = p
	return a.flushHeader()
}

// RegisterCategory ensures a (size, align) free-list category exists,
// enumerating the types the caller intends to store: a type registry
// built once at Open rather than a process-global table.
func (a *Allocator) RegisterCategory(size, align uint32) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < int(a.header.NumCategories); i++ {
		c := a.header.Categories[i]
		if c.Size == size && c.Align == align {
			return i, nil
		}
	}
	if int(a.header.NumCategories) >= MaxCategories {
		return 0, ErrFreeListFull
	}
	idx := int(a.header.NumCategories)
	a.header.Categories[idx] = AllocCategoryHeader{Size: size, Align: align}
	a.header.NumCategories++
	if err := a.flushHeader(); err != nil {
		return 0, err
	}
	return idx, nil
}

// Allocate returns the payload offset of a zeroed, size-byte region in
// the category previously registered for (size, align).
func (a *Allocator) Allocate(category int, size uint32) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cat := a.header.Categories[category]
	if !cat.Head.Null() {
		// Reuse: pop the free list head (LIFO).
		hdrBuf := make([]byte, chunkHeaderSize)
		if err := a.store.ReadAt(hdrBuf, int64(cat.Head)); err != nil {
			return 0, err
		}
		var hdr ChunkHeader
		hdr.unmarshal(hdrBuf)
		if !hdr.Free() {
			return 0, ErrCorrupt
		}
		payload := uint64(cat.Head) + chunkHeaderSize
		a.header.Categories[category].Head = hdr.Next
		if err := a.flushHeader(); err != nil {
			return 0, err
		}
		hdr.setFree(false)
		hdr.Next = 0
		hdr.marshal(hdrBuf)
		if err := a.store.WriteAt(hdrBuf, int64(cat.Head)); err != nil {
			return 0, err
		}
		if err := a.zero(payload, size); err != nil {
			return 0, err
		}
		return payload, nil
	}

	// Bump allocate a new chunk.
	need := uint64(chunkHeaderSize) + uint64(size)
	chunkOff := a.header.Used
	if err := a.store.Grow(int64(chunkOff + need)); err != nil {
		return 0, err
	}
	hdr := ChunkHeader{Flags: 0, Len: size, Next: 0}
	hdrBuf := make([]byte, chunkHeaderSize)
	hdr.marshal(hdrBuf)
	if err := a.store.WriteAt(hdrBuf, int64(chunkOff)); err != nil {
		return 0, err
	}
	payload := chunkOff + chunkHeaderSize
	if err := a.zero(payload, size); err != nil {
		return 0, err
	}
	a.header.Used = chunkOff + need
	if err := a.flushHeader(); err != nil {
		return 0, err
	}
	return payload, nil
}

func (a *Allocator) zero(offset uint64, size uint32) error {
	buf := make([]byte, size)
	return a.store.WriteAt(buf, int64(offset))
}

// Free returns the region at payload offset to its category's free list.
func (a *Allocator) Free(category int, payload uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	chunkOff := payload - chunkHeaderSize
	hdrBuf := make([]byte, chunkHeaderSize)
	if err := a.store.ReadAt(hdrBuf, int64(chunkOff)); err != nil {
		return err
	}
	var hdr ChunkHeader
	hdr.unmarshal(hdrBuf)
	if hdr.Free() {
		return ErrCorrupt
	}
	hdr.setFree(true)
	hdr.Next = a.header.Categories[category].Head
	hdr.marshal(hdrBuf)
	if err := a.store.WriteAt(hdrBuf, int64(chunkOff)); err != nil {
		return err
	}
	a.header.Categories[category].Head = Ptr[ChunkHeader](chunkOff)
	return a.flushHeader()
}

func (a *Allocator) Tuning() (TuningParams, error) {
	ep := a.Entrypoint()
	if ep.Null() {
		return TuningParams{}, nil
	}
	buf := make([]byte, dbEntrypointSize)
	if err := a.store.ReadAt(buf, int64(ep)); err != nil {
		return TuningParams{}, err
	}
	var e DBEntrypoint
	e.unmarshal(buf)
	return e.Tuning, nil
}
