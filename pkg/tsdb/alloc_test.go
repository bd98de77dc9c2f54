// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, mode Mode) Store {
	t.Helper()
	store, err := OpenFile(filepath.Join(t.TempDir(), "alloc.db"), mode)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAllocatorFreshAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.db")
	store, err := OpenFile(path, Dynamic)
	require.NoError(t, err)

	a, fresh, err := OpenAllocator(store)
	require.NoError(t, err)
	require.True(t, fresh)

	cat, err := a.RegisterCategory(64, 8)
	require.NoError(t, err)
	p, err := a.Allocate(cat, 64)
	require.NoError(t, err)
	require.NotZero(t, p)
	require.NoError(t, store.Close())

	store, err = OpenFile(path, Dynamic)
	require.NoError(t, err)
	defer store.Close()
	_, fresh, err = OpenAllocator(store)
	require.NoError(t, err)
	require.False(t, fresh)
}

func TestFreeListReuseIsLIFO(t *testing.T) {
	// Allocate, free, allocate again: the second allocation must return
	// the exact offset the first one did.
	store := openTestStore(t, Dynamic)
	a, _, err := OpenAllocator(store)
	require.NoError(t, err)

	cat, err := a.RegisterCategory(128, 8)
	require.NoError(t, err)

	first, err := a.Allocate(cat, 128)
	require.NoError(t, err)
	require.NoError(t, a.Free(cat, first))

	second, err := a.Allocate(cat, 128)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAllocationsPartitionTheStore(t *testing.T) {
	// Live chunks plus free-list contents must partition the used region:
	// no two payload regions may overlap, whatever the alloc/free history.
	store := openTestStore(t, Dynamic)
	a, _, err := OpenAllocator(store)
	require.NoError(t, err)

	catA, err := a.RegisterCategory(32, 8)
	require.NoError(t, err)
	catB, err := a.RegisterCategory(96, 8)
	require.NoError(t, err)

	type region struct{ start, end uint64 }
	var regions []region
	track := func(p uint64, size uint64) {
		regions = append(regions, region{p - chunkHeaderSize, p + size})
	}

	var fromA []uint64
	for i := 0; i < 4; i++ {
		p, err := a.Allocate(catA, 32)
		require.NoError(t, err)
		track(p, 32)
		fromA = append(fromA, p)
	}
	require.NoError(t, a.Free(catA, fromA[1]))
	require.NoError(t, a.Free(catA, fromA[2]))

	// Freed regions get reused, never re-bumped; fresh size classes bump.
	for i := 0; i < 2; i++ {
		p, err := a.Allocate(catA, 32)
		require.NoError(t, err)
		require.Contains(t, fromA, p)
	}
	p, err := a.Allocate(catB, 96)
	require.NoError(t, err)
	track(p, 96)

	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			disjoint := regions[i].end <= regions[j].start || regions[j].end <= regions[i].start
			require.True(t, disjoint, "chunk regions %d and %d overlap", i, j)
		}
	}
}

func TestDoubleFreeIsCorruption(t *testing.T) {
	store := openTestStore(t, Dynamic)
	a, _, err := OpenAllocator(store)
	require.NoError(t, err)

	cat, err := a.RegisterCategory(64, 8)
	require.NoError(t, err)
	p, err := a.Allocate(cat, 64)
	require.NoError(t, err)

	require.NoError(t, a.Free(cat, p))
	require.ErrorIs(t, a.Free(cat, p), ErrCorrupt)
}

func TestReusedAllocationIsZeroed(t *testing.T) {
	store := openTestStore(t, Dynamic)
	a, _, err := OpenAllocator(store)
	require.NoError(t, err)

	cat, err := a.RegisterCategory(64, 8)
	require.NoError(t, err)
	p, err := a.Allocate(cat, 64)
	require.NoError(t, err)

	dirty := make([]byte, 64)
	for i := range dirty {
		dirty[i] = 0xEE
	}
	require.NoError(t, store.WriteAt(dirty, int64(p)))
	require.NoError(t, a.Free(cat, p))

	again, err := a.Allocate(cat, 64)
	require.NoError(t, err)
	require.Equal(t, p, again)

	got := make([]byte, 64)
	require.NoError(t, store.ReadAt(got, int64(again)))
	require.Equal(t, make([]byte, 64), got)
}

func TestOpenRejectsForeignFile(t *testing.T) {
	// A file that is large enough to hold a header but does not start with
	// the magic string must be refused, never silently reinitialized.
	path := filepath.Join(t.TempDir(), "foreign.bin")
	junk := make([]byte, allocHeaderSize+100)
	for i := range junk {
		junk[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, junk, 0o644))

	store, err := OpenFile(path, Dynamic)
	require.NoError(t, err)
	defer store.Close()

	_, _, err = OpenAllocator(store)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestFixedSizeStoreRefusesGrowth(t *testing.T) {
	store := openTestStore(t, FixedSize)
	_, _, err := OpenAllocator(store)
	require.ErrorIs(t, err, ErrFixedSize)
}
