// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package tsdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMmapStoreReadWriteGrow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmap.db")
	store, err := OpenMmap(path, Dynamic, 4096)
	require.NoError(t, err)
	defer store.Close()

	require.EqualValues(t, 4096, store.Size())

	want := []byte("on-disk bytes")
	require.NoError(t, store.WriteAt(want, 100))
	got := make([]byte, len(want))
	require.NoError(t, store.ReadAt(got, 100))
	require.Equal(t, want, got)

	require.NoError(t, store.Grow(8192))
	require.EqualValues(t, 8192, store.Size())

	// Data written before the remap must still be there.
	require.NoError(t, store.ReadAt(got, 100))
	require.Equal(t, want, got)
}

func TestMmapStoreOutOfRangeAccess(t *testing.T) {
	store, err := OpenMmap(filepath.Join(t.TempDir(), "mmap.db"), Dynamic, 1024)
	require.NoError(t, err)
	defer store.Close()

	buf := make([]byte, 16)
	require.Error(t, store.ReadAt(buf, 1020))
	require.Error(t, store.WriteAt(buf, 1020))
}

func TestMmapBackedDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmap.tsdb")
	store, err := OpenMmap(path, Dynamic, 0)
	require.NoError(t, err)

	db, err := OpenWith(store)
	require.NoError(t, err)

	require.NoError(t, db.AddStation(testStationID))
	require.NoError(t, db.AddChannel(testStationID, testChannelID, GroupTypeSporadic))
	require.NoError(t, db.Insert(testStationID, testChannelID, 1000, 42.0))
	require.NoError(t, db.Close())

	// Reopen through the plain file store: both backends share one layout.
	db, err = Open(path, Dynamic)
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, []Reading{{Time: 1000, Value: 42.0}}, queryRange(t, db, 0, 2000))
}
