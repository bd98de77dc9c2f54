// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDuplicateStationRejected(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	err := db.AddStation(testStationID)
	require.ErrorIs(t, err, ErrDuplicateStation)

	stations, err := db.ListStations()
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{testStationID}, stations)
}

func TestDuplicateChannelRejected(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	err := db.AddChannel(testStationID, testChannelID, GroupTypeSporadic)
	require.ErrorIs(t, err, ErrDuplicateChannel)

	channels, err := db.ListChannels(testStationID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{testChannelID}, channels)
}

func TestAddChannelToUnknownStation(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)
	err := db.AddChannel(uuid.New(), uuid.New(), GroupTypePeriodic)
	require.ErrorIs(t, err, ErrUnknownStation)
}

func TestOpenCloseReopenIsClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean.tsdb")

	db, err := Open(path, Dynamic)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, Dynamic)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestStationRegistrySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.tsdb")

	db, err := Open(path, Dynamic)
	require.NoError(t, err)

	// Enough stations to spill past one chunk (StationChunkFanout slots).
	var want []uuid.UUID
	for i := 0; i < StationChunkFanout*2+5; i++ {
		id := uuid.New()
		require.NoError(t, db.AddStation(id))
		want = append(want, id)
	}
	require.NoError(t, db.Close())

	db, err = Open(path, Dynamic)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.ListStations()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestChannelsAcrossMultipleStations(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	other := uuid.New()
	otherChannel := uuid.New()
	require.NoError(t, db.AddStation(other))
	require.NoError(t, db.AddChannel(other, otherChannel, GroupTypePeriodic))

	// Each station sees only its own channels.
	channels, err := db.ListChannels(testStationID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{testChannelID}, channels)

	channels, err = db.ListChannels(other)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{otherChannel}, channels)
}

func TestListChannelsUnknownStation(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)
	_, err := db.ListChannels(uuid.New())
	require.ErrorIs(t, err, ErrUnknownStation)
}
