// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	testStationID = uuid.MustParse("0a0a0a0a-0a0a-0a0a-0a0a-0a0a0a0a0a0a")
	testChannelID = uuid.MustParse("0c0c0c0c-0c0c-0c0c-0c0c-0c0c0c0c0c0c")
)

func openTestDB(t *testing.T, groupType uint8) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tsdb")
	db, err := Open(path, Dynamic)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.AddStation(testStationID))
	require.NoError(t, db.AddChannel(testStationID, testChannelID, groupType))
	return db, path
}

func queryRange(t *testing.T, db *DB, after, before int64) []Reading {
	t.Helper()
	params, err := NewQuery().
		WithStation(testStationID).
		WithChannel(testChannelID).
		WithAfter(after).
		WithBefore(before).
		Verify()
	require.NoError(t, err)
	readings, err := db.Query(params)
	require.NoError(t, err)
	return readings
}

func sortByTime(rs []Reading) []Reading {
	out := append([]Reading(nil), rs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func TestSinglePeriodicInsertSurvivesReopen(t *testing.T) {
	db, path := openTestDB(t, GroupTypePeriodic)

	require.NoError(t, db.Insert(testStationID, testChannelID, 1000, 42.0))
	require.Equal(t, []Reading{{Time: 1000, Value: 42.0}}, queryRange(t, db, 0, 2000))

	// Close and reopen: the reading must survive untouched.
	require.NoError(t, db.Close())
	db, err := Open(path, Dynamic)
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, []Reading{{Time: 1000, Value: 42.0}}, queryRange(t, db, 0, 2000))
}

func TestOutOfOrderPeriodicInserts(t *testing.T) {
	db, _ := openTestDB(t, GroupTypePeriodic)

	require.NoError(t, db.Insert(testStationID, testChannelID, 200, 2.0))
	require.NoError(t, db.Insert(testStationID, testChannelID, 100, 1.0))
	require.NoError(t, db.Insert(testStationID, testChannelID, 300, 3.0))

	got := sortByTime(queryRange(t, db, 0, 500))
	require.Equal(t, []Reading{{100, 1.0}, {200, 2.0}, {300, 3.0}}, got)
}

func TestSporadicRoundTripPreservesInsertionOrder(t *testing.T) {
	// Monotone distinct timestamps into a sporadic group come back
	// exactly, in insertion order.
	db, _ := openTestDB(t, GroupTypeSporadic)

	var want []Reading
	for i := int64(0); i < 100; i++ {
		ts := 1000 + i*7
		v := float32(i)
		require.NoError(t, db.Insert(testStationID, testChannelID, ts, v))
		want = append(want, Reading{Time: ts, Value: v})
	}
	require.Equal(t, want, queryRange(t, db, 0, 10000))
}

func TestPeriodicReconstructionMatchesInputSet(t *testing.T) {
	// after + i*avg_dt + dt[i] must reproduce the original timestamp
	// set, even with jittered inter-arrival times.
	db, _ := openTestDB(t, GroupTypePeriodic)

	jitter := []int64{0, -3, 5, 2, -1, 4, 0, -2, 3, 1}
	var want []int64
	for i, j := range jitter {
		ts := 500 + int64(i)*60 + j
		require.NoError(t, db.Insert(testStationID, testChannelID, ts, float32(i)))
		want = append(want, ts)
	}

	var got []int64
	for _, r := range queryRange(t, db, 0, 10000) {
		got = append(got, r.Time)
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	require.Equal(t, want, got)
}

func TestPeriodicDeltaOutOfRangeIsRecoverable(t *testing.T) {
	db, _ := openTestDB(t, GroupTypePeriodic)

	require.NoError(t, db.Insert(testStationID, testChannelID, 0, 0.0))
	require.NoError(t, db.Insert(testStationID, testChannelID, 1, 1.0))

	// A timestamp so far out that the recomputed per-slot deltas cannot
	// fit an int16 must fail cleanly and leave the group unchanged.
	err := db.Insert(testStationID, testChannelID, 1_000_000_000, 2.0)
	require.ErrorIs(t, err, ErrDeltaTimeOutOfRange)

	got := sortByTime(queryRange(t, db, -1, 100))
	require.Equal(t, []Reading{{0, 0.0}, {1, 1.0}}, got)
}

func TestFullGroupSplitsIntoNewIndexEntry(t *testing.T) {
	// Once a data group holds its full capacity, the next insert in its
	// window allocates a fresh index entry rather than touching the full
	// group's data.
	db, _ := openTestDB(t, GroupTypeSporadic)

	for i := int64(0); i < int64(SporadicN); i++ {
		require.NoError(t, db.Insert(testStationID, testChannelID, 1+i, float32(i)))
	}
	require.NoError(t, db.Insert(testStationID, testChannelID, int64(SporadicN)+500, 99.0))

	readings := queryRange(t, db, 0, int64(SporadicN)+1000)
	require.Len(t, readings, SporadicN+1)

	last, ok, err := db.LastReading(testStationID, testChannelID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Reading{Time: int64(SporadicN) + 500, Value: 99.0}, last)
}

func TestInsertOlderThanEveryWindowAppendsTailEntry(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	require.NoError(t, db.Insert(testStationID, testChannelID, 5000, 5.0))
	require.NoError(t, db.Insert(testStationID, testChannelID, 100, 1.0))

	got := sortByTime(queryRange(t, db, 0, 10000))
	require.Equal(t, []Reading{{100, 1.0}, {5000, 5.0}}, got)

	// The newest window must still be the head one.
	last, ok, err := db.LastReading(testStationID, testChannelID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(5000), last.Time)
}

func TestInsertUnknownStationOrChannel(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	err := db.Insert(uuid.New(), testChannelID, 100, 1.0)
	require.ErrorIs(t, err, ErrUnknownStation)

	err = db.Insert(testStationID, uuid.New(), 100, 1.0)
	require.ErrorIs(t, err, ErrUnknownChannel)
}

func TestNegativeTimestampsArePermitted(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	require.NoError(t, db.Insert(testStationID, testChannelID, -1000, 1.0))
	require.NoError(t, db.Insert(testStationID, testChannelID, -500, 2.0))

	got := sortByTime(queryRange(t, db, -2000, 0))
	require.Equal(t, []Reading{{-1000, 1.0}, {-500, 2.0}}, got)
}
