// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestVerifyRejectsBeforePrecedingAfter(t *testing.T) {
	// before >= after verifies; before < after fails.
	_, err := NewQuery().
		WithStation(testStationID).
		WithChannel(testChannelID).
		WithAfter(100).
		WithBefore(50).
		Verify()
	require.ErrorIs(t, err, ErrBeforeAfterAfter)

	_, err = NewQuery().
		WithStation(testStationID).
		WithChannel(testChannelID).
		WithAfter(100).
		WithBefore(100).
		Verify()
	require.NoError(t, err)

	_, err = NewQuery().
		WithStation(testStationID).
		WithChannel(testChannelID).
		WithAfter(100).
		WithBefore(200).
		Verify()
	require.NoError(t, err)
}

func TestVerifyRequiresStationAndChannel(t *testing.T) {
	_, err := NewQuery().WithChannel(testChannelID).Verify()
	require.Error(t, err)

	_, err = NewQuery().WithStation(testStationID).Verify()
	require.Error(t, err)

	_, err = NewQuery().WithStation(testStationID).WithChannel(testChannelID).Verify()
	require.NoError(t, err)
}

func TestQueryBoundsFilterReadings(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, db.Insert(testStationID, testChannelID, i*10, float32(i)))
	}

	got := queryRange(t, db, 25, 75)
	var times []int64
	for _, r := range got {
		times = append(times, r.Time)
	}
	require.Equal(t, []int64{30, 40, 50, 60, 70}, times)
}

func TestQueryMaxResultsStopsEarly(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, db.Insert(testStationID, testChannelID, i*10, float32(i)))
	}

	params, err := NewQuery().
		WithStation(testStationID).
		WithChannel(testChannelID).
		WithMaxResults(3).
		Verify()
	require.NoError(t, err)

	got, err := db.Query(params)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestQueryEmptyChannelReturnsNothing(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	params, err := NewQuery().WithStation(testStationID).WithChannel(testChannelID).Verify()
	require.NoError(t, err)
	got, err := db.Query(params)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestQueryUnknownStationAndChannel(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	params, err := NewQuery().WithStation(uuid.New()).WithChannel(testChannelID).Verify()
	require.NoError(t, err)
	_, err = db.Query(params)
	require.ErrorIs(t, err, ErrUnknownStation)

	params, err = NewQuery().WithStation(testStationID).WithChannel(uuid.New()).Verify()
	require.NoError(t, err)
	_, err = db.Query(params)
	require.ErrorIs(t, err, ErrUnknownChannel)
}

func TestQuerySpansMultipleIndexEntries(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)

	// Three windows created newest-first by inserting strictly older
	// timestamps each time; a bounded query must pick out of the middle.
	require.NoError(t, db.Insert(testStationID, testChannelID, 3000, 3.0))
	require.NoError(t, db.Insert(testStationID, testChannelID, 2000, 2.0))
	require.NoError(t, db.Insert(testStationID, testChannelID, 1000, 1.0))

	got := queryRange(t, db, 1500, 2500)
	require.Equal(t, []Reading{{Time: 2000, Value: 2.0}}, got)
}

func TestLastReadingOnEmptyChannel(t *testing.T) {
	db, _ := openTestDB(t, GroupTypeSporadic)
	_, ok, err := db.LastReading(testStationID, testChannelID)
	require.NoError(t, err)
	require.False(t, ok)
}
