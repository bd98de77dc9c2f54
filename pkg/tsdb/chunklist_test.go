// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestList(t *testing.T, fanout int) (*chunkedList[Station], Store) {
	t.Helper()
	store := openTestStore(t, Dynamic)
	a, _, err := OpenAllocator(store)
	require.NoError(t, err)
	l, err := newChunkedList(a, store, fanout, stationCodec)
	require.NoError(t, err)
	return l, store
}

func testStation(i byte) Station {
	var s Station
	s.ID[0] = i
	s.ID[15] = ^i
	return s
}

func TestPushPreservesInsertionOrder(t *testing.T) {
	l, _ := newTestList(t, 4)

	var head Ptr[chunk[Station]]
	for i := byte(0); i < 11; i++ {
		newHead, err := l.push(head, testStation(i))
		require.NoError(t, err)
		if head.Null() {
			head = newHead
		} else {
			// push never relinks an existing head
			require.Equal(t, head, newHead)
		}
	}

	var got []byte
	err := l.forEach(head, func(s Station) bool {
		got = append(got, s.ID[0])
		return false
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
}

func TestOnlyTailChunkIsPartial(t *testing.T) {
	l, _ := newTestList(t, 4)

	var head Ptr[chunk[Station]]
	var err error
	for i := byte(0); i < 11; i++ {
		head, err = l.push(head, testStation(i))
		require.NoError(t, err)
	}

	var fills []uint32
	cur := head
	for !cur.Null() {
		c, err := l.read(cur)
		require.NoError(t, err)
		fills = append(fills, c.Used)
		cur = c.Next
	}
	require.Equal(t, []uint32{4, 4, 3}, fills)
	for _, used := range fills[:len(fills)-1] {
		require.Equal(t, uint32(4), used)
	}
}

func TestFindReturnsLocationForInPlaceUpdate(t *testing.T) {
	l, _ := newTestList(t, 4)

	var head Ptr[chunk[Station]]
	var err error
	for i := byte(0); i < 7; i++ {
		head, err = l.push(head, testStation(i))
		require.NoError(t, err)
	}

	s, loc, found, err := l.find(head, func(s Station) bool { return s.ID[0] == 5 })
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, byte(5), s.ID[0])

	s.ChannelsHead = Ptr[chunk[Channel]](0xBEEF)
	require.NoError(t, l.updateAt(loc, s))

	got, _, found, err := l.find(head, func(s Station) bool { return s.ID[0] == 5 })
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Ptr[chunk[Channel]](0xBEEF), got.ChannelsHead)
}

func TestFindBestRetainsMaxByKey(t *testing.T) {
	l, _ := newTestList(t, 4)

	var head Ptr[chunk[Station]]
	var err error
	for _, i := range []byte{3, 9, 1, 7, 9, 2} {
		head, err = l.push(head, testStation(i))
		require.NoError(t, err)
	}

	best, found, err := l.findBest(head, func(s Station) int64 { return int64(s.ID[0]) })
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, byte(9), best.ID[0])

	_, found, err = l.findBest(0, func(s Station) int64 { return 0 })
	require.NoError(t, err)
	require.False(t, found)
}

func TestFindMissReturnsNotFound(t *testing.T) {
	l, _ := newTestList(t, 4)
	head, err := l.push(0, testStation(1))
	require.NoError(t, err)

	_, _, found, err := l.find(head, func(s Station) bool { return s.ID[0] == 99 })
	require.NoError(t, err)
	require.False(t, found)
}

func TestPrependBecomesNewHead(t *testing.T) {
	l, _ := newTestList(t, 1)
	head, err := l.push(0, testStation(1))
	require.NoError(t, err)

	newHead, err := l.prepend(head, testStation(2))
	require.NoError(t, err)
	require.NotEqual(t, head, newHead)

	var got []byte
	err = l.forEach(newHead, func(s Station) bool {
		got = append(got, s.ID[0])
		return false
	})
	require.NoError(t, err)
	require.Equal(t, []byte{2, 1}, got)
}
