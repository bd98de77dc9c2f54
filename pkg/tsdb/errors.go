// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsdb

import "errors"

// Sentinel errors for the store, comparable with errors.Is; none of them
// are ever silently swallowed or retried by this package.
var (
	// ErrFreeListFull is returned by the allocator when a (size, align)
	// category would exceed the fixed category table (more than
	// MaxCategories distinct sizes registered).
	ErrFreeListFull = errors.New("tsdb: allocator free-list category table is full")

	// ErrCorrupt indicates an invariant violation found while reading the
	// store: bad flag bits, an in-use chunk discovered on a free list, or
	// a tuning-parameter mismatch on reopen. Never repaired automatically.
	ErrCorrupt = errors.New("tsdb: store corruption detected")

	// ErrBadMagic is returned at Open when the file's header magic does
	// not match, refusing to proceed rather than risk overwriting
	// foreign data.
	ErrBadMagic = errors.New("tsdb: not a Haysel DB file (bad magic)")

	// ErrDuplicateStation is returned by AddStation when the station
	// already exists.
	ErrDuplicateStation = errors.New("tsdb: station already exists")

	// ErrDuplicateChannel is returned by AddChannel when the channel
	// already exists on that station.
	ErrDuplicateChannel = errors.New("tsdb: channel already exists")

	// ErrUnknownStation / ErrUnknownChannel are returned by lookups.
	ErrUnknownStation = errors.New("tsdb: unknown station")
	ErrUnknownChannel = errors.New("tsdb: unknown channel")

	// ErrDeltaTimeOutOfRange is returned when a periodic insert's
	// recomputed per-slot delta cannot be represented in an int16.
	ErrDeltaTimeOutOfRange = errors.New("tsdb: delta time out of int16 range")

	// ErrBeforeAfterAfter is returned by query verification when
	// before < after.
	ErrBeforeAfterAfter = errors.New("tsdb: query 'before' precedes 'after'")
)
