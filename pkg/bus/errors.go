// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import "errors"

var (
	// ErrNoListeners is returned immediately (without waiting out the
	// timeout) when the dispatcher has no registered handler instances at
	// all to deliver a Dispatch/Query to: no point hanging for 60s when
	// there is provably no one who could ever answer.
	ErrNoListeners = errors.New("bus: no handler instances are registered")

	// ErrDispatchTimeout is returned by Dispatch when no handler accepted
	// (validated the method and began handling) the message before the
	// 60-second verification deadline.
	ErrDispatchTimeout = errors.New("bus: dispatch timed out waiting for a handler to accept")

	// ErrQueryTimeout is returned by Query when no handler produced a
	// response before the 60-second deadline.
	ErrQueryTimeout = errors.New("bus: query timed out waiting for a response")

	// ErrResponseAlreadySet is logged (not returned to callers) when a
	// second handler attempts to write a Query's response slot; the first
	// write always wins.
	ErrResponseAlreadySet = errors.New("bus: response slot was already written by another handler")
)
