// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestDetectsCorruption(t *testing.T) {
	payload := []byte("temperature=21.5;humidity=63")
	sum := Digest(payload)
	require.True(t, VerifyDigest(payload, sum))

	flipped := append([]byte(nil), payload...)
	flipped[3] ^= 0x01
	require.False(t, VerifyDigest(flipped, sum))
}

func TestDigestIsDeterministic(t *testing.T) {
	payload := []byte{0, 1, 2, 3}
	require.Equal(t, Digest(payload), Digest(payload))
	require.NotEqual(t, Digest(payload), Digest([]byte{0, 1, 2, 4}))
}
