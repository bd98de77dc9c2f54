// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"
)

// Digest computes the optional per-transaction integrity hash: a
// BLAKE2b-256 sum over a fully reassembled payload. This detects
// accidental corruption only; it is not authentication.
func Digest(payload []byte) [32]byte {
	return blake2b.Sum256(payload)
}

// VerifyDigest reports whether payload matches the previously computed
// digest, in constant time.
func VerifyDigest(payload []byte, want [32]byte) bool {
	got := Digest(payload)
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}
