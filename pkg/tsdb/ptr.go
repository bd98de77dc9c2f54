// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tsdb implements the single-file, memory-mapped time-series store:
// a fixed-block allocator, chunked on-disk linked lists, and the
// station/channel/data-group hierarchy built on top of them.
package tsdb

import "fmt"

// Ptr is a phantom-typed file offset. The zero value is null and never
// refers to a live allocation; offset 0 is reserved by the AllocHeader.
type Ptr[T any] uint64

// Null reports whether p is the null pointer.
func (p Ptr[T]) Null() bool { return p == 0 }

func (p Ptr[T]) String() string {
	if p.Null() {
		return "Ptr(null)"
	}
	return fmt.Sprintf("Ptr(0x%x)", uint64(p))
}

// Cast reinterprets a raw offset as a pointer to U. Used only at the few
// boundaries where a chunk's discriminant selects between concrete payload
// types (indexEntry.Group).
func Cast[U any, T any](p Ptr[T]) Ptr[U] { return Ptr[U](p) }
