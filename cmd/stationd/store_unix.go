// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package main

import (
	"github.com/hayselnut/stationd/internal/config"
	"github.com/hayselnut/stationd/pkg/tsdb"
)

// openStore picks the backing store implementation for the TSDB: the
// mmap-backed store when use-mmap is set, the pread/pwrite file store
// otherwise.
func openStore(keys config.Keys) (*tsdb.DB, error) {
	if keys.UseMmap {
		store, err := tsdb.OpenMmap(keys.DBPath, tsdb.Dynamic, 0)
		if err != nil {
			return nil, err
		}
		return tsdb.OpenWith(store)
	}
	return tsdb.Open(keys.DBPath, tsdb.Dynamic)
}
