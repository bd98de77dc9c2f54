// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package main

import (
	"github.com/hayselnut/stationd/internal/config"
	"github.com/hayselnut/stationd/pkg/log"
	"github.com/hayselnut/stationd/pkg/tsdb"
)

// openStore falls back to the file-backed store on platforms without the
// mmap implementation.
func openStore(keys config.Keys) (*tsdb.DB, error) {
	if keys.UseMmap {
		log.Warn("stationd: use-mmap is not supported on this platform, using the file-backed store")
	}
	return tsdb.Open(keys.DBPath, tsdb.Dynamic)
}
