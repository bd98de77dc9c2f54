// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of stationd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package tsdb

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// mmapStore is a Store backed by a memory-mapped region, re-mapped on
// Grow. Reads and writes copy into/out of the mapping under a mutex; a
// slice into the mapping itself is never handed out, so no two live
// references to the same byte range can exist.
type mmapStore struct {
	mu   sync.Mutex
	f    *os.File
	data []byte
	mode Mode
}

// OpenMmap opens path and maps it into the process address space. Prefer
// OpenFile unless the caller specifically wants page-cache-backed reads
// without a syscall per access.
func OpenMmap(path string, mode Mode, initialSize int64) (Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tsdb: open mmap store: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("tsdb: stat mmap store: %w", err)
	}
	size := fi.Size()
	if size < initialSize {
		if err := f.Truncate(initialSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("tsdb: truncate mmap store: %w", err)
		}
		size = initialSize
	}
	s := &mmapStore{f: f, mode: mode}
	if size > 0 {
		if err := s.remap(size); err != nil {
			f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *mmapStore) remap(size int64) error {
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("tsdb: munmap: %w", err)
		}
		s.data = nil
	}
	data, err := unix.Mmap(int(s.f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("tsdb: mmap: %w", err)
	}
	s.data = data
	return nil
}

func (s *mmapStore) ReadAt(p []byte, off int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return fmt.Errorf("tsdb: mmap read out of range")
	}
	copy(p, s.data[off:off+int64(len(p))])
	return nil
}

func (s *mmapStore) WriteAt(p []byte, off int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return fmt.Errorf("tsdb: mmap write out of range")
	}
	copy(s.data[off:off+int64(len(p))], p)
	return nil
}

func (s *mmapStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.data))
}

func (s *mmapStore) Grow(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= int64(len(s.data)) {
		return nil
	}
	if s.mode == FixedSize {
		return ErrFixedSize
	}
	if err := s.f.Truncate(n); err != nil {
		return fmt.Errorf("tsdb: grow mmap store: %w", err)
	}
	return s.remap(n)
}

func (s *mmapStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
			return fmt.Errorf("tsdb: msync: %w", err)
		}
	}
	return s.f.Sync()
}

func (s *mmapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			return fmt.Errorf("tsdb: munmap on close: %w", err)
		}
		s.data = nil
	}
	return s.f.Close()
}
