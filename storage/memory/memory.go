// Copyright 2025 The Feedlog authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory implements a feedlog core.BlockStore held entirely in
// memory, bounded by an LRU cache so a long-running process can't grow the
// store without limit.
package memory

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/feedlog/feedlog/core"
)

// Storage is an in-memory core.BlockStore. Blocks evicted from the LRU are
// gone for good: it's a cache-shaped store, suitable for tests and for
// fronting a slower durable store, not for being the sole copy of data
// that must survive process restarts.
type Storage struct {
	cache *lru.Cache[core.Digest, []byte]
}

// New returns a Storage that holds at most size blocks, evicting the least
// recently used block once full.
func New(size int) (*Storage, error) {
	c, err := lru.New[core.Digest, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("memory: lru.New(%d): %w", size, err)
	}
	return &Storage{cache: c}, nil
}

// Put stores data under its content digest.
func (s *Storage) Put(_ context.Context, data []byte) (core.Digest, error) {
	d, err := core.Sum(data)
	if err != nil {
		return "", fmt.Errorf("memory: digest: %w", err)
	}
	s.cache.Add(d, append([]byte(nil), data...))
	return d, nil
}

// Get retrieves the bytes stored under d, if still resident in the cache.
func (s *Storage) Get(_ context.Context, d core.Digest) ([]byte, error) {
	data, ok := s.cache.Get(d)
	if !ok {
		return nil, &core.StoreError{Op: "get", Err: core.ErrBlockNotFound}
	}
	return data, nil
}
