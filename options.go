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

package feedlog

import (
	"time"

	"github.com/feedlog/feedlog/core"
	"github.com/feedlog/feedlog/fetcher"
)

// CreateOptions configures Create.
type CreateOptions struct {
	ID      string
	Entries []*core.Entry
	Heads   []core.Digest
}

// CreateOption mutates a CreateOptions value.
type CreateOption func(*CreateOptions)

// WithID sets the log's chain identifier. If unset, Create mints a fresh
// random one.
func WithID(id string) CreateOption { return func(o *CreateOptions) { o.ID = id } }

// WithEntries seeds the log with a pre-existing entry set.
func WithEntries(entries []*core.Entry) CreateOption {
	return func(o *CreateOptions) { o.Entries = entries }
}

// WithHeads overrides the head set that would otherwise be computed from
// Entries via entryset.FindHeads.
func WithHeads(heads []core.Digest) CreateOption {
	return func(o *CreateOptions) { o.Heads = heads }
}

// FetchOptions configures the I/O-bound Log operations that hydrate entries
// through the fetcher: Expand, FromEntry and FromMultihash.
type FetchOptions struct {
	Exclude         map[core.Digest]bool
	OnProgress      fetcher.ProgressFunc
	PerFetchTimeout time.Duration
}

// FetchOption mutates a FetchOptions value.
type FetchOption func(*FetchOptions)

// WithExclude excludes the given digests from being re-fetched.
func WithExclude(seen map[core.Digest]bool) FetchOption {
	return func(o *FetchOptions) { o.Exclude = seen }
}

// WithProgress installs a fetch progress callback.
func WithProgress(fn fetcher.ProgressFunc) FetchOption {
	return func(o *FetchOptions) { o.OnProgress = fn }
}

// WithPerFetchTimeout overrides the fetcher's default 30 second per-digest
// timeout.
func WithPerFetchTimeout(d time.Duration) FetchOption {
	return func(o *FetchOptions) { o.PerFetchTimeout = d }
}

func resolveFetchOptions(opts ...FetchOption) *FetchOptions {
	o := &FetchOptions{PerFetchTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// fetcherOptions builds the fetcher.Option set for this call: max bounds the
// result count, and exclude -- already merged with o.Exclude by the caller
// -- seeds the seen-cache.
func (o *FetchOptions) fetcherOptions(max int, exclude map[core.Digest]bool) []fetcher.Option {
	fopts := []fetcher.Option{
		fetcher.WithMax(max),
		fetcher.WithPerFetchTimeout(o.PerFetchTimeout),
		fetcher.WithExclude(exclude),
	}
	if o.OnProgress != nil {
		fopts = append(fopts, fetcher.WithProgress(o.OnProgress))
	}
	return fopts
}

// JoinOptions configures Join and JoinAll.
type JoinOptions struct {
	Size int
	ID   string
}

// JoinOption mutates a JoinOptions value.
type JoinOption func(*JoinOptions)

// WithSize caps the number of entries retained by Join, keeping only the
// most causally recent suffix of the merged, sorted sequence. Negative (the
// default) means unbounded.
func WithSize(n int) JoinOption { return func(o *JoinOptions) { o.Size = n } }

// WithJoinID overrides the default id of a joined log (the lexicographically
// smaller of the two input ids).
func WithJoinID(id string) JoinOption { return func(o *JoinOptions) { o.ID = id } }

func resolveJoinOptions(opts ...JoinOption) *JoinOptions {
	o := &JoinOptions{Size: -1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
