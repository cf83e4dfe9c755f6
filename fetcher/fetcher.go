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

// Package fetcher hydrates entries out of a BlockStore by breadth-first
// traversal from a set of seed digests, bounded in both result count and
// per-fetch latency.
package fetcher

import (
	"context"
	"errors"
	"time"

	"k8s.io/klog/v2"

	"github.com/feedlog/feedlog/core"
)

// ProgressFunc is invoked once per successfully materialized entry. parent is
// the entry whose Next enqueued hash (nil for a seed digest); depth is the
// BFS depth at which hash was discovered.
type ProgressFunc func(hash core.Digest, entry *core.Entry, parent *core.Entry, depth int)

// Options configures a Fetch call.
type Options struct {
	// Max bounds the number of entries returned; negative means unbounded.
	Max int
	// Exclude is a set of digests to treat as already seen.
	Exclude map[core.Digest]bool
	// PerFetchTimeout bounds a single BlockStore.Get call. Defaults to 30s.
	PerFetchTimeout time.Duration
	// OnProgress, if set, is called after every successful fetch.
	OnProgress ProgressFunc
}

// Option mutates an Options value.
type Option func(*Options)

// WithMax bounds the number of entries Fetch will return.
func WithMax(n int) Option { return func(o *Options) { o.Max = n } }

// WithExclude seeds the fetcher's seen-cache, so digests already known to
// the caller are never re-fetched.
func WithExclude(seen map[core.Digest]bool) Option {
	return func(o *Options) { o.Exclude = seen }
}

// WithPerFetchTimeout overrides the default 30 second per-digest timeout.
func WithPerFetchTimeout(d time.Duration) Option {
	return func(o *Options) { o.PerFetchTimeout = d }
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Options) { o.OnProgress = fn }
}

func resolveOptions(opts ...Option) *Options {
	o := &Options{
		Max:             -1,
		PerFetchTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type queueItem struct {
	hash   core.Digest
	parent *core.Entry
	depth  int
}

// Fetch performs a breadth-first, bounded traversal of store starting at
// seeds, returning every entry successfully materialized along the way.
//
// The traversal is strictly sequential: each digest is dequeued and resolved
// before its children are enqueued, so OnProgress observes non-decreasing
// depths along any one ancestry chain. Unreachable blocks (timeout, or a
// store-reported not-found) are dropped silently -- Fetch degrades to
// partial results rather than failing outright -- but a malformed block
// surfaces a *core.ParseError to the caller immediately.
func Fetch(ctx context.Context, store core.BlockStore, seeds []core.Digest, opts ...Option) ([]*core.Entry, error) {
	if store == nil {
		return nil, core.ErrStoreNotDefined
	}
	o := resolveOptions(opts...)

	seen := make(map[core.Digest]bool, len(o.Exclude)+len(seeds))
	for h := range o.Exclude {
		seen[h] = true
	}

	queue := make([]queueItem, 0, len(seeds))
	for _, h := range seeds {
		queue = append(queue, queueItem{hash: h, depth: 0})
	}

	var result []*core.Entry
	for len(queue) > 0 && (o.Max < 0 || len(result) < o.Max) {
		item := queue[0]
		queue = queue[1:]

		if seen[item.hash] {
			continue
		}

		entry, err := fetchOne(ctx, store, item.hash, o.PerFetchTimeout)
		if err != nil {
			var perr *core.ParseError
			if errors.As(err, &perr) {
				return result, err
			}
			klog.V(1).Infof("fetcher: dropping unreachable digest %s: %v", item.hash, err)
			continue
		}

		seen[item.hash] = true
		result = append(result, entry)
		if o.OnProgress != nil {
			o.OnProgress(item.hash, entry, item.parent, item.depth)
		}

		for _, child := range entry.Next() {
			if seen[child] {
				continue
			}
			queue = append(queue, queueItem{hash: child, parent: entry, depth: item.depth + 1})
		}
	}

	klog.V(2).Infof("fetcher: materialized %d entries from %d seeds", len(result), len(seeds))
	return result, nil
}

func fetchOne(ctx context.Context, store core.BlockStore, h core.Digest, timeout time.Duration) (*core.Entry, error) {
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return core.FromHash(fctx, store, h)
}
