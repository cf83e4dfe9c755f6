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
	"context"
	"encoding/json"

	"k8s.io/klog/v2"

	"github.com/feedlog/feedlog/core"
	"github.com/feedlog/feedlog/entryset"
	"github.com/feedlog/feedlog/fetcher"
)

func dedupByHash(entries []*core.Entry) []*core.Entry {
	seen := make(map[core.Digest]bool, len(entries))
	out := make([]*core.Entry, 0, len(entries))
	for _, e := range entries {
		if seen[e.Hash()] {
			continue
		}
		seen[e.Hash()] = true
		out = append(out, e)
	}
	return out
}

func knownHashes(entries []*core.Entry, extra map[core.Digest]bool) map[core.Digest]bool {
	known := make(map[core.Digest]bool, len(entries)+len(extra))
	for _, e := range entries {
		known[e.Hash()] = true
	}
	for h := range extra {
		known[h] = true
	}
	return known
}

// Expand pulls up to length more entries into log from store, fetching
// outward from its missing parents (entryset.FindTailHashes), and returns a
// new Log with the result merged and capped to len(log.Items())+length (or
// left unbounded if length < 0). Once the whole DAG is locally materialized,
// Expand is a no-op: FindTailHashes returns nothing left to fetch.
func Expand(ctx context.Context, store core.BlockStore, log *Log, length int, opts ...FetchOption) (*Log, error) {
	if store == nil {
		return nil, core.ErrStoreNotDefined
	}
	if log == nil {
		return nil, core.ErrLogNotDefined
	}

	tails := entryset.FindTailHashes(log.items)
	if len(tails) == 0 {
		return log, nil
	}

	fo := resolveFetchOptions(opts...)
	known := knownHashes(log.items, fo.Exclude)

	max := -1
	if length >= 0 {
		max = length * len(tails)
	}
	fetched, err := fetcher.Fetch(ctx, store, tails, fo.fetcherOptions(max, known)...)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("feedlog: expand fetched %d entries toward %d tails", len(fetched), len(tails))

	merged := dedupByHash(append(append([]*core.Entry(nil), log.items...), fetched...))
	sorted := entryset.Sort(merged)

	if length >= 0 {
		limit := len(log.items) + length
		if len(sorted) > limit {
			sorted = sorted[len(sorted)-limit:]
		}
	}

	return &Log{id: log.id, items: sorted, heads: entryset.HeadHashes(sorted)}, nil
}

// FromEntry builds a Log by fetching the ancestors of entries from store.
// entries must be *Entry values already in hand (not hashes): passing an
// empty slice, or one containing a nil entry, fails with
// InvalidArgumentError. The fetcher is seeded with every digest in
// entries[*].Next(), excluding any hash in WithExclude, capped at
// length-len(entries) (unbounded if length < 0). The returned Log's id is
// taken from entries[0].
func FromEntry(ctx context.Context, store core.BlockStore, entries []*core.Entry, length int, opts ...FetchOption) (*Log, error) {
	if store == nil {
		return nil, core.ErrStoreNotDefined
	}
	if len(entries) == 0 {
		return nil, &core.InvalidArgumentError{Message: "entries must be non-empty"}
	}
	for _, e := range entries {
		if e == nil {
			return nil, &core.InvalidArgumentError{Message: "entries must not contain nil"}
		}
	}

	fo := resolveFetchOptions(opts...)
	known := knownHashes(entries, fo.Exclude)

	var seeds []core.Digest
	for _, e := range entries {
		seeds = append(seeds, e.Next()...)
	}

	max := -1
	if length >= 0 {
		max = length - len(entries)
		if max < 0 {
			max = 0
		}
	}
	fetched, err := fetcher.Fetch(ctx, store, seeds, fo.fetcherOptions(max, known)...)
	if err != nil {
		return nil, err
	}

	merged := dedupByHash(append(append([]*core.Entry(nil), entries...), fetched...))
	sorted := entryset.Sort(merged)
	return &Log{id: entries[0].ID(), items: sorted, heads: entryset.HeadHashes(sorted)}, nil
}

// FromMultihash fetches the log image at h, parses it as {id, heads}, and
// hydrates a Log by fetching outward from those heads, capped at length
// entries (unbounded if length < 0).
func FromMultihash(ctx context.Context, store core.BlockStore, h core.Digest, length int, opts ...FetchOption) (*Log, error) {
	if store == nil {
		return nil, core.ErrStoreNotDefined
	}

	raw, err := store.Get(ctx, h)
	if err != nil {
		return nil, &core.StoreError{Op: "get", Err: err}
	}
	var img logImage
	if err := json.Unmarshal(raw, &img); err != nil {
		return nil, &core.ParseError{Message: "log image at " + string(h), Err: err}
	}
	if img.ID == "" || len(img.Heads) == 0 {
		return nil, core.ErrNotALog
	}

	fo := resolveFetchOptions(opts...)
	known := knownHashes(nil, fo.Exclude)

	fetched, err := fetcher.Fetch(ctx, store, img.Heads, fo.fetcherOptions(length, known)...)
	if err != nil {
		return nil, err
	}

	sorted := entryset.Sort(dedupByHash(fetched))
	return &Log{id: img.ID, items: sorted, heads: entryset.HeadHashes(sorted)}, nil
}

// ToMultihash serializes log.Bytes() into store and returns the resulting
// digest. Fails with ErrEmptyLog if log has no items or no heads.
func ToMultihash(ctx context.Context, store core.BlockStore, log *Log) (core.Digest, error) {
	if store == nil {
		return "", core.ErrStoreNotDefined
	}
	if log == nil {
		return "", core.ErrLogNotDefined
	}
	if len(log.items) == 0 || len(log.heads) == 0 {
		return "", core.ErrEmptyLog
	}
	raw, err := log.Bytes()
	if err != nil {
		return "", err
	}
	d, err := store.Put(ctx, raw)
	if err != nil {
		return "", &core.StoreError{Op: "put", Err: err}
	}
	return d, nil
}
