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

// Package entryset provides pure, I/O-free operations over collections of
// entries: finding heads and tails, walking ancestor chains, and the
// deterministic total-ordering sort that flattens a DAG into the sequence a
// Log presents to its callers.
//
// Nothing in this package touches a BlockStore or a context.Context; it
// operates entirely on the entries it's handed.
package entryset

import (
	"sort"

	"github.com/feedlog/feedlog/core"
)

// byIDThenHash sorts entries ascending by (ID, Hash).
func byIDThenHash(es []*core.Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].ID() != es[j].ID() {
			return es[i].ID() < es[j].ID()
		}
		return es[i].Hash() < es[j].Hash()
	})
}

// byIDThenSeq sorts entries ascending by (ID, Seq).
func byIDThenSeq(es []*core.Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].ID() != es[j].ID() {
			return es[i].ID() < es[j].ID()
		}
		return es[i].Seq() < es[j].Seq()
	})
}

// FindHeads returns the entries in all which are not referenced by any other
// entry's Next, ordered ascending by (ID, Hash).
//
// This is core.HasChild's check ("does some a reference e as a parent?")
// applied across the whole set, but built from a digest set rather than by
// calling HasChild(a, e) for every pair: that pairwise check is O(n) per
// entry, O(n^2) overall, where collecting every Next digest once into a map
// and doing O(1) lookups is O(n).
func FindHeads(all []*core.Entry) []*core.Entry {
	referenced := make(map[core.Digest]bool, len(all))
	for _, f := range all {
		for _, h := range f.Next() {
			referenced[h] = true
		}
	}
	heads := make([]*core.Entry, 0, len(all))
	for _, e := range all {
		if !referenced[e.Hash()] {
			heads = append(heads, e)
		}
	}
	byIDThenHash(heads)
	return heads
}

// HeadHashes is a convenience wrapper returning just the digests of
// FindHeads(all).
func HeadHashes(all []*core.Entry) []core.Digest {
	heads := FindHeads(all)
	hashes := make([]core.Digest, len(heads))
	for i, e := range heads {
		hashes[i] = e.Hash()
	}
	return hashes
}

// FindTails returns the entries in all whose Next contains at least one
// digest not present as the hash of any entry in all, plus any entry whose
// Next is empty. These are the roots used to seed Sort's work queue, and are
// returned in that seeding order: ascending by (ID, Seq).
//
// Like FindHeads, this builds a digest set up front rather than testing
// core.HasChild pairwise, for the same O(n) vs O(n^2) reason.
func FindTails(all []*core.Entry) []*core.Entry {
	present := make(map[core.Digest]bool, len(all))
	for _, e := range all {
		present[e.Hash()] = true
	}
	tails := make([]*core.Entry, 0, len(all))
	for _, e := range all {
		next := e.Next()
		if len(next) == 0 {
			tails = append(tails, e)
			continue
		}
		for _, h := range next {
			if !present[h] {
				tails = append(tails, e)
				break
			}
		}
	}
	byIDThenSeq(tails)
	return tails
}

// FindTailHashes returns the set of digests referenced by some entry's Next
// but not themselves the hash of any entry in all -- the missing parents at
// the frontier of the known set.
func FindTailHashes(all []*core.Entry) []core.Digest {
	present := make(map[core.Digest]bool, len(all))
	for _, e := range all {
		present[e.Hash()] = true
	}
	seen := make(map[core.Digest]bool)
	var hashes []core.Digest
	for _, e := range all {
		for _, h := range e.Next() {
			if present[h] || seen[h] {
				continue
			}
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashes
}

// FindParents returns the ancestors of e reachable within all: starting from
// e, it repeatedly follows the digests in the current frontier's Next that
// name an entry present in all, accumulating every entry discovered this
// way. The result is ordered ascending by Seq.
func FindParents(e *core.Entry, all []*core.Entry) []*core.Entry {
	byHash := make(map[core.Digest]*core.Entry, len(all))
	for _, x := range all {
		byHash[x.Hash()] = x
	}

	seen := map[core.Digest]bool{e.Hash(): true}
	var ancestors []*core.Entry
	frontier := []*core.Entry{e}
	for len(frontier) > 0 {
		var next []*core.Entry
		for _, cur := range frontier {
			for _, h := range cur.Next() {
				if seen[h] {
					continue
				}
				p, ok := byHash[h]
				if !ok {
					continue
				}
				seen[h] = true
				ancestors = append(ancestors, p)
				next = append(next, p)
			}
		}
		frontier = next
	}
	sort.SliceStable(ancestors, func(i, j int) bool { return ancestors[i].Seq() < ancestors[j].Seq() })
	return ancestors
}

// LatestSeq returns the maximum Seq observed in all, or -1 if all is empty.
func LatestSeq(all []*core.Entry) int64 {
	latest := int64(-1)
	for _, e := range all {
		if s := int64(e.Seq()); s > latest {
			latest = s
		}
	}
	return latest
}
