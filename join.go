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
	"github.com/feedlog/feedlog/core"
	"github.com/feedlog/feedlog/entryset"
)

// Join merges two logs: a pure, I/O-free operation over each log's known
// entries. It's commutative, associative, and idempotent, which is what
// lets independently-appended copies of a log always be reconciled.
//
// The merged id defaults to the lexicographically smaller of a.ID()/b.ID(),
// overridable via WithJoinID. WithSize caps the result to its most causally
// recent suffix; heads are recomputed over whatever entries survive the cap,
// which is how a capped Join still satisfies the head-correctness invariant.
func Join(a, b *Log, opts ...JoinOption) *Log {
	o := resolveJoinOptions(opts...)

	first, second := a, b
	if second.id < first.id {
		first, second = second, first
	}
	id := o.ID
	if id == "" {
		id = first.id
	}

	seen := make(map[core.Digest]bool, len(first.items)+len(second.items))
	merged := make([]*core.Entry, 0, len(first.items)+len(second.items))
	for _, e := range first.items {
		if !seen[e.Hash()] {
			seen[e.Hash()] = true
			merged = append(merged, e)
		}
	}
	for _, e := range second.items {
		if !seen[e.Hash()] {
			seen[e.Hash()] = true
			merged = append(merged, e)
		}
	}

	sorted := entryset.Sort(merged)
	if o.Size >= 0 && len(sorted) > o.Size {
		sorted = sorted[len(sorted)-o.Size:]
	}

	return &Log{
		id:    id,
		items: sorted,
		heads: entryset.HeadHashes(sorted),
	}
}

// JoinAll folds Join over logs left to right, applying the same opts at
// every step. Joining an empty slice returns an empty Log.
func JoinAll(logs []*Log, opts ...JoinOption) *Log {
	if len(logs) == 0 {
		empty, _ := Create()
		return empty
	}
	acc := logs[0]
	for _, l := range logs[1:] {
		acc = Join(acc, l, opts...)
	}
	return acc
}
