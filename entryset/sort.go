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

package entryset

import (
	"container/list"

	"github.com/feedlog/feedlog/core"
)

// Sort flattens all into the deterministic total order a Log presents to its
// callers: a causal order (an entry never precedes one of its parents)
// broken, where causality alone doesn't decide, by chain id and then by seq.
//
// The algorithm is a work queue, not a plain topological sort, because ties
// have to be broken the same way regardless of the order entries arrived in
// all -- that's what makes Sort(Join(a, b)) equal Sort(Join(b, a)).
//
//  1. Seed the queue with the tails of all (its roots), ascending by (id, seq).
//  2. Pop the front of the queue.
//     - If it still has a parent sitting elsewhere in the queue, it isn't
//       ready: reinsert it immediately after the last such pending parent
//       (the one nearest the back) and move on.
//     - Otherwise, if one of its parents is in all but neither resolved nor
//       queued, it isn't ready either: drop it from the queue, and let that
//       parent push it back once the parent resolves.
//     - Otherwise, if some entry with the same id and a strictly smaller seq
//       is still in the queue, it isn't ready either: reinsert it after that
//       sibling and move on.
//     - Otherwise it's ready: append it to the result, and push its direct
//       children onto the back of the queue, ascending by (id, seq), skipping
//       any already queued or already resolved.
//  3. Repeat until the queue is empty.
//
// An entry never needs to be revisited once resolved, and the only rework is
// the occasional reinsertion of an entry whose dependency hadn't resolved
// yet, so the whole pass is bounded by O(n) reinsertions per entry.
func Sort(all []*core.Entry) []*core.Entry {
	if len(all) == 0 {
		return nil
	}

	byHash := make(map[core.Digest]*core.Entry, len(all))
	for _, e := range all {
		byHash[e.Hash()] = e
	}

	children := make(map[core.Digest][]*core.Entry)
	for _, c := range all {
		for _, h := range c.Next() {
			if _, ok := byHash[h]; ok {
				children[h] = append(children[h], c)
			}
		}
	}
	for h, cs := range children {
		byIDThenSeq(cs)
		children[h] = cs
	}

	queue := list.New()
	pos := make(map[core.Digest]*list.Element, len(all))
	resolved := make(map[core.Digest]bool, len(all))

	enqueueBack := func(e *core.Entry) {
		if resolved[e.Hash()] || pos[e.Hash()] != nil {
			return
		}
		pos[e.Hash()] = queue.PushBack(e)
	}
	insertAfter := func(e *core.Entry, mark *list.Element) {
		pos[e.Hash()] = queue.InsertAfter(e, mark)
	}
	// lastPending walks the queue back-to-front and returns the element
	// nearest the back satisfying match, or nil.
	lastPending := func(match func(*core.Entry) bool) *list.Element {
		for el := queue.Back(); el != nil; el = el.Prev() {
			if match(el.Value.(*core.Entry)) {
				return el
			}
		}
		return nil
	}

	for _, t := range FindTails(all) {
		enqueueBack(t)
	}

	result := make([]*core.Entry, 0, len(all))
	for queue.Len() > 0 {
		front := queue.Front()
		e := front.Value.(*core.Entry)
		queue.Remove(front)
		delete(pos, e.Hash())

		if parent := lastPending(func(p *core.Entry) bool {
			for _, h := range e.Next() {
				if p.Hash() == h {
					return true
				}
			}
			return false
		}); parent != nil {
			insertAfter(e, parent)
			continue
		}

		// A parent that is in all but not yet queued re-enqueues e (as one of
		// its children) once it resolves.
		waiting := false
		for _, h := range e.Next() {
			if _, ok := byHash[h]; ok && !resolved[h] {
				waiting = true
				break
			}
		}
		if waiting {
			continue
		}

		if sibling := lastPending(func(s *core.Entry) bool {
			return s.ID() == e.ID() && s.Seq() < e.Seq()
		}); sibling != nil {
			insertAfter(e, sibling)
			continue
		}

		result = append(result, e)
		resolved[e.Hash()] = true
		for _, c := range children[e.Hash()] {
			enqueueBack(c)
		}
	}

	return result
}
