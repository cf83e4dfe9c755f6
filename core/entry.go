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

package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entry is an immutable record in the Merkle-DAG.
//
// It names the chain it belongs to (ID), its position on that chain (Seq),
// an opaque Payload, and the digests of its immediate parents (Next) -- the
// heads of the chain(s) it was appended on top of. Hash is the digest of the
// entry's canonical serialization, assigned once the entry has been written
// to a BlockStore; it is never part of the serialized image itself.
//
// Two entries are the same entry iff their Hash is equal; Entry values are
// otherwise compared by value.
type Entry struct {
	id      string
	seq     uint64
	payload json.RawMessage
	next    []Digest
	hash    Digest
}

// ID returns the chain identifier this entry was appended to.
func (e *Entry) ID() string { return e.id }

// Seq returns this entry's position within its chain. The first entry on a
// chain has Seq 0.
func (e *Entry) Seq() uint64 { return e.seq }

// Payload returns the entry's opaque content.
func (e *Entry) Payload() json.RawMessage { return e.payload }

// Next returns the digests of this entry's immediate parents, in the order
// they were recorded.
func (e *Entry) Next() []Digest {
	return append([]Digest(nil), e.next...)
}

// Hash returns the content digest of this entry, as stored in the
// BlockStore.
func (e *Entry) Hash() Digest { return e.hash }

// image is the canonical on-store encoding of an Entry: {id, seq, payload,
// next}, field order fixed by struct declaration order. encoding/json
// marshals struct fields in declaration order, which is enough determinism
// for content addressing -- no bespoke canonical-JSON encoder is needed.
type image struct {
	ID      string          `json:"id"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
	Next    []Digest        `json:"next"`
}

// Create validates id/seq/payload/next, normalizes next by dropping empty
// digests, writes the canonical image to store, and returns the resulting
// Entry with Hash populated.
func Create(ctx context.Context, store BlockStore, id string, seq uint64, payload json.RawMessage, next []Digest) (*Entry, error) {
	if store == nil {
		return nil, ErrStoreNotDefined
	}
	if id == "" {
		return nil, &InvalidArgumentError{Message: "id must be non-empty"}
	}
	if payload == nil {
		return nil, &InvalidArgumentError{Message: "payload must be defined"}
	}
	normNext := make([]Digest, 0, len(next))
	for _, n := range next {
		if n == "" {
			continue
		}
		normNext = append(normNext, n)
	}

	raw, err := json.Marshal(image{ID: id, Seq: seq, Payload: payload, Next: normNext})
	if err != nil {
		return nil, fmt.Errorf("marshal entry image: %w", err)
	}
	d, err := store.Put(ctx, raw)
	if err != nil {
		return nil, &StoreError{Op: "put", Err: err}
	}
	return &Entry{id: id, seq: seq, payload: payload, next: normNext, hash: d}, nil
}

// FromHash fetches the bytes stored at h, parses them as an entry image, and
// returns the resulting Entry with Hash set to h.
func FromHash(ctx context.Context, store BlockStore, h Digest) (*Entry, error) {
	if store == nil {
		return nil, ErrStoreNotDefined
	}
	raw, err := store.Get(ctx, h)
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}
	var img image
	if err := json.Unmarshal(raw, &img); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("entry at %s", h), Err: err}
	}
	return &Entry{id: img.ID, seq: img.Seq, payload: img.Payload, next: img.Next, hash: h}, nil
}

// HasChild reports whether b's hash appears in a's next list, i.e. a
// references b as one of its immediate parents.
func HasChild(a, b *Entry) bool {
	for _, n := range a.next {
		if n == b.hash {
			return true
		}
	}
	return false
}

// IsEqual reports whether a and b are the same entry.
func IsEqual(a, b *Entry) bool {
	return a.hash == b.hash
}
