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

// Package feedlog implements an append-only, content-addressed Merkle-DAG
// log with CRDT join semantics: independently-appended copies of a log can
// always be merged back into one, deterministically, without coordination.
//
// Entries are immutable and content-addressed in an external BlockStore;
// a Log is a value -- every operation here returns a new Log and leaves its
// inputs untouched.
package feedlog

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/feedlog/feedlog/core"
	"github.com/feedlog/feedlog/entryset"
)

// Entry, Digest, BlockStore and the error types are defined in package core
// to break an import cycle with entryset and fetcher; they're aliased here
// so feedlog's own callers never need to import core directly.
type (
	Entry      = core.Entry
	Digest     = core.Digest
	BlockStore = core.BlockStore

	InvalidArgumentError = core.InvalidArgumentError
	InvalidHashError     = core.InvalidHashError
	ParseError           = core.ParseError
	StoreError           = core.StoreError
)

var (
	ErrStoreNotDefined = core.ErrStoreNotDefined
	ErrLogNotDefined   = core.ErrLogNotDefined
	ErrEmptyLog        = core.ErrEmptyLog
	ErrNotALog         = core.ErrNotALog
	ErrBlockNotFound   = core.ErrBlockNotFound

	ParseDigest = core.ParseDigest
)

// Log is an immutable value holding a chain identifier, the deterministic
// total order of every entry currently known (items), and the set of
// digests not referenced by any other known entry (heads).
type Log struct {
	id    string
	items []*core.Entry
	heads []core.Digest
}

// ID returns the chain identifier this log is primarily associated with.
func (l *Log) ID() string { return l.id }

// Items returns the entries currently known, in deterministic total order.
func (l *Log) Items() []*core.Entry {
	return append([]*core.Entry(nil), l.items...)
}

// Heads returns the digests of entries not referenced by any other entry in
// Items, ordered ascending by their entries' (ID, Hash). A head set given to
// Create via WithHeads is returned as given.
func (l *Log) Heads() []core.Digest {
	return append([]core.Digest(nil), l.heads...)
}

// Get returns the entry in Items with the given hash, or nil if none match.
func (l *Log) Get(h core.Digest) *core.Entry {
	for _, e := range l.items {
		if e.Hash() == h {
			return e
		}
	}
	return nil
}

// String renders items in reverse (most recent first), indenting each line
// by its position in that reversed render: the first line is unindented,
// every following line is prefixed with "└─" preceded by two spaces per line
// already printed beneath the first.
func (l *Log) String() string {
	n := len(l.items)
	var b strings.Builder
	for i := 0; i < n; i++ {
		e := l.items[n-1-i]
		if i > 0 {
			b.WriteByte('\n')
			b.WriteString(strings.Repeat("  ", i-1))
			b.WriteString("└─")
		}
		b.WriteString(renderPayload(e.Payload()))
	}
	return b.String()
}

func renderPayload(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// logImage is the on-store encoding of a Log: {id, heads}.
type logImage struct {
	ID    string        `json:"id"`
	Heads []core.Digest `json:"heads"`
}

// MarshalJSON encodes the log as {id, heads}, per the canonical on-store
// image.
func (l *Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(logImage{ID: l.id, Heads: l.heads})
}

// UnmarshalJSON decodes {id, heads} into an empty-items Log shell; callers
// normally reach this state through FromMultihash, which populates Items by
// fetching the referenced heads.
func (l *Log) UnmarshalJSON(data []byte) error {
	var img logImage
	if err := json.Unmarshal(data, &img); err != nil {
		return &core.ParseError{Message: "log image", Err: err}
	}
	l.id = img.ID
	l.heads = img.Heads
	l.items = nil
	return nil
}

// Bytes returns the canonical JSON image of the log -- the bytes that would
// be written to a BlockStore by ToMultihash.
func (l *Log) Bytes() ([]byte, error) {
	return json.Marshal(l)
}

func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken,
		// which leaves the process in no state to continue meaningfully.
		panic("feedlog: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

func sortedLog(id string, items []*core.Entry) *Log {
	sorted := entryset.Sort(items)
	return &Log{
		id:    id,
		items: sorted,
		heads: entryset.HeadHashes(sorted),
	}
}
