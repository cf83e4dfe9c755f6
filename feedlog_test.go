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
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/feedlog/feedlog/core"
)

type memStore struct {
	mu   sync.Mutex
	data map[core.Digest][]byte
}

func newMemStore() *memStore { return &memStore{data: map[core.Digest][]byte{}} }

func (s *memStore) Put(_ context.Context, data []byte) (core.Digest, error) {
	d, err := core.Sum(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.data[d] = append([]byte(nil), data...)
	s.mu.Unlock()
	return d, nil
}

func (s *memStore) Get(_ context.Context, d core.Digest) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[d]
	if !ok {
		return nil, core.ErrBlockNotFound
	}
	return b, nil
}

func str(s string) json.RawMessage { return json.RawMessage(fmt.Sprintf("%q", s)) }

func mustAppend(t *testing.T, store core.BlockStore, log *Log, payload string) *Log {
	t.Helper()
	l, err := Append(context.Background(), store, log, str(payload))
	if err != nil {
		t.Fatalf("Append(%q): %v", payload, err)
	}
	return l
}

func payloads(items []*core.Entry) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = renderPayload(e.Payload())
	}
	return out
}

func TestAppendThenRender(t *testing.T) {
	store := newMemStore()
	l, err := Create(WithID("A"))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"one", "two", "three", "four", "five"} {
		l = mustAppend(t, store, l, p)
	}

	want := "five\n└─four\n  └─three\n    └─two\n      └─one"
	if got := l.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if len(l.Items()) != 5 {
		t.Errorf("len(Items()) = %d, want 5", len(l.Items()))
	}
	for i, e := range l.Items() {
		if e.ID() != "A" {
			t.Errorf("Items()[%d].ID() = %q, want A", i, e.ID())
		}
		if e.Seq() != uint64(i) {
			t.Errorf("Items()[%d].Seq() = %d, want %d", i, e.Seq(), i)
		}
	}
}

func buildChain(t *testing.T, store core.BlockStore, id string, n int) *Log {
	t.Helper()
	l, err := Create(WithID(id))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		l = mustAppend(t, store, l, fmt.Sprintf("%s%d", id, i+1))
	}
	return l
}

func TestThreeWayJoin(t *testing.T) {
	store := newMemStore()
	a := buildChain(t, store, "A", 5)
	b := buildChain(t, store, "B", 5)
	c := buildChain(t, store, "C", 5)

	joined := JoinAll([]*Log{a, b, c})
	want := []string{"A1", "B1", "C1", "A2", "B2", "C2", "A3", "B3", "C3", "A4", "B4", "C4", "A5", "B5", "C5"}
	if diff := cmp.Diff(want, payloads(joined.Items())); diff != "" {
		t.Errorf("join_all payload order (-want +got):\n%s", diff)
	}

	heads := joined.Heads()
	if len(heads) != 3 {
		t.Fatalf("len(heads) = %d, want 3", len(heads))
	}
	ids := map[string]bool{}
	for _, h := range heads {
		ids[joined.Get(h).ID()] = true
	}
	if len(ids) != 3 {
		t.Errorf("heads cover %d distinct chains, want 3: %v", len(ids), ids)
	}
}

func TestJoinAssociative(t *testing.T) {
	store := newMemStore()
	a := buildChain(t, store, "A", 2)
	b := buildChain(t, store, "B", 2)
	c := buildChain(t, store, "C", 2)

	left := Join(Join(a, b), c)
	right := Join(a, Join(b, c))

	if diff := cmp.Diff(hashStrings(left.Items()), hashStrings(right.Items())); diff != "" {
		t.Errorf("join associativity broken (-left +right):\n%s", diff)
	}
}

func TestJoinIdempotent(t *testing.T) {
	store := newMemStore()
	l, err := Create(WithID("A"))
	if err != nil {
		t.Fatal(err)
	}
	l = mustAppend(t, store, l, "one")
	l2, err := Create(WithID("B"))
	if err != nil {
		t.Fatal(err)
	}
	l2 = mustAppend(t, store, l2, "two")
	merged := Join(l, l2)

	again := Join(merged, merged)
	if diff := cmp.Diff(hashStrings(merged.Items()), hashStrings(again.Items())); diff != "" {
		t.Errorf("join(L,L) != L (-want +got):\n%s", diff)
	}
}

func hashStrings(items []*core.Entry) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = string(e.Hash())
	}
	return out
}

func TestPersistReconstructWithSizeCap(t *testing.T) {
	store := newMemStore()
	l := buildChain(t, store, "A", 100)

	h, err := ToMultihash(context.Background(), store, l)
	if err != nil {
		t.Fatalf("ToMultihash: %v", err)
	}
	l2, err := FromMultihash(context.Background(), store, h, 50)
	if err != nil {
		t.Fatalf("FromMultihash: %v", err)
	}
	if len(l2.Items()) != 50 {
		t.Fatalf("len(Items()) = %d, want 50", len(l2.Items()))
	}
	want := l.Items()[50:]
	if diff := cmp.Diff(hashStrings(want), hashStrings(l2.Items())); diff != "" {
		t.Errorf("reconstructed suffix mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand(t *testing.T) {
	store := newMemStore()
	l := buildChain(t, store, "A", 100)
	last := l.Items()[len(l.Items())-1]

	l10, err := FromEntry(context.Background(), store, []*core.Entry{last}, 10)
	if err != nil {
		t.Fatalf("FromEntry: %v", err)
	}
	if len(l10.Items()) != 10 {
		t.Fatalf("len(l10.Items()) = %d, want 10", len(l10.Items()))
	}

	l20, err := Expand(context.Background(), store, l10, 10)
	if err != nil {
		t.Fatalf("Expand(10): %v", err)
	}
	if len(l20.Items()) != 20 {
		t.Fatalf("len(l20.Items()) = %d, want 20", len(l20.Items()))
	}

	lAll, err := Expand(context.Background(), store, l20, -1)
	if err != nil {
		t.Fatalf("Expand(-1): %v", err)
	}
	if len(lAll.Items()) != 100 {
		t.Fatalf("len(lAll.Items()) = %d, want 100", len(lAll.Items()))
	}

	again, err := Expand(context.Background(), store, lAll, -1)
	if err != nil {
		t.Fatalf("Expand(lAll): %v", err)
	}
	if diff := cmp.Diff(hashStrings(lAll.Items()), hashStrings(again.Items())); diff != "" {
		t.Errorf("expand not idempotent once fully materialized (-want +got):\n%s", diff)
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	store := newMemStore()
	l := buildChain(t, store, "A", 3)

	if err := Verify(context.Background(), store, l); err != nil {
		t.Fatalf("Verify on an untouched store: %v", err)
	}

	victim := l.Items()[0].Hash()
	store.mu.Lock()
	store.data[victim] = []byte(`{"id":"A","seq":0,"payload":"tampered","next":[]}`)
	store.mu.Unlock()

	if err := Verify(context.Background(), store, l); err == nil {
		t.Fatal("Verify did not detect a tampered block")
	}
}

func TestToMultihashEmptyLog(t *testing.T) {
	l, err := Create()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ToMultihash(context.Background(), newMemStore(), l); err != core.ErrEmptyLog {
		t.Fatalf("ToMultihash(empty) err = %v, want ErrEmptyLog", err)
	}
}

func TestFromEntryRejectsEmpty(t *testing.T) {
	_, err := FromEntry(context.Background(), newMemStore(), nil, 10)
	var iae *core.InvalidArgumentError
	if err == nil {
		t.Fatal("want InvalidArgumentError, got nil")
	}
	if !isInvalidArgument(err, &iae) {
		t.Fatalf("err = %v, want InvalidArgumentError", err)
	}
}

func isInvalidArgument(err error, target **core.InvalidArgumentError) bool {
	e, ok := err.(*core.InvalidArgumentError)
	if ok {
		*target = e
	}
	return ok
}
