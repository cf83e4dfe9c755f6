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

package memory_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/feedlog/feedlog/core"
	"github.com/feedlog/feedlog/storage/memory"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := memory.New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	d, err := s.Put(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, d)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Get = %q, want %q", got, "hello")
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s, err := memory.New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	d1, err := s.Put(ctx, []byte("same bytes"))
	if err != nil {
		t.Fatalf("Put #1: %v", err)
	}
	d2, err := s.Put(ctx, []byte("same bytes"))
	if err != nil {
		t.Fatalf("Put #2: %v", err)
	}
	if d1 != d2 {
		t.Errorf("Put of identical bytes produced different digests: %v != %v", d1, d2)
	}
}

func TestGetMissing(t *testing.T) {
	s, err := memory.New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, err := core.Sum([]byte("never written"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(context.Background(), d); err == nil {
		t.Fatal("Get of a missing digest succeeded")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s, err := memory.New(2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	digests := make([]core.Digest, 3)
	for i := range digests {
		d, err := s.Put(ctx, []byte(fmt.Sprintf("block %d", i)))
		if err != nil {
			t.Fatalf("Put(%d): %v", i, err)
		}
		digests[i] = d
	}

	if _, err := s.Get(ctx, digests[0]); err == nil {
		t.Error("expected the oldest block to have been evicted")
	}
	if _, err := s.Get(ctx, digests[2]); err != nil {
		t.Errorf("expected the most recent block to still be cached: %v", err)
	}
}
