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

package gcp

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	gcs "cloud.google.com/go/storage"

	"github.com/feedlog/feedlog/core"
)

// fakeObjStore is an in-memory stand-in for gcsObjStore, exercising the
// same idempotent-write contract Storage relies on.
type fakeObjStore struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newFakeObjStore() *fakeObjStore {
	return &fakeObjStore{objs: map[string][]byte{}}
}

func (f *fakeObjStore) getObject(_ context.Context, obj string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.objs[obj]
	if !ok {
		return nil, gcs.ErrObjectNotExist
	}
	return d, nil
}

func (f *fakeObjStore) setObjectIfAbsent(_ context.Context, obj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.objs[obj]; ok {
		if bytes.Equal(existing, data) {
			return nil
		}
		return errors.New("object exists with different content (digest collision?)")
	}
	f.objs[obj] = append([]byte(nil), data...)
	return nil
}

func TestPutGetRoundTrip(t *testing.T) {
	s := &Storage{objs: newFakeObjStore()}
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
	s := &Storage{objs: newFakeObjStore()}
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
	s := &Storage{objs: newFakeObjStore()}
	d, err := core.Sum([]byte("never written"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(context.Background(), d); err == nil {
		t.Fatal("Get of a missing digest succeeded")
	}
}

func TestPutDigestCollisionFails(t *testing.T) {
	s := &Storage{objs: newFakeObjStore()}
	ctx := context.Background()
	name := objectName(core.Digest("forced-collision"))

	if err := s.objs.setObjectIfAbsent(ctx, name, []byte("first")); err != nil {
		t.Fatalf("setObjectIfAbsent: %v", err)
	}
	if err := s.objs.setObjectIfAbsent(ctx, name, []byte("second")); err == nil {
		t.Fatal("setObjectIfAbsent with different content under the same name succeeded")
	}
}
