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

// Package gcp implements a feedlog core.BlockStore backed by a Google Cloud
// Storage bucket, one object per block, keyed by digest.
package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"k8s.io/klog/v2"

	"github.com/feedlog/feedlog/core"
)

// objStore abstracts the GCS object read/write calls Storage needs, so that
// tests can exercise the idempotent-write logic without a live bucket.
type objStore interface {
	getObject(ctx context.Context, obj string) ([]byte, error)
	setObjectIfAbsent(ctx context.Context, obj string, data []byte) error
}

// Storage is a GCS-bucket-backed core.BlockStore.
type Storage struct {
	objs objStore
}

// New returns a Storage backed by bucket in the given GCP project. The
// bucket must already exist.
func New(ctx context.Context, projectID, bucket string) (*Storage, error) {
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcp: creating GCS client: %w", err)
	}
	if err := checkBucketExists(ctx, c, projectID, bucket); err != nil {
		return nil, err
	}
	return &Storage{objs: &gcsObjStore{client: c, bucket: bucket}}, nil
}

func checkBucketExists(ctx context.Context, c *gcs.Client, projectID, bucket string) error {
	it := c.Buckets(ctx, projectID)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return fmt.Errorf("gcp: bucket %q does not exist, please create it", bucket)
		}
		if err != nil {
			return fmt.Errorf("gcp: listing buckets: %w", err)
		}
		if attrs.Name == bucket {
			return nil
		}
	}
}

func objectName(d core.Digest) string {
	return "blocks/" + string(d)
}

// Put stores data under its content digest. Writing identical bytes a
// second time is treated as success rather than a precondition failure.
func (s *Storage) Put(ctx context.Context, data []byte) (core.Digest, error) {
	d, err := core.Sum(data)
	if err != nil {
		return "", fmt.Errorf("gcp: digest: %w", err)
	}
	if err := s.objs.setObjectIfAbsent(ctx, objectName(d), data); err != nil {
		return "", &core.StoreError{Op: "put", Err: err}
	}
	return d, nil
}

// Get retrieves the bytes stored under d.
func (s *Storage) Get(ctx context.Context, d core.Digest) ([]byte, error) {
	data, err := s.objs.getObject(ctx, objectName(d))
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, &core.StoreError{Op: "get", Err: core.ErrBlockNotFound}
		}
		return nil, &core.StoreError{Op: "get", Err: err}
	}
	return data, nil
}

// gcsObjStore is the real objStore backed by a GCS bucket.
type gcsObjStore struct {
	client *gcs.Client
	bucket string
}

func (g *gcsObjStore) getObject(ctx context.Context, obj string) ([]byte, error) {
	r, err := g.client.Bucket(g.bucket).Object(obj).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("getObject(%q): %w", obj, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// setObjectIfAbsent writes data to obj, gated on the object not already
// existing. If the write loses the precondition race, the existing content
// is compared against data: identical content is treated as an idempotent
// success, since digests are content addresses and two different byte
// strings should never collide on the same object name.
func (g *gcsObjStore) setObjectIfAbsent(ctx context.Context, obj string, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(obj).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write object %q: %w", obj, err)
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			existing, gerr := g.getObject(ctx, obj)
			if gerr != nil {
				return fmt.Errorf("object %q exists but unreadable: %w", obj, gerr)
			}
			if bytes.Equal(existing, data) {
				klog.V(2).Infof("gcp: identical object already present for %q", obj)
				return nil
			}
			return fmt.Errorf("object %q exists with different content (digest collision?)", obj)
		}
		return err
	}
	return nil
}
