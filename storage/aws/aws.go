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

// Package aws implements a feedlog core.BlockStore backed by an S3 bucket,
// one object per block, keyed by digest.
package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/go-cmp/cmp"
	"k8s.io/klog/v2"

	"github.com/feedlog/feedlog/core"
)

const blockContType = "application/octet-stream"

// objStore describes a type which can store and retrieve objects. This
// seam lets tests exercise the idempotent-write logic without a live
// bucket.
type objStore interface {
	getObject(ctx context.Context, obj string) ([]byte, error)
	setObjectIfNoneMatch(ctx context.Context, obj string, data []byte, contType string) error
}

// Config holds AWS configuration for a Storage instance.
type Config struct {
	// Bucket is the name of the S3 bucket blocks are stored in. It must
	// already exist.
	Bucket string

	// SDKConfig is an optional AWS config to use when configuring the S3
	// client, e.g. to target a non-AWS S3-compatible service.
	//
	// If nil, config.LoadDefaultConfig() is used.
	SDKConfig *aws.Config

	// S3Options allows tweaking of the underlying S3 client, e.g. to set
	// a custom endpoint for testing or for non-AWS S3 services.
	S3Options func(*s3.Options)
}

// Storage is an S3-bucket-backed core.BlockStore.
type Storage struct {
	objs objStore
}

// New returns a Storage backed by cfg.Bucket, which must already exist.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("aws: Config.Bucket must be set")
	}
	if cfg.SDKConfig == nil {
		sdkConfig, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws: LoadDefaultConfig: %w", err)
		}
		cfg.SDKConfig = &sdkConfig
	}
	if cfg.S3Options == nil {
		// s3.NewFromConfig panics if handed a nil optFn, so always pass a
		// concrete (possibly no-op) one.
		cfg.S3Options = func(_ *s3.Options) {}
	}
	return &Storage{
		objs: &s3ObjStore{
			bucket:   cfg.Bucket,
			s3Client: s3.NewFromConfig(*cfg.SDKConfig, cfg.S3Options),
		},
	}, nil
}

func objectName(d core.Digest) string {
	return "blocks/" + string(d)
}

// Put stores data under its content digest. Writing identical bytes a
// second time is treated as success rather than a precondition failure.
func (s *Storage) Put(ctx context.Context, data []byte) (core.Digest, error) {
	d, err := core.Sum(data)
	if err != nil {
		return "", fmt.Errorf("aws: digest: %w", err)
	}
	if err := s.objs.setObjectIfNoneMatch(ctx, objectName(d), data, blockContType); err != nil {
		return "", &core.StoreError{Op: "put", Err: err}
	}
	return d, nil
}

// Get retrieves the bytes stored under d.
func (s *Storage) Get(ctx context.Context, d core.Digest) ([]byte, error) {
	data, err := s.objs.getObject(ctx, objectName(d))
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, &core.StoreError{Op: "get", Err: core.ErrBlockNotFound}
		}
		return nil, &core.StoreError{Op: "get", Err: err}
	}
	return data, nil
}

// s3ObjStore is the real objStore backed by an S3 bucket.
type s3ObjStore struct {
	bucket   string
	s3Client *s3.Client
}

// getObject returns the data of the specified object, or an error.
func (s *s3ObjStore) getObject(ctx context.Context, obj string) ([]byte, error) {
	r, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(obj),
	})
	if err != nil {
		return nil, fmt.Errorf("getObject: failed to create reader for object %q in bucket %q: %w", obj, s.bucket, err)
	}
	d, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("getObject: failed to read %q: %v", obj, err)
	}
	return d, r.Body.Close()
}

// setObjectIfNoneMatch stores data in the specified object gated by an
// IfNoneMatch condition, i.e. write iff no object exists under this key
// already. If an object already exists under the same key, an error is
// returned unless the currently stored data is bit-for-bit identical to
// the data to-be-written, which is treated as an idempotent success.
func (s *s3ObjStore) setObjectIfNoneMatch(ctx context.Context, objName string, data []byte, contType string) error {
	put := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objName),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contType),
		IfNoneMatch: aws.String("*"),
	}

	if _, err := s.s3Client.PutObject(ctx, put); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			existing, gerr := s.getObject(ctx, objName)
			if gerr != nil {
				return fmt.Errorf("failed to fetch existing content for %q: %v", objName, gerr)
			}
			if !bytes.Equal(existing, data) {
				klog.Errorf("Resource %q non-idempotent write:\n%s", objName, cmp.Diff(existing, data))
				return fmt.Errorf("precondition failed: resource content for %q differs from data to-be-written", objName)
			}
			klog.V(2).Infof("setObjectIfNoneMatch: identical resource already exists for %q, continuing", objName)
			return nil
		}
		return fmt.Errorf("failed to write object %q to bucket %q: %w", objName, s.bucket, err)
	}
	return nil
}
