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
	"fmt"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/feedlog/feedlog/core"
)

// Verify re-fetches every entry in log from store and confirms the bytes
// stored under its hash still digest to that same hash -- catching a
// corrupted or tampered block store. It fans the re-fetch-and-rehash work
// out across log.Items() concurrently via errgroup.
func Verify(ctx context.Context, store core.BlockStore, log *Log) error {
	if store == nil {
		return core.ErrStoreNotDefined
	}
	if log == nil {
		return core.ErrLogNotDefined
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range log.items {
		e := e
		g.Go(func() error {
			raw, err := store.Get(gctx, e.Hash())
			if err != nil {
				return &core.StoreError{Op: "get", Err: err}
			}
			got, err := core.Sum(raw)
			if err != nil {
				return fmt.Errorf("sum %s: %w", e.Hash(), err)
			}
			if got != e.Hash() {
				return fmt.Errorf("feedlog: entry %s: stored bytes digest to %s", e.Hash(), got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	klog.V(2).Infof("feedlog: verified %d entries", len(log.items))
	return nil
}
