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

	"k8s.io/klog/v2"

	"github.com/feedlog/feedlog/core"
	"github.com/feedlog/feedlog/entryset"
)

// Append writes payload as a new entry on log's chain -- seq is
// latest_seq(log.Items())+1, and next is log.Heads() -- and returns a new
// Log with that entry folded in. log itself is untouched.
func Append(ctx context.Context, store core.BlockStore, log *Log, payload json.RawMessage) (*Log, error) {
	if store == nil {
		return nil, core.ErrStoreNotDefined
	}
	if log == nil {
		return nil, core.ErrLogNotDefined
	}

	seq := entryset.LatestSeq(log.items) + 1
	entry, err := core.Create(ctx, store, log.id, uint64(seq), payload, log.heads)
	if err != nil {
		return nil, err
	}

	klog.V(2).Infof("feedlog: appended %s/%d (%s)", log.id, seq, entry.Hash())

	items := append(append([]*core.Entry(nil), log.items...), entry)
	return sortedLog(log.id, items), nil
}
