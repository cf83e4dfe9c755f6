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
	"github.com/feedlog/feedlog/entryset"
)

// Create constructs a new, empty Log, or one seeded with a pre-existing
// entry set via WithEntries. If WithEntries is given without WithHeads, the
// heads are computed from the entries. No I/O is performed; Create never
// touches a BlockStore.
func Create(opts ...CreateOption) (*Log, error) {
	o := &CreateOptions{}
	for _, opt := range opts {
		opt(o)
	}

	id := o.ID
	if id == "" {
		id = newID()
	}

	items := entryset.Sort(o.Entries)
	heads := o.Heads
	if heads == nil {
		heads = entryset.HeadHashes(items)
	}

	return &Log{id: id, items: items, heads: heads}, nil
}
