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

// Package batch collects concurrent Append callers and applies their
// payloads in periodic flushes, so that a burst of concurrent writers
// extends one shared Log through a single worker. Each payload is still
// written by its own Append call: one block-store write per payload.
//
// It's a typed wrapper around a github.com/globocom/go-buffer queue: entries
// accumulate until the buffer's size or age threshold trips, at which point
// a single worker goroutine folds them into the Batcher's current Log one
// at a time and wakes every caller waiting on its own entry.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/globocom/go-buffer"
	"k8s.io/klog/v2"

	"github.com/feedlog/feedlog"
	"github.com/feedlog/feedlog/core"
)

// EntryFuture resolves to the entry assigned to an Add call once its batch
// has been flushed.
type EntryFuture func() (*core.Entry, error)

// Batcher batches concurrent Append calls against a single in-memory Log.
// The zero value is not usable; construct with New.
type Batcher struct {
	store core.BlockStore
	buf   *buffer.Buffer

	work chan []*pending
	done <-chan struct{}

	mu     sync.RWMutex
	log    *feedlog.Log
	closed bool
}

type pending struct {
	payload json.RawMessage
	c       chan EntryFuture
	f       EntryFuture
}

func newPending(payload json.RawMessage) *pending {
	p := &pending{payload: payload, c: make(chan EntryFuture, 1)}
	p.f = sync.OnceValues(func() (*core.Entry, error) {
		return (<-p.c)()
	})
	return p
}

func (p *pending) notify(entry *core.Entry, err error) {
	p.c <- func() (*core.Entry, error) { return entry, err }
	close(p.c)
}

// New constructs a Batcher seeded with log, flushing whenever the batch
// reaches maxSize entries or its oldest member has waited maxAge.
func New(ctx context.Context, store core.BlockStore, log *feedlog.Log, maxAge time.Duration, maxSize uint) *Batcher {
	ctx, cancel := context.WithCancel(ctx)
	b := &Batcher{
		store: store,
		log:   log,
		work:  make(chan []*pending, 1),
		done:  ctx.Done(),
	}

	toWork := func(items []interface{}) {
		ps := make([]*pending, len(items))
		for i, it := range items {
			ps[i] = it.(*pending)
		}
		b.work <- ps
	}

	b.buf = buffer.New(
		buffer.WithSize(maxSize),
		buffer.WithFlushInterval(maxAge),
		buffer.WithFlusher(buffer.FlusherFunc(toWork)),
	)

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ps, ok := <-b.work:
				if !ok {
					return
				}
				b.doFlush(ctx, ps)
			}
		}
	}()
	return b
}

// Add enqueues payload and returns a future for the entry it will be
// assigned once its batch flushes.
func (b *Batcher) Add(payload json.RawMessage) EntryFuture {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return func() (*core.Entry, error) { return nil, errors.New("batch: Add called on closed batcher") }
	}

	p := newPending(payload)
	if err := b.buf.Push(p); err != nil {
		p.notify(nil, err)
	}
	return p.f
}

// Current returns a snapshot of the Log as of the most recent flush.
func (b *Batcher) Current() *feedlog.Log {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.log
}

// Close flushes any pending entries and stops the batcher's worker.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	if err := b.buf.Flush(); err != nil {
		return err
	}
	if err := b.buf.Close(); err != nil {
		return err
	}
	close(b.work)
	<-b.done
	return nil
}

func (b *Batcher) doFlush(ctx context.Context, ps []*pending) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range ps {
		newLog, err := feedlog.Append(ctx, b.store, b.log, p.payload)
		if err != nil {
			p.notify(nil, err)
			continue
		}
		b.log = newLog
		// Append leaves exactly one head: the entry just written.
		heads := b.log.Heads()
		entry := b.log.Get(heads[len(heads)-1])
		p.notify(entry, nil)
	}
	klog.V(2).Infof("batch: flushed %d entries", len(ps))
}
