/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package queue provides an unbounded FIFO drained by a single worker, with a
// WaitGroup style Wait for callers that must know when everything put so far
// has been handled.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Put once the worker has stopped.
var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded FIFO. The zero value is not usable, use New.
// Queue 是无界先进先出队列，由单个工作协程消费。
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	closed  bool
	signal  chan struct{}
	pending sync.WaitGroup
}

// New creates an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{signal: make(chan struct{}, 1)}
}

// Put appends item. It never blocks.
func (q *Queue[T]) Put(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.pending.Add(1)
	q.items = append(q.items, item)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of items waiting.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Run hands items to handle, in order, until ctx is done. Items still queued
// when ctx ends are dropped and released so that Wait returns.
// Run 按顺序处理队列元素直至 ctx 结束，剩余元素被丢弃。
func (q *Queue[T]) Run(ctx context.Context, handle func(context.Context, T)) {
	for {
		for {
			item, ok := q.pop()
			if !ok {
				break
			}
			handle(ctx, item)
			q.pending.Done()
		}
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			n := len(q.items)
			q.items = nil
			q.mu.Unlock()
			for i := 0; i < n; i++ {
				q.pending.Done()
			}
			return
		case <-q.signal:
		}
	}
}

// Wait blocks until every item put so far has been handled or dropped.
func (q *Queue[T]) Wait() {
	q.pending.Wait()
}
