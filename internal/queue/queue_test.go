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

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestQueue_RunInOrder(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []int
	go q.Run(ctx, func(_ context.Context, v int) {
		got = append(got, v)
	})
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Put(i))
	}
	q.Wait()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueue_CancelDropsAndCloses(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Put("a"))
	require.NoError(t, q.Put("b"))
	assert.Equal(t, 2, q.Len())

	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(_ context.Context, _ string) { <-block })
		close(done)
	}()
	cancel()
	close(block)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	q.Wait()
	assert.ErrorIs(t, q.Put("c"), ErrClosed)
	assert.Equal(t, 0, q.Len())
}

// **Feature: drifter-follow, Property 22: queue delivers every item exactly once in order**
func TestProperty_QueueOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		items := rapid.SliceOf(rapid.Int()).Draw(rt, "items")
		q := New[int]()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		got := make([]int, 0, len(items))
		go q.Run(ctx, func(_ context.Context, v int) { got = append(got, v) })
		for _, v := range items {
			if err := q.Put(v); err != nil {
				rt.Fatalf("put: %v", err)
			}
		}
		q.Wait()
		if len(got) != len(items) {
			rt.Fatalf("got %d items, want %d", len(got), len(items))
		}
		for i := range items {
			if got[i] != items[i] {
				rt.Fatalf("item %d: got %d want %d", i, got[i], items[i])
			}
		}
	})
}
