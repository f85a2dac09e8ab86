//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptflow/evalengine/queue"
)

type countingHandler struct {
	mu       sync.Mutex
	tasks    []string
	items    []string
	itemTime map[string]time.Time
	inflight atomic.Int32
	peak     atomic.Int32
}

func newCountingHandler() *countingHandler {
	return &countingHandler{itemTime: make(map[string]time.Time)}
}

func (h *countingHandler) HandleTask(ctx context.Context, job *queue.TaskJob) error {
	h.mu.Lock()
	h.tasks = append(h.tasks, job.TaskID)
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) HandleItem(ctx context.Context, job *queue.ItemJob) error {
	cur := h.inflight.Add(1)
	for {
		peak := h.peak.Load()
		if cur <= peak || h.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	h.inflight.Add(-1)

	h.mu.Lock()
	h.items = append(h.items, job.ItemID)
	h.itemTime[job.ItemID] = time.Now()
	h.mu.Unlock()
	return nil
}

func TestQueueDispatchesJobs(t *testing.T) {
	ctx := context.Background()
	handler := newCountingHandler()
	q, err := New(handler)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.EnqueueTask(ctx, &queue.TaskJob{TaskID: "t1"}))
	for i := 0; i < 5; i++ {
		require.NoError(t, q.EnqueueItem(ctx, &queue.ItemJob{ItemID: "i" + string(rune('1'+i))}))
	}
	q.Wait()

	assert.Equal(t, []string{"t1"}, handler.tasks)
	assert.Len(t, handler.items, 5)
}

func TestQueueBoundsItemConcurrency(t *testing.T) {
	ctx := context.Background()
	handler := newCountingHandler()
	q, err := New(handler, WithItemConcurrency(2))
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 8; i++ {
		require.NoError(t, q.EnqueueItem(ctx, &queue.ItemJob{ItemID: "i" + string(rune('1'+i))}))
	}
	q.Wait()

	assert.Len(t, handler.items, 8)
	assert.LessOrEqual(t, handler.peak.Load(), int32(2))
}

func TestQueueDelaysSubmission(t *testing.T) {
	ctx := context.Background()
	handler := newCountingHandler()
	q, err := New(handler)
	require.NoError(t, err)
	defer q.Close()

	start := time.Now()
	require.NoError(t, q.EnqueueItem(ctx, &queue.ItemJob{ItemID: "late"},
		queue.WithDelay(50*time.Millisecond)))
	q.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, []string{"late"}, handler.items)
}

func TestClosedQueueRejectsJobs(t *testing.T) {
	ctx := context.Background()
	handler := newCountingHandler()
	q, err := New(handler)
	require.NoError(t, err)

	// A pending delayed job is cancelled by Close.
	require.NoError(t, q.EnqueueItem(ctx, &queue.ItemJob{ItemID: "cancelled"},
		queue.WithDelay(time.Hour)))
	q.Close()

	assert.Empty(t, handler.items)
	assert.Error(t, q.EnqueueItem(ctx, &queue.ItemJob{ItemID: "i1"}))
	assert.Error(t, q.EnqueueTask(ctx, &queue.TaskJob{TaskID: "t1"}))
}

func TestNewRequiresHandler(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(newCountingHandler(), WithItemConcurrency(-1))
	assert.Error(t, err)
}
