//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/evaluation/status"
	"github.com/gptflow/evalengine/processor"
	queueinmemory "github.com/gptflow/evalengine/queue/inmemory"
	storeinmemory "github.com/gptflow/evalengine/store/inmemory"
	usageinmemory "github.com/gptflow/evalengine/usage/inmemory"
)

type fixture struct {
	store   *storeinmemory.Store
	queue   *queueinmemory.Queue
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storeinmemory.New()
	proc := processor.New(s, usageinmemory.New(), processor.WithStagger(time.Millisecond))
	q, err := queueinmemory.New(proc)
	require.NoError(t, err)
	proc.Bind(q)
	t.Cleanup(q.Close)
	return &fixture{store: s, queue: q, service: New(s, q)}
}

// seed writes a task over the given rows with a function target and one
// function metric.
func (f *fixture) seed(t *testing.T, rows []evaluation.DatasetRow, metricCode string) {
	t.Helper()
	f.store.PutDataset(&evaluation.Dataset{ID: "d1", TeamID: "team", Rows: rows})
	f.store.PutTarget(&evaluation.TargetSnapshot{
		ID:       "tg1",
		TeamID:   "team",
		Type:     evaluation.TargetTypeFunction,
		Function: &evaluation.FunctionConfig{Code: `return "AI is " + input.question`},
	})
	f.store.PutMetric(&evaluation.MetricSnapshot{
		ID:       "m1",
		TeamID:   "team",
		Name:     "score",
		Type:     evaluation.MetricTypeFunction,
		Function: &evaluation.FunctionConfig{Code: metricCode},
	})
	f.store.PutTask(&evaluation.Task{
		ID:        "t1",
		TeamID:    "team",
		DatasetID: "d1",
		TargetID:  "tg1",
		MetricIDs: []string{"m1"},
		UsageID:   "u1",
		Status:    status.Queuing,
	})
}

func rows(n int) []evaluation.DatasetRow {
	out := make([]evaluation.DatasetRow, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, evaluation.DatasetRow{Question: "q"})
	}
	return out
}

func TestStartRunsTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, rows(2), `return 90`)

	require.NoError(t, f.service.Start(ctx, "t1"))
	f.queue.Wait()

	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, task.Status)
	require.NotNil(t, task.AvgScore)
	assert.Equal(t, 90.0, *task.AvgScore)

	// A completed task cannot be started again.
	assert.ErrorIs(t, f.service.Start(ctx, "t1"), ErrInvalidStatus)
}

func TestStopCancelsPendingItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, rows(3), `return 90`)

	// Stop before any job runs: the task is still queuing.
	require.NoError(t, f.service.Stop(ctx, "t1"))

	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, task.Status)
	assert.Equal(t, stopMessage, task.ErrorMessage)
	assert.Nil(t, task.AvgScore)

	// Stopping again is rejected.
	assert.ErrorIs(t, f.service.Stop(ctx, "t1"), ErrInvalidStatus)
}

func TestRestartReusesItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, rows(4), `return 90`)

	require.NoError(t, f.service.Start(ctx, "t1"))
	f.queue.Wait()

	require.NoError(t, f.service.Restart(ctx, "t1"))
	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Queuing, task.Status)
	assert.Nil(t, task.AvgScore)

	require.NoError(t, f.service.Start(ctx, "t1"))
	f.queue.Wait()

	// The restarted run reuses the four existing items instead of
	// expanding four more.
	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, items, 4)
	for _, item := range items {
		assert.Equal(t, status.Completed, item.Status)
		assert.False(t, item.Failed())
	}

	task, err = f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, task.Status)
	require.NotNil(t, task.AvgScore)
	assert.Equal(t, 90.0, *task.AvgScore)

	// Restarting a non-completed task is rejected.
	require.NoError(t, f.service.Restart(ctx, "t1"))
	assert.ErrorIs(t, f.service.Restart(ctx, "t1"), ErrInvalidStatus)
}

// brokenFor swaps the seeded target for one that throws on the given question
// and succeeds on any other.
func (f *fixture) brokenFor(question string) {
	f.store.PutTarget(&evaluation.TargetSnapshot{
		ID:     "tg1",
		TeamID: "team",
		Type:   evaluation.TargetTypeFunction,
		Function: &evaluation.FunctionConfig{
			Code: `if (input.question === "` + question + `") { throw new Error("flaky backend") }
return "AI is " + input.question`,
		},
	})
}

// fixTarget restores the seeded always-succeeding target.
func (f *fixture) fixTarget() {
	f.store.PutTarget(&evaluation.TargetSnapshot{
		ID:       "tg1",
		TeamID:   "team",
		Type:     evaluation.TargetTypeFunction,
		Function: &evaluation.FunctionConfig{Code: `return "AI is " + input.question`},
	})
}

func TestRetryFailedItemsReschedulesOnlyFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{
		{Question: "good"},
		{Question: "bad"},
		{Question: "bad"},
	}, `return 90`)
	f.brokenFor("bad")

	require.NoError(t, f.service.Start(ctx, "t1"))
	f.queue.Wait()

	// The two flaky items spent their retries; stopping the task completes
	// them as failures.
	require.NoError(t, f.service.Stop(ctx, "t1"))

	f.fixTarget()
	affected, err := f.service.RetryFailedItems(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	f.queue.Wait()

	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, item := range items {
		assert.Equal(t, status.Completed, item.Status)
		assert.False(t, item.Failed())
	}
	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, task.Status)

	// Nothing left to retry.
	affected, err = f.service.RetryFailedItems(ctx, "t1")
	require.NoError(t, err)
	assert.Zero(t, affected)
}

func TestRetrySingleItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{
		{Question: "good"},
		{Question: "bad"},
	}, `return 90`)
	f.brokenFor("bad")

	require.NoError(t, f.service.Start(ctx, "t1"))
	f.queue.Wait()

	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	// A healthy completed item is not retryable.
	assert.ErrorIs(t, f.service.RetryItem(ctx, items[0].ID), ErrInvalidStatus)

	require.NoError(t, f.service.Stop(ctx, "t1"))

	f.fixTarget()
	require.NoError(t, f.service.RetryItem(ctx, items[1].ID))
	f.queue.Wait()

	item, err := f.store.GetItem(ctx, items[1].ID)
	require.NoError(t, err)
	assert.Equal(t, status.Completed, item.Status)
	assert.False(t, item.Failed())

	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, task.Status)
	require.NotNil(t, task.AvgScore)
	assert.Equal(t, 90.0, *task.AvgScore)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, rows(3), `return 75`)

	require.NoError(t, f.service.Start(ctx, "t1"))
	f.queue.Wait()

	stats, err := f.service.Stats(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(3), stats.Completed)
	assert.Zero(t, stats.Queuing)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 75.0, stats.AvgScore)
}

func TestConnectivityProbes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, rows(1), `return 90`)

	ok, err := f.service.TestTarget(ctx, "team", "tg1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.service.TestMetric(ctx, "team", "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Broken script fails the probe.
	f.store.PutMetric(&evaluation.MetricSnapshot{
		ID:       "m1",
		TeamID:   "team",
		Type:     evaluation.MetricTypeFunction,
		Function: &evaluation.FunctionConfig{Code: `return (`},
	})
	ok, err = f.service.TestMetric(ctx, "team", "m1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.service.TestTarget(ctx, "other-team", "tg1")
	assert.ErrorIs(t, err, evaluation.ErrConfigMissing)
}
