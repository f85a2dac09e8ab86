//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/evaluation/status"
	"github.com/gptflow/evalengine/queue"
	queueinmemory "github.com/gptflow/evalengine/queue/inmemory"
	storeinmemory "github.com/gptflow/evalengine/store/inmemory"
	"github.com/gptflow/evalengine/target"
	"github.com/gptflow/evalengine/usage"
	usageinmemory "github.com/gptflow/evalengine/usage/inmemory"
)

type fixture struct {
	store *storeinmemory.Store
	usage *usageinmemory.Manager
	proc  *Processor
	queue *queueinmemory.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := storeinmemory.New()
	u := usageinmemory.New()
	proc := New(s, u, WithStagger(time.Millisecond))
	q, err := queueinmemory.New(proc)
	require.NoError(t, err)
	proc.Bind(q)
	t.Cleanup(q.Close)
	return &fixture{store: s, usage: u, proc: proc, queue: q}
}

// seed writes a task, its dataset, a function target and the given function
// metrics, and moves the task to evaluating as Start would.
func (f *fixture) seed(t *testing.T, rows []evaluation.DatasetRow, metricCodes ...string) *evaluation.Task {
	t.Helper()
	ctx := context.Background()
	f.store.PutDataset(&evaluation.Dataset{ID: "d1", TeamID: "team", Rows: rows})
	f.store.PutTarget(&evaluation.TargetSnapshot{
		ID:     "tg1",
		TeamID: "team",
		Type:   evaluation.TargetTypeFunction,
		Function: &evaluation.FunctionConfig{
			Code: `return "AI is " + input.question`,
		},
	})
	metricIDs := make([]string, 0, len(metricCodes))
	for i, code := range metricCodes {
		id := "m" + string(rune('1'+i))
		f.store.PutMetric(&evaluation.MetricSnapshot{
			ID:       id,
			TeamID:   "team",
			Name:     "metric " + id,
			Type:     evaluation.MetricTypeFunction,
			Function: &evaluation.FunctionConfig{Code: code},
		})
		metricIDs = append(metricIDs, id)
	}
	task := &evaluation.Task{
		ID:        "t1",
		TeamID:    "team",
		MemberID:  "member",
		DatasetID: "d1",
		TargetID:  "tg1",
		MetricIDs: metricIDs,
		UsageID:   "u1",
		Status:    status.Queuing,
	}
	f.store.PutTask(task)
	ok, err := f.store.MarkTaskEvaluating(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, ok)
	return task
}

func TestTaskExpandsIntoOneItemPerRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{
		{Question: "What is AI?"},
		{Question: "What is ML?"},
		{Question: "What is NLP?"},
	}, `return 90`)

	require.NoError(t, f.queue.EnqueueTask(ctx, &queue.TaskJob{TaskID: "t1"}))
	f.queue.Wait()

	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i, item.Index)
		assert.Equal(t, status.Completed, item.Status)
		assert.False(t, item.Failed())
		require.NotNil(t, item.Score)
		assert.Equal(t, 90.0, *item.Score)
	}
	assert.Equal(t, "AI is What is AI?", items[0].Response)

	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, task.Status)
	require.NotNil(t, task.AvgScore)
	assert.Equal(t, 90.0, *task.AvgScore)
	assert.NotNil(t, task.FinishTime)
}

func TestItemScoreExcludesZeroAndFailedMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{{Question: "q"}},
		`return 0`,
		`return 80`,
		`throw new Error("scorer down")`,
	)

	require.NoError(t, f.queue.EnqueueTask(ctx, &queue.TaskJob{TaskID: "t1"}))
	f.queue.Wait()

	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	require.Len(t, item.MetricResults, 3)
	assert.Empty(t, item.MetricResults[0].Error)
	assert.Contains(t, item.MetricResults[2].Error, "scorer down")

	// Zero scores and failed metrics do not drag the mean down.
	require.NotNil(t, item.Score)
	assert.Equal(t, 80.0, *item.Score)
}

func TestItemScoreZeroWhenNoMetricCounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{{Question: "q"}}, `return 0`)

	require.NoError(t, f.queue.EnqueueTask(ctx, &queue.TaskJob{TaskID: "t1"}))
	f.queue.Wait()

	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, items[0].Score)
	assert.Zero(t, *items[0].Score)

	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, task.Status)
	require.NotNil(t, task.AvgScore)
	assert.Zero(t, *task.AvgScore)
}

func TestFailingTargetSpendsRetriesThenRests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{{Question: "q"}}, `return 90`)
	f.store.PutTarget(&evaluation.TargetSnapshot{
		ID:       "tg1",
		TeamID:   "team",
		Type:     evaluation.TargetTypeFunction,
		Function: &evaluation.FunctionConfig{Code: `throw new Error("flaky backend")`},
	})

	require.NoError(t, f.queue.EnqueueTask(ctx, &queue.TaskJob{TaskID: "t1"}))
	f.queue.Wait()

	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	// Three attempts spend the budget; the item rests in queuing for a
	// manual retry.
	assert.Equal(t, status.Queuing, item.Status)
	assert.Zero(t, item.Retry)
	assert.Contains(t, item.ErrorMessage, "flaky backend")

	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Evaluating, task.Status)
	assert.Nil(t, task.AvgScore)
}

func TestQuotaExhaustionParksTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{{Question: "q1"}, {Question: "q2"}}, `return 90`)
	f.usage.SetQuota("team", 0)

	require.NoError(t, f.queue.EnqueueTask(ctx, &queue.TaskJob{TaskID: "t1"}))
	f.queue.Wait()

	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Queuing, task.Status)
	assert.Equal(t, quotaMessage, task.ErrorMessage)

	// Items keep their full retry budget for the resume.
	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, status.Queuing, item.Status)
		assert.Equal(t, evaluation.DefaultRetry, item.Retry)
		assert.False(t, item.Failed())
	}
}

func TestMissingConfigFailsTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.seed(t, []evaluation.DatasetRow{{Question: "q"}}, `return 90`)
	task.DatasetID = "gone"
	f.store.PutTask(task)
	_, err := f.store.MarkTaskEvaluating(ctx, task.ID)
	require.NoError(t, err)

	require.NoError(t, f.proc.HandleTask(ctx, &queue.TaskJob{TaskID: "t1"}))

	got, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, got.Status)
	assert.Contains(t, got.ErrorMessage, "config missing")
	assert.Nil(t, got.AvgScore)
}

func TestTaskWithoutMetricsFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	task := f.seed(t, []evaluation.DatasetRow{{Question: "q"}}, `return 90`)
	task.MetricIDs = []string{"missing"}
	f.store.PutTask(task)
	_, err := f.store.MarkTaskEvaluating(ctx, task.ID)
	require.NoError(t, err)

	require.NoError(t, f.proc.HandleTask(ctx, &queue.TaskJob{TaskID: "t1"}))

	got, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, got.Status)
	assert.Contains(t, got.ErrorMessage, "config missing")
}

func TestStoppedTaskJobsAreNoOps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{{Question: "q"}}, `return 90`)

	ok, err := f.store.StopTask(ctx, "t1", "Manually stopped")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.proc.HandleTask(ctx, &queue.TaskJob{TaskID: "t1"}))

	// No items were expanded for the stopped task.
	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, items)

	task, err := f.store.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Manually stopped", task.ErrorMessage)
}

func TestLateFailureAfterStopIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{{Question: "q"}}, `return 90`)
	require.NoError(t, f.store.InsertItems(ctx, []*evaluation.Item{{
		ID:     "i1",
		TaskID: "t1",
		Status: status.Queuing,
		Retry:  evaluation.DefaultRetry,
	}}))
	ok, err := f.store.MarkItemEvaluating(ctx, "i1")
	require.NoError(t, err)
	require.True(t, ok)

	// Stop lands while the item's target call is still in flight.
	ok, err = f.store.StopTask(ctx, "t1", "Manually stopped")
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.store.StopPendingItems(ctx, "t1", "Manually stopped")
	require.NoError(t, err)

	// The failure surfacing afterwards is dropped: no retry spent, no
	// reschedule, the stop message stays.
	require.NoError(t, f.proc.failItem(ctx, &queue.ItemJob{TaskID: "t1", ItemID: "i1"},
		errors.New("flaky backend")))
	f.queue.Wait()

	item, err := f.store.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, status.Completed, item.Status)
	assert.Equal(t, "Manually stopped", item.ErrorMessage)
	assert.Equal(t, evaluation.DefaultRetry, item.Retry)
}

func TestDuplicateItemJobIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{{Question: "q"}}, `return 90`)
	require.NoError(t, f.proc.HandleTask(ctx, &queue.TaskJob{TaskID: "t1"}))
	f.queue.Wait()

	items, err := f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	finishTime := items[0].FinishTime

	// Redelivering the job after completion must not rerun the item.
	targetSnap, err := f.store.GetTarget(ctx, "team", "tg1")
	require.NoError(t, err)
	metricSnaps, err := f.store.GetMetrics(ctx, "team", []string{"m1"})
	require.NoError(t, err)
	require.NoError(t, f.proc.HandleItem(ctx, &queue.ItemJob{
		TaskID:  "t1",
		ItemID:  items[0].ID,
		Row:     items[0].Row,
		Target:  targetSnap,
		Metrics: metricSnaps,
	}))

	items, err = f.store.ListItems(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, finishTime, items[0].FinishTime)
}

func TestWorkflowTargetUsageIsPosted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, []evaluation.DatasetRow{{Question: "q"}}, `return 90`)
	f.store.PutTarget(&evaluation.TargetSnapshot{
		ID:       "tg1",
		TeamID:   "team",
		Type:     evaluation.TargetTypeWorkflow,
		Workflow: &evaluation.WorkflowConfig{AppID: "app-1"},
	})
	f.proc.opts.AppRunner = &stubRunner{}

	require.NoError(t, f.queue.EnqueueTask(ctx, &queue.TaskJob{TaskID: "t1"}))
	f.queue.Wait()

	entries := f.usage.Entries()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "u1", entry.UsageID)
	assert.Equal(t, "team", entry.TeamID)
	assert.Equal(t, "member", entry.MemberID)
	assert.Equal(t, usage.ListIndexTarget, entry.ListIndex)
	assert.Equal(t, 3.5, entry.TotalPoints)
	assert.Equal(t, int64(120), entry.InputTokens)
}

type stubRunner struct{}

func (r *stubRunner) RunApp(ctx context.Context, req *target.AppRunRequest) (*target.AppRunResponse, error) {
	return &target.AppRunResponse{
		Response: "answer",
		Usage: []evaluation.UsageRecord{
			{TotalPoints: 2, InputTokens: 100, OutputTokens: 30},
			{TotalPoints: 1.5, InputTokens: 20, OutputTokens: 5},
		},
	}, nil
}

func (r *stubRunner) AppExists(ctx context.Context, appID string) (bool, error) {
	return true, nil
}
