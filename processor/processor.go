//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package processor executes evaluation jobs: it expands tasks into items and
// runs single items end to end (target call, metric scoring, usage posting,
// result persistence and task completion detection).
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/evaluation/status"
	"github.com/gptflow/evalengine/judge"
	"github.com/gptflow/evalengine/log"
	"github.com/gptflow/evalengine/metric"
	"github.com/gptflow/evalengine/queue"
	"github.com/gptflow/evalengine/store"
	"github.com/gptflow/evalengine/target"
	"github.com/gptflow/evalengine/usage"
)

// quotaMessage is recorded on a task parked for lack of execution budget.
const quotaMessage = "insufficient team points"

// Processor implements queue.Handler.
type Processor struct {
	store store.Store
	usage usage.Manager
	queue queue.Queue
	opts  *Options
}

// New creates a processor. Bind must be called with the queue before any job
// is handled.
func New(s store.Store, u usage.Manager, opt ...Option) *Processor {
	return &Processor{
		store: s,
		usage: u,
		opts:  NewOptions(opt...),
	}
}

// Bind attaches the queue the processor schedules follow-up jobs on. Split
// from New because the queue itself is constructed around the processor.
func (p *Processor) Bind(q queue.Queue) {
	p.queue = q
}

// HandleTask implements queue.Handler. It loads the task's snapshots, creates
// one item per dataset row (reusing existing items after a restart) and
// schedules the pending ones.
func (p *Processor) HandleTask(ctx context.Context, job *queue.TaskJob) error {
	task, err := p.store.GetTask(ctx, job.TaskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", job.TaskID, err)
	}
	if task.Status != status.Evaluating {
		// Stopped while the job sat in the queue.
		return nil
	}

	dataset, targetSnap, metricSnaps, err := p.loadSnapshots(ctx, task)
	if err != nil {
		log.Warnf("task %s failed at expansion: %v", task.ID, err)
		return p.store.FailTask(ctx, task.ID, err.Error())
	}

	items, err := p.store.ListItems(ctx, task.ID)
	if err != nil {
		return fmt.Errorf("list items of task %s: %w", task.ID, err)
	}
	if len(items) == 0 {
		items = expandItems(task, dataset)
		if err := p.store.InsertItems(ctx, items); err != nil {
			return fmt.Errorf("insert items of task %s: %w", task.ID, err)
		}
	}
	if len(items) == 0 {
		// Empty dataset: nothing to run, complete immediately.
		_, err := p.store.FinishTask(ctx, task.ID, 0)
		return err
	}

	var scheduled int
	for _, item := range items {
		if item.Status != status.Queuing {
			continue
		}
		err := p.queue.EnqueueItem(ctx, &queue.ItemJob{
			TaskID:  task.ID,
			ItemID:  item.ID,
			Row:     item.Row,
			Target:  targetSnap,
			Metrics: metricSnaps,
		}, queue.WithDelay(time.Duration(item.Index)*p.opts.Stagger))
		if err != nil {
			return fmt.Errorf("enqueue item %s: %w", item.ID, err)
		}
		scheduled++
	}
	log.Infof("task %s expanded: %d items, %d scheduled", task.ID, len(items), scheduled)
	return nil
}

// loadSnapshots resolves the task's dataset, target and metric snapshots. Any
// missing piece is fatal to the task.
func (p *Processor) loadSnapshots(ctx context.Context, task *evaluation.Task) (
	*evaluation.Dataset, *evaluation.TargetSnapshot, []*evaluation.MetricSnapshot, error) {
	dataset, err := p.store.GetDataset(ctx, task.TeamID, task.DatasetID)
	if err != nil {
		return nil, nil, nil, err
	}
	targetSnap, err := p.store.GetTarget(ctx, task.TeamID, task.TargetID)
	if err != nil {
		return nil, nil, nil, err
	}
	metricSnaps, err := p.store.GetMetrics(ctx, task.TeamID, task.MetricIDs)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(metricSnaps) == 0 {
		return nil, nil, nil, fmt.Errorf("metrics of task %s: %w", task.ID, evaluation.ErrConfigMissing)
	}
	return dataset, targetSnap, metricSnaps, nil
}

// expandItems builds one fresh item per dataset row.
func expandItems(task *evaluation.Task, dataset *evaluation.Dataset) []*evaluation.Item {
	items := make([]*evaluation.Item, 0, len(dataset.Rows))
	for i, row := range dataset.Rows {
		items = append(items, &evaluation.Item{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			Index:     i,
			Row:       row,
			TargetID:  task.TargetID,
			MetricIDs: task.MetricIDs,
			Status:    status.Queuing,
			Retry:     evaluation.DefaultRetry,
		})
	}
	return items
}

// HandleItem implements queue.Handler. It runs one dataset row end to end and
// completes the parent task when this was the last pending item.
func (p *Processor) HandleItem(ctx context.Context, job *queue.ItemJob) error {
	task, err := p.store.GetTask(ctx, job.TaskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", job.TaskID, err)
	}
	if task.Status != status.Evaluating {
		return nil
	}

	if err := p.usage.CheckQuota(ctx, task.TeamID); err != nil {
		if errors.Is(err, usage.ErrQuotaExhausted) {
			// Park the task; the item stays queuing with its retry budget
			// intact and is rescheduled when the task is started again.
			log.Warnf("task %s parked: %s", task.ID, quotaMessage)
			return p.store.ParkTask(ctx, task.ID, quotaMessage)
		}
		return p.failItem(ctx, job, fmt.Errorf("check quota: %w", err))
	}

	ok, err := p.store.MarkItemEvaluating(ctx, job.ItemID)
	if err != nil {
		return fmt.Errorf("mark item %s evaluating: %w", job.ItemID, err)
	}
	if !ok {
		// Stopped, or a duplicate delivery.
		return nil
	}

	executor, err := target.New(job.Target,
		target.WithAppRunner(p.opts.AppRunner),
		target.WithHTTPClient(p.opts.HTTPClient))
	if err != nil {
		return p.failItem(ctx, job, err)
	}
	input := evaluation.InputFromRow(job.Row)
	output, err := executor.Execute(ctx, input)
	if err != nil {
		return p.failItem(ctx, job, err)
	}
	p.postTargetUsage(ctx, task, output)

	scorer := &recordingScorer{inner: p.opts.Scorer}
	results := p.evaluateMetrics(ctx, job.Metrics, input, output, scorer)
	p.postJudgeUsage(ctx, task, scorer)

	result := &store.ItemResult{
		Response:      output.Response,
		ResponseTime:  output.ResponseTime,
		Score:         itemScore(results),
		MetricResults: results,
	}
	ok, err = p.store.CompleteItem(ctx, job.ItemID, result)
	if err != nil {
		return fmt.Errorf("complete item %s: %w", job.ItemID, err)
	}
	if !ok {
		// Stopped mid-run; the result is discarded.
		return nil
	}
	return p.finishTaskIfDone(ctx, task.ID)
}

// evaluateMetrics runs every metric snapshot against the output. A metric
// that cannot even be constructed yields a zero-score result so the item
// still records one result per configured metric.
func (p *Processor) evaluateMetrics(ctx context.Context, snapshots []*evaluation.MetricSnapshot,
	input *evaluation.Input, output *target.Output, scorer judge.Scorer) []evaluation.MetricResult {
	results := make([]evaluation.MetricResult, 0, len(snapshots))
	for _, snapshot := range snapshots {
		evaluator, err := metric.New(snapshot,
			metric.WithHTTPClient(p.opts.HTTPClient),
			metric.WithScorer(scorer))
		if err != nil {
			results = append(results, evaluation.MetricResult{
				MetricID:   snapshot.ID,
				MetricName: snapshot.Name,
				Error:      err.Error(),
			})
			continue
		}
		results = append(results, *evaluator.Evaluate(ctx, input, output))
	}
	return results
}

// itemScore is the mean over metric results that scored above zero without
// error, or 0 when there is none. Rounded to two decimals.
func itemScore(results []evaluation.MetricResult) float64 {
	var sum float64
	var count int
	for _, r := range results {
		if r.Error == "" && r.Score > 0 {
			sum += r.Score
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return evaluation.RoundScore(sum / float64(count))
}

// postTargetUsage concatenates the consumption reported by the target run.
func (p *Processor) postTargetUsage(ctx context.Context, task *evaluation.Task, output *target.Output) {
	if len(output.Usage) == 0 {
		return
	}
	entry := &usage.Concat{
		UsageID:   task.UsageID,
		TeamID:    task.TeamID,
		MemberID:  task.MemberID,
		Count:     len(output.Usage),
		ListIndex: usage.ListIndexTarget,
	}
	for _, record := range output.Usage {
		entry.TotalPoints += record.TotalPoints
		entry.InputTokens += record.InputTokens
		entry.OutputTokens += record.OutputTokens
	}
	if err := p.usage.AddConcat(ctx, entry); err != nil {
		log.Errorf("post target usage of task %s: %v", task.ID, err)
	}
}

// postJudgeUsage concatenates the consumption of the item's AI-judge calls.
func (p *Processor) postJudgeUsage(ctx context.Context, task *evaluation.Task, scorer *recordingScorer) {
	entry := scorer.concat(task)
	if entry == nil {
		return
	}
	if err := p.usage.AddConcat(ctx, entry); err != nil {
		log.Errorf("post judge usage of task %s: %v", task.ID, err)
	}
}

// failItem records the failure, spends one retry and reschedules the item
// while budget remains. An item out of retries rests in queuing for a manual
// retry. The failure write is conditional on the item still being pending, so
// an error surfacing after a manual stop is discarded instead of resurrecting
// the stopped item.
func (p *Processor) failItem(ctx context.Context, job *queue.ItemJob, cause error) error {
	remaining, applied, err := p.store.FailItem(ctx, job.ItemID, cause.Error())
	if err != nil {
		return fmt.Errorf("fail item %s: %w", job.ItemID, err)
	}
	if !applied {
		log.Infof("item %s no longer pending, dropping failure: %v", job.ItemID, cause)
		return nil
	}
	log.Warnf("item %s failed (%d retries left): %v", job.ItemID, remaining, cause)
	if remaining <= 0 {
		return nil
	}
	if err := p.queue.EnqueueItem(ctx, job, queue.WithDelay(p.opts.Stagger)); err != nil {
		return fmt.Errorf("reschedule item %s: %w", job.ItemID, err)
	}
	return nil
}

// finishTaskIfDone completes the task once no sibling item is pending. The
// conditional finish makes concurrent triggers and post-stop stragglers
// harmless.
func (p *Processor) finishTaskIfDone(ctx context.Context, taskID string) error {
	pending, err := p.store.CountPendingItems(ctx, taskID)
	if err != nil {
		return fmt.Errorf("count pending items of task %s: %w", taskID, err)
	}
	if pending > 0 {
		return nil
	}
	avg, err := p.store.AverageItemScore(ctx, taskID)
	if err != nil {
		return fmt.Errorf("average score of task %s: %w", taskID, err)
	}
	finished, err := p.store.FinishTask(ctx, taskID, evaluation.RoundScore(avg))
	if err != nil {
		return fmt.Errorf("finish task %s: %w", taskID, err)
	}
	if finished {
		log.Infof("task %s completed with average score %.2f", taskID, avg)
	}
	return nil
}

// recordingScorer wraps a judge scorer and accumulates the usage of every
// call, so an item posts one consumption increment no matter how many
// ai_model metrics it carries.
type recordingScorer struct {
	inner judge.Scorer

	mu           sync.Mutex
	count        int
	totalPoints  float64
	inputTokens  int64
	outputTokens int64
}

// Score implements judge.Scorer.
func (s *recordingScorer) Score(ctx context.Context, req *judge.Request) (*judge.Result, error) {
	if s.inner == nil {
		return nil, errors.New("judge scorer is not configured")
	}
	result, err := s.inner.Score(ctx, req)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.count++
	s.totalPoints += result.Usage.TotalPoints
	s.inputTokens += result.Usage.InputTokens
	s.outputTokens += result.Usage.OutputTokens
	s.mu.Unlock()
	return result, nil
}

// concat returns the accumulated consumption as a ledger increment, or nil
// when no judge call succeeded.
func (s *recordingScorer) concat(task *evaluation.Task) *usage.Concat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return nil
	}
	return &usage.Concat{
		UsageID:      task.UsageID,
		TeamID:       task.TeamID,
		MemberID:     task.MemberID,
		TotalPoints:  s.totalPoints,
		InputTokens:  s.inputTokens,
		OutputTokens: s.outputTokens,
		Count:        s.count,
		ListIndex:    usage.ListIndexMetric,
	}
}
