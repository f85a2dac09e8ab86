//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package service exposes the task-control surface of the evaluation engine:
// start, stop, restart, item retries, progress stats and connectivity tests.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/evaluation/status"
	"github.com/gptflow/evalengine/log"
	"github.com/gptflow/evalengine/metric"
	"github.com/gptflow/evalengine/queue"
	"github.com/gptflow/evalengine/store"
	"github.com/gptflow/evalengine/target"
)

// ErrInvalidStatus indicates the task or item is not in a state that allows
// the requested operation.
var ErrInvalidStatus = errors.New("operation not allowed in current status")

// stopMessage is recorded on tasks and items completed by a manual stop.
const stopMessage = "Manually stopped"

// Stats is a task progress snapshot.
type Stats struct {
	Total      int64   `json:"total"`
	Queuing    int64   `json:"queuing"`
	Evaluating int64   `json:"evaluating"`
	Completed  int64   `json:"completed"`
	Failed     int64   `json:"failed"`
	AvgScore   float64 `json:"avgScore"`
}

// Service drives the task lifecycle. All state lives in the store; the
// service only validates transitions and schedules jobs.
type Service struct {
	store store.Store
	queue queue.Queue
	opts  *Options
}

// New creates a service.
func New(s store.Store, q queue.Queue, opt ...Option) *Service {
	return &Service{
		store: s,
		queue: q,
		opts:  NewOptions(opt...),
	}
}

// Start schedules a queuing task for execution. Also resumes a task that was
// parked for lack of budget.
func (s *Service) Start(ctx context.Context, taskID string) error {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	ok, err := s.store.MarkTaskEvaluating(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("start task %s: %w", taskID, ErrInvalidStatus)
	}
	job := &queue.TaskJob{
		TaskID:    task.ID,
		DatasetID: task.DatasetID,
		TargetID:  task.TargetID,
		MetricIDs: task.MetricIDs,
	}
	if err := s.queue.EnqueueTask(ctx, job); err != nil {
		return fmt.Errorf("enqueue task %s: %w", taskID, err)
	}
	log.Infof("task %s started", taskID)
	return nil
}

// Stop force-completes a queuing or evaluating task and all of its pending
// items. Stopping is terminal: in-flight results arriving afterwards are
// discarded by the store's conditional writes.
func (s *Service) Stop(ctx context.Context, taskID string) error {
	ok, err := s.store.StopTask(ctx, taskID, stopMessage)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("stop task %s: %w", taskID, ErrInvalidStatus)
	}
	stopped, err := s.store.StopPendingItems(ctx, taskID, stopMessage)
	if err != nil {
		return err
	}
	log.Infof("task %s stopped, %d pending items cancelled", taskID, stopped)
	return nil
}

// Restart resets a completed task and all of its items back to queuing with a
// full retry budget. The task is not scheduled; call Start to run it.
func (s *Service) Restart(ctx context.Context, taskID string) error {
	ok, err := s.store.RestartTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("restart task %s: %w", taskID, ErrInvalidStatus)
	}
	if err := s.store.ResetItems(ctx, taskID); err != nil {
		return err
	}
	log.Infof("task %s reset for restart", taskID)
	return nil
}

// RetryItem re-runs one failed item of a completed task. The parent task goes
// back to evaluating so its average score is recomputed when the item lands.
func (s *Service) RetryItem(ctx context.Context, itemID string) error {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	ok, err := s.store.ResetFailedItem(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("retry item %s: %w", itemID, ErrInvalidStatus)
	}
	task, err := s.store.GetTask(ctx, item.TaskID)
	if err != nil {
		return err
	}
	if task.Status == status.Completed {
		if _, err := s.store.ReopenTask(ctx, task.ID); err != nil {
			return err
		}
	}
	return s.enqueueItems(ctx, task, []*evaluation.Item{item})
}

// RetryFailedItems re-runs every failed item of a completed task and returns
// the number rescheduled.
func (s *Service) RetryFailedItems(ctx context.Context, taskID string) (int64, error) {
	affected, err := s.store.ResetFailedItems(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, nil
	}
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if task.Status == status.Completed {
		if _, err := s.store.ReopenTask(ctx, taskID); err != nil {
			return 0, err
		}
	}
	items, err := s.store.ListItems(ctx, taskID)
	if err != nil {
		return 0, err
	}
	pending := make([]*evaluation.Item, 0, len(items))
	for _, item := range items {
		if item.Status == status.Queuing {
			pending = append(pending, item)
		}
	}
	if err := s.enqueueItems(ctx, task, pending); err != nil {
		return 0, err
	}
	log.Infof("task %s: %d failed items rescheduled", taskID, affected)
	return affected, nil
}

// enqueueItems schedules item jobs carrying the task's current snapshots.
func (s *Service) enqueueItems(ctx context.Context, task *evaluation.Task, items []*evaluation.Item) error {
	if len(items) == 0 {
		return nil
	}
	targetSnap, err := s.store.GetTarget(ctx, task.TeamID, task.TargetID)
	if err != nil {
		return err
	}
	metricSnaps, err := s.store.GetMetrics(ctx, task.TeamID, task.MetricIDs)
	if err != nil {
		return err
	}
	for _, item := range items {
		err := s.queue.EnqueueItem(ctx, &queue.ItemJob{
			TaskID:  task.ID,
			ItemID:  item.ID,
			Row:     item.Row,
			Target:  targetSnap,
			Metrics: metricSnaps,
		})
		if err != nil {
			return fmt.Errorf("enqueue item %s: %w", item.ID, err)
		}
	}
	return nil
}

// Stats returns the task's progress counters and current average score.
func (s *Service) Stats(ctx context.Context, taskID string) (*Stats, error) {
	counts, err := s.store.CountItemsByStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	failed, err := s.store.CountFailedItems(ctx, taskID)
	if err != nil {
		return nil, err
	}
	avg, err := s.store.AverageItemScore(ctx, taskID)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Queuing:    counts[status.Queuing],
		Evaluating: counts[status.Evaluating],
		Completed:  counts[status.Completed],
		Failed:     failed,
		AvgScore:   evaluation.RoundScore(avg),
	}
	stats.Total = stats.Queuing + stats.Evaluating + stats.Completed
	return stats, nil
}

// TestTarget probes a target definition for reachability or syntax validity
// without executing it.
func (s *Service) TestTarget(ctx context.Context, teamID, targetID string) (bool, error) {
	snapshot, err := s.store.GetTarget(ctx, teamID, targetID)
	if err != nil {
		return false, err
	}
	executor, err := target.New(snapshot,
		target.WithAppRunner(s.opts.AppRunner),
		target.WithHTTPClient(s.opts.HTTPClient))
	if err != nil {
		return false, err
	}
	return executor.Validate(ctx), nil
}

// TestMetric probes a metric definition for reachability or syntax validity
// without executing it.
func (s *Service) TestMetric(ctx context.Context, teamID, metricID string) (bool, error) {
	snapshots, err := s.store.GetMetrics(ctx, teamID, []string{metricID})
	if err != nil {
		return false, err
	}
	if len(snapshots) == 0 {
		return false, fmt.Errorf("metric %s: %w", metricID, evaluation.ErrConfigMissing)
	}
	evaluator, err := metric.New(snapshots[0],
		metric.WithHTTPClient(s.opts.HTTPClient),
		metric.WithScorer(s.opts.Scorer))
	if err != nil {
		return false, err
	}
	return evaluator.Validate(ctx), nil
}
