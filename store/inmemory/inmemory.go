//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-process implementation of store.Store,
// suitable for tests and single-node deployments.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/evaluation/status"
	"github.com/gptflow/evalengine/store"
)

// Store is an in-process task/item/snapshot store. All mutations run under a
// single mutex, which makes every conditional update naturally atomic.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]*evaluation.Task
	items     map[string]*evaluation.Item
	taskItems map[string][]string
	datasets  map[string]*evaluation.Dataset
	targets   map[string]*evaluation.TargetSnapshot
	metrics   map[string]*evaluation.MetricSnapshot
}

// New creates an empty in-process store.
func New() *Store {
	return &Store{
		tasks:     make(map[string]*evaluation.Task),
		items:     make(map[string]*evaluation.Item),
		taskItems: make(map[string][]string),
		datasets:  make(map[string]*evaluation.Dataset),
		targets:   make(map[string]*evaluation.TargetSnapshot),
		metrics:   make(map[string]*evaluation.MetricSnapshot),
	}
}

// PutTask stores a task record. This is the authoring-layer write the engine
// otherwise never performs.
func (s *Store) PutTask(task *evaluation.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = cloneTask(task)
}

// PutDataset stores a dataset snapshot.
func (s *Store) PutDataset(dataset *evaluation.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[dataset.ID] = dataset
}

// PutTarget stores a target snapshot.
func (s *Store) PutTarget(target *evaluation.TargetSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[target.ID] = target
}

// PutMetric stores a metric snapshot.
func (s *Store) PutMetric(metric *evaluation.MetricSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[metric.ID] = metric
}

// GetTask implements store.TaskStore.
func (s *Store) GetTask(ctx context.Context, taskID string) (*evaluation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// MarkTaskEvaluating implements store.TaskStore.
func (s *Store) MarkTaskEvaluating(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return false, store.ErrTaskNotFound
	}
	if task.Status != status.Queuing {
		return false, nil
	}
	task.Status = status.Evaluating
	return true, nil
}

// FinishTask implements store.TaskStore.
func (s *Store) FinishTask(ctx context.Context, taskID string, avgScore float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return false, store.ErrTaskNotFound
	}
	if task.Status != status.Evaluating {
		return false, nil
	}
	now := time.Now()
	task.Status = status.Completed
	task.FinishTime = &now
	task.AvgScore = &avgScore
	// Clear a leftover park message (e.g. quota exhaustion) so a task that
	// finished cleanly after a resume does not read as failed.
	task.ErrorMessage = ""
	return true, nil
}

// FailTask implements store.TaskStore.
func (s *Store) FailTask(ctx context.Context, taskID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	now := time.Now()
	task.Status = status.Completed
	task.FinishTime = &now
	task.ErrorMessage = message
	return nil
}

// ParkTask implements store.TaskStore.
func (s *Store) ParkTask(ctx context.Context, taskID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Status = status.Queuing
	task.ErrorMessage = message
	return nil
}

// StopTask implements store.TaskStore.
func (s *Store) StopTask(ctx context.Context, taskID string, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return false, store.ErrTaskNotFound
	}
	if !task.Status.Pending() {
		return false, nil
	}
	now := time.Now()
	task.Status = status.Completed
	task.FinishTime = &now
	task.ErrorMessage = message
	return true, nil
}

// RestartTask implements store.TaskStore.
func (s *Store) RestartTask(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return false, store.ErrTaskNotFound
	}
	if task.Status != status.Completed {
		return false, nil
	}
	task.Status = status.Queuing
	task.FinishTime = nil
	task.AvgScore = nil
	task.ErrorMessage = ""
	return true, nil
}

// ReopenTask implements store.TaskStore.
func (s *Store) ReopenTask(ctx context.Context, taskID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return false, store.ErrTaskNotFound
	}
	if task.Status != status.Completed {
		return false, nil
	}
	task.Status = status.Evaluating
	task.FinishTime = nil
	task.AvgScore = nil
	task.ErrorMessage = ""
	return true, nil
}

// InsertItems implements store.ItemStore.
func (s *Store) InsertItems(ctx context.Context, items []*evaluation.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if item.ID == "" {
			return errors.New("item id is empty")
		}
		s.items[item.ID] = cloneItem(item)
		s.taskItems[item.TaskID] = append(s.taskItems[item.TaskID], item.ID)
	}
	return nil
}

// GetItem implements store.ItemStore.
func (s *Store) GetItem(ctx context.Context, itemID string) (*evaluation.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	return cloneItem(item), nil
}

// ListItems implements store.ItemStore.
func (s *Store) ListItems(ctx context.Context, taskID string) ([]*evaluation.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.taskItems[taskID]
	items := make([]*evaluation.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, cloneItem(s.items[id]))
	}
	return items, nil
}

// MarkItemEvaluating implements store.ItemStore.
func (s *Store) MarkItemEvaluating(ctx context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return false, store.ErrItemNotFound
	}
	if item.Status != status.Queuing {
		return false, nil
	}
	item.Status = status.Evaluating
	return true, nil
}

// CompleteItem implements store.ItemStore.
func (s *Store) CompleteItem(ctx context.Context, itemID string, result *store.ItemResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return false, store.ErrItemNotFound
	}
	if item.Status != status.Evaluating {
		return false, nil
	}
	now := time.Now()
	score := result.Score
	item.Status = status.Completed
	item.Response = result.Response
	item.ResponseTime = result.ResponseTime
	item.Score = &score
	item.MetricResults = append([]evaluation.MetricResult(nil), result.MetricResults...)
	item.FinishTime = &now
	item.ErrorMessage = ""
	return true, nil
}

// FailItem implements store.ItemStore.
func (s *Store) FailItem(ctx context.Context, itemID string, message string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return 0, false, store.ErrItemNotFound
	}
	if !item.Status.Pending() {
		return 0, false, nil
	}
	item.Retry--
	item.ErrorMessage = message
	item.Status = status.Queuing
	return item.Retry, true, nil
}

// CountPendingItems implements store.ItemStore.
func (s *Store) CountPendingItems(ctx context.Context, taskID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending int64
	for _, id := range s.taskItems[taskID] {
		if s.items[id].Status.Pending() {
			pending++
		}
	}
	return pending, nil
}

// AverageItemScore implements store.ItemStore.
func (s *Store) AverageItemScore(ctx context.Context, taskID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	var count int
	for _, id := range s.taskItems[taskID] {
		item := s.items[id]
		if item.Status == status.Completed && item.Score != nil {
			sum += *item.Score
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

// StopPendingItems implements store.ItemStore.
func (s *Store) StopPendingItems(ctx context.Context, taskID string, message string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var stopped int64
	for _, id := range s.taskItems[taskID] {
		item := s.items[id]
		if !item.Status.Pending() {
			continue
		}
		item.Status = status.Completed
		item.ErrorMessage = message
		item.FinishTime = &now
		stopped++
	}
	return stopped, nil
}

// ResetItems implements store.ItemStore.
func (s *Store) ResetItems(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.taskItems[taskID] {
		resetItem(s.items[id], evaluation.DefaultRetry)
	}
	return nil
}

// ResetFailedItem implements store.ItemStore.
func (s *Store) ResetFailedItem(ctx context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return false, store.ErrItemNotFound
	}
	if item.Status != status.Completed || item.ErrorMessage == "" {
		return false, nil
	}
	retry := item.Retry
	if retry < 1 {
		retry = 1
	}
	resetItem(item, retry)
	return true, nil
}

// ResetFailedItems implements store.ItemStore.
func (s *Store) ResetFailedItems(ctx context.Context, taskID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, id := range s.taskItems[taskID] {
		item := s.items[id]
		if item.Status != status.Completed || item.ErrorMessage == "" {
			continue
		}
		resetItem(item, item.Retry+1)
		affected++
	}
	return affected, nil
}

// CountItemsByStatus implements store.ItemStore.
func (s *Store) CountItemsByStatus(ctx context.Context, taskID string) (map[status.Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[status.Status]int64)
	for _, id := range s.taskItems[taskID] {
		counts[s.items[id].Status]++
	}
	return counts, nil
}

// CountFailedItems implements store.ItemStore.
func (s *Store) CountFailedItems(ctx context.Context, taskID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var failed int64
	for _, id := range s.taskItems[taskID] {
		if s.items[id].ErrorMessage != "" {
			failed++
		}
	}
	return failed, nil
}

// GetDataset implements store.SnapshotStore.
func (s *Store) GetDataset(ctx context.Context, teamID, datasetID string) (*evaluation.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dataset, ok := s.datasets[datasetID]
	if !ok || dataset.TeamID != teamID {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, evaluation.ErrConfigMissing)
	}
	return dataset, nil
}

// GetTarget implements store.SnapshotStore.
func (s *Store) GetTarget(ctx context.Context, teamID, targetID string) (*evaluation.TargetSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.targets[targetID]
	if !ok || target.TeamID != teamID {
		return nil, fmt.Errorf("target %s: %w", targetID, evaluation.ErrConfigMissing)
	}
	return target, nil
}

// GetMetrics implements store.SnapshotStore.
func (s *Store) GetMetrics(ctx context.Context, teamID string, metricIDs []string) ([]*evaluation.MetricSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics := make([]*evaluation.MetricSnapshot, 0, len(metricIDs))
	for _, id := range metricIDs {
		metric, ok := s.metrics[id]
		if !ok || metric.TeamID != teamID {
			continue
		}
		metrics = append(metrics, metric)
	}
	return metrics, nil
}

// resetItem puts an item back to a fresh queuing state.
func resetItem(item *evaluation.Item, retry int) {
	item.Status = status.Queuing
	item.Retry = retry
	item.Response = ""
	item.ResponseTime = 0
	item.FinishTime = nil
	item.Score = nil
	item.MetricResults = nil
	item.ErrorMessage = ""
}

func cloneTask(task *evaluation.Task) *evaluation.Task {
	clone := *task
	clone.MetricIDs = append([]string(nil), task.MetricIDs...)
	if task.FinishTime != nil {
		t := *task.FinishTime
		clone.FinishTime = &t
	}
	if task.AvgScore != nil {
		v := *task.AvgScore
		clone.AvgScore = &v
	}
	return &clone
}

func cloneItem(item *evaluation.Item) *evaluation.Item {
	clone := *item
	clone.MetricIDs = append([]string(nil), item.MetricIDs...)
	clone.MetricResults = append([]evaluation.MetricResult(nil), item.MetricResults...)
	if item.FinishTime != nil {
		t := *item.FinishTime
		clone.FinishTime = &t
	}
	if item.Score != nil {
		v := *item.Score
		clone.Score = &v
	}
	return &clone
}
