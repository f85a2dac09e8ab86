//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package store defines the persistence contract of the evaluation engine.
//
// The task/item store is the only shared mutable resource: all coordination
// between concurrent workers happens through per-document conditional writes,
// so the race-prone transitions (finishing a task, completing an item after a
// manual stop, restarting) are expressed as compare-and-set primitives that
// report whether the write was applied.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/evaluation/status"
)

// ErrTaskNotFound indicates the task does not exist.
var ErrTaskNotFound = errors.New("evaluation task not found")

// ErrItemNotFound indicates the item does not exist.
var ErrItemNotFound = errors.New("evaluation item not found")

// ItemResult carries the fields persisted when an item completes
// successfully.
type ItemResult struct {
	Response      string
	ResponseTime  time.Duration
	Score         float64
	MetricResults []evaluation.MetricResult
}

// Store is the persistence collaborator of the engine.
type Store interface {
	TaskStore
	ItemStore
	SnapshotStore
}

// TaskStore covers the task lifecycle fields the engine owns.
type TaskStore interface {
	// GetTask returns the task or ErrTaskNotFound.
	GetTask(ctx context.Context, taskID string) (*evaluation.Task, error)

	// MarkTaskEvaluating moves a queuing task to evaluating. Returns false
	// when the task is not queuing.
	MarkTaskEvaluating(ctx context.Context, taskID string) (bool, error)

	// FinishTask completes an evaluating task with the given average score
	// and a finish time. Returns false when the task is not evaluating, which
	// makes double completion triggers and post-stop stragglers no-ops.
	FinishTask(ctx context.Context, taskID string, avgScore float64) (bool, error)

	// FailTask completes the task with an error message and no average
	// score. Used for catastrophic expansion failures.
	FailTask(ctx context.Context, taskID string, message string) error

	// ParkTask puts the task back to queuing with an explanatory message so
	// it can be resumed later. Used on quota exhaustion.
	ParkTask(ctx context.Context, taskID string, message string) error

	// StopTask force-completes a queuing or evaluating task with the given
	// message. Returns false when the task is already completed.
	StopTask(ctx context.Context, taskID string, message string) (bool, error)

	// RestartTask resets a completed task to queuing, clearing finish time,
	// average score and error message. Returns false when the task is not
	// completed.
	RestartTask(ctx context.Context, taskID string) (bool, error)

	// ReopenTask moves a completed task straight back to evaluating, clearing
	// finish time, average score and error message. Used by item retries,
	// which re-run single items without rescheduling the whole task. Returns
	// false when the task is not completed.
	ReopenTask(ctx context.Context, taskID string) (bool, error)
}

// ItemStore covers the per-item result and retry bookkeeping.
type ItemStore interface {
	// InsertItems creates the items in one batch.
	InsertItems(ctx context.Context, items []*evaluation.Item) error

	// GetItem returns the item or ErrItemNotFound.
	GetItem(ctx context.Context, itemID string) (*evaluation.Item, error)

	// ListItems returns all items of a task in creation order.
	ListItems(ctx context.Context, taskID string) ([]*evaluation.Item, error)

	// MarkItemEvaluating moves a queuing item to evaluating. Returns false
	// when the item is not queuing (e.g. stopped while the job sat in the
	// queue).
	MarkItemEvaluating(ctx context.Context, itemID string) (bool, error)

	// CompleteItem persists the result of a successful run and completes the
	// item. Returns false when the item is no longer evaluating, so a late
	// write cannot resurrect a manually stopped item.
	CompleteItem(ctx context.Context, itemID string, result *ItemResult) (bool, error)

	// FailItem decrements the retry counter, records the error message and
	// puts the item back to queuing. Applies only while the item is still
	// pending, so a failure landing after a manual stop cannot resurrect a
	// completed item. Returns the remaining retry budget and whether the
	// write was applied.
	FailItem(ctx context.Context, itemID string, message string) (int, bool, error)

	// CountPendingItems counts sibling items still queuing or evaluating.
	CountPendingItems(ctx context.Context, taskID string) (int64, error)

	// AverageItemScore returns the mean score over completed items carrying
	// a score, or 0 when there is none.
	AverageItemScore(ctx context.Context, taskID string) (float64, error)

	// StopPendingItems force-completes every queuing or evaluating item of
	// the task with the given message. Returns the number affected.
	StopPendingItems(ctx context.Context, taskID string, message string) (int64, error)

	// ResetItems resets every item of the task to a fresh queuing state with
	// a full retry budget. Used by restart.
	ResetItems(ctx context.Context, taskID string) error

	// ResetFailedItem resets one completed item carrying an error back to
	// queuing, restoring at least one retry. Returns false when the item is
	// not a failed completed item.
	ResetFailedItem(ctx context.Context, itemID string) (bool, error)

	// ResetFailedItems applies the failed-item reset to every failed item of
	// the task, granting one extra retry. Returns the number affected.
	ResetFailedItems(ctx context.Context, taskID string) (int64, error)

	// CountItemsByStatus returns per-status item counts for the task.
	CountItemsByStatus(ctx context.Context, taskID string) (map[status.Status]int64, error)

	// CountFailedItems counts items carrying an error message.
	CountFailedItems(ctx context.Context, taskID string) (int64, error)
}

// SnapshotStore covers the read-only collaborator records consumed at
// expansion time. All reads are scoped to the owning team.
type SnapshotStore interface {
	// GetDataset returns the dataset snapshot or evaluation.ErrConfigMissing.
	GetDataset(ctx context.Context, teamID, datasetID string) (*evaluation.Dataset, error)

	// GetTarget returns the target snapshot or evaluation.ErrConfigMissing.
	GetTarget(ctx context.Context, teamID, targetID string) (*evaluation.TargetSnapshot, error)

	// GetMetrics returns the metric snapshots found among the given IDs,
	// preserving the requested order.
	GetMetrics(ctx context.Context, teamID string, metricIDs []string) ([]*evaluation.MetricSnapshot, error)
}
