//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package queue defines the job transport between the service layer and the
// execution workers. Task jobs expand a task into items; item jobs run one
// dataset row end to end.
package queue

import (
	"context"
	"time"

	"github.com/gptflow/evalengine/evaluation"
)

// TaskJob asks a worker to expand a task into items and schedule them. The
// snapshot IDs ride along for routing; the worker still reads the task record
// as the authoritative configuration.
type TaskJob struct {
	TaskID string

	DatasetID string
	TargetID  string
	MetricIDs []string
}

// ItemJob asks a worker to run one item. The snapshots are carried in the job
// so item workers never re-read target and metric definitions per row.
type ItemJob struct {
	TaskID string
	ItemID string

	Row     evaluation.DatasetRow
	Target  *evaluation.TargetSnapshot
	Metrics []*evaluation.MetricSnapshot
}

// Handler consumes jobs. Implemented by the processor.
type Handler interface {
	// HandleTask expands the task and schedules its items.
	HandleTask(ctx context.Context, job *TaskJob) error
	// HandleItem runs one item end to end.
	HandleItem(ctx context.Context, job *ItemJob) error
}

// EnqueueOptions is the per-enqueue configuration.
type EnqueueOptions struct {
	// Delay postpones job submission.
	Delay time.Duration
}

// EnqueueOption configures one enqueue call.
type EnqueueOption func(*EnqueueOptions)

// NewEnqueueOptions creates EnqueueOptions with defaults applied.
func NewEnqueueOptions(opt ...EnqueueOption) *EnqueueOptions {
	opts := &EnqueueOptions{}
	for _, o := range opt {
		o(opts)
	}
	return opts
}

// WithDelay postpones submission of the job by the given duration.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(opts *EnqueueOptions) {
		opts.Delay = delay
	}
}

// Queue dispatches jobs to a Handler.
type Queue interface {
	// EnqueueTask schedules a task job.
	EnqueueTask(ctx context.Context, job *TaskJob, opt ...EnqueueOption) error
	// EnqueueItem schedules an item job.
	EnqueueItem(ctx context.Context, job *ItemJob, opt ...EnqueueOption) error
}
