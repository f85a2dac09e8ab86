//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-process queue.Queue backed by goroutine
// worker pools. Task expansion and item execution run on separate pools so a
// burst of slow items cannot starve task scheduling.
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/gptflow/evalengine/log"
	"github.com/gptflow/evalengine/queue"
)

type jobParam struct {
	ctx  context.Context
	task *queue.TaskJob
	item *queue.ItemJob
	q    *Queue
}

func (p *jobParam) reset() {
	p.ctx = nil
	p.task = nil
	p.item = nil
	p.q = nil
}

var jobParamPool = &sync.Pool{
	New: func() any { return new(jobParam) },
}

// Queue is the in-process job dispatcher.
type Queue struct {
	handler queue.Handler

	taskPool *ants.PoolWithFunc
	itemPool *ants.PoolWithFunc

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

// New creates an in-process queue dispatching to the given handler.
func New(handler queue.Handler, opt ...Option) (*Queue, error) {
	if handler == nil {
		return nil, errors.New("queue handler is nil")
	}
	opts := NewOptions(opt...)
	q := &Queue{
		handler: handler,
		timers:  make(map[*time.Timer]struct{}),
	}
	var err error
	q.taskPool, err = newJobPool(opts.TaskConcurrency, q.runTask)
	if err != nil {
		return nil, fmt.Errorf("create task pool: %w", err)
	}
	q.itemPool, err = newJobPool(opts.ItemConcurrency, q.runItem)
	if err != nil {
		q.taskPool.Release()
		return nil, fmt.Errorf("create item pool: %w", err)
	}
	return q, nil
}

func newJobPool(size int, run func(*jobParam)) (*ants.PoolWithFunc, error) {
	if size <= 0 {
		return nil, errors.New("pool size must be greater than 0")
	}
	return ants.NewPoolWithFunc(size, func(args any) {
		param, ok := args.(*jobParam)
		if !ok {
			panic("queue pool args type error")
		}
		q := param.q
		defer func() {
			q.wg.Done()
			param.reset()
			jobParamPool.Put(param)
		}()
		run(param)
	})
}

func (q *Queue) runTask(param *jobParam) {
	if err := q.handler.HandleTask(param.ctx, param.task); err != nil {
		log.Errorf("task job %s failed: %v", param.task.TaskID, err)
	}
}

func (q *Queue) runItem(param *jobParam) {
	if err := q.handler.HandleItem(param.ctx, param.item); err != nil {
		log.Errorf("item job %s failed: %v", param.item.ItemID, err)
	}
}

// EnqueueTask implements queue.Queue.
func (q *Queue) EnqueueTask(ctx context.Context, job *queue.TaskJob, opt ...queue.EnqueueOption) error {
	if job == nil {
		return errors.New("task job is nil")
	}
	param := jobParamPool.Get().(*jobParam)
	param.ctx = ctx
	param.task = job
	param.q = q
	return q.submit(q.taskPool, param, queue.NewEnqueueOptions(opt...).Delay)
}

// EnqueueItem implements queue.Queue.
func (q *Queue) EnqueueItem(ctx context.Context, job *queue.ItemJob, opt ...queue.EnqueueOption) error {
	if job == nil {
		return errors.New("item job is nil")
	}
	param := jobParamPool.Get().(*jobParam)
	param.ctx = ctx
	param.item = job
	param.q = q
	return q.submit(q.itemPool, param, queue.NewEnqueueOptions(opt...).Delay)
}

func (q *Queue) submit(pool *ants.PoolWithFunc, param *jobParam, delay time.Duration) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		param.reset()
		jobParamPool.Put(param)
		return errors.New("queue is closed")
	}
	q.wg.Add(1)
	if delay <= 0 {
		q.mu.Unlock()
		if err := pool.Invoke(param); err != nil {
			q.wg.Done()
			param.reset()
			jobParamPool.Put(param)
			return fmt.Errorf("submit job: %w", err)
		}
		return nil
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		closed := q.closed
		q.mu.Unlock()
		if closed {
			q.wg.Done()
			param.reset()
			jobParamPool.Put(param)
			return
		}
		if err := pool.Invoke(param); err != nil {
			log.Errorf("submit delayed job: %v", err)
			q.wg.Done()
			param.reset()
			jobParamPool.Put(param)
		}
	})
	q.timers[timer] = struct{}{}
	q.mu.Unlock()
	return nil
}

// Wait blocks until every enqueued job, including delayed ones, has finished.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close stops accepting jobs, cancels pending delayed submissions, waits for
// running jobs and releases the pools.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	timers := make([]*time.Timer, 0, len(q.timers))
	for timer := range q.timers {
		timers = append(timers, timer)
	}
	q.mu.Unlock()
	// Stopped timers never fire, so their pending counts are released here.
	// A timer that already fired releases its own count.
	for _, timer := range timers {
		if timer.Stop() {
			q.mu.Lock()
			delete(q.timers, timer)
			q.mu.Unlock()
			q.wg.Done()
		}
	}
	q.wg.Wait()
	q.taskPool.Release()
	q.itemPool.Release()
}
