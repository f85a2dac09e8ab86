//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package engine assembles the evaluation engine: store, usage manager,
// worker queue, processor and control service, wired for in-process
// execution.
package engine

import (
	"net/http"

	"github.com/gptflow/evalengine/processor"
	queueinmemory "github.com/gptflow/evalengine/queue/inmemory"
	"github.com/gptflow/evalengine/service"
	storeinmemory "github.com/gptflow/evalengine/store/inmemory"
	usageinmemory "github.com/gptflow/evalengine/usage/inmemory"
)

// Engine is a fully wired evaluation engine.
type Engine struct {
	service *service.Service
	queue   *queueinmemory.Queue
}

// New assembles an engine. Without options it runs entirely in process with
// unlimited budget; production deployments inject the MongoDB store and a
// billing-backed usage manager.
func New(opt ...Option) (*Engine, error) {
	opts := &Options{
		HTTPClient: http.DefaultClient,
	}
	for _, o := range opt {
		o(opts)
	}
	if opts.Store == nil {
		opts.Store = storeinmemory.New()
	}
	if opts.Usage == nil {
		opts.Usage = usageinmemory.New()
	}

	procOpts := []processor.Option{
		processor.WithAppRunner(opts.AppRunner),
		processor.WithHTTPClient(opts.HTTPClient),
		processor.WithScorer(opts.Scorer),
	}
	if opts.Stagger > 0 {
		procOpts = append(procOpts, processor.WithStagger(opts.Stagger))
	}
	proc := processor.New(opts.Store, opts.Usage, procOpts...)

	var queueOpts []queueinmemory.Option
	if opts.TaskConcurrency > 0 {
		queueOpts = append(queueOpts, queueinmemory.WithTaskConcurrency(opts.TaskConcurrency))
	}
	if opts.ItemConcurrency > 0 {
		queueOpts = append(queueOpts, queueinmemory.WithItemConcurrency(opts.ItemConcurrency))
	}
	q, err := queueinmemory.New(proc, queueOpts...)
	if err != nil {
		return nil, err
	}
	proc.Bind(q)

	svc := service.New(opts.Store, q,
		service.WithAppRunner(opts.AppRunner),
		service.WithHTTPClient(opts.HTTPClient),
		service.WithScorer(opts.Scorer))
	return &Engine{service: svc, queue: q}, nil
}

// Service returns the task-control surface.
func (e *Engine) Service() *service.Service {
	return e.service
}

// Wait blocks until every scheduled job has finished.
func (e *Engine) Wait() {
	e.queue.Wait()
}

// Close drains the queue and releases the worker pools.
func (e *Engine) Close() {
	e.queue.Close()
}
