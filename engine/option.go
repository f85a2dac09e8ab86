//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package engine

import (
	"net/http"
	"time"

	"github.com/gptflow/evalengine/judge"
	"github.com/gptflow/evalengine/store"
	"github.com/gptflow/evalengine/target"
	"github.com/gptflow/evalengine/usage"
)

// Options holds the options for the engine.
type Options struct {
	// Store is the task/item/snapshot store. Defaults to the in-process
	// store.
	Store store.Store
	// Usage is the quota and ledger manager. Defaults to the in-process
	// manager with unlimited budget.
	Usage usage.Manager
	// AppRunner executes workflow targets.
	AppRunner target.AppRunner
	// HTTPClient issues api target and http metric requests.
	HTTPClient *http.Client
	// Scorer runs ai_model metrics.
	Scorer judge.Scorer
	// TaskConcurrency bounds concurrent task expansions.
	TaskConcurrency int
	// ItemConcurrency bounds concurrent item runs.
	ItemConcurrency int
	// Stagger is the per-index submission delay for item jobs.
	Stagger time.Duration
}

// Option defines a function type for configuring the engine.
type Option func(*Options)

// WithStore sets the task/item/snapshot store.
func WithStore(s store.Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}

// WithUsage sets the quota and ledger manager.
func WithUsage(u usage.Manager) Option {
	return func(o *Options) {
		o.Usage = u
	}
}

// WithAppRunner sets the workflow application runner.
func WithAppRunner(runner target.AppRunner) Option {
	return func(o *Options) {
		o.AppRunner = runner
	}
}

// WithHTTPClient sets the HTTP client used by api targets and http metrics.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithScorer sets the judge scorer used by ai_model metrics.
func WithScorer(scorer judge.Scorer) Option {
	return func(o *Options) {
		o.Scorer = scorer
	}
}

// WithTaskConcurrency bounds concurrent task expansions.
func WithTaskConcurrency(n int) Option {
	return func(o *Options) {
		o.TaskConcurrency = n
	}
}

// WithItemConcurrency bounds concurrent item runs.
func WithItemConcurrency(n int) Option {
	return func(o *Options) {
		o.ItemConcurrency = n
	}
}

// WithStagger sets the per-index submission delay for item jobs.
func WithStagger(stagger time.Duration) Option {
	return func(o *Options) {
		o.Stagger = stagger
	}
}
