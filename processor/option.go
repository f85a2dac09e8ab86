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
	"net/http"
	"time"

	"github.com/gptflow/evalengine/judge"
	"github.com/gptflow/evalengine/target"
)

// defaultStagger spaces item job submission so a large dataset does not slam
// the target service in one burst.
const defaultStagger = 100 * time.Millisecond

// Options holds the options for the processor.
type Options struct {
	// AppRunner executes workflow targets.
	AppRunner target.AppRunner
	// HTTPClient issues api target and http metric requests.
	HTTPClient *http.Client
	// Scorer runs ai_model metrics.
	Scorer judge.Scorer
	// Stagger is the per-index submission delay for item jobs.
	Stagger time.Duration
}

// Option defines a function type for configuring the processor.
type Option func(*Options)

// NewOptions creates a new Options with the default values.
func NewOptions(opt ...Option) *Options {
	opts := &Options{
		HTTPClient: http.DefaultClient,
		Stagger:    defaultStagger,
	}
	for _, o := range opt {
		o(opts)
	}
	return opts
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

// WithStagger sets the per-index submission delay for item jobs.
func WithStagger(stagger time.Duration) Option {
	return func(o *Options) {
		o.Stagger = stagger
	}
}
