//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package service

import (
	"net/http"

	"github.com/gptflow/evalengine/judge"
	"github.com/gptflow/evalengine/target"
)

// Options holds the options for the service.
type Options struct {
	// AppRunner validates workflow targets in connectivity tests.
	AppRunner target.AppRunner
	// HTTPClient issues connectivity probes.
	HTTPClient *http.Client
	// Scorer validates ai_model metrics in connectivity tests.
	Scorer judge.Scorer
}

// Option defines a function type for configuring the service.
type Option func(*Options)

// NewOptions creates a new Options with the default values.
func NewOptions(opt ...Option) *Options {
	opts := &Options{
		HTTPClient: http.DefaultClient,
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

// WithHTTPClient sets the HTTP client used by connectivity probes.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithScorer sets the judge scorer used by ai_model metric probes.
func WithScorer(scorer judge.Scorer) Option {
	return func(o *Options) {
		o.Scorer = scorer
	}
}
