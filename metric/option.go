//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package metric

import (
	"net/http"

	"github.com/gptflow/evalengine/judge"
)

// Options holds the options for metric evaluators.
type Options struct {
	// HTTPClient issues http metric requests. Defaults to a plain client;
	// per-call timeouts come from the metric configuration.
	HTTPClient *http.Client
	// Scorer runs ai_model metrics. Required for ai_model snapshots.
	Scorer judge.Scorer
}

// Option defines a function type for configuring metric evaluators.
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

// WithHTTPClient sets the HTTP client used by http metrics.
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
