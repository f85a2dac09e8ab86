//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package sandbox

import (
	"time"

	"github.com/gptflow/evalengine/evaluation"
)

// Options holds the options for the sandbox.
type Options struct {
	// Timeout is the hard wall-clock budget for one snippet run.
	Timeout time.Duration
}

// Option defines a function type for configuring the sandbox.
type Option func(*Options)

// newOptions creates a new Options with the default values.
func newOptions(opt ...Option) *Options {
	opts := &Options{
		Timeout: evaluation.DefaultScriptTimeout,
	}
	for _, o := range opt {
		o(opts)
	}
	opts.Timeout = evaluation.ClampTimeout(opts.Timeout)
	return opts
}

// WithTimeout sets the wall-clock budget for one snippet run. Values outside
// the configuration bounds are clamped.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}
