//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package inmemory

// Default pool sizes.
const (
	defaultTaskConcurrency = 2
	defaultItemConcurrency = 10
)

// Options is the configuration for the in-process queue.
type Options struct {
	// TaskConcurrency bounds concurrent task expansions.
	TaskConcurrency int
	// ItemConcurrency bounds concurrent item runs.
	ItemConcurrency int
}

// Option configures the in-process queue.
type Option func(*Options)

// NewOptions creates Options with defaults applied.
func NewOptions(opt ...Option) *Options {
	opts := &Options{
		TaskConcurrency: defaultTaskConcurrency,
		ItemConcurrency: defaultItemConcurrency,
	}
	for _, o := range opt {
		o(opts)
	}
	return opts
}

// WithTaskConcurrency bounds concurrent task expansions.
func WithTaskConcurrency(n int) Option {
	return func(opts *Options) {
		opts.TaskConcurrency = n
	}
}

// WithItemConcurrency bounds concurrent item runs.
func WithItemConcurrency(n int) Option {
	return func(opts *Options) {
		opts.ItemConcurrency = n
	}
}
