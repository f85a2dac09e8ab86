//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package openai

// Options holds the options for the OpenAI judge scorer.
type Options struct {
	// APIKey authenticates against the endpoint. Falls back to the SDK's
	// environment lookup when empty.
	APIKey string
	// BaseURL points the scorer at an OpenAI-compatible endpoint.
	BaseURL string
	// PointsPerKiloTokens converts token consumption into billing points for
	// the usage ledger. Zero disables point accounting.
	PointsPerKiloTokens float64
}

// Option defines a function type for configuring the scorer.
type Option func(*Options)

// NewOptions creates a new Options with the default values.
func NewOptions(opt ...Option) *Options {
	opts := &Options{}
	for _, o := range opt {
		o(opts)
	}
	return opts
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Options) {
		o.APIKey = key
	}
}

// WithBaseURL sets the endpoint base URL.
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithPointsPerKiloTokens sets the token-to-points conversion rate.
func WithPointsPerKiloTokens(rate float64) Option {
	return func(o *Options) {
		o.PointsPerKiloTokens = rate
	}
}
