//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package judge defines the AI judge contract used by ai_model metrics: an
// external model scores a candidate response against the expected answer.
package judge

import "context"

// Request carries one scoring request to the judge model.
type Request struct {
	Question         string
	ActualResponse   string
	ExpectedResponse string
	// Model is the judge model identifier from the metric configuration.
	Model string
	// Prompt optionally overrides the scorer's default grading instructions.
	Prompt string
}

// Usage is the token consumption of one judge call.
type Usage struct {
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	TotalPoints  float64 `json:"totalPoints"`
}

// Result is the judge verdict.
type Result struct {
	// Score is the accuracy score in [0, 100].
	Score float64
	// Reason is the judge's explanation, if it gave one.
	Reason string
	Usage  Usage
}

// Scorer scores a (question, actual, expected) triple with a judge model.
type Scorer interface {
	Score(ctx context.Context, req *Request) (*Result, error)
}
