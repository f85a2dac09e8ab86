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
	"context"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/sandbox"
	"github.com/gptflow/evalengine/target"
)

// functionMetric runs a sandboxed scoring script with input and output bound.
type functionMetric struct {
	base
	config  *evaluation.FunctionConfig
	sandbox *sandbox.Sandbox
}

func newFunctionMetric(base base, config *evaluation.FunctionConfig) *functionMetric {
	return &functionMetric{
		base:    base,
		config:  config,
		sandbox: sandbox.New(sandbox.WithTimeout(config.Timeout)),
	}
}

// Evaluate implements Evaluator. The script sees `input` and `output` plus
// the destructured convenience variables question, expectedResponse,
// actualResponse and responseTime, and returns a bare number or an object
// with {score, details}.
func (m *functionMetric) Evaluate(ctx context.Context, input *evaluation.Input, output *target.Output) *evaluation.MetricResult {
	vars := map[string]any{
		"input": map[string]any{
			"question":         input.Question,
			"expectedResponse": input.ExpectedResponse,
			"variables":        input.Variables,
			"history":          input.History,
		},
		"output": map[string]any{
			"response":     output.Response,
			"responseTime": output.ResponseTime.Milliseconds(),
		},
		"question":         input.Question,
		"expectedResponse": input.ExpectedResponse,
		"actualResponse":   output.Response,
		"responseTime":     output.ResponseTime.Milliseconds(),
	}
	value, err := m.sandbox.Run(ctx, m.config.Code, vars)
	if err != nil {
		return m.failure(err)
	}
	score, details, err := parseScore(value)
	if err != nil {
		return m.failure(err)
	}
	return m.result(score, details)
}

// Validate implements Evaluator with a compile-only check.
func (m *functionMetric) Validate(ctx context.Context) bool {
	return m.sandbox.Validate(m.config.Code)
}
