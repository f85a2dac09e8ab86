//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package metric scores a (question, expected, actual-response) triple with
// the configured metric: an HTTP callout, a sandboxed scoring function, or an
// AI judge model.
//
// Metric evaluation never raises past the Evaluator boundary: any failure is
// absorbed into a MetricResult with score 0 and the failure message in Error,
// so one metric can never abort its siblings.
package metric

import (
	"context"
	"errors"
	"fmt"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/target"
)

// Evaluator scores one target output against one metric definition.
type Evaluator interface {
	// Evaluate returns the metric result. The score is clamped to [0, 100]
	// and failures are reported through the result, never as an error.
	Evaluate(ctx context.Context, input *evaluation.Input, output *target.Output) *evaluation.MetricResult
	// Validate is a lightweight reachability or syntax probe used by the
	// connectivity-test feature. It must never run on the execution path.
	Validate(ctx context.Context) bool
}

// New resolves the metric snapshot's closed type union into a concrete
// evaluator.
func New(snapshot *evaluation.MetricSnapshot, opt ...Option) (Evaluator, error) {
	if snapshot == nil {
		return nil, errors.New("metric snapshot is nil")
	}
	opts := NewOptions(opt...)
	base := base{id: snapshot.ID, name: snapshot.Name}
	switch snapshot.Type {
	case evaluation.MetricTypeHTTP:
		if snapshot.HTTP == nil {
			return nil, fmt.Errorf("metric %s: http config is nil", snapshot.ID)
		}
		return &httpMetric{base: base, config: snapshot.HTTP, client: opts.HTTPClient}, nil
	case evaluation.MetricTypeFunction:
		if snapshot.Function == nil {
			return nil, fmt.Errorf("metric %s: function config is nil", snapshot.ID)
		}
		return newFunctionMetric(base, snapshot.Function), nil
	case evaluation.MetricTypeAIModel:
		if snapshot.AIModel == nil {
			return nil, fmt.Errorf("metric %s: ai model config is nil", snapshot.ID)
		}
		if opts.Scorer == nil {
			return nil, errors.New("judge scorer is nil")
		}
		return &aiModelMetric{base: base, config: snapshot.AIModel, scorer: opts.Scorer}, nil
	default:
		return nil, fmt.Errorf("unknown metric type: %s", snapshot.Type)
	}
}

// base carries the identity every variant stamps onto its results.
type base struct {
	id   string
	name string
}

// result builds a successful metric result with the score clamped to [0, 100].
func (b base) result(score float64, details map[string]any) *evaluation.MetricResult {
	return &evaluation.MetricResult{
		MetricID:   b.id,
		MetricName: b.name,
		Score:      evaluation.ClampScore(score),
		Details:    details,
	}
}

// failure builds a zero-score result carrying the failure message.
func (b base) failure(err error) *evaluation.MetricResult {
	return &evaluation.MetricResult{
		MetricID:   b.id,
		MetricName: b.name,
		Score:      0,
		Error:      err.Error(),
	}
}

// parseScore accepts a bare number or an object with {score, details}.
func parseScore(value any) (float64, map[string]any, error) {
	if score, ok := toFloat(value); ok {
		return score, nil, nil
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return 0, nil, fmt.Errorf("unexpected metric result type %T", value)
	}
	score, _ := toFloat(obj["score"])
	details, _ := obj["details"].(map[string]any)
	return score, details, nil
}

// toFloat widens the numeric types produced by JSON decoding and the script
// sandbox.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
