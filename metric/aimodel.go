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
	"github.com/gptflow/evalengine/judge"
	"github.com/gptflow/evalengine/target"
)

// aiModelMetric asks a judge model to score the response.
type aiModelMetric struct {
	base
	config *evaluation.AIModelConfig
	scorer judge.Scorer
}

// Evaluate implements Evaluator.
func (m *aiModelMetric) Evaluate(ctx context.Context, input *evaluation.Input, output *target.Output) *evaluation.MetricResult {
	verdict, err := m.scorer.Score(ctx, &judge.Request{
		Question:         input.Question,
		ActualResponse:   output.Response,
		ExpectedResponse: input.ExpectedResponse,
		Model:            m.config.Model,
		Prompt:           m.config.Prompt,
	})
	if err != nil {
		return m.failure(err)
	}
	details := map[string]any{
		"model": m.config.Model,
		"usage": map[string]any{
			"inputTokens":  verdict.Usage.InputTokens,
			"outputTokens": verdict.Usage.OutputTokens,
			"totalPoints":  verdict.Usage.TotalPoints,
		},
	}
	if m.config.Prompt != "" {
		details["prompt"] = m.config.Prompt
	}
	if verdict.Reason != "" {
		details["reason"] = verdict.Reason
	}
	return m.result(verdict.Score, details)
}

// Validate implements Evaluator. The judge endpoint is assumed reachable;
// a configured model name is the only static requirement.
func (m *aiModelMetric) Validate(ctx context.Context) bool {
	return m.config.Model != ""
}
