//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an OpenAI-compatible implementation of the judge
// scorer. It works against any endpoint speaking the chat completion
// protocol.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/gptflow/evalengine/judge"
)

// defaultPrompt is the grading instruction used when the metric does not
// configure its own.
const defaultPrompt = `You are an impartial grader. Compare the actual answer with the expected answer for the given question and rate how accurate the actual answer is on a scale from 0 to 100. Respond with a JSON object of the form {"score": <number>, "reason": "<short explanation>"} and nothing else.`

// Scorer scores responses through an OpenAI-compatible chat completion API.
type Scorer struct {
	client              openai.Client
	pointsPerKiloTokens float64
}

// New creates a scorer. If no Option is provided, the scorer uses the default
// options (API key and base URL from the environment).
func New(opt ...Option) *Scorer {
	opts := NewOptions(opt...)
	clientOpts := make([]openaiopt.RequestOption, 0, 2)
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(opts.BaseURL))
	}
	return &Scorer{
		client:              openai.NewClient(clientOpts...),
		pointsPerKiloTokens: opts.PointsPerKiloTokens,
	}
}

// Score implements judge.Scorer.
func (s *Scorer) Score(ctx context.Context, req *judge.Request) (*judge.Result, error) {
	if req == nil {
		return nil, errors.New("judge request is nil")
	}
	if req.Model == "" {
		return nil, errors.New("judge model is empty")
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	userContent := fmt.Sprintf(
		"Question:\n%s\n\nExpected answer:\n%s\n\nActual answer:\n%s",
		req.Question, req.ExpectedResponse, req.ActualResponse,
	)
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(userContent),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("judge model call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("judge model returned no choices")
	}

	score, reason, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse judge verdict: %w", err)
	}
	usage := judge.Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	usage.TotalPoints = float64(usage.InputTokens+usage.OutputTokens) / 1000 * s.pointsPerKiloTokens
	return &judge.Result{
		Score:  score,
		Reason: reason,
		Usage:  usage,
	}, nil
}

// parseVerdict accepts either the requested JSON object or a bare number.
// Judges occasionally wrap the JSON in a markdown code fence; strip it.
func parseVerdict(content string) (float64, string, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var verdict struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(trimmed), &verdict); err == nil {
		return verdict.Score, verdict.Reason, nil
	}
	if score, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return score, "", nil
	}
	return 0, "", fmt.Errorf("unexpected judge output: %q", content)
}
