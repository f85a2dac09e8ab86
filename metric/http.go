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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/target"
)

// validateProbeTimeout bounds the HEAD reachability probe.
const validateProbeTimeout = 5 * time.Second

// httpMetric posts the evaluation envelope to an external scoring endpoint.
type httpMetric struct {
	base
	config *evaluation.HTTPConfig
	client *http.Client
}

// Evaluate implements Evaluator.
func (m *httpMetric) Evaluate(ctx context.Context, input *evaluation.Input, output *target.Output) *evaluation.MetricResult {
	envelope := map[string]any{
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
		"variables":        input.Variables,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return m.failure(fmt.Errorf("encode request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, evaluation.ClampTimeout(m.config.Timeout))
	defer cancel()

	method := m.config.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, m.config.URL, bytes.NewReader(body))
	if err != nil {
		return m.failure(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range m.config.Headers {
		req.Header.Set(name, value)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return m.failure(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return m.failure(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return m.failure(fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return m.failure(fmt.Errorf("decode response: %w", err))
	}
	score, details, err := parseScore(value)
	if err != nil {
		return m.failure(err)
	}
	return m.result(score, details)
}

// Validate implements Evaluator with a HEAD reachability probe.
func (m *httpMetric) Validate(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, validateProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.config.URL, nil)
	if err != nil {
		return false
	}
	for name, value := range m.config.Headers {
		req.Header.Set(name, value)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
