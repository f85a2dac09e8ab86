//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package evaluation

import "time"

// TargetType enumerates the closed set of target kinds.
type TargetType string

const (
	// TargetTypeWorkflow runs the latest published graph of an application.
	TargetTypeWorkflow TargetType = "workflow"
	// TargetTypeAPI calls an external HTTP endpoint.
	TargetTypeAPI TargetType = "api"
	// TargetTypeFunction runs a sandboxed user script.
	TargetTypeFunction TargetType = "function"
)

// MetricType enumerates the closed set of metric kinds.
type MetricType string

const (
	// MetricTypeHTTP posts the evaluation envelope to an HTTP endpoint.
	MetricTypeHTTP MetricType = "http"
	// MetricTypeFunction runs a sandboxed scoring script.
	MetricTypeFunction MetricType = "function"
	// MetricTypeAIModel asks a judge model to score the response.
	MetricTypeAIModel MetricType = "ai_model"
)

// Script timeout bounds. Authoring-time values outside the bounds are clamped
// rather than rejected so that an already-expanded task never fails on a
// stale configuration.
const (
	DefaultScriptTimeout = 5 * time.Second
	MinScriptTimeout     = time.Second
	MaxScriptTimeout     = 60 * time.Second
)

// ClampTimeout normalizes a configured timeout into the allowed range,
// falling back to the default when unset.
func ClampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultScriptTimeout
	}
	if timeout < MinScriptTimeout {
		return MinScriptTimeout
	}
	if timeout > MaxScriptTimeout {
		return MaxScriptTimeout
	}
	return timeout
}

// WorkflowConfig configures a workflow target.
type WorkflowConfig struct {
	AppID string `bson:"appId" json:"appId"`
	// Variables are the target's own default variables; row variables are
	// merged over them at execution time.
	Variables map[string]any `bson:"variables,omitempty" json:"variables,omitempty"`
}

// APIConfig configures an api target.
type APIConfig struct {
	URL     string            `bson:"url" json:"url"`
	Method  string            `bson:"method" json:"method"`
	Headers map[string]string `bson:"headers,omitempty" json:"headers,omitempty"`
	// Body is a template; {{question}}, {{expectedResponse}} and named row
	// variables are substituted before sending.
	Body    string        `bson:"body,omitempty" json:"body,omitempty"`
	Timeout time.Duration `bson:"timeout,omitempty" json:"timeout,omitempty"`
}

// FunctionConfig configures a function target or function metric.
type FunctionConfig struct {
	Code    string        `bson:"code" json:"code"`
	Timeout time.Duration `bson:"timeout,omitempty" json:"timeout,omitempty"`
}

// HTTPConfig configures an http metric.
type HTTPConfig struct {
	URL     string            `bson:"url" json:"url"`
	Method  string            `bson:"method" json:"method"`
	Headers map[string]string `bson:"headers,omitempty" json:"headers,omitempty"`
	Timeout time.Duration     `bson:"timeout,omitempty" json:"timeout,omitempty"`
}

// AIModelConfig configures an ai_model metric.
type AIModelConfig struct {
	Model  string `bson:"model" json:"model"`
	Prompt string `bson:"prompt,omitempty" json:"prompt,omitempty"`
}

// TargetSnapshot is the immutable target definition captured at expansion
// time. Exactly one config pointer matching Type is set.
type TargetSnapshot struct {
	ID     string     `bson:"_id" json:"id"`
	TeamID string     `bson:"teamId" json:"teamId"`
	Name   string     `bson:"name" json:"name"`
	Type   TargetType `bson:"type" json:"type"`

	Workflow *WorkflowConfig `bson:"workflow,omitempty" json:"workflow,omitempty"`
	API      *APIConfig      `bson:"api,omitempty" json:"api,omitempty"`
	Function *FunctionConfig `bson:"function,omitempty" json:"function,omitempty"`
}

// MetricSnapshot is the immutable metric definition captured at expansion
// time. Exactly one config pointer matching Type is set.
type MetricSnapshot struct {
	ID     string     `bson:"_id" json:"id"`
	TeamID string     `bson:"teamId" json:"teamId"`
	Name   string     `bson:"name" json:"name"`
	Type   MetricType `bson:"type" json:"type"`

	HTTP     *HTTPConfig     `bson:"http,omitempty" json:"http,omitempty"`
	Function *FunctionConfig `bson:"function,omitempty" json:"function,omitempty"`
	AIModel  *AIModelConfig  `bson:"aiModel,omitempty" json:"aiModel,omitempty"`
}
