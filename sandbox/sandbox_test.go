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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptflow/evalengine/evaluation"
)

func TestRunReturnsValue(t *testing.T) {
	s := New()
	got, err := s.Run(context.Background(), `return 1 + 2;`, nil)
	require.NoError(t, err)
	require.Equal(t, int64(3), got)
}

func TestRunBindsVariables(t *testing.T) {
	s := New()
	got, err := s.Run(context.Background(),
		`return "AI is " + input.question;`,
		map[string]any{"input": map[string]any{"question": "What is AI?"}})
	require.NoError(t, err)
	require.Equal(t, "AI is What is AI?", got)
}

func TestRunObjectResult(t *testing.T) {
	s := New()
	got, err := s.Run(context.Background(),
		`return { score: 90, details: { reason: "exact match" } };`, nil)
	require.NoError(t, err)
	result, ok := got.(map[string]any)
	require.True(t, ok)
	require.Equal(t, int64(90), result["score"])
}

func TestRunBuiltinsAvailable(t *testing.T) {
	s := New()
	got, err := s.Run(context.Background(),
		`return JSON.stringify({ n: Math.max(1, 2) });`, nil)
	require.NoError(t, err)
	require.Equal(t, `{"n":2}`, got)
}

func TestRunTimeout(t *testing.T) {
	s := New(WithTimeout(time.Second))
	start := time.Now()
	_, err := s.Run(context.Background(), `while (true) {}`, nil)
	require.ErrorIs(t, err, ErrTimeout)
	// The interrupt must fire close to the budget, never hang the caller.
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunThrownError(t *testing.T) {
	s := New()
	_, err := s.Run(context.Background(), `throw new Error("boom");`, nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "boom")
}

func TestRunSyntaxError(t *testing.T) {
	s := New()
	_, err := s.Run(context.Background(), `return {;`, nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
}

func TestRunContextCancelled(t *testing.T) {
	s := New(WithTimeout(evaluation.MaxScriptTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Run(ctx, `while (true) {}`, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunUndefinedResult(t *testing.T) {
	s := New()
	got, err := s.Run(context.Background(), `var x = 1;`, nil)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestValidate(t *testing.T) {
	s := New()
	assert.True(t, s.Validate(`return 1;`))
	assert.False(t, s.Validate(`return {;`))
}

func TestTimeoutClamping(t *testing.T) {
	opts := newOptions(WithTimeout(time.Millisecond))
	assert.Equal(t, evaluation.MinScriptTimeout, opts.Timeout)

	opts = newOptions(WithTimeout(10 * time.Minute))
	assert.Equal(t, evaluation.MaxScriptTimeout, opts.Timeout)

	opts = newOptions()
	assert.Equal(t, evaluation.DefaultScriptTimeout, opts.Timeout)
}
