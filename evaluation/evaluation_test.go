//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 85.33, RoundScore(85.3333))
	assert.Equal(t, 66.67, RoundScore(200.0/3))
	assert.Equal(t, 0.0, RoundScore(0))
	assert.Equal(t, 100.0, RoundScore(100))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-5))
	assert.Equal(t, 100.0, ClampScore(150))
	assert.Equal(t, 42.0, ClampScore(42))
}

func TestClampTimeout(t *testing.T) {
	assert.Equal(t, DefaultScriptTimeout, ClampTimeout(0))
	assert.Equal(t, MinScriptTimeout, ClampTimeout(time.Millisecond))
	assert.Equal(t, MaxScriptTimeout, ClampTimeout(10*time.Minute))
	assert.Equal(t, 7*time.Second, ClampTimeout(7*time.Second))
}

func TestItemFailed(t *testing.T) {
	item := &Item{}
	assert.False(t, item.Failed())
	item.ErrorMessage = "target call failed"
	assert.True(t, item.Failed())
}

func TestInputFromRow(t *testing.T) {
	row := DatasetRow{
		Question:         "What is AI?",
		ExpectedResponse: "AI is artificial intelligence",
		Variables:        map[string]any{"lang": "en"},
		History:          `[{"role":"user","content":"hi"}]`,
	}
	input := InputFromRow(row)
	assert.Equal(t, row.Question, input.Question)
	assert.Equal(t, row.ExpectedResponse, input.ExpectedResponse)
	assert.Equal(t, row.Variables, input.Variables)
	assert.Equal(t, row.History, input.History)
}
