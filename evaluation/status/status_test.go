//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPending(t *testing.T) {
	assert.True(t, Queuing.Pending())
	assert.True(t, Evaluating.Pending())
	assert.False(t, Completed.Pending())
}

func TestString(t *testing.T) {
	assert.Equal(t, "queuing", Queuing.String())
	assert.Equal(t, "evaluating", Evaluating.String())
	assert.Equal(t, "completed", Completed.String())
}
