//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptflow/evalengine/usage"
)

func TestQuotaGate(t *testing.T) {
	ctx := context.Background()
	m := New()

	// No quota configured means unlimited budget.
	assert.NoError(t, m.CheckQuota(ctx, "team"))

	m.SetQuota("team", 5)
	assert.NoError(t, m.CheckQuota(ctx, "team"))

	require.NoError(t, m.AddConcat(ctx, &usage.Concat{
		UsageID:     "u1",
		TeamID:      "team",
		TotalPoints: 5,
		ListIndex:   usage.ListIndexTarget,
	}))
	assert.ErrorIs(t, m.CheckQuota(ctx, "team"), usage.ErrQuotaExhausted)

	// Other teams are unaffected.
	assert.NoError(t, m.CheckQuota(ctx, "other"))
}

func TestEntriesAreRecordedInOrder(t *testing.T) {
	ctx := context.Background()
	m := New()

	require.Error(t, m.AddConcat(ctx, nil))
	require.NoError(t, m.AddConcat(ctx, &usage.Concat{UsageID: "u1", TeamID: "team", TotalPoints: 1, ListIndex: usage.ListIndexTarget}))
	require.NoError(t, m.AddConcat(ctx, &usage.Concat{UsageID: "u1", TeamID: "team", TotalPoints: 2, ListIndex: usage.ListIndexMetric}))

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, usage.ListIndexTarget, entries[0].ListIndex)
	assert.Equal(t, usage.ListIndexMetric, entries[1].ListIndex)
}
