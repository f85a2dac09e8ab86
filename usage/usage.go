//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package usage defines the quota and billing-ledger contract. Target runs
// and AI-judge calls post their consumption against a task's usage handle,
// and a per-team quota check gates every item start to provide backpressure
// against unbounded concurrent spend.
package usage

import (
	"context"
	"errors"
)

// ErrQuotaExhausted indicates the team is out of execution budget. The engine
// parks the affected task back to queuing instead of failing it, so it can be
// resumed once the budget is topped up.
var ErrQuotaExhausted = errors.New("team execution quota exhausted")

// Ledger line indexes distinguishing target consumption from metric
// consumption under the same usage handle.
const (
	ListIndexTarget = 0
	ListIndexMetric = 1
)

// Concat is one consumption increment merged into a usage handle's line.
type Concat struct {
	// UsageID is the task's billing handle.
	UsageID  string
	TeamID   string
	MemberID string

	TotalPoints  float64
	InputTokens  int64
	OutputTokens int64
	// Count is the number of calls merged by this increment.
	Count int
	// ListIndex selects the ledger line (ListIndexTarget or ListIndexMetric).
	ListIndex int
}

// Manager is the quota and ledger collaborator.
type Manager interface {
	// CheckQuota reports ErrQuotaExhausted when the team has no execution
	// budget left.
	CheckQuota(ctx context.Context, teamID string) error
	// AddConcat merges a consumption increment into the handle's ledger line.
	AddConcat(ctx context.Context, entry *Concat) error
}
