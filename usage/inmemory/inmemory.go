//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-process implementation of usage.Manager,
// suitable for tests and single-node deployments.
package inmemory

import (
	"context"
	"errors"
	"sync"

	"github.com/gptflow/evalengine/usage"
)

// Manager is an in-process usage manager. Teams without an explicit quota
// have unlimited budget.
type Manager struct {
	mu      sync.Mutex
	quotas  map[string]float64
	spent   map[string]float64
	entries []usage.Concat
}

// New creates an in-process usage manager.
func New() *Manager {
	return &Manager{
		quotas: make(map[string]float64),
		spent:  make(map[string]float64),
	}
}

// SetQuota sets the execution budget (in points) for a team.
func (m *Manager) SetQuota(teamID string, points float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotas[teamID] = points
}

// CheckQuota implements usage.Manager.
func (m *Manager) CheckQuota(ctx context.Context, teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quota, limited := m.quotas[teamID]
	if limited && m.spent[teamID] >= quota {
		return usage.ErrQuotaExhausted
	}
	return nil
}

// AddConcat implements usage.Manager.
func (m *Manager) AddConcat(ctx context.Context, entry *usage.Concat) error {
	if entry == nil {
		return errors.New("usage entry is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spent[entry.TeamID] += entry.TotalPoints
	m.entries = append(m.entries, *entry)
	return nil
}

// Entries returns a copy of all recorded increments, in order.
func (m *Manager) Entries() []usage.Concat {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]usage.Concat, len(m.entries))
	copy(out, m.entries)
	return out
}
