//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package status provides the lifecycle status shared by tasks and items.
package status

// Status represents the lifecycle status of an evaluation task or item.
//
// The engine deliberately keeps three states only; a failure is expressed
// through a non-empty error message on a completed or queuing record.
type Status string

const (
	// Queuing means the record is waiting for a worker pickup.
	Queuing Status = "queuing"
	// Evaluating means a worker is currently processing the record.
	Evaluating Status = "evaluating"
	// Completed means processing finished, successfully or not.
	Completed Status = "completed"
)

// Pending reports whether the status still counts against task completion.
func (s Status) Pending() bool {
	return s == Queuing || s == Evaluating
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}
