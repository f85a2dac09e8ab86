//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package evaluation defines the data model of the evaluation engine: tasks,
// items, metric results and the immutable dataset/target/metric snapshots the
// engine consumes. The records are authored elsewhere; the engine only
// mutates the lifecycle and result fields.
package evaluation

import (
	"errors"
	"math"
	"time"

	"github.com/gptflow/evalengine/evaluation/status"
)

// ErrConfigMissing indicates a dataset, target or metric snapshot could not
// be loaded at task expansion time. It is fatal to the task.
var ErrConfigMissing = errors.New("evaluation config missing")

// DefaultRetry is the retry budget assigned to every freshly created item.
const DefaultRetry = 3

// Task is one evaluation run over a dataset against one target and a set of
// metrics. Created by the authoring layer with status queuing; mutated only
// by the engine afterwards.
type Task struct {
	ID       string `bson:"_id" json:"id"`
	TeamID   string `bson:"teamId" json:"teamId"`
	MemberID string `bson:"memberId" json:"memberId"`
	Name     string `bson:"name" json:"name"`

	DatasetID string   `bson:"datasetId" json:"datasetId"`
	TargetID  string   `bson:"targetId" json:"targetId"`
	MetricIDs []string `bson:"metricIds" json:"metricIds"`

	// UsageID is the billing handle that target and AI-judge consumption is
	// concatenated against.
	UsageID string `bson:"usageId" json:"usageId"`

	Status     status.Status `bson:"status" json:"status"`
	CreateTime time.Time     `bson:"createTime" json:"createTime"`
	FinishTime *time.Time    `bson:"finishTime,omitempty" json:"finishTime,omitempty"`

	// AvgScore is only set when the task completed and at least one item
	// finished with a score. Rounded to two decimals.
	AvgScore     *float64 `bson:"avgScore,omitempty" json:"avgScore,omitempty"`
	ErrorMessage string   `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
}

// Failed reports whether the task carries a failure. A non-empty error
// message marks the task failed regardless of status.
func (t *Task) Failed() bool {
	return t.ErrorMessage != ""
}

// Item is one dataset row's unit of work within a task.
type Item struct {
	ID     string `bson:"_id" json:"id"`
	TaskID string `bson:"taskId" json:"taskId"`
	// Index is the item's position in the dataset expansion. It orders item
	// listings and staggers job submission.
	Index int `bson:"index" json:"index"`

	// Row is the immutable dataset row the item was generated from.
	Row DatasetRow `bson:"row" json:"row"`

	TargetID  string   `bson:"targetId" json:"targetId"`
	MetricIDs []string `bson:"metricIds" json:"metricIds"`

	Status status.Status `bson:"status" json:"status"`
	Retry  int           `bson:"retry" json:"retry"`

	Response      string         `bson:"response,omitempty" json:"response,omitempty"`
	ResponseTime  time.Duration  `bson:"responseTime,omitempty" json:"responseTime,omitempty"`
	FinishTime    *time.Time     `bson:"finishTime,omitempty" json:"finishTime,omitempty"`
	Score         *float64       `bson:"score,omitempty" json:"score,omitempty"`
	MetricResults []MetricResult `bson:"metricResults" json:"metricResults"`
	ErrorMessage  string         `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
}

// Failed reports whether the item carries a failure. A non-empty error
// message marks the item failed regardless of status.
func (i *Item) Failed() bool {
	return i.ErrorMessage != ""
}

// MetricResult is the outcome of one metric over one item.
type MetricResult struct {
	MetricID   string         `bson:"metricId" json:"metricId"`
	MetricName string         `bson:"metricName" json:"metricName"`
	Score      float64        `bson:"score" json:"score"`
	Details    map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	Error      string         `bson:"error,omitempty" json:"error,omitempty"`
}

// DatasetRow is one row of an evaluation dataset.
type DatasetRow struct {
	Question         string         `bson:"question" json:"question"`
	ExpectedResponse string         `bson:"expectedResponse" json:"expectedResponse"`
	Variables        map[string]any `bson:"variables,omitempty" json:"variables,omitempty"`
	// History is an optional JSON-encoded transcript of prior turns.
	History string `bson:"history,omitempty" json:"history,omitempty"`
}

// DatasetColumn declares one column of a dataset.
type DatasetColumn struct {
	Name     string `bson:"name" json:"name"`
	Type     string `bson:"type" json:"type"`
	Required bool   `bson:"required" json:"required"`
}

// Dataset is a read-only dataset snapshot: declared columns plus ordered rows.
type Dataset struct {
	ID      string          `bson:"_id" json:"id"`
	TeamID  string          `bson:"teamId" json:"teamId"`
	Name    string          `bson:"name" json:"name"`
	Columns []DatasetColumn `bson:"columns" json:"columns"`
	Rows    []DatasetRow    `bson:"rows" json:"rows"`
}

// Input is the (question, expected response) pair handed to a target
// executor, together with the row's free-form variables and history.
type Input struct {
	Question         string
	ExpectedResponse string
	Variables        map[string]any
	History          string
}

// InputFromRow builds the executor input for a dataset row.
func InputFromRow(row DatasetRow) *Input {
	return &Input{
		Question:         row.Question,
		ExpectedResponse: row.ExpectedResponse,
		Variables:        row.Variables,
		History:          row.History,
	}
}

// UsageRecord is one consumption line reported by a target run.
type UsageRecord struct {
	ModuleName   string  `bson:"moduleName,omitempty" json:"moduleName,omitempty"`
	TotalPoints  float64 `bson:"totalPoints" json:"totalPoints"`
	InputTokens  int64   `bson:"inputTokens,omitempty" json:"inputTokens,omitempty"`
	OutputTokens int64   `bson:"outputTokens,omitempty" json:"outputTokens,omitempty"`
}

// RoundScore rounds a score to two decimals, the precision persisted for
// item scores and task averages.
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

// ClampScore bounds a metric score to [0, 100].
func ClampScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}
