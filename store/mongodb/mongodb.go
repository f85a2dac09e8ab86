//
// Tencent is pleased to support the open source community by making evalengine available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// evalengine is licensed under the Apache License Version 2.0.
//
//

// Package mongodb provides the MongoDB implementation of store.Store.
//
// Every lifecycle transition is a single conditional update, so the
// compare-and-set semantics of the store contract map directly onto filtered
// UpdateOne calls and the ModifiedCount they report.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gptflow/evalengine/evaluation"
	"github.com/gptflow/evalengine/evaluation/status"
	"github.com/gptflow/evalengine/store"
)

// Collection names.
const (
	collTasks    = "eval_tasks"
	collItems    = "eval_items"
	collDatasets = "eval_datasets"
	collTargets  = "eval_targets"
	collMetrics  = "eval_metrics"
)

// Store is the MongoDB-backed task/item/snapshot store.
type Store struct {
	client     *mongo.Client
	database   string
	ownsClient bool
}

// New creates a MongoDB store. Unless a client is injected with WithClient,
// it connects to the configured URI and verifies the connection with a ping.
func New(ctx context.Context, opt ...Option) (*Store, error) {
	opts := NewOptions(opt...)
	if opts.Client != nil {
		return &Store{client: opts.Client, database: opts.Database}, nil
	}
	if opts.URI == "" {
		return nil, errors.New("mongodb: URI is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: ping failed: %w", err)
	}
	return &Store{client: client, database: opts.Database, ownsClient: true}, nil
}

// Close disconnects the client when the store owns it.
func (s *Store) Close(ctx context.Context) error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.client.Database(s.database).Collection(name)
}

// GetTask implements store.TaskStore.
func (s *Store) GetTask(ctx context.Context, taskID string) (*evaluation.Task, error) {
	var task evaluation.Task
	err := s.coll(collTasks).FindOne(ctx, bson.M{"_id": taskID}).Decode(&task)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: get task: %w", err)
	}
	return &task, nil
}

// MarkTaskEvaluating implements store.TaskStore.
func (s *Store) MarkTaskEvaluating(ctx context.Context, taskID string) (bool, error) {
	res, err := s.coll(collTasks).UpdateOne(ctx,
		bson.M{"_id": taskID, "status": status.Queuing},
		bson.M{"$set": bson.M{"status": status.Evaluating}})
	if err != nil {
		return false, fmt.Errorf("mongodb: mark task evaluating: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// FinishTask implements store.TaskStore.
func (s *Store) FinishTask(ctx context.Context, taskID string, avgScore float64) (bool, error) {
	res, err := s.coll(collTasks).UpdateOne(ctx,
		bson.M{"_id": taskID, "status": status.Evaluating},
		bson.M{
			"$set": bson.M{
				"status":     status.Completed,
				"finishTime": time.Now(),
				"avgScore":   avgScore,
			},
			// Drop a leftover park message (e.g. quota exhaustion) so a task
			// that finished cleanly after a resume does not read as failed.
			"$unset": bson.M{"errorMessage": ""},
		})
	if err != nil {
		return false, fmt.Errorf("mongodb: finish task: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// FailTask implements store.TaskStore.
func (s *Store) FailTask(ctx context.Context, taskID string, message string) error {
	res, err := s.coll(collTasks).UpdateOne(ctx,
		bson.M{"_id": taskID},
		bson.M{"$set": bson.M{
			"status":       status.Completed,
			"finishTime":   time.Now(),
			"errorMessage": message,
		}})
	if err != nil {
		return fmt.Errorf("mongodb: fail task: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// ParkTask implements store.TaskStore.
func (s *Store) ParkTask(ctx context.Context, taskID string, message string) error {
	res, err := s.coll(collTasks).UpdateOne(ctx,
		bson.M{"_id": taskID},
		bson.M{"$set": bson.M{
			"status":       status.Queuing,
			"errorMessage": message,
		}})
	if err != nil {
		return fmt.Errorf("mongodb: park task: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// StopTask implements store.TaskStore.
func (s *Store) StopTask(ctx context.Context, taskID string, message string) (bool, error) {
	res, err := s.coll(collTasks).UpdateOne(ctx,
		bson.M{"_id": taskID, "status": bson.M{"$in": []status.Status{status.Queuing, status.Evaluating}}},
		bson.M{"$set": bson.M{
			"status":       status.Completed,
			"finishTime":   time.Now(),
			"errorMessage": message,
		}})
	if err != nil {
		return false, fmt.Errorf("mongodb: stop task: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// RestartTask implements store.TaskStore.
func (s *Store) RestartTask(ctx context.Context, taskID string) (bool, error) {
	res, err := s.coll(collTasks).UpdateOne(ctx,
		bson.M{"_id": taskID, "status": status.Completed},
		bson.M{
			"$set":   bson.M{"status": status.Queuing},
			"$unset": bson.M{"finishTime": "", "avgScore": "", "errorMessage": ""},
		})
	if err != nil {
		return false, fmt.Errorf("mongodb: restart task: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// ReopenTask implements store.TaskStore.
func (s *Store) ReopenTask(ctx context.Context, taskID string) (bool, error) {
	res, err := s.coll(collTasks).UpdateOne(ctx,
		bson.M{"_id": taskID, "status": status.Completed},
		bson.M{
			"$set":   bson.M{"status": status.Evaluating},
			"$unset": bson.M{"finishTime": "", "avgScore": "", "errorMessage": ""},
		})
	if err != nil {
		return false, fmt.Errorf("mongodb: reopen task: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// InsertItems implements store.ItemStore.
func (s *Store) InsertItems(ctx context.Context, items []*evaluation.Item) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]any, 0, len(items))
	for _, item := range items {
		docs = append(docs, item)
	}
	if _, err := s.coll(collItems).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongodb: insert items: %w", err)
	}
	return nil
}

// GetItem implements store.ItemStore.
func (s *Store) GetItem(ctx context.Context, itemID string) (*evaluation.Item, error) {
	var item evaluation.Item
	err := s.coll(collItems).FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: get item: %w", err)
	}
	return &item, nil
}

// ListItems implements store.ItemStore.
func (s *Store) ListItems(ctx context.Context, taskID string) ([]*evaluation.Item, error) {
	cursor, err := s.coll(collItems).Find(ctx,
		bson.M{"taskId": taskID},
		options.Find().SetSort(bson.D{{Key: "index", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongodb: list items: %w", err)
	}
	var items []*evaluation.Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("mongodb: list items: %w", err)
	}
	return items, nil
}

// MarkItemEvaluating implements store.ItemStore.
func (s *Store) MarkItemEvaluating(ctx context.Context, itemID string) (bool, error) {
	res, err := s.coll(collItems).UpdateOne(ctx,
		bson.M{"_id": itemID, "status": status.Queuing},
		bson.M{"$set": bson.M{"status": status.Evaluating}})
	if err != nil {
		return false, fmt.Errorf("mongodb: mark item evaluating: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// CompleteItem implements store.ItemStore.
func (s *Store) CompleteItem(ctx context.Context, itemID string, result *store.ItemResult) (bool, error) {
	res, err := s.coll(collItems).UpdateOne(ctx,
		bson.M{"_id": itemID, "status": status.Evaluating},
		bson.M{
			"$set": bson.M{
				"status":        status.Completed,
				"response":      result.Response,
				"responseTime":  result.ResponseTime,
				"score":         result.Score,
				"metricResults": result.MetricResults,
				"finishTime":    time.Now(),
			},
			"$unset": bson.M{"errorMessage": ""},
		})
	if err != nil {
		return false, fmt.Errorf("mongodb: complete item: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// FailItem implements store.ItemStore.
func (s *Store) FailItem(ctx context.Context, itemID string, message string) (int, bool, error) {
	var item evaluation.Item
	err := s.coll(collItems).FindOneAndUpdate(ctx,
		bson.M{
			"_id":    itemID,
			"status": bson.M{"$in": []status.Status{status.Queuing, status.Evaluating}},
		},
		bson.M{
			"$inc": bson.M{"retry": -1},
			"$set": bson.M{"status": status.Queuing, "errorMessage": message},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Missing, or already completed (e.g. stopped while the failure was
		// in flight).
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mongodb: fail item: %w", err)
	}
	return item.Retry, true, nil
}

// CountPendingItems implements store.ItemStore.
func (s *Store) CountPendingItems(ctx context.Context, taskID string) (int64, error) {
	count, err := s.coll(collItems).CountDocuments(ctx, bson.M{
		"taskId": taskID,
		"status": bson.M{"$in": []status.Status{status.Queuing, status.Evaluating}},
	})
	if err != nil {
		return 0, fmt.Errorf("mongodb: count pending items: %w", err)
	}
	return count, nil
}

// AverageItemScore implements store.ItemStore.
func (s *Store) AverageItemScore(ctx context.Context, taskID string) (float64, error) {
	cursor, err := s.coll(collItems).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"taskId": taskID,
			"status": status.Completed,
			"score":  bson.M{"$exists": true},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": nil,
			"avg": bson.M{"$avg": "$score"},
		}}},
	})
	if err != nil {
		return 0, fmt.Errorf("mongodb: average item score: %w", err)
	}
	var rows []struct {
		Avg float64 `bson:"avg"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("mongodb: average item score: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Avg, nil
}

// StopPendingItems implements store.ItemStore.
func (s *Store) StopPendingItems(ctx context.Context, taskID string, message string) (int64, error) {
	res, err := s.coll(collItems).UpdateMany(ctx,
		bson.M{
			"taskId": taskID,
			"status": bson.M{"$in": []status.Status{status.Queuing, status.Evaluating}},
		},
		bson.M{"$set": bson.M{
			"status":       status.Completed,
			"errorMessage": message,
			"finishTime":   time.Now(),
		}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: stop pending items: %w", err)
	}
	return res.ModifiedCount, nil
}

// ResetItems implements store.ItemStore.
func (s *Store) ResetItems(ctx context.Context, taskID string) error {
	_, err := s.coll(collItems).UpdateMany(ctx,
		bson.M{"taskId": taskID},
		bson.M{
			"$set":   bson.M{"status": status.Queuing, "retry": evaluation.DefaultRetry},
			"$unset": resetUnset(),
		})
	if err != nil {
		return fmt.Errorf("mongodb: reset items: %w", err)
	}
	return nil
}

// ResetFailedItem implements store.ItemStore.
func (s *Store) ResetFailedItem(ctx context.Context, itemID string) (bool, error) {
	res, err := s.coll(collItems).UpdateOne(ctx,
		bson.M{"_id": itemID, "status": status.Completed, "errorMessage": bson.M{"$gt": ""}},
		bson.M{
			"$set":   bson.M{"status": status.Queuing},
			"$max":   bson.M{"retry": 1},
			"$unset": resetUnset(),
		})
	if err != nil {
		return false, fmt.Errorf("mongodb: reset failed item: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// ResetFailedItems implements store.ItemStore.
func (s *Store) ResetFailedItems(ctx context.Context, taskID string) (int64, error) {
	res, err := s.coll(collItems).UpdateMany(ctx,
		bson.M{"taskId": taskID, "status": status.Completed, "errorMessage": bson.M{"$gt": ""}},
		bson.M{
			"$set":   bson.M{"status": status.Queuing},
			"$inc":   bson.M{"retry": 1},
			"$unset": resetUnset(),
		})
	if err != nil {
		return 0, fmt.Errorf("mongodb: reset failed items: %w", err)
	}
	return res.ModifiedCount, nil
}

// CountItemsByStatus implements store.ItemStore.
func (s *Store) CountItemsByStatus(ctx context.Context, taskID string) (map[status.Status]int64, error) {
	cursor, err := s.coll(collItems).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"taskId": taskID}}},
		{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb: count items by status: %w", err)
	}
	var rows []struct {
		Status status.Status `bson:"_id"`
		Count  int64         `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("mongodb: count items by status: %w", err)
	}
	counts := make(map[status.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountFailedItems implements store.ItemStore.
func (s *Store) CountFailedItems(ctx context.Context, taskID string) (int64, error) {
	count, err := s.coll(collItems).CountDocuments(ctx, bson.M{
		"taskId":       taskID,
		"errorMessage": bson.M{"$gt": ""},
	})
	if err != nil {
		return 0, fmt.Errorf("mongodb: count failed items: %w", err)
	}
	return count, nil
}

// GetDataset implements store.SnapshotStore.
func (s *Store) GetDataset(ctx context.Context, teamID, datasetID string) (*evaluation.Dataset, error) {
	var dataset evaluation.Dataset
	err := s.coll(collDatasets).FindOne(ctx, bson.M{"_id": datasetID, "teamId": teamID}).Decode(&dataset)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, evaluation.ErrConfigMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: get dataset: %w", err)
	}
	return &dataset, nil
}

// GetTarget implements store.SnapshotStore.
func (s *Store) GetTarget(ctx context.Context, teamID, targetID string) (*evaluation.TargetSnapshot, error) {
	var target evaluation.TargetSnapshot
	err := s.coll(collTargets).FindOne(ctx, bson.M{"_id": targetID, "teamId": teamID}).Decode(&target)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("target %s: %w", targetID, evaluation.ErrConfigMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: get target: %w", err)
	}
	return &target, nil
}

// GetMetrics implements store.SnapshotStore.
func (s *Store) GetMetrics(ctx context.Context, teamID string, metricIDs []string) ([]*evaluation.MetricSnapshot, error) {
	cursor, err := s.coll(collMetrics).Find(ctx, bson.M{
		"_id":    bson.M{"$in": metricIDs},
		"teamId": teamID,
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb: get metrics: %w", err)
	}
	var found []*evaluation.MetricSnapshot
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("mongodb: get metrics: %w", err)
	}
	byID := make(map[string]*evaluation.MetricSnapshot, len(found))
	for _, metric := range found {
		byID[metric.ID] = metric
	}
	metrics := make([]*evaluation.MetricSnapshot, 0, len(metricIDs))
	for _, id := range metricIDs {
		if metric, ok := byID[id]; ok {
			metrics = append(metrics, metric)
		}
	}
	return metrics, nil
}

// resetUnset lists the result fields cleared when an item goes back to
// queuing.
func resetUnset() bson.M {
	return bson.M{
		"response":      "",
		"responseTime":  "",
		"finishTime":    "",
		"score":         "",
		"metricResults": "",
		"errorMessage":  "",
	}
}
