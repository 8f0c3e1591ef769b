package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/jervis-ai/jervis/pkg/models"
)

// TaskContextStore persists the user-facing task envelopes.
type TaskContextStore struct {
	coll *mongo.Collection
}

// NewTaskContextStore creates the store over the task_contexts collection.
func NewTaskContextStore(db *DB) *TaskContextStore {
	return &TaskContextStore{coll: db.Collection(CollectionTaskContexts)}
}

// Create inserts a new task context.
func (s *TaskContextStore) Create(ctx context.Context, tc *models.TaskContext) error {
	now := time.Now().UTC()
	if tc.ID.IsZero() {
		tc.ID = models.NewContextID()
	}
	tc.CreatedAt = now
	tc.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, tc); err != nil {
		return fmt.Errorf("failed to insert task context: %w", err)
	}
	return nil
}

// ByID fetches a task context by id.
func (s *TaskContextStore) ByID(ctx context.Context, id models.ContextID) (*models.TaskContext, error) {
	var tc models.TaskContext
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&tc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("task context %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task context: %w", err)
	}
	return &tc, nil
}

// UpdateSummary replaces the rolling conversation summary.
func (s *TaskContextStore) UpdateSummary(ctx context.Context, id models.ContextID, summary string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"contextSummary": summary, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to update context summary: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task context %s: %w", id.Hex(), ErrNotFound)
	}
	return nil
}
