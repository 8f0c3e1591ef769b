package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jervis-ai/jervis/pkg/models"
)

// PlanStore persists plans. The executor holds single-writer authority per
// plan; claiming is the only multi-writer operation and goes through a
// conditional update.
type PlanStore struct {
	coll *mongo.Collection
}

// NewPlanStore creates the store over the plans collection.
func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{coll: db.Collection(CollectionPlans)}
}

// Insert persists a freshly created plan.
func (s *PlanStore) Insert(ctx context.Context, plan *models.Plan) error {
	now := time.Now().UTC()
	if plan.ID.IsZero() {
		plan.ID = models.NewPlanID()
	}
	if plan.Status == "" {
		plan.Status = models.PlanStatusCreated
	}
	plan.CreatedAt = now
	plan.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, plan); err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

// ByID fetches a plan by id.
func (s *PlanStore) ByID(ctx context.Context, id models.PlanID) (*models.Plan, error) {
	var plan models.Plan
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("plan %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch plan: %w", err)
	}
	return &plan, nil
}

// ByContext returns all plans of a task context, oldest first.
func (s *PlanStore) ByContext(ctx context.Context, contextID models.ContextID) ([]models.Plan, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"contextId": contextID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	var plans []models.Plan
	if err := cursor.All(ctx, &plans); err != nil {
		return nil, fmt.Errorf("failed to decode plans: %w", err)
	}
	return plans, nil
}

// ClaimNext atomically moves the oldest CREATED plan to RUNNING and returns
// it. Returns (nil, nil) when no plan is waiting.
func (s *PlanStore) ClaimNext(ctx context.Context) (*models.Plan, error) {
	var plan models.Plan
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"status": models.PlanStatusCreated},
		bson.M{"$set": bson.M{
			"status":    models.PlanStatusRunning,
			"updatedAt": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().
			SetSort(bson.D{{Key: "createdAt", Value: 1}}).
			SetReturnDocument(options.After),
	).Decode(&plan)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim plan: %w", err)
	}
	return &plan, nil
}

// Save replaces the plan document, bumping updatedAt.
func (s *PlanStore) Save(ctx context.Context, plan *models.Plan) error {
	plan.UpdatedAt = time.Now().UTC()
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": plan.ID}, plan)
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.ID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("plan %s: %w", plan.ID.Hex(), ErrNotFound)
	}
	return nil
}

// UpdateStatus transitions a plan between statuses with compare-and-set
// semantics. A plan no longer in the expected status yields ErrStateConflict.
func (s *PlanStore) UpdateStatus(ctx context.Context, id models.PlanID, from, to models.PlanStatus) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("failed to update plan status: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("plan %s not in status %s: %w", id.Hex(), from, ErrStateConflict)
	}
	return nil
}

// RecoverOrphans returns RUNNING plans untouched since the cutoff back to
// CREATED so a live worker can reclaim them after a crash.
func (s *PlanStore) RecoverOrphans(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"status": models.PlanStatusRunning, "updatedAt": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": models.PlanStatusCreated, "updatedAt": time.Now().UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to recover orphaned plans: %w", err)
	}
	return res.ModifiedCount, nil
}
