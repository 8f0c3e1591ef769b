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

// RequirementStore persists user requirements captured by the requirement tool.
type RequirementStore struct {
	coll *mongo.Collection
}

// NewRequirementStore creates the store over the user_requirements collection.
func NewRequirementStore(db *DB) *RequirementStore {
	return &RequirementStore{coll: db.Collection(CollectionRequirements)}
}

// Create validates and inserts a requirement.
func (s *RequirementStore) Create(ctx context.Context, req *models.UserRequirement) error {
	if err := req.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if req.ID.IsZero() {
		req.ID = models.NewTaskID()
	}
	req.CreatedAt = now
	req.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, req); err != nil {
		return fmt.Errorf("failed to insert requirement: %w", err)
	}
	return nil
}

// ByID fetches a requirement by id.
func (s *RequirementStore) ByID(ctx context.Context, id models.TaskID) (*models.UserRequirement, error) {
	var req models.UserRequirement
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("requirement %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch requirement: %w", err)
	}
	return &req, nil
}

// ForClient returns the tenant's requirements, newest first.
func (s *RequirementStore) ForClient(ctx context.Context, clientID models.ClientID) ([]models.UserRequirement, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"clientId": clientID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	var reqs []models.UserRequirement
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, fmt.Errorf("failed to decode requirements: %w", err)
	}
	return reqs, nil
}
