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

// ProjectStore persists projects and their connection attachments.
type ProjectStore struct {
	coll *mongo.Collection
}

// NewProjectStore creates the store over the projects collection.
func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{coll: db.Collection(CollectionProjects)}
}

// Create inserts a new project.
func (s *ProjectStore) Create(ctx context.Context, project *models.Project) error {
	now := time.Now().UTC()
	if project.ID.IsZero() {
		project.ID = models.NewProjectID()
	}
	project.CreatedAt = now
	project.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, project); err != nil {
		return fmt.Errorf("failed to insert project %s: %w", project.Name, err)
	}
	return nil
}

// ByID fetches a project by id.
func (s *ProjectStore) ByID(ctx context.Context, id models.ProjectID) (*models.Project, error) {
	var project models.Project
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("project %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	return &project, nil
}

// ForClient returns all projects of a tenant.
func (s *ProjectStore) ForClient(ctx context.Context, clientID models.ClientID) ([]models.Project, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"clientId": clientID})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	var projects []models.Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}

// AttachConnection scopes a connection to a project.
func (s *ProjectStore) AttachConnection(ctx context.Context, projectID models.ProjectID, connectionID models.ConnectionID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": projectID},
		bson.M{
			"$addToSet": bson.M{"connectionIds": connectionID},
			"$set":      bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("failed to attach connection: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("project %s: %w", projectID.Hex(), ErrNotFound)
	}
	return nil
}

// WithConnection returns all projects that attached the connection explicitly.
func (s *ProjectStore) WithConnection(ctx context.Context, connectionID models.ConnectionID) ([]models.Project, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"connectionIds": connectionID})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects by connection: %w", err)
	}
	var projects []models.Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}
