package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jervis-ai/jervis/pkg/models"
)

// Collection names for the non-item stores.
const (
	CollectionClients      = "clients"
	CollectionProjects     = "projects"
	CollectionConnections  = "connections"
	CollectionPlans        = "plans"
	CollectionTaskContexts = "task_contexts"
	CollectionRequirements = "user_requirements"
)

// EnsureIndexes creates the indexes every store relies on. Creation is
// idempotent; existing indexes are left untouched.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		CollectionClients: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		CollectionProjects: {
			{Keys: bson.D{{Key: "clientId", Value: 1}}},
			{Keys: bson.D{{Key: "connectionIds", Value: 1}}},
		},
		CollectionConnections: {
			{Keys: bson.D{{Key: "clientId", Value: 1}}},
		},
		CollectionPlans: {
			{Keys: bson.D{{Key: "contextId", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}}},
		},
		CollectionTaskContexts: {
			{Keys: bson.D{{Key: "clientId", Value: 1}}},
		},
		CollectionRequirements: {
			{Keys: bson.D{{Key: "clientId", Value: 1}, {Key: "priority", Value: 1}}},
		},
	}

	// Per-source item collections share the natural-key and scan indexes.
	for _, kind := range []models.ItemKind{
		models.KindConfluencePage,
		models.KindJiraIssue,
		models.KindGitCommit,
		models.KindEmailMessage,
	} {
		specs[kind.Collection()] = []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "connectionId", Value: 1}, {Key: "remoteKey", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "connectionId", Value: 1}, {Key: "state", Value: 1}, {Key: "sourceUpdatedAt", Value: -1}},
			},
			{
				Keys: bson.D{{Key: "state", Value: 1}, {Key: "indexingStartedAt", Value: 1}},
			},
		}
	}

	for name, idx := range specs {
		if _, err := d.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}
