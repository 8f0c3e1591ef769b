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

// ClientStore persists tenants.
type ClientStore struct {
	coll *mongo.Collection
}

// NewClientStore creates the store over the clients collection.
func NewClientStore(db *DB) *ClientStore {
	return &ClientStore{coll: db.Collection(CollectionClients)}
}

// Create validates and inserts a new tenant.
func (s *ClientStore) Create(ctx context.Context, client *models.Client) error {
	if err := models.ValidateSlug(client.Slug); err != nil {
		return err
	}
	now := time.Now().UTC()
	if client.ID.IsZero() {
		client.ID = models.NewClientID()
	}
	client.CreatedAt = now
	client.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, client); err != nil {
		return fmt.Errorf("failed to insert client %s: %w", client.Slug, err)
	}
	return nil
}

// ByID fetches a tenant by id.
func (s *ClientStore) ByID(ctx context.Context, id models.ClientID) (*models.Client, error) {
	var client models.Client
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&client)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("client %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	return &client, nil
}

// BySlug fetches a tenant by its slug.
func (s *ClientStore) BySlug(ctx context.Context, slug string) (*models.Client, error) {
	var client models.Client
	err := s.coll.FindOne(ctx, bson.M{"slug": slug}).Decode(&client)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("client %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch client: %w", err)
	}
	return &client, nil
}

// List returns all tenants.
func (s *ClientStore) List(ctx context.Context) ([]models.Client, error) {
	cursor, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	var clients []models.Client
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}
	return clients, nil
}
