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

// ConnectionStore persists external source configurations.
type ConnectionStore struct {
	coll *mongo.Collection
}

// NewConnectionStore creates the store over the connections collection.
func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{coll: db.Collection(CollectionConnections)}
}

// Create inserts a new connection.
func (s *ConnectionStore) Create(ctx context.Context, conn *models.Connection) error {
	now := time.Now().UTC()
	if conn.ID.IsZero() {
		conn.ID = models.NewConnectionID()
	}
	conn.CreatedAt = now
	conn.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, conn); err != nil {
		return fmt.Errorf("failed to insert connection %s: %w", conn.Name, err)
	}
	return nil
}

// ByID fetches a connection by id.
func (s *ConnectionStore) ByID(ctx context.Context, id models.ConnectionID) (*models.Connection, error) {
	var conn models.Connection
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conn)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("connection %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connection: %w", err)
	}
	return &conn, nil
}

// ForClient returns all connections owned by a tenant.
func (s *ConnectionStore) ForClient(ctx context.Context, clientID models.ClientID) ([]models.Connection, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"clientId": clientID})
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	var conns []models.Connection
	if err := cursor.All(ctx, &conns); err != nil {
		return nil, fmt.Errorf("failed to decode connections: %w", err)
	}
	return conns, nil
}

// All returns every connection. The polling scheduler iterates this set.
func (s *ConnectionStore) All(ctx context.Context) ([]models.Connection, error) {
	cursor, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	var conns []models.Connection
	if err := cursor.All(ctx, &conns); err != nil {
		return nil, fmt.Errorf("failed to decode connections: %w", err)
	}
	return conns, nil
}
