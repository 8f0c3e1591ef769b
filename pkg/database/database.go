// Package database provides the MongoDB connection and the document stores
// for tenants, connections, plans, task contexts, and user requirements.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrStateConflict indicates a conditional update found the document in
	// an unexpected state. Callers log and reconcile on the next pass.
	ErrStateConflict = errors.New("document state conflict")
)

const pingTimeout = 10 * time.Second

// DB wraps the Mongo client and the application database handle.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect establishes the Mongo connection and verifies it with a ping.
func Connect(ctx context.Context, uri, name string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo at %s: %w", uri, err)
	}

	slog.Info("Connected to MongoDB", "database", name)
	return &DB{client: client, db: client.Database(name)}, nil
}

// Close disconnects the underlying client.
func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Collection returns a handle to a named collection.
func (d *DB) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

// Health pings the primary, bounded by the caller's context.
func (d *DB) Health(ctx context.Context) error {
	return d.client.Ping(ctx, readpref.Primary())
}
