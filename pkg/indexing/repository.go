// Package indexing drives IndexedItems through the
// NEW → INDEXING → INDEXED / FAILED lifecycle: a per-kind repository with
// compare-and-set transitions, a continuous consumer of NEW items, and the
// worker pool that pushes content to the vector store.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jervis-ai/jervis/pkg/database"
	"github.com/jervis-ai/jervis/pkg/models"
)

// ItemStore persists IndexedItems of one kind. Every state transition is a
// single conditional update so concurrent writers serialize on the document;
// a losing writer observes a conflict and reconciles on the next pass.
type ItemStore struct {
	kind models.ItemKind
	coll *mongo.Collection
}

// NewItemStore creates the store for one item kind.
func NewItemStore(db *database.DB, kind models.ItemKind) *ItemStore {
	return &ItemStore{kind: kind, coll: db.Collection(kind.Collection())}
}

// Kind returns the item kind this store manages.
func (s *ItemStore) Kind() models.ItemKind { return s.kind }

// InsertNew inserts a NEW item. A natural-key collision means the item is
// already tracked in some state; the insert is skipped and (false, nil) is
// returned, making polling idempotent.
func (s *ItemStore) InsertNew(ctx context.Context, item *models.IndexedItem) (bool, error) {
	item.Kind = s.kind
	if _, err := s.coll.InsertOne(ctx, item); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert %s item: %w", s.kind, err)
	}
	return true, nil
}

// ByID fetches one item.
func (s *ItemStore) ByID(ctx context.Context, id models.ItemID) (*models.IndexedItem, error) {
	var item models.IndexedItem
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s item %s: %w", s.kind, id.Hex(), database.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s item: %w", s.kind, err)
	}
	item.Kind = s.kind
	return &item, nil
}

// NextNewPage returns up to limit NEW items ordered by source-side updatedAt
// descending (newest knowledge first).
func (s *ItemStore) NextNewPage(ctx context.Context, limit int) ([]models.IndexedItem, error) {
	cursor, err := s.coll.Find(ctx,
		bson.M{"state": models.ItemStateNew},
		options.Find().
			SetSort(bson.D{{Key: "sourceUpdatedAt", Value: -1}}).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to query NEW %s items: %w", s.kind, err)
	}
	var items []models.IndexedItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s items: %w", s.kind, err)
	}
	for i := range items {
		items[i].Kind = s.kind
	}
	return items, nil
}

// ClaimForIndexing moves an item NEW → INDEXING. Returns false when another
// consumer won the claim or the item left NEW in the meantime.
func (s *ItemStore) ClaimForIndexing(ctx context.Context, id models.ItemID) (bool, error) {
	now := time.Now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "state": models.ItemStateNew},
		bson.M{"$set": bson.M{
			"state":             models.ItemStateIndexing,
			"indexingStartedAt": now,
			"updatedAt":         now,
		}})
	if err != nil {
		return false, fmt.Errorf("failed to claim %s item: %w", s.kind, err)
	}
	return res.ModifiedCount == 1, nil
}

// MarkAsIndexed atomically replaces a NEW/INDEXING document with the minimal
// INDEXED shell keyed by the same id. The full payload must already be in
// the vector store; this transition is the final action. Attempting to
// transition an INDEXED item is an anomaly that is logged, never thrown.
func (s *ItemStore) MarkAsIndexed(ctx context.Context, item *models.IndexedItem) error {
	shell := item.IndexedShell()
	res, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": item.ID, "state": bson.M{"$in": []models.ItemState{
			models.ItemStateNew, models.ItemStateIndexing,
		}}},
		shell)
	if err != nil {
		return fmt.Errorf("failed to mark %s item indexed: %w", s.kind, err)
	}
	if res.ModifiedCount == 0 {
		slog.Warn("Item not in an indexable state, transition skipped",
			"kind", s.kind, "item_id", item.ID.Hex())
	}
	return nil
}

// MarkAsFailed records a failure while preserving the full payload. An item
// already FAILED accumulates reasons separated by "; ". Losing a concurrent
// transition race is logged, never thrown.
func (s *ItemStore) MarkAsFailed(ctx context.Context, item *models.IndexedItem, reason string) error {
	current, err := s.ByID(ctx, item.ID)
	if err != nil {
		return err
	}
	if current.State == models.ItemStateIndexed {
		slog.Warn("Cannot fail an INDEXED item, transition skipped",
			"kind", s.kind, "item_id", item.ID.Hex())
		return nil
	}

	errText := reason
	if current.State == models.ItemStateFailed && current.Error != "" {
		errText = current.Error + "; " + reason
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": item.ID, "state": current.State},
		bson.M{
			"$set":   bson.M{"state": models.ItemStateFailed, "error": errText, "updatedAt": time.Now().UTC()},
			"$unset": bson.M{"indexingStartedAt": ""},
		})
	if err != nil {
		return fmt.Errorf("failed to mark %s item failed: %w", s.kind, err)
	}
	if res.ModifiedCount == 0 {
		// A concurrent writer moved the item between the read and the
		// update; its transition stands and this failure is only logged,
		// matching MarkAsIndexed.
		slog.Warn("Item changed concurrently, failure transition skipped",
			"kind", s.kind, "item_id", item.ID.Hex(), "reason", reason)
	}
	return nil
}

// ResetFailedToNew clears the error and returns a FAILED item to NEW for a
// retry.
func (s *ItemStore) ResetFailedToNew(ctx context.Context, id models.ItemID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "state": models.ItemStateFailed},
		bson.M{
			"$set":   bson.M{"state": models.ItemStateNew, "updatedAt": time.Now().UTC()},
			"$unset": bson.M{"error": "", "indexingStartedAt": ""},
		})
	if err != nil {
		return fmt.Errorf("failed to reset %s item: %w", s.kind, err)
	}
	if res.ModifiedCount == 0 {
		return fmt.Errorf("%s item %s is not FAILED: %w", s.kind, id.Hex(), database.ErrStateConflict)
	}
	return nil
}

// ResetStaleIndexing returns items stuck in INDEXING since before the cutoff
// back to NEW. A crash between claim and transition leaves such orphans; this
// guarantees the at-least-once re-drive.
func (s *ItemStore) ResetStaleIndexing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{
			"state":             models.ItemStateIndexing,
			"indexingStartedAt": bson.M{"$lt": cutoff},
		},
		bson.M{
			"$set":   bson.M{"state": models.ItemStateNew, "updatedAt": time.Now().UTC()},
			"$unset": bson.M{"indexingStartedAt": ""},
		})
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale INDEXING %s items: %w", s.kind, err)
	}
	if res.ModifiedCount > 0 {
		slog.Info("Reset stale INDEXING items to NEW", "kind", s.kind, "count", res.ModifiedCount)
	}
	return res.ModifiedCount, nil
}
