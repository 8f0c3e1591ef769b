package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/models"
	"github.com/jervis-ai/jervis/pkg/rag"
)

// ConnectionResolver maps a connection to its owning tenant. Satisfied by
// *database.ConnectionStore.
type ConnectionResolver interface {
	ByID(ctx context.Context, id models.ConnectionID) (*models.Connection, error)
}

// ItemRepository is the per-kind lifecycle store the indexer drives.
// Satisfied by *ItemStore.
type ItemRepository interface {
	NewItemSource
	Kind() models.ItemKind
	ClaimForIndexing(ctx context.Context, id models.ItemID) (bool, error)
	MarkAsIndexed(ctx context.Context, item *models.IndexedItem) error
	MarkAsFailed(ctx context.Context, item *models.IndexedItem, reason string) error
	ResetStaleIndexing(ctx context.Context, cutoff time.Time) (int64, error)
}

// Indexer runs the consumer pool: it drains NEW items per kind, pushes their
// content to the vector store, and transitions them to INDEXED. The vector
// write strictly precedes the transition; a crash in between re-drives the
// item (at-least-once).
type Indexer struct {
	stores      []ItemRepository
	connections ConnectionResolver
	vector      rag.VectorStore
	cfg         *config.IndexingConfig

	clientMu    sync.Mutex
	clientCache map[models.ConnectionID]models.ClientID

	indexed atomic.Int64
	failed  atomic.Int64

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewIndexer wires the indexer over the per-kind stores.
func NewIndexer(stores []ItemRepository, connections ConnectionResolver, vector rag.VectorStore, cfg *config.IndexingConfig) *Indexer {
	return &Indexer{
		stores:      stores,
		connections: connections,
		vector:      vector,
		cfg:         cfg,
		clientCache: make(map[models.ConnectionID]models.ClientID),
	}
}

// Start launches the consumers and the orphan scan. Non-blocking.
func (ix *Indexer) Start(ctx context.Context) {
	ctx, ix.cancel = context.WithCancel(ctx)

	for _, store := range ix.stores {
		items := ContinuousNewItems(ctx, store, ix.cfg.PageSize, ix.cfg.PollDelay)
		for i := 0; i < ix.cfg.ConsumerCount; i++ {
			ix.wg.Add(1)
			go func(store ItemRepository) {
				defer ix.wg.Done()
				ix.consume(ctx, store, items)
			}(store)
		}
	}

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		ix.orphanScanLoop(ctx)
	}()

	slog.Info("Indexer started",
		"kinds", len(ix.stores), "consumers_per_kind", ix.cfg.ConsumerCount)
}

// Stop cancels all consumers and waits for them to drain.
func (ix *Indexer) Stop() {
	ix.stopOnce.Do(func() {
		if ix.cancel != nil {
			ix.cancel()
		}
		ix.wg.Wait()
		slog.Info("Indexer stopped")
	})
}

func (ix *Indexer) consume(ctx context.Context, store ItemRepository, items <-chan models.IndexedItem) {
	for item := range items {
		if err := ix.processItem(ctx, store, &item); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Failed to index item",
				"kind", store.Kind(), "item_id", item.ID.Hex(), "error", err)
		}
	}
}

func (ix *Indexer) processItem(ctx context.Context, store ItemRepository, item *models.IndexedItem) error {
	claimed, err := store.ClaimForIndexing(ctx, item.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Another consumer won, or the item left NEW. Nothing to do.
		return nil
	}

	if item.Payload == nil {
		ix.failed.Add(1)
		return store.MarkAsFailed(ctx, item, "item has no payload")
	}

	clientID, err := ix.clientFor(ctx, item.ConnectionID)
	if err != nil {
		ix.failed.Add(1)
		return store.MarkAsFailed(ctx, item, fmt.Sprintf("resolve connection: %v", err))
	}

	doc := rag.Document{
		ID:      fmt.Sprintf("%s/%s", store.Kind(), item.RemoteKey),
		Content: item.Payload.Title + "\n\n" + item.Payload.Body,
		Metadata: map[string]string{
			"naturalKey":   item.RemoteKey,
			"kind":         string(store.Kind()),
			"connectionId": item.ConnectionID.Hex(),
			"title":        item.Payload.Title,
			"url":          item.Payload.URL,
		},
	}
	if err := ix.vector.Insert(ctx, clientID, doc); err != nil {
		ix.failed.Add(1)
		if failErr := store.MarkAsFailed(ctx, item, fmt.Sprintf("vector insert: %v", err)); failErr != nil {
			slog.Error("Failed to record indexing failure",
				"kind", store.Kind(), "item_id", item.ID.Hex(), "error", failErr)
		}
		return err
	}

	if err := store.MarkAsIndexed(ctx, item); err != nil {
		return err
	}
	ix.indexed.Add(1)
	return nil
}

// Stats reports items indexed and failed since process start.
func (ix *Indexer) Stats() (indexed, failed int64) {
	return ix.indexed.Load(), ix.failed.Load()
}

func (ix *Indexer) orphanScanLoop(ctx context.Context) {
	ticker := time.NewTicker(ix.cfg.OrphanScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-ix.cfg.StaleIndexingTimeout)
			for _, store := range ix.stores {
				if _, err := store.ResetStaleIndexing(ctx, cutoff); err != nil {
					slog.Error("Orphan scan failed", "kind", store.Kind(), "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (ix *Indexer) clientFor(ctx context.Context, connID models.ConnectionID) (models.ClientID, error) {
	ix.clientMu.Lock()
	cached, ok := ix.clientCache[connID]
	ix.clientMu.Unlock()
	if ok {
		return cached, nil
	}

	conn, err := ix.connections.ByID(ctx, connID)
	if err != nil {
		return models.ClientID{}, err
	}
	ix.clientMu.Lock()
	ix.clientCache[connID] = conn.ClientID
	ix.clientMu.Unlock()
	return conn.ClientID, nil
}
