package indexing

import (
	"context"
	"log/slog"
	"time"

	"github.com/jervis-ai/jervis/pkg/models"
)

// NewItemSource yields pages of NEW items. Satisfied by *ItemStore.
type NewItemSource interface {
	NextNewPage(ctx context.Context, limit int) ([]models.IndexedItem, error)
}

// ContinuousNewItems returns a lazy, restartable, infinite stream of NEW
// items ordered by source-side updatedAt descending. When a page is
// exhausted the producer sleeps pollDelay and re-queries. Cancelling ctx
// terminates the stream at the next yield boundary and closes the channel.
func ContinuousNewItems(ctx context.Context, source NewItemSource, pageSize int, pollDelay time.Duration) <-chan models.IndexedItem {
	out := make(chan models.IndexedItem)
	go func() {
		defer close(out)
		for {
			page, err := source.NextNewPage(ctx, pageSize)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Failed to query NEW items, backing off", "error", err)
				page = nil
			}

			for i := range page {
				select {
				case out <- page[i]:
				case <-ctx.Done():
					return
				}
			}

			if len(page) < pageSize {
				select {
				case <-time.After(pollDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
