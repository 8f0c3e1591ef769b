package polling

import (
	"context"
	"log/slog"

	"github.com/jervis-ai/jervis/pkg/models"
)

// DomainLimiter spaces requests to the source's domain. Satisfied by
// *ratelimit.Limiter.
type DomainLimiter interface {
	Acquire(ctx context.Context, rawURL string) error
}

// ProviderHandler is the generic per-provider driver: it walks the
// connection's capabilities, paginates each capability sub-handler, and
// performs the idempotent NEW inserts. Individual item failures are counted,
// never fatal.
type ProviderHandler struct {
	provider     models.SourceProvider
	capabilities []CapabilityHandler
	inserters    map[models.ItemKind]ItemInserter
	limiter      DomainLimiter

	pageSize        int
	maxItemsPerPoll int
}

// NewProviderHandler builds a handler for one provider from its capability
// sub-handlers.
func NewProviderHandler(
	provider models.SourceProvider,
	capabilities []CapabilityHandler,
	inserters map[models.ItemKind]ItemInserter,
	limiter DomainLimiter,
	pageSize, maxItemsPerPoll int,
) *ProviderHandler {
	return &ProviderHandler{
		provider:        provider,
		capabilities:    capabilities,
		inserters:       inserters,
		limiter:         limiter,
		pageSize:        pageSize,
		maxItemsPerPoll: maxItemsPerPoll,
	}
}

// Provider implements Handler.
func (h *ProviderHandler) Provider() models.SourceProvider { return h.provider }

// Poll implements Handler.
func (h *ProviderHandler) Poll(ctx context.Context, pc *Context) (Result, error) {
	conn := pc.Connection
	var total Result
	for _, capability := range h.capabilities {
		if !conn.HasCapability(capability.Capability()) {
			continue
		}
		result, err := h.pollCapability(ctx, capability, pc)
		total.Add(result)
		if err != nil {
			// The capability failed mid-run; its partial counts stand and
			// the remaining capabilities still get their turn.
			slog.Error("Capability poll failed",
				"provider", h.provider,
				"capability", capability.Capability(),
				"connection", conn.Name,
				"error", err)
			total.Errors++
		}
	}
	slog.Info("Polling run finished",
		"provider", h.provider, "connection", conn.Name,
		"discovered", total.Discovered, "created", total.Created,
		"skipped", total.Skipped, "errors", total.Errors)
	return total, nil
}

func (h *ProviderHandler) pollCapability(ctx context.Context, capability CapabilityHandler, pc *Context) (Result, error) {
	conn := pc.Connection
	inserter, ok := h.inserters[capability.Kind()]
	if !ok {
		slog.Warn("No item store registered for kind, skipping capability",
			"kind", capability.Kind(), "capability", capability.Capability())
		return Result{}, nil
	}

	var result Result
	for page := 0; result.Discovered < h.maxItemsPerPoll; page++ {
		if err := h.limiter.Acquire(ctx, conn.BaseURL); err != nil {
			return result, err
		}
		items, more, err := capability.FetchPage(ctx, conn, page, h.pageSize)
		if err != nil {
			return result, err
		}

		for _, remote := range items {
			if result.Discovered >= h.maxItemsPerPoll {
				break
			}
			result.Discovered++
			if remote.Path != "" && !pc.AllowsIndexing(remote.Path, remote.SizeBytes) {
				result.Skipped++
				continue
			}
			item := models.NewIndexedItem(capability.Kind(), conn.ID, remote.Key, remote.UpdatedAt, remote.Payload)
			created, err := inserter.InsertNew(ctx, item)
			switch {
			case err != nil:
				result.Errors++
				slog.Warn("Failed to insert discovered item",
					"kind", capability.Kind(), "remote_key", remote.Key, "error", err)
			case created:
				result.Created++
			default:
				result.Skipped++
			}
		}

		if !more {
			break
		}
	}
	return result, nil
}
