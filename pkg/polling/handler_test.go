package polling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jervis-ai/jervis/pkg/models"
)

// memInserter mimics the unique-index semantics of the item store.
type memInserter struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemInserter() *memInserter {
	return &memInserter{keys: make(map[string]bool)}
}

func (m *memInserter) InsertNew(_ context.Context, item *models.IndexedItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	key := item.ConnectionID.Hex() + "/" + item.RemoteKey
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

type scriptedCapability struct {
	capability models.Capability
	kind       models.ItemKind
	items      []RemoteItem
	err        error
	fetches    int
}

func (c *scriptedCapability) Capability() models.Capability { return c.capability }
func (c *scriptedCapability) Kind() models.ItemKind         { return c.kind }

func (c *scriptedCapability) FetchPage(_ context.Context, _ *models.Connection, page, pageSize int) ([]RemoteItem, bool, error) {
	c.fetches++
	if c.err != nil {
		return nil, false, c.err
	}
	start := page * pageSize
	if start >= len(c.items) {
		return nil, false, nil
	}
	end := start + pageSize
	if end > len(c.items) {
		end = len(c.items)
	}
	return c.items[start:end], end < len(c.items), nil
}

type countingLimiter struct {
	mu       sync.Mutex
	acquires int
}

func (l *countingLimiter) Acquire(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return nil
}

func wikiConnection() *models.Connection {
	return &models.Connection{
		ID:                    models.NewConnectionID(),
		ClientID:              models.NewClientID(),
		Name:                  "corp-confluence",
		Provider:              models.ProviderAtlassian,
		BaseURL:               "https://corp.atlassian.net",
		AvailableCapabilities: []models.Capability{models.CapabilityWiki},
	}
}

func remotePages(n int) []RemoteItem {
	items := make([]RemoteItem, n)
	for i := range items {
		items[i] = RemoteItem{
			Key:       fmt.Sprintf("page-%d", i),
			UpdatedAt: time.Now().UTC(),
			Payload:   &models.ItemPayload{Title: fmt.Sprintf("Page %d", i), Body: "content"},
		}
	}
	return items
}

func TestPollCreatesNewItems(t *testing.T) {
	capability := &scriptedCapability{
		capability: models.CapabilityWiki,
		kind:       models.KindConfluencePage,
		items:      remotePages(5),
	}
	inserter := newMemInserter()
	h := NewProviderHandler(models.ProviderAtlassian,
		[]CapabilityHandler{capability},
		map[models.ItemKind]ItemInserter{models.KindConfluencePage: inserter},
		&countingLimiter{}, 2, 100)

	result, err := h.Poll(context.Background(), NewContext(wikiConnection(), nil))
	require.NoError(t, err)
	assert.Equal(t, Result{Discovered: 5, Created: 5}, result)
}

func TestPollIsIdempotentAcrossRuns(t *testing.T) {
	capability := &scriptedCapability{
		capability: models.CapabilityWiki,
		kind:       models.KindConfluencePage,
		items:      remotePages(4),
	}
	inserter := newMemInserter()
	h := NewProviderHandler(models.ProviderAtlassian,
		[]CapabilityHandler{capability},
		map[models.ItemKind]ItemInserter{models.KindConfluencePage: inserter},
		&countingLimiter{}, 10, 100)
	pc := NewContext(wikiConnection(), nil)

	first, err := h.Poll(context.Background(), pc)
	require.NoError(t, err)
	second, err := h.Poll(context.Background(), pc)
	require.NoError(t, err)

	assert.Equal(t, first.Discovered, second.Discovered)
	assert.Zero(t, second.Created)
	assert.Equal(t, second.Discovered, second.Skipped)
}

func TestPollSkipsMissingCapabilities(t *testing.T) {
	wiki := &scriptedCapability{capability: models.CapabilityWiki, kind: models.KindConfluencePage, items: remotePages(1)}
	bugs := &scriptedCapability{capability: models.CapabilityBugtracker, kind: models.KindJiraIssue, items: remotePages(1)}
	h := NewProviderHandler(models.ProviderAtlassian,
		[]CapabilityHandler{wiki, bugs},
		map[models.ItemKind]ItemInserter{
			models.KindConfluencePage: newMemInserter(),
			models.KindJiraIssue:      newMemInserter(),
		},
		&countingLimiter{}, 10, 100)

	// The connection only exposes WIKI; the bugtracker sub-handler must not run.
	_, err := h.Poll(context.Background(), NewContext(wikiConnection(), nil))
	require.NoError(t, err)
	assert.Equal(t, 1, wiki.fetches)
	assert.Zero(t, bugs.fetches)
}

func TestPollBoundsItemsPerRun(t *testing.T) {
	capability := &scriptedCapability{
		capability: models.CapabilityWiki,
		kind:       models.KindConfluencePage,
		items:      remotePages(50),
	}
	h := NewProviderHandler(models.ProviderAtlassian,
		[]CapabilityHandler{capability},
		map[models.ItemKind]ItemInserter{models.KindConfluencePage: newMemInserter()},
		&countingLimiter{}, 10, 25)

	result, err := h.Poll(context.Background(), NewContext(wikiConnection(), nil))
	require.NoError(t, err)
	assert.Equal(t, 25, result.Discovered)
	assert.Equal(t, 25, result.Created)
}

func TestPollRateLimitsEveryPageFetch(t *testing.T) {
	capability := &scriptedCapability{
		capability: models.CapabilityWiki,
		kind:       models.KindConfluencePage,
		items:      remotePages(6),
	}
	limiter := &countingLimiter{}
	h := NewProviderHandler(models.ProviderAtlassian,
		[]CapabilityHandler{capability},
		map[models.ItemKind]ItemInserter{models.KindConfluencePage: newMemInserter()},
		limiter, 2, 100)

	_, err := h.Poll(context.Background(), NewContext(wikiConnection(), nil))
	require.NoError(t, err)
	assert.Equal(t, 3, capability.fetches)
	assert.Equal(t, 3, limiter.acquires)
}

func TestPollFiltersRepositoryItemsByIndexingRules(t *testing.T) {
	conn := wikiConnection()
	conn.Provider = models.ProviderGitLab
	conn.AvailableCapabilities = []models.Capability{models.CapabilityRepository}
	now := time.Now().UTC()
	capability := &scriptedCapability{
		capability: models.CapabilityRepository,
		kind:       models.KindGitCommit,
		items: []RemoteItem{
			{Key: "f1", UpdatedAt: now, Path: "src/main.go", SizeBytes: 900,
				Payload: &models.ItemPayload{Title: "main.go"}},
			{Key: "f2", UpdatedAt: now, Path: "vendor/lib/dep.go", SizeBytes: 100,
				Payload: &models.ItemPayload{Title: "dep.go"}},
			{Key: "f3", UpdatedAt: now, Path: "assets/blob.bin", SizeBytes: 5 << 20,
				Payload: &models.ItemPayload{Title: "blob.bin"}},
		},
	}
	inserter := newMemInserter()
	h := NewProviderHandler(models.ProviderGitLab,
		[]CapabilityHandler{capability},
		map[models.ItemKind]ItemInserter{models.KindGitCommit: inserter},
		&countingLimiter{}, 10, 100)

	pc := NewContext(conn, []models.Project{{
		ID:       models.NewProjectID(),
		ClientID: conn.ClientID,
		IndexingRules: models.IndexingRules{
			ExcludeGlobs:     []string{"vendor/**"},
			MaxFileSizeBytes: 1 << 20,
		},
	}})

	// The excluded glob and the oversize file never reach the item store.
	result, err := h.Poll(context.Background(), pc)
	require.NoError(t, err)
	assert.Equal(t, Result{Discovered: 3, Created: 1, Skipped: 2}, result)
	assert.Len(t, inserter.keys, 1)
	assert.True(t, inserter.keys[conn.ID.Hex()+"/f1"])
}

func TestContextWithoutProjectsAllowsEverything(t *testing.T) {
	pc := NewContext(wikiConnection(), nil)
	assert.True(t, pc.AllowsIndexing("vendor/anything.bin", 1<<30))
}

func TestPollCountsCapabilityFailure(t *testing.T) {
	broken := &scriptedCapability{
		capability: models.CapabilityWiki,
		kind:       models.KindConfluencePage,
		err:        fmt.Errorf("401 unauthorized"),
	}
	h := NewProviderHandler(models.ProviderAtlassian,
		[]CapabilityHandler{broken},
		map[models.ItemKind]ItemInserter{models.KindConfluencePage: newMemInserter()},
		&countingLimiter{}, 10, 100)

	result, err := h.Poll(context.Background(), NewContext(wikiConnection(), nil))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
}

func TestContextProjectProjection(t *testing.T) {
	conn := wikiConnection()
	projectID := models.NewProjectID()
	otherClient := models.NewClientID()
	pc := NewContext(conn, []models.Project{
		{ID: projectID, ClientID: conn.ClientID},
	})

	got := pc.GetProjectID(conn.ClientID)
	require.NotNil(t, got)
	assert.Equal(t, projectID, *got)
	// No explicit attachment means "inherit on all projects".
	assert.Nil(t, pc.GetProjectID(otherClient))
}
