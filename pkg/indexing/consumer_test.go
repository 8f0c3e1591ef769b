package indexing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jervis-ai/jervis/pkg/models"
)

type scriptedSource struct {
	mu      sync.Mutex
	pages   [][]models.IndexedItem
	queries int
}

func (s *scriptedSource) NextNewPage(_ context.Context, _ int) ([]models.IndexedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func newItem(remoteKey string) models.IndexedItem {
	return *models.NewIndexedItem(models.KindConfluencePage, models.NewConnectionID(), remoteKey,
		time.Now().UTC(), &models.ItemPayload{Title: remoteKey, Body: "body"})
}

func TestContinuousNewItemsYieldsPages(t *testing.T) {
	source := &scriptedSource{pages: [][]models.IndexedItem{
		{newItem("p1"), newItem("p2")},
		{newItem("p3")},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items := ContinuousNewItems(ctx, source, 10, 10*time.Millisecond)

	var got []string
	for len(got) < 3 {
		select {
		case item := <-items:
			got = append(got, item.RemoteKey)
		case <-time.After(time.Second):
			t.Fatal("stream stalled")
		}
	}
	assert.Equal(t, []string{"p1", "p2", "p3"}, got)
}

func TestContinuousNewItemsSleepsWhenExhausted(t *testing.T) {
	source := &scriptedSource{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = ContinuousNewItems(ctx, source, 10, 50*time.Millisecond)

	// With an empty source and a 50ms delay, only a couple of queries fit
	// into the observation window. A busy spin would run thousands.
	time.Sleep(120 * time.Millisecond)
	source.mu.Lock()
	queries := source.queries
	source.mu.Unlock()
	assert.LessOrEqual(t, queries, 4)
	assert.GreaterOrEqual(t, queries, 2)
}

func TestContinuousNewItemsTerminatesOnCancel(t *testing.T) {
	source := &scriptedSource{pages: [][]models.IndexedItem{
		{newItem("p1"), newItem("p2"), newItem("p3")},
	}}
	ctx, cancel := context.WithCancel(context.Background())

	items := ContinuousNewItems(ctx, source, 10, time.Minute)

	select {
	case <-items:
	case <-time.After(time.Second):
		t.Fatal("no item yielded")
	}
	cancel()

	// The stream ends at the next yield boundary and the channel closes.
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-items:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after cancellation")
		}
	}
}
