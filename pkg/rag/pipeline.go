package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/llm"
	"github.com/jervis-ai/jervis/pkg/models"
)

// Synthesizer turns retrieved fragments into a single answer string.
type Synthesizer interface {
	Synthesize(ctx context.Context, fragments, originalQuery string, quick bool) (string, error)
}

// Pipeline fans queries out to the vector store and synthesizes the results.
type Pipeline struct {
	store       VectorStore
	synthesizer Synthesizer
	cfg         *config.VectorStoreConfig
}

// NewPipeline wires the pipeline from its collaborators.
func NewPipeline(store VectorStore, synthesizer Synthesizer, cfg *config.VectorStoreConfig) *Pipeline {
	return &Pipeline{store: store, synthesizer: synthesizer, cfg: cfg}
}

// ExecuteRagPipeline runs every query concurrently, aggregates the scored
// chunks deterministically, and synthesizes one answer for originalQuery.
func (p *Pipeline) ExecuteRagPipeline(ctx context.Context, queries []string, originalQuery string, plan *models.Plan) (string, error) {
	chunks, err := p.searchAll(ctx, queries, plan)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}
	return p.synthesizer.Synthesize(ctx, renderFragments(chunks), originalQuery, plan.Quick)
}

// ExecuteRawSearch runs the queries and returns the aggregated chunks without
// synthesis, ordered by score descending.
func (p *Pipeline) ExecuteRawSearch(ctx context.Context, queries []string, plan *models.Plan) ([]DocumentChunk, error) {
	return p.searchAll(ctx, queries, plan)
}

func (p *Pipeline) searchAll(ctx context.Context, queries []string, plan *models.Plan) ([]DocumentChunk, error) {
	sc := SearchContext{
		ClientID:    plan.ClientID,
		ProjectID:   plan.ProjectID,
		Limit:       p.cfg.Limit,
		MinScore:    p.cfg.MinScore,
		HybridAlpha: p.cfg.HybridAlpha,
	}

	var (
		mu  sync.Mutex
		all []DocumentChunk
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, query := range queries {
		g.Go(func() error {
			chunks, err := p.store.HybridSearch(gctx, query, sc)
			if err != nil {
				return fmt.Errorf("query %q: %w", query, err)
			}
			mu.Lock()
			all = append(all, chunks...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortChunks(all)
	return all, nil
}

// sortChunks orders by score descending with ascending natural key as the
// tie-break so repeated queries produce reproducible ordering.
func sortChunks(chunks []DocumentChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].NaturalKey() < chunks[j].NaturalKey()
	})
}

// renderFragments numbers the chunks into the prompt-ready fragment block.
func renderFragments(chunks []DocumentChunk) string {
	var b strings.Builder
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] (score %.3f) %s\n", i+1, chunk.Score, chunk.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// LLMSynthesizer synthesizes answers through the gateway's SYNTHESIS prompt.
type LLMSynthesizer struct {
	gateway *llm.Gateway
}

// NewLLMSynthesizer creates the gateway-backed synthesizer.
func NewLLMSynthesizer(gateway *llm.Gateway) *LLMSynthesizer {
	return &LLMSynthesizer{gateway: gateway}
}

type synthesisResult struct {
	Answer string `json:"answer"`
}

// Synthesize implements Synthesizer.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, fragments, originalQuery string, quick bool) (string, error) {
	resp, err := llm.Call[synthesisResult](ctx, s.gateway, llm.Request{
		PromptType: config.PromptSynthesis,
		Values: map[string]string{
			"question":  originalQuery,
			"fragments": fragments,
		},
		Quick: quick,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	return resp.Result.Answer, nil
}
