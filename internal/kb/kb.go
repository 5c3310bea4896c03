package kb

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/smartcall/gateway/internal/ai"
	"github.com/smartcall/gateway/internal/store"
)

// Default retrieval parameters.
const (
	DefaultThreshold = 0.7
	DefaultLimit     = 5
)

// KnowledgeStore persists knowledge base entries with their embeddings.
type KnowledgeStore interface {
	AddKnowledge(ctx context.Context, e *store.KnowledgeEntry) error
	ListKnowledge(ctx context.Context) ([]store.KnowledgeEntry, error)
	CountKnowledge(ctx context.Context) (int, error)
}

// Match is one knowledge base entry with its similarity to the query.
type Match struct {
	store.KnowledgeEntry
	Similarity float64 `json:"similarity"`
}

// Service embeds questions on ingest and answers similarity searches over
// the stored entries.
type Service struct {
	store    KnowledgeStore
	embedder ai.Embedder
}

// NewService creates a knowledge base service.
func NewService(st KnowledgeStore, embedder ai.Embedder) *Service {
	return &Service{store: st, embedder: embedder}
}

// Add embeds the question and stores the entry. Unlike suggestion
// generation, ingest failures are real errors: a silently unembedded entry
// would never be retrievable.
func (s *Service) Add(ctx context.Context, category, question, answer string) (*store.KnowledgeEntry, error) {
	embedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	entry := &store.KnowledgeEntry{
		Category:  category,
		Question:  question,
		Answer:    answer,
		Embedding: embedding,
	}
	if err = s.store.AddKnowledge(ctx, entry); err != nil {
		return nil, fmt.Errorf("store knowledge: %w", err)
	}
	return entry, nil
}

// Search returns entries similar to the query, best first. threshold <= 0
// and limit <= 0 take the defaults. The corpus is small enough that ranking
// happens in memory over all entries.
func (s *Service) Search(ctx context.Context, query string, threshold float64, limit int) ([]Match, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	entries, err := s.store.ListKnowledge(ctx)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}

	var matches []Match
	for _, e := range entries {
		sim := cosineSimilarity(queryEmbedding, e.Embedding)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{KnowledgeEntry: e, Similarity: sim})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count returns the number of stored entries.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.store.CountKnowledge(ctx)
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
