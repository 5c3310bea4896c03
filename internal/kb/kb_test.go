package kb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcall/gateway/internal/store"
)

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

type fakeKnowledgeStore struct {
	entries []store.KnowledgeEntry
	addErr  error
}

func (f *fakeKnowledgeStore) AddKnowledge(_ context.Context, e *store.KnowledgeEntry) error {
	if f.addErr != nil {
		return f.addErr
	}
	e.ID = "kb-1"
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeKnowledgeStore) ListKnowledge(context.Context) ([]store.KnowledgeEntry, error) {
	return f.entries, nil
}

func (f *fakeKnowledgeStore) CountKnowledge(context.Context) (int, error) {
	return len(f.entries), nil
}

func TestAddEmbedsQuestion(t *testing.T) {
	st := &fakeKnowledgeStore{}
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"返品できますか": {1, 0, 0},
	}}
	svc := NewService(st, embedder)

	entry, err := svc.Add(context.Background(), "policy", "返品できますか", "30日以内であれば可能です")
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 0, 0}, entry.Embedding)
	require.Len(t, st.entries, 1)
	assert.Equal(t, "policy", st.entries[0].Category)
}

func TestAddEmbedFailureIsError(t *testing.T) {
	st := &fakeKnowledgeStore{}
	svc := NewService(st, &fakeEmbedder{err: errors.New("api down")})

	_, err := svc.Add(context.Background(), "policy", "q", "a")
	require.Error(t, err)
	assert.Empty(t, st.entries)
}

func TestSearchRanksBySimilarity(t *testing.T) {
	st := &fakeKnowledgeStore{entries: []store.KnowledgeEntry{
		{ID: "a", Question: "exact", Embedding: []float64{1, 0, 0}},
		{ID: "b", Question: "close", Embedding: []float64{0.9, 0.1, 0}},
		{ID: "c", Question: "far", Embedding: []float64{0, 1, 0}},
	}}
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"query": {1, 0, 0},
	}}
	svc := NewService(st, embedder)

	matches, err := svc.Search(context.Background(), "query", 0.5, 0)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "b", matches[1].ID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestSearchAppliesThresholdAndLimit(t *testing.T) {
	st := &fakeKnowledgeStore{}
	for i := 0; i < 10; i++ {
		st.entries = append(st.entries, store.KnowledgeEntry{Embedding: []float64{1, 0, 0}})
	}
	embedder := &fakeEmbedder{vectors: map[string][]float64{"query": {1, 0, 0}}}
	svc := NewService(st, embedder)

	matches, err := svc.Search(context.Background(), "query", 0.99, 3)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	// Orthogonal query matches nothing above the threshold.
	embedder.vectors["query"] = []float64{0, 1, 0}
	matches, err = svc.Search(context.Background(), "query", 0.5, 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{1, 0, 0}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
	assert.Equal(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 1}))
}
