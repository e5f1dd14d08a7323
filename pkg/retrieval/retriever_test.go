package retrieval

import (
	"context"
	"errors"
	"testing"

	"ai-assistant-be/internal/entity"
	"ai-assistant-be/internal/repository/contract"
	"ai-assistant-be/internal/repository/specification"
	"ai-assistant-be/pkg/embedding"
	"ai-assistant-be/pkg/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	values   []float32
	err      error
	lastTask string
}

func (f *fakeEmbedder) Generate(_ context.Context, _ string, taskType string) (*embedding.Response, error) {
	f.lastTask = taskType
	if f.err != nil {
		return nil, f.err
	}
	return &embedding.Response{Values: f.values}, nil
}

// fakeEmbeddingRepo embeds the contract so only the search method needs a body.
type fakeEmbeddingRepo struct {
	contract.DocumentEmbeddingRepository
	chunks []*contract.ScoredChunk
	err    error

	gotUserId uuid.UUID
	gotScope  []uuid.UUID
	gotLimit  int
}

func (f *fakeEmbeddingRepo) SearchSimilarWithScore(_ context.Context, _ []float32, limit int, userId uuid.UUID, documentIds []uuid.UUID, _ float64) ([]*contract.ScoredChunk, error) {
	f.gotUserId = userId
	f.gotScope = documentIds
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type fakeDocumentRepo struct {
	contract.DocumentRepository
	documents []*entity.Document
	err       error
}

func (f *fakeDocumentRepo) FindAll(_ context.Context, _ ...specification.Specification) ([]*entity.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.documents, nil
}

func scoredChunk(documentId uuid.UUID, content string, score float64) *contract.ScoredChunk {
	return &contract.ScoredChunk{
		Embedding: &entity.DocumentEmbedding{
			Id:         uuid.New(),
			DocumentId: documentId,
			Chunk:      content,
		},
		Similarity: score,
	}
}

func TestRetrieve(t *testing.T) {
	docA := uuid.New()
	docB := uuid.New()
	embedder := &fakeEmbedder{values: []float32{0.1, 0.2}}
	embeddings := &fakeEmbeddingRepo{chunks: []*contract.ScoredChunk{
		scoredChunk(docA, "chunk one", 0.92),
		scoredChunk(docB, "chunk two", 0.81),
	}}
	documents := &fakeDocumentRepo{documents: []*entity.Document{
		{Id: docA, Title: "Onboarding Guide"},
		{Id: docB, Title: "Release Checklist"},
	}}
	r := NewRetriever(embedder, embeddings, documents)

	userId := uuid.New()
	scope := []uuid.UUID{docA}
	passages, err := r.Retrieve(context.Background(), userId, "find things", scope, 5, 0.35)
	require.NoError(t, err)

	require.Len(t, passages, 2)
	assert.Equal(t, "Onboarding Guide", passages[0].Title)
	assert.Equal(t, "chunk one", passages[0].Content)
	assert.Equal(t, 0.92, passages[0].Score)
	assert.Equal(t, "Release Checklist", passages[1].Title)

	assert.Equal(t, embedding.TaskTypeQuery, embedder.lastTask)
	assert.Equal(t, userId, embeddings.gotUserId)
	assert.Equal(t, scope, embeddings.gotScope)
	assert.Equal(t, 5, embeddings.gotLimit)
}

func TestRetrieveDeduplicatesChunks(t *testing.T) {
	docId := uuid.New()
	duplicate := scoredChunk(docId, "same chunk", 0.9)
	embeddings := &fakeEmbeddingRepo{chunks: []*contract.ScoredChunk{duplicate, duplicate}}
	documents := &fakeDocumentRepo{documents: []*entity.Document{{Id: docId, Title: "Doc"}}}
	r := NewRetriever(&fakeEmbedder{values: []float32{1}}, embeddings, documents)

	passages, err := r.Retrieve(context.Background(), uuid.New(), "q", nil, 5, 0.35)
	require.NoError(t, err)
	assert.Len(t, passages, 1)
}

func TestRetrieveEmptyResult(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{values: []float32{1}}, &fakeEmbeddingRepo{}, &fakeDocumentRepo{})

	passages, err := r.Retrieve(context.Background(), uuid.New(), "q", nil, 5, 0.35)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetrieveErrors(t *testing.T) {
	t.Run("embedder failure", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{err: errors.New("offline")}, &fakeEmbeddingRepo{}, &fakeDocumentRepo{})
		_, err := r.Retrieve(context.Background(), uuid.New(), "q", nil, 5, 0.35)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embed query")
	})

	t.Run("search failure", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{values: []float32{1}}, &fakeEmbeddingRepo{err: errors.New("db down")}, &fakeDocumentRepo{})
		_, err := r.Retrieve(context.Background(), uuid.New(), "q", nil, 5, 0.35)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "similarity search")
	})
}

func TestScopedRequiresIdentity(t *testing.T) {
	docId := uuid.New()
	embeddings := &fakeEmbeddingRepo{chunks: []*contract.ScoredChunk{scoredChunk(docId, "c", 0.9)}}
	documents := &fakeDocumentRepo{documents: []*entity.Document{{Id: docId, Title: "Doc"}}}
	r := NewRetriever(&fakeEmbedder{values: []float32{1}}, embeddings, documents)
	scoped := r.Scoped()

	_, err := scoped.Retrieve(context.Background(), "q", nil, 5, 0.35)
	require.Error(t, err, "bare context carries no acting user")

	userId := uuid.New()
	ctx := store.WithUserId(context.Background(), userId)
	passages, err := scoped.Retrieve(ctx, "q", nil, 5, 0.35)
	require.NoError(t, err)
	assert.Len(t, passages, 1)
	assert.Equal(t, userId, embeddings.gotUserId)
}
