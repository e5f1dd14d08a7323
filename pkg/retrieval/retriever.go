package retrieval

import (
	"context"
	"fmt"

	"ai-assistant-be/internal/repository/contract"
	"ai-assistant-be/internal/repository/specification"
	"ai-assistant-be/pkg/embedding"
	"ai-assistant-be/pkg/store"

	"github.com/google/uuid"
)

// Retriever turns a free-text query into scored passages from the user's
// document index. Results come back ordered by descending similarity.
type Retriever struct {
	embedder   embedding.EmbeddingProvider
	embeddings contract.DocumentEmbeddingRepository
	documents  contract.DocumentRepository
}

func NewRetriever(embedder embedding.EmbeddingProvider, embeddings contract.DocumentEmbeddingRepository, documents contract.DocumentRepository) *Retriever {
	return &Retriever{
		embedder:   embedder,
		embeddings: embeddings,
		documents:  documents,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, userId uuid.UUID, query string, scope []uuid.UUID, limit int, threshold float64) ([]store.Passage, error) {
	resp, err := r.embedder.Generate(ctx, query, embedding.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := r.embeddings.SearchSimilarWithScore(ctx, resp.Values, limit, userId, scope, threshold)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	titles, err := r.documentTitles(ctx, chunks)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(chunks))
	passages := make([]store.Passage, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding == nil || seen[c.Embedding.Id] {
			continue
		}
		seen[c.Embedding.Id] = true
		passages = append(passages, store.Passage{
			DocumentId: c.Embedding.DocumentId,
			ChunkId:    c.Embedding.Id,
			Title:      titles[c.Embedding.DocumentId],
			Content:    c.Embedding.Chunk,
			Score:      c.Similarity,
		})
	}
	return passages, nil
}

func (r *Retriever) documentTitles(ctx context.Context, chunks []*contract.ScoredChunk) (map[uuid.UUID]string, error) {
	ids := make([]uuid.UUID, 0, len(chunks))
	seen := make(map[uuid.UUID]bool, len(chunks))
	for _, c := range chunks {
		if c.Embedding == nil || seen[c.Embedding.DocumentId] {
			continue
		}
		seen[c.Embedding.DocumentId] = true
		ids = append(ids, c.Embedding.DocumentId)
	}

	docs, err := r.documents.FindAll(ctx, specification.ByIDs{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("hydrate document titles: %w", err)
	}

	titles := make(map[uuid.UUID]string, len(docs))
	for _, d := range docs {
		titles[d.Id] = d.Title
	}
	return titles, nil
}

// ContextScoped resolves the acting user from the context, for callers
// whose signatures carry no identity of their own.
type ContextScoped struct {
	retriever *Retriever
}

func (r *Retriever) Scoped() *ContextScoped {
	return &ContextScoped{retriever: r}
}

func (s *ContextScoped) Retrieve(ctx context.Context, query string, scope []uuid.UUID, limit int, threshold float64) ([]store.Passage, error) {
	userId, ok := store.UserIdFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no acting user on context")
	}
	return s.retriever.Retrieve(ctx, userId, query, scope, limit, threshold)
}
