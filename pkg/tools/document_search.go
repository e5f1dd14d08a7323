package tools

import (
	"context"
	"fmt"

	"ai-assistant-be/pkg/store"

	"github.com/google/uuid"
)

// Searcher is the slice of the retrieval client the tool needs.
type Searcher interface {
	Retrieve(ctx context.Context, query string, scope []uuid.UUID, limit int, threshold float64) ([]store.Passage, error)
}

// DocumentSearchTool lets the model pull additional passages from the
// user's document index mid-loop.
type DocumentSearchTool struct {
	searcher  Searcher
	limit     int
	threshold float64
}

func NewDocumentSearchTool(searcher Searcher, limit int, threshold float64) *DocumentSearchTool {
	if limit <= 0 {
		limit = 5
	}
	return &DocumentSearchTool{
		searcher:  searcher,
		limit:     limit,
		threshold: threshold,
	}
}

func (t *DocumentSearchTool) Name() string { return "document_search" }

func (t *DocumentSearchTool) Description() string {
	return "Searches the user's documents for passages relevant to a query. Use when the answer may depend on the user's own material."
}

func (t *DocumentSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to search for",
			},
		},
		"required": []string{"query"},
	}
}

func (t *DocumentSearchTool) Call(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("missing 'query' argument")
	}

	passages, err := t.searcher.Retrieve(ctx, query, nil, t.limit, t.threshold)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, len(passages))
	for _, p := range passages {
		results = append(results, map[string]any{
			"document_id": p.DocumentId.String(),
			"title":       p.Title,
			"content":     p.Content,
			"score":       p.Score,
		})
	}
	return map[string]any{"passages": results}, nil
}
