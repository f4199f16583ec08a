package search

import (
	"context"
	"strings"

	catalogx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/catalog"
)

// QueryPrefix is prepended to queries before they are embedded.
const QueryPrefix = "Represent this sentence for searching relevant passages: "

// QueryPrompt wraps a user query for retrieval.
func QueryPrompt(query string) string {
	return QueryPrefix + strings.ReplaceAll(strings.TrimSpace(query), "\n", " ")
}

type Document struct {
	ProductID  int    `json:"product_id"`
	Name       string `json:"product_name"`
	Aisle      string `json:"aisle"`
	Department string `json:"department"`
	Text       string `json:"text"`
}

type ScoredDocument struct {
	Document
	Score float64 `json:"score"`
}

// Searcher is the similarity search collaborator used by the search tool.
type Searcher interface {
	SimilaritySearch(ctx context.Context, text string, k int) ([]ScoredDocument, error)
}

func DocumentsFromCatalog(c *catalogx.Catalog) []Document {
	products := c.Products()
	docs := make([]Document, 0, len(products))
	for _, p := range products {
		docs = append(docs, Document{
			ProductID:  p.ID,
			Name:       p.Name,
			Aisle:      p.Aisle,
			Department: p.Department,
			Text:       p.Document(),
		})
	}
	return docs
}
