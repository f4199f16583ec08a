package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	logx "github.com/tanpawarit/Chative-Shopping-Assistant/pkg/logger"
)

// Embedder turns texts into vectors of equal dimension.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

const defaultBatchSize = 256

// VectorIndex is an in-memory cosine similarity index.
type VectorIndex struct {
	embedder Embedder
	docs     []Document
	vectors  [][]float64
}

func BuildVectorIndex(ctx context.Context, embedder Embedder, docs []Document, batchSize int) (*VectorIndex, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	idx := &VectorIndex{
		embedder: embedder,
		docs:     append([]Document(nil), docs...),
		vectors:  make([][]float64, 0, len(docs)),
	}

	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.Text)
		}

		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed documents %d-%d: %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(texts))
		}
		for _, v := range vecs {
			idx.vectors = append(idx.vectors, normalize(v))
		}
		logx.Debug().Int("embedded", end).Int("total", len(docs)).Msg("vector index batch done")
	}
	return idx, nil
}

func (v *VectorIndex) SimilaritySearch(ctx context.Context, text string, k int) ([]ScoredDocument, error) {
	if k <= 0 || len(v.docs) == 0 {
		return nil, nil
	}
	vecs, err := v.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}
	query := normalize(vecs[0])

	scored := make([]ScoredDocument, 0, len(v.docs))
	for i, doc := range v.docs {
		scored = append(scored, ScoredDocument{Document: doc, Score: dot(query, v.vectors[i])})
	}
	return topK(scored, k), nil
}

func topK(scored []ScoredDocument, k int) []ScoredDocument {
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}
