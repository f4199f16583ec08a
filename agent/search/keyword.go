package search

import (
	"context"
	"strings"
	"unicode"
)

// KeywordIndex scores documents by query term overlap. It needs no
// embedding provider and serves as the offline fallback.
type KeywordIndex struct {
	docs   []Document
	tokens []map[string]struct{}
}

func NewKeywordIndex(docs []Document) *KeywordIndex {
	idx := &KeywordIndex{
		docs:   append([]Document(nil), docs...),
		tokens: make([]map[string]struct{}, len(docs)),
	}
	for i, d := range docs {
		set := make(map[string]struct{})
		for _, tok := range tokenize(d.Name + " " + d.Aisle + " " + d.Department) {
			set[tok] = struct{}{}
		}
		idx.tokens[i] = set
	}
	return idx
}

func (k *KeywordIndex) SimilaritySearch(ctx context.Context, text string, limit int) ([]ScoredDocument, error) {
	if limit <= 0 {
		return nil, nil
	}
	terms := tokenize(strings.TrimPrefix(text, QueryPrefix))
	if len(terms) == 0 {
		return nil, nil
	}

	scored := make([]ScoredDocument, 0, 16)
	for i, doc := range k.docs {
		hits := 0
		for _, term := range terms {
			if _, ok := k.tokens[i][term]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		// shorter names win ties so "Banana" ranks above "Banana Chips"
		score := float64(hits)/float64(len(terms)) + 1/float64(len(k.tokens[i])+1)/100
		scored = append(scored, ScoredDocument{Document: doc, Score: score})
	}
	return topK(scored, limit), nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

func stem(tok string) string {
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 4:
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "es") && len(tok) > 4 && strings.ContainsAny(tok[len(tok)-3:len(tok)-2], "sxz"):
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") && len(tok) > 3:
		return tok[:len(tok)-1]
	default:
		return tok
	}
}
