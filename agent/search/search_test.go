package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	catalogx "github.com/tanpawarit/Chative-Shopping-Assistant/agent/catalog"
)

func testDocs() []Document {
	c := catalogx.New(catalogx.Data{
		Products: []catalogx.Product{
			{ID: 24852, Name: "Banana", AisleID: 24, DepartmentID: 4},
			{ID: 5, Name: "Banana Chips", AisleID: 50, DepartmentID: 19},
			{ID: 27845, Name: "Organic Whole Milk", AisleID: 84, DepartmentID: 16},
			{ID: 21137, Name: "Organic Strawberries", AisleID: 24, DepartmentID: 4},
		},
		Aisles:      map[int]string{24: "fresh fruits", 50: "fruit vegetable snacks", 84: "milk"},
		Departments: map[int]string{4: "produce", 16: "dairy eggs", 19: "snacks"},
	})
	return DocumentsFromCatalog(c)
}

func TestQueryPrompt(t *testing.T) {
	t.Parallel()

	got := QueryPrompt("  healthy\nsnacks ")
	want := "Represent this sentence for searching relevant passages: healthy snacks"
	if got != want {
		t.Fatalf("QueryPrompt() = %q, want %q", got, want)
	}
}

func TestDocumentsFromCatalog(t *testing.T) {
	t.Parallel()

	docs := testDocs()
	if len(docs) != 4 {
		t.Fatalf("docs = %d, want 4", len(docs))
	}
	if docs[0].Text != "Banana, found in the fresh fruits aisle of the produce department." {
		t.Fatalf("doc text = %q", docs[0].Text)
	}
}

func TestKeywordIndexRanksByOverlap(t *testing.T) {
	t.Parallel()

	idx := NewKeywordIndex(testDocs())
	got, err := idx.SimilaritySearch(context.Background(), QueryPrompt("bananas"), 5)
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %v, want 2 banana products", got)
	}
	if got[0].ProductID != 24852 {
		t.Fatalf("top result = %d, want 24852", got[0].ProductID)
	}

	got, _ = idx.SimilaritySearch(context.Background(), QueryPrompt("organic strawberries"), 1)
	if len(got) != 1 || got[0].ProductID != 21137 {
		t.Fatalf("top result = %v, want 21137", got)
	}

	got, _ = idx.SimilaritySearch(context.Background(), QueryPrompt("dog food"), 5)
	if len(got) != 0 {
		t.Fatalf("results = %v, want none", got)
	}
}

// axisEmbedder maps each text onto a fixed axis chosen by keyword.
type axisEmbedder struct {
	calls int
	err   error
}

func (a *axisEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, 3)
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "milk"):
			v[1] = 1
		case strings.Contains(lower, "strawberr"):
			v[2] = 1
		default:
			v[0] = 1
		}
		out[i] = v
	}
	return out, nil
}

func TestVectorIndexSearch(t *testing.T) {
	t.Parallel()

	emb := &axisEmbedder{}
	idx, err := BuildVectorIndex(context.Background(), emb, testDocs(), 3)
	if err != nil {
		t.Fatalf("BuildVectorIndex() error = %v", err)
	}
	if emb.calls != 2 {
		t.Fatalf("embed calls = %d, want 2 batches", emb.calls)
	}

	got, err := idx.SimilaritySearch(context.Background(), QueryPrompt("some milk please"), 1)
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	if len(got) != 1 || got[0].ProductID != 27845 {
		t.Fatalf("results = %v, want milk", got)
	}
}

func TestBuildVectorIndexPropagatesErrors(t *testing.T) {
	t.Parallel()

	_, err := BuildVectorIndex(context.Background(), &axisEmbedder{err: errors.New("boom")}, testDocs(), 0)
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("BuildVectorIndex() error = %v", err)
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","model":"m","data":[`+
			`{"object":"embedding","index":1,"embedding":[0,1]},`+
			`{"object":"embedding","index":0,"embedding":[1,0]}],`+
			`"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	}))
	t.Cleanup(server.Close)

	client := openaisdk.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(server.URL+"/"),
		option.WithMaxRetries(0),
	)
	emb, err := NewOpenAIEmbedder(&client, "m")
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder() error = %v", err)
	}

	vecs, err := emb.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if gotPath != "/embeddings" {
		t.Fatalf("path = %q, want /embeddings", gotPath)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("vectors = %v, want ordered by index", vecs)
	}
}
