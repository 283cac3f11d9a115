package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
)

func longContent(tag string) string {
	return strings.Repeat(tag+" content with enough substance to pass filtering. ", 3)
}

func TestSupplementalRetriever_NilSearcher(t *testing.T) {
	s := NewSupplementalRetriever(DefaultWebSearchConfig(), nil, zap.NewNop())

	snippets := s.Fetch(context.Background(), QueryAnalysis{Category: CategoryFactual})
	if snippets != nil {
		t.Errorf("expected nil without a searcher, got %d snippets", len(snippets))
	}
}

func TestSupplementalRetriever_SearcherError(t *testing.T) {
	searcher := WebSearcherFunc(func(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error) {
		return nil, errors.New("provider unavailable")
	})
	s := NewSupplementalRetriever(DefaultWebSearchConfig(), searcher, zap.NewNop())

	snippets := s.Fetch(context.Background(), QueryAnalysis{Category: CategoryFactual, RewrittenQuery: "q"})
	if snippets != nil {
		t.Error("provider failure must degrade to no supplement, not an error")
	}
}

func TestSupplementalRetriever_CategoryPresets(t *testing.T) {
	tests := []struct {
		category   QueryCategory
		maxResults int
		depth      SearchDepth
	}{
		{CategoryFactual, 3, DepthBasic},
		{CategoryRelational, 4, DepthAdvanced},
		{CategoryAnalytical, 5, DepthAdvanced},
		{QueryCategory("unknown"), 5, DepthAdvanced},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			var gotMax int
			var gotDepth SearchDepth
			searcher := WebSearcherFunc(func(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error) {
				gotMax = maxResults
				gotDepth = depth
				return nil, nil
			})
			s := NewSupplementalRetriever(DefaultWebSearchConfig(), searcher, zap.NewNop())

			s.Fetch(context.Background(), QueryAnalysis{Category: tt.category, RewrittenQuery: "q"})
			if gotMax != tt.maxResults || gotDepth != tt.depth {
				t.Errorf("expected (%d, %s), got (%d, %s)", tt.maxResults, tt.depth, gotMax, gotDepth)
			}
		})
	}
}

func TestSupplementalRetriever_QueryBuilding(t *testing.T) {
	var gotQuery string
	searcher := WebSearcherFunc(func(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error) {
		gotQuery = query
		return nil, nil
	})
	s := NewSupplementalRetriever(DefaultWebSearchConfig(), searcher, zap.NewNop())

	s.Fetch(context.Background(), QueryAnalysis{
		Category:       CategoryFactual,
		RewrittenQuery: "what is machine learning",
		KeyEntities:    []string{"e1", "e2", "e3", "e4", "e5"},
	})

	if !strings.HasPrefix(gotQuery, "what is machine learning") {
		t.Errorf("query must start with the rewritten query, got %q", gotQuery)
	}
	for _, modifier := range []string{"definition", "explanation"} {
		if !strings.Contains(gotQuery, modifier) {
			t.Errorf("query missing modifier %q: %q", modifier, gotQuery)
		}
	}
	// 实体上限 3：e4 / e5 不应出现
	if strings.Contains(gotQuery, "e4") || strings.Contains(gotQuery, "e5") {
		t.Errorf("query must keep at most 3 entities, got %q", gotQuery)
	}
}

func TestSupplementalRetriever_QueryLengthCap(t *testing.T) {
	var gotQuery string
	searcher := WebSearcherFunc(func(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error) {
		gotQuery = query
		return nil, nil
	})
	s := NewSupplementalRetriever(DefaultWebSearchConfig(), searcher, zap.NewNop())

	s.Fetch(context.Background(), QueryAnalysis{
		Category:       CategoryFactual,
		RewrittenQuery: strings.Repeat("long query ", 40),
	})

	if len(gotQuery) > 200 {
		t.Errorf("query length must be capped at 200, got %d", len(gotQuery))
	}
}

func TestSupplementalRetriever_FilterSortCapRank(t *testing.T) {
	results := []SearchResult{
		{Title: "low", Content: longContent("low"), URL: "https://a.example", Score: 0.2},
		{Title: "", Content: longContent("untitled"), URL: "https://b.example", Score: 0.99},
		{Title: "short", Content: "too short", URL: "https://c.example", Score: 0.95},
		{Title: "high", Content: longContent("high"), URL: "https://d.example", Score: 0.9},
		{Title: "mid", Content: longContent("mid"), URL: "https://e.example", Score: 0.5},
	}
	searcher := WebSearcherFunc(func(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error) {
		return results, nil
	})
	s := NewSupplementalRetriever(DefaultWebSearchConfig(), searcher, zap.NewNop())

	snippets := s.Fetch(context.Background(), QueryAnalysis{Category: CategoryFactual, RewrittenQuery: "q"})

	if len(snippets) != 3 {
		t.Fatalf("expected 3 snippets after filtering, got %d", len(snippets))
	}
	wantOrder := []string{"high", "mid", "low"}
	for i, want := range wantOrder {
		if snippets[i].Title != want {
			t.Errorf("position %d: expected title %q, got %q", i, want, snippets[i].Title)
		}
		if snippets[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, snippets[i].Rank)
		}
	}
}

func TestSupplementalRetriever_RetainedCap(t *testing.T) {
	results := make([]SearchResult, 10)
	for i := range results {
		results[i] = SearchResult{
			Title:   fmt.Sprintf("result %d", i),
			Content: longContent("bulk"),
			URL:     fmt.Sprintf("https://example.com/%d", i),
			Score:   float64(i) / 10,
		}
	}
	searcher := WebSearcherFunc(func(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error) {
		return results, nil
	})

	config := DefaultWebSearchConfig()
	s := NewSupplementalRetriever(config, searcher, zap.NewNop())
	snippets := s.Fetch(context.Background(), QueryAnalysis{Category: CategoryFactual, RewrittenQuery: "q"})
	if len(snippets) != config.MaxRetained {
		t.Errorf("expected %d retained, got %d", config.MaxRetained, len(snippets))
	}

	// 配置超过硬上限时被压回 7
	config.MaxRetained = 100
	s = NewSupplementalRetriever(config, searcher, zap.NewNop())
	snippets = s.Fetch(context.Background(), QueryAnalysis{Category: CategoryFactual, RewrittenQuery: "q"})
	if len(snippets) != maxWebEvidence {
		t.Errorf("expected hard cap %d, got %d", maxWebEvidence, len(snippets))
	}
}

func TestMakeSnippet(t *testing.T) {
	content := "line one\n\n  line    two\tline three"
	snippet := makeSnippet(content, 200)
	if snippet != "line one line two line three" {
		t.Errorf("whitespace not collapsed: %q", snippet)
	}

	long := strings.Repeat("a", 300)
	snippet = makeSnippet(long, 200)
	if len(snippet) != 203 || !strings.HasSuffix(snippet, "...") {
		t.Errorf("expected 200-char truncation with ellipsis, got len=%d", len(snippet))
	}
}

func TestMakeSnippet_MultiByteContent(t *testing.T) {
	// 中文内容按字节截断时不得切断 rune
	snippet := makeSnippet(strings.Repeat("分布式缓存一致性", 20), 50)
	if !utf8.ValidString(snippet) {
		t.Errorf("snippet is not valid UTF-8: %q", snippet)
	}
	if len(snippet) > 53 {
		t.Errorf("snippet exceeds cap: len=%d", len(snippet))
	}
}

func TestSupplementalRetriever_QueryCapMultiByte(t *testing.T) {
	var gotQuery string
	searcher := WebSearcherFunc(func(ctx context.Context, query string, maxResults int, depth SearchDepth) ([]SearchResult, error) {
		gotQuery = query
		return nil, nil
	})
	s := NewSupplementalRetriever(DefaultWebSearchConfig(), searcher, zap.NewNop())

	s.Fetch(context.Background(), QueryAnalysis{
		Category:       CategoryFactual,
		RewrittenQuery: strings.Repeat("数据库事务隔离级别", 30),
	})

	if !utf8.ValidString(gotQuery) {
		t.Errorf("outbound query is not valid UTF-8: %q", gotQuery)
	}
	if len(gotQuery) > 200 {
		t.Errorf("query length must be capped at 200, got %d", len(gotQuery))
	}
}
