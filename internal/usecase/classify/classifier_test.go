package classify

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/domain/search/path"
)

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func heuristicOnly() *Classifier {
	return New(nil, false, 0.75, zap.NewNop())
}

func TestClassify_QualifiedNames(t *testing.T) {
	cases := []string{
		"dbo.Customer",
		"sales.vw_orders",
		"sp_GetCustomerById",
		"usp_refresh_balances",
		"find tbl_claims for me",
		"fn_calculate_premium",
	}
	completer := &fakeCompleter{}
	c := New(completer, true, 0.75, zap.NewNop())
	for _, query := range cases {
		t.Run(query, func(t *testing.T) {
			got := c.Classify(context.Background(), query)
			if got.Path != path.Keyword {
				t.Errorf("expected keyword, got %s", got.Path)
			}
			if got.Confidence < 0.8 {
				t.Errorf("expected confidence >= 0.8, got %v", got.Confidence)
			}
		})
	}
	if completer.calls != 0 {
		t.Errorf("object-name queries must not invoke the AI fallback, got %d calls", completer.calls)
	}
}

func TestClassify_Vocabularies(t *testing.T) {
	cases := []struct {
		query      string
		wantPath   path.Path
		confidence float64
	}{
		{"show dependencies of irf_policy", path.Relationship, 0.9},
		{"what is downstream of the orders feed", path.Relationship, 0.9},
		{"impact of dropping the customer table", path.Relationship, 0.9},
		{"which tables contain pii", path.Metadata, 0.85},
		{"show me sensitive columns", path.Metadata, 0.85},
		{"explain how premiums are calculated", path.Agentic, 0.85},
		{"trace all flows from the claims feed", path.Agentic, 0.85},
		{"customer balance", path.Keyword, 0.8},
	}
	c := heuristicOnly()
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			got := c.Classify(context.Background(), tc.query)
			if got.Path != tc.wantPath {
				t.Errorf("expected %s, got %s (%s)", tc.wantPath, got.Path, got.Reasoning)
			}
			if got.Confidence != tc.confidence {
				t.Errorf("expected confidence %v, got %v", tc.confidence, got.Confidence)
			}
		})
	}
}

func TestClassify_FallsBackToSemantic(t *testing.T) {
	c := heuristicOnly()
	got := c.Classify(context.Background(), "where do we keep information about regional revenue trends")
	if got.Path != path.Semantic {
		t.Errorf("expected semantic, got %s", got.Path)
	}
	if got.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", got.Confidence)
	}
}

func TestClassify_Complexity(t *testing.T) {
	cases := []struct {
		query string
		want  search.Complexity
	}{
		{"customer", search.Simple},
		{"customer orders table", search.Simple},
		{"where are the customer orders stored", search.Medium},
		{"give me a comprehensive walkthrough of every table feeding the quarterly regulatory report", search.Complex},
	}
	c := heuristicOnly()
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			if got := c.Classify(context.Background(), tc.query); got.Complexity != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got.Complexity)
			}
		})
	}
}

func TestClassify_AIFallback(t *testing.T) {
	t.Run("refines low-confidence result", func(t *testing.T) {
		completer := &fakeCompleter{
			response: `{"path": "relationship", "confidence": 0.92, "reasoning": "asks what feeds a report"}`,
		}
		c := New(completer, true, 0.75, zap.NewNop())
		got := c.Classify(context.Background(), "what produces the figures on the quarterly statement")
		if completer.calls != 1 {
			t.Fatalf("expected one completion call, got %d", completer.calls)
		}
		if got.Path != path.Relationship || got.Confidence != 0.92 {
			t.Errorf("AI result not adopted: %+v", got)
		}
	})

	t.Run("provider error keeps heuristic result", func(t *testing.T) {
		completer := &fakeCompleter{err: errors.New("provider down")}
		c := New(completer, true, 0.75, zap.NewNop())
		got := c.Classify(context.Background(), "where do we keep information about regional revenue trends")
		if got.Path != path.Semantic || got.Confidence != 0.5 {
			t.Errorf("expected heuristic fallback, got %+v", got)
		}
	})

	t.Run("malformed json keeps heuristic result", func(t *testing.T) {
		completer := &fakeCompleter{response: "sure! the answer is relationship"}
		c := New(completer, true, 0.75, zap.NewNop())
		got := c.Classify(context.Background(), "where do we keep information about regional revenue trends")
		if got.Path != path.Semantic {
			t.Errorf("expected heuristic fallback, got %+v", got)
		}
	})

	t.Run("out-of-contract path rejected", func(t *testing.T) {
		completer := &fakeCompleter{response: `{"path": "telepathy", "confidence": 0.99, "reasoning": "x"}`}
		c := New(completer, true, 0.75, zap.NewNop())
		got := c.Classify(context.Background(), "where do we keep information about regional revenue trends")
		if got.Path != path.Semantic {
			t.Errorf("expected heuristic fallback, got %+v", got)
		}
	})

	t.Run("disabled fallback never calls provider", func(t *testing.T) {
		completer := &fakeCompleter{response: `{"path": "agentic", "confidence": 0.9, "reasoning": "x"}`}
		c := New(completer, false, 0.75, zap.NewNop())
		c.Classify(context.Background(), "where do we keep information about regional revenue trends")
		if completer.calls != 0 {
			t.Errorf("disabled fallback should not call the provider, got %d calls", completer.calls)
		}
	})
}
