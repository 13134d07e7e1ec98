package classify

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/domain/search/path"
)

const classifySystemPrompt = `You route data catalog search queries to one of five retrieval strategies:
- keyword: the query names a specific database object (table, view, procedure)
- semantic: the query describes data by meaning, not by name
- relationship: the query asks about dependencies, lineage or impact
- metadata: the query filters on catalog attributes (PII, category, owner, classification)
- agentic: the query asks for analysis, comparison or a comprehensive explanation

Respond with a JSON object only: {"path": "<strategy>", "confidence": <0..1>, "reasoning": "<one sentence>"}`

type aiClassification struct {
	Path       string  `json:"path"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// classifyWithAI issues one completion call and parses the strict JSON
// contract. Any provider error or malformed response returns ok=false so
// the caller keeps the heuristic result.
func (c *Classifier) classifyWithAI(ctx context.Context, query string) (search.Classification, bool) {
	raw, err := c.completer.Complete(ctx, classifySystemPrompt, query)
	if err != nil {
		c.logger.Warn("ai classification failed, using heuristic result", zap.Error(err))
		return search.Classification{}, false
	}

	var parsed aiClassification
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.logger.Warn("ai classification returned malformed json",
			zap.String("response", truncate(raw, 200)), zap.Error(err))
		return search.Classification{}, false
	}

	p := path.Path(strings.ToLower(strings.TrimSpace(parsed.Path)))
	if !p.IsValid() || parsed.Confidence <= 0 || parsed.Confidence > 1 {
		c.logger.Warn("ai classification out of contract",
			zap.String("path", parsed.Path), zap.Float64("confidence", parsed.Confidence))
		return search.Classification{}, false
	}

	return search.Classification{
		Path:       p,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
	}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
