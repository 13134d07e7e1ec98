// Package classify decides the routing path for a query. Heuristics run
// first; an AI classifier refines low-confidence decisions when configured.
// Classification never fails: every error path degrades to a usable default.
package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	"github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/domain/search/path"
)

// qualifiedName matches schema.object tokens like dbo.Customer.
var qualifiedName = regexp.MustCompile(`^[a-z_][a-z0-9_]*\.[a-z_][a-z0-9_]*$`)

// objectPrefixes are naming conventions that identify database objects.
var objectPrefixes = []string{"sp_", "vw_", "tbl_", "usp_", "fn_"}

var relationshipVocab = []string{
	"depend", "lineage", "upstream", "downstream", "impact",
	"uses", "references", "parent", "child",
}

var metadataVocab = []string{
	"pii", "category", "tier", "owner", "classification", "sensitive",
}

var agenticVocab = []string{
	"explain", "analyze", "compare", "why", "trace all", "comprehensive",
}

// genericKeywordShape matches short identifier-like queries.
var genericKeywordShape = regexp.MustCompile(`^[a-z0-9_. ]+$`)

// Classifier routes queries to a retrieval strategy.
type Classifier struct {
	completer domain.Completer
	aiEnabled bool
	threshold float64
	logger    *zap.Logger
}

// New creates a classifier. completer may be nil when no AI fallback is
// available.
func New(completer domain.Completer, aiEnabled bool, threshold float64, logger *zap.Logger) *Classifier {
	return &Classifier{
		completer: completer,
		aiEnabled: aiEnabled,
		threshold: threshold,
		logger:    logger,
	}
}

// Classify returns the routing decision for a query. It never returns an
// error: AI fallback failures are swallowed and the heuristic result wins.
func (c *Classifier) Classify(ctx context.Context, query string) search.Classification {
	normalized := strings.ToLower(strings.TrimSpace(query))

	// Pattern rules work on whitespace fields so dotted object names
	// survive intact; the NLP tokenizer splits punctuation.
	result := heuristic(normalized, strings.Fields(normalized))
	result.Complexity = complexityFor(len(tokenize(normalized)))

	if result.Confidence < c.threshold && c.aiEnabled && c.completer != nil {
		if refined, ok := c.classifyWithAI(ctx, query); ok {
			refined.Complexity = result.Complexity
			return refined
		}
	}
	return result
}

// heuristic applies the ordered pattern rules. First match wins.
func heuristic(normalized string, tokens []string) search.Classification {
	for _, tok := range tokens {
		if qualifiedName.MatchString(tok) || hasObjectPrefix(tok) {
			return search.Classification{
				Path:       path.Keyword,
				Confidence: 0.95,
				Reasoning:  "query contains a qualified or conventionally named database object",
			}
		}
	}
	if containsAny(normalized, relationshipVocab) {
		return search.Classification{
			Path:       path.Relationship,
			Confidence: 0.9,
			Reasoning:  "query uses dependency or lineage vocabulary",
		}
	}
	if containsAny(normalized, metadataVocab) {
		return search.Classification{
			Path:       path.Metadata,
			Confidence: 0.85,
			Reasoning:  "query references catalog attributes",
		}
	}
	if containsAny(normalized, agenticVocab) {
		return search.Classification{
			Path:       path.Agentic,
			Confidence: 0.85,
			Reasoning:  "query asks for analysis or explanation",
		}
	}
	if len(tokens) <= 3 && genericKeywordShape.MatchString(normalized) {
		return search.Classification{
			Path:       path.Keyword,
			Confidence: 0.8,
			Reasoning:  "short identifier-like query",
		}
	}
	return search.Classification{
		Path:       path.Semantic,
		Confidence: 0.5,
		Reasoning:  "inconclusive, defaulting to semantic search",
	}
}

func hasObjectPrefix(token string) bool {
	for _, p := range objectPrefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, vocab []string) bool {
	for _, word := range vocab {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}

func complexityFor(tokenCount int) search.Complexity {
	switch {
	case tokenCount <= 3:
		return search.Simple
	case tokenCount <= 8:
		return search.Medium
	default:
		return search.Complex
	}
}

// tokenize splits the query into word tokens. Falls back to whitespace
// splitting if the NLP tokenizer rejects the input.
func tokenize(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return strings.Fields(text)
	}
	var tokens []string
	for _, t := range doc.Tokens() {
		if strings.TrimSpace(t.Text) != "" {
			tokens = append(tokens, t.Text)
		}
	}
	if len(tokens) == 0 {
		return strings.Fields(text)
	}
	return tokens
}
