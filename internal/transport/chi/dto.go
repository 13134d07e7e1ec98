package chi

import (
	"time"

	domgraph "github.com/datacove/metaseek/internal/domain/graph"
	domlearn "github.com/datacove/metaseek/internal/domain/learning"
	domsearch "github.com/datacove/metaseek/internal/domain/search"
)

// Error response codes.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeNodeNotFound     = "node_not_found"
	codeUpdateInProgress = "update_in_progress"
	codeProviderError    = "provider_error"
	codeIndexError       = "vector_index_error"
	codeStoreError       = "store_error"
	codeInternalError    = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type searchRequestDTO struct {
	Query           string   `json:"query"`
	UserID          string   `json:"user_id,omitempty"`
	Path            string   `json:"path,omitempty"`
	MaxResults      int      `json:"max_results,omitempty"`
	Databases       []string `json:"databases,omitempty"`
	ObjectTypes     []string `json:"object_types,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	MinConfidence   float64  `json:"min_confidence,omitempty"`
	IncludePIIFlows bool     `json:"include_pii_flows,omitempty"`
	EnableRerank    bool     `json:"enable_rerank,omitempty"`
}

type scoreDTO struct {
	Semantic        float64 `json:"semantic,omitempty"`
	LateInteraction float64 `json:"late_interaction,omitempty"`
	Fused           float64 `json:"fused"`
}

type lineageDTO struct {
	Depth    int    `json:"depth"`
	ParentID string `json:"parent_id,omitempty"`
}

type piiDTO struct {
	PIIType   string     `json:"pii_type,omitempty"`
	FlowPaths [][]string `json:"flow_paths,omitempty"`
}

type resultItemDTO struct {
	DocumentID      string      `json:"document_id"`
	ObjectType      string      `json:"object_type"`
	Name            string      `json:"name"`
	Schema          string      `json:"schema,omitempty"`
	Database        string      `json:"database,omitempty"`
	BusinessPurpose string      `json:"business_purpose,omitempty"`
	Category        string      `json:"category,omitempty"`
	Classification  string      `json:"classification,omitempty"`
	Score           scoreDTO    `json:"score"`
	MatchedTerms    []string    `json:"matched_terms,omitempty"`
	Lineage         *lineageDTO `json:"lineage,omitempty"`
	PII             *piiDTO     `json:"pii,omitempty"`
}

type timingsDTO struct {
	ClassifyMs float64 `json:"classify_ms"`
	RetrieveMs float64 `json:"retrieve_ms"`
	RerankMs   float64 `json:"rerank_ms"`
	FilterMs   float64 `json:"filter_ms"`
	TotalMs    float64 `json:"total_ms"`
}

type searchMetaDTO struct {
	CandidateCount int        `json:"candidate_count"`
	FilteredCount  int        `json:"filtered_count"`
	Reasoning      string     `json:"reasoning,omitempty"`
	Timings        timingsDTO `json:"timings"`
}

type searchResponseDTO struct {
	QueryID     string          `json:"query_id"`
	Query       string          `json:"query"`
	Path        string          `json:"path"`
	Results     []resultItemDTO `json:"results"`
	FollowUps   []string        `json:"follow_ups,omitempty"`
	Meta        searchMetaDTO   `json:"meta"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func searchResponseToDTO(resp domsearch.Response) searchResponseDTO {
	results := make([]resultItemDTO, len(resp.Results))
	for i, r := range resp.Results {
		item := resultItemDTO{
			DocumentID:      r.DocumentID,
			ObjectType:      r.ObjectType,
			Name:            r.Name,
			Schema:          r.Schema,
			Database:        r.Database,
			BusinessPurpose: r.BusinessPurpose,
			Category:        r.Category,
			Classification:  r.Classification,
			Score: scoreDTO{
				Semantic:        r.Score.Semantic,
				LateInteraction: r.Score.LateInteraction,
				Fused:           r.Score.Fused,
			},
			MatchedTerms: r.MatchedTerms,
		}
		if r.Lineage != nil {
			item.Lineage = &lineageDTO{Depth: r.Lineage.Depth, ParentID: r.Lineage.ParentID}
		}
		if r.PII != nil {
			item.PII = &piiDTO{PIIType: r.PII.PIIType, FlowPaths: r.PII.FlowPaths}
		}
		results[i] = item
	}
	return searchResponseDTO{
		QueryID:   resp.QueryID,
		Query:     resp.Query,
		Path:      string(resp.Path),
		Results:   results,
		FollowUps: resp.FollowUps,
		Meta: searchMetaDTO{
			CandidateCount: resp.Meta.CandidateCount,
			FilteredCount:  resp.Meta.FilteredCount,
			Reasoning:      resp.Meta.Reasoning,
			Timings: timingsDTO{
				ClassifyMs: ms(resp.Meta.Timings.Classify),
				RetrieveMs: ms(resp.Meta.Timings.Retrieve),
				RerankMs:   ms(resp.Meta.Timings.Rerank),
				FilterMs:   ms(resp.Meta.Timings.Filter),
				TotalMs:    ms(resp.Meta.Timings.Total),
			},
		},
		GeneratedAt: resp.GeneratedAt,
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

type interactionDTO struct {
	QueryID    string            `json:"query_id"`
	UserID     string            `json:"user_id,omitempty"`
	Type       string            `json:"type"`
	DocumentID string            `json:"document_id,omitempty"`
	ResultRank int               `json:"result_rank,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
}

type updateResultDTO struct {
	InteractionsProcessed int             `json:"interactions_processed"`
	QueriesAnalyzed       int             `json:"queries_analyzed"`
	DocumentsReranked     int             `json:"documents_reranked"`
	Suggestions           []suggestionDTO `json:"suggestions,omitempty"`
	CompletedAt           time.Time       `json:"completed_at"`
}

type suggestionDTO struct {
	DocumentID        string  `json:"document_id"`
	SuggestedCategory string  `json:"suggested_category"`
	ClickCount        int     `json:"click_count"`
	Confidence        float64 `json:"confidence"`
}

func suggestionsToDTO(in []domlearn.CategorySuggestion) []suggestionDTO {
	out := make([]suggestionDTO, len(in))
	for i, s := range in {
		out[i] = suggestionDTO{
			DocumentID:        s.DocumentID,
			SuggestedCategory: s.SuggestedCategory,
			ClickCount:        s.ClickCount,
			Confidence:        s.Confidence,
		}
	}
	return out
}

type analyticsDTO struct {
	Since             time.Time      `json:"since"`
	TotalQueries      int            `json:"total_queries"`
	TotalInteractions int            `json:"total_interactions"`
	AvgClickRank      float64        `json:"avg_click_rank"`
	ClickThroughRate  float64        `json:"click_through_rate"`
	PathDistribution  map[string]int `json:"path_distribution,omitempty"`
	TopSearchTerms    []termCountDTO `json:"top_search_terms,omitempty"`
	LastProcessedAt   *time.Time     `json:"last_processed_at,omitempty"`
}

type termCountDTO struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

func analyticsToDTO(a domlearn.Analytics) analyticsDTO {
	dto := analyticsDTO{
		Since:             a.Since,
		TotalQueries:      a.TotalQueries,
		TotalInteractions: a.TotalInteractions,
		AvgClickRank:      a.AvgClickRank,
		ClickThroughRate:  a.ClickThroughRate,
		PathDistribution:  a.PathDistribution,
	}
	for _, tc := range a.TopSearchTerms {
		dto.TopSearchTerms = append(dto.TopSearchTerms, termCountDTO{Term: tc.Term, Count: tc.Count})
	}
	if !a.LastProcessedAt.IsZero() {
		t := a.LastProcessedAt
		dto.LastProcessedAt = &t
	}
	return dto
}

type piiFlowDTO struct {
	SourceID      string   `json:"source_id"`
	PIIType       string   `json:"pii_type,omitempty"`
	DestinationID string   `json:"destination_id"`
	Path          []string `json:"path"`
}

func piiFlowsToDTO(flows []domgraph.PiiFlowPath) []piiFlowDTO {
	out := make([]piiFlowDTO, len(flows))
	for i, f := range flows {
		out[i] = piiFlowDTO{
			SourceID:      f.SourceID,
			PIIType:       f.PIIType,
			DestinationID: f.DestinationID,
			Path:          f.Path,
		}
	}
	return out
}
