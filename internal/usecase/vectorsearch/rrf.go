package vectorsearch

import (
	"sort"

	"github.com/datacove/metaseek/internal/transport/qdrant"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// Ranked is one fused search hit. FusedScore is the ordering key; Semantic
// keeps the best raw similarity seen for the document across both lists.
type Ranked struct {
	DocumentID string
	FusedScore float64
	Semantic   float64
	Payload    map[string]string
}

// fuseRRF merges the natural-language and structured result lists via
// Reciprocal Rank Fusion: score(d) = sum of 1/(k + rank + 1) over the lists
// where d appears. A document present in only one list competes with its
// single-list score; RRF rewards consensus, not raw similarity magnitude.
func fuseRRF(natural, structured []qdrant.ScoredPoint, topK int) []Ranked {
	merged := make(map[string]*Ranked)

	accumulate := func(list []qdrant.ScoredPoint) {
		for rank, p := range list {
			s := 1.0 / float64(rrfK+rank+1)
			if existing, ok := merged[p.ID]; ok {
				existing.FusedScore += s
				if p.Score > existing.Semantic {
					existing.Semantic = p.Score
				}
				if existing.Payload == nil {
					existing.Payload = p.Payload
				}
			} else {
				merged[p.ID] = &Ranked{
					DocumentID: p.ID,
					FusedScore: s,
					Semantic:   p.Score,
					Payload:    p.Payload,
				}
			}
		}
	}
	accumulate(natural)
	accumulate(structured)

	results := make([]Ranked, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore == results[j].FusedScore {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].FusedScore > results[j].FusedScore
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
