package search

import (
	"fmt"
	"strings"

	domcat "github.com/datacove/metaseek/internal/domain/catalog"
	domsearch "github.com/datacove/metaseek/internal/domain/search"
	"github.com/datacove/metaseek/internal/domain/search/path"
	"github.com/datacove/metaseek/internal/domain/search/request"
)

func entityToItem(e domcat.Entity) domsearch.ResultItem {
	item := domsearch.ResultItem{
		DocumentID:      e.DocumentID,
		ObjectType:      string(e.ObjectType),
		Name:            e.Name,
		Schema:          e.Schema,
		Database:        e.Database,
		BusinessPurpose: e.BusinessPurpose,
		Category:        e.Category,
		Classification:  e.Classification,
	}
	if e.IsPII {
		item.PII = &domsearch.PIIInfo{PIIType: e.PIIType}
	}
	return item
}

// applyFilters keeps results matching every non-empty filter set plus the
// minimum fused score. Order is preserved.
func applyFilters(items []domsearch.ResultItem, f request.Filters) []domsearch.ResultItem {
	if len(f.Databases) == 0 && len(f.ObjectTypes) == 0 && len(f.Categories) == 0 && f.MinConfidence == 0 {
		return items
	}
	out := items[:0:0]
	for _, it := range items {
		if !memberOf(it.Database, f.Databases) {
			continue
		}
		if !memberOf(it.ObjectType, f.ObjectTypes) {
			continue
		}
		if !memberOf(it.Category, f.Categories) {
			continue
		}
		if it.Score.Fused < f.MinConfidence {
			continue
		}
		out = append(out, it)
	}
	return out
}

// memberOf is a case-insensitive set check; an empty set matches anything.
func memberOf(value string, set []string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if strings.EqualFold(value, s) {
			return true
		}
	}
	return false
}

// followUps builds path-specific suggestions from the top result.
func followUps(p path.Path, results []domsearch.ResultItem) []string {
	if len(results) == 0 {
		return nil
	}
	top := results[0]
	name := top.Name
	if top.Schema != "" {
		name = top.Schema + "." + top.Name
	}

	switch p {
	case path.Keyword:
		return []string{
			fmt.Sprintf("show dependencies of %s", name),
			fmt.Sprintf("what is downstream of %s", name),
		}
	case path.Semantic:
		suggestions := []string{fmt.Sprintf("show dependencies of %s", name)}
		if top.Category != "" {
			suggestions = append(suggestions, fmt.Sprintf("pii:true category:%s", strings.ToLower(top.Category)))
		} else {
			suggestions = append(suggestions, "pii:true")
		}
		return suggestions
	case path.Relationship:
		return []string{
			fmt.Sprintf("trace all flows from %s", name),
			fmt.Sprintf("explain what %s is used for", name),
		}
	case path.Metadata:
		return []string{fmt.Sprintf("what stores data like %s", name)}
	case path.Agentic:
		return []string{fmt.Sprintf("show dependencies of %s", name)}
	default:
		return nil
	}
}
