package embedding

import (
	"encoding/json"
	"fmt"
	"strings"

	domcat "github.com/datacove/metaseek/internal/domain/catalog"
)

// structuredProjection is the compact JSON rendering of an entity used as
// the structured embedding text. Empty attributes are omitted so the
// embedded text carries only what the catalog actually knows.
type structuredProjection struct {
	Type            string   `json:"type"`
	Name            string   `json:"name"`
	Schema          string   `json:"schema,omitempty"`
	Database        string   `json:"database,omitempty"`
	Purpose         string   `json:"purpose,omitempty"`
	Category        string   `json:"category,omitempty"`
	Domain          string   `json:"domain,omitempty"`
	Classification  string   `json:"classification,omitempty"`
	PIIType         string   `json:"pii_type,omitempty"`
	DependencyCount int      `json:"dependency_count,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

func buildStructuredText(e domcat.Entity) (string, error) {
	p := structuredProjection{
		Type:            string(e.ObjectType),
		Name:            e.Name,
		Schema:          e.Schema,
		Database:        e.Database,
		Purpose:         e.BusinessPurpose,
		Category:        e.Category,
		Domain:          e.Domain,
		Classification:  e.Classification,
		DependencyCount: e.DependencyCount,
		Tags:            e.Tags,
	}
	if e.IsPII {
		p.PIIType = e.PIIType
		if p.PIIType == "" {
			p.PIIType = "unspecified"
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal structured projection: %w", err)
	}
	return string(raw), nil
}

// buildNaturalText composes a descriptive sentence from the entity's
// attributes, skipping whatever the catalog left blank.
func buildNaturalText(e domcat.Entity) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The %s %s", e.ObjectType, e.QualifiedName())
	if e.Database != "" {
		fmt.Fprintf(&b, " in database %s", e.Database)
	}
	if e.BusinessPurpose != "" {
		fmt.Fprintf(&b, " %s", strings.TrimRight(e.BusinessPurpose, "."))
	}
	b.WriteString(".")

	if e.Category != "" {
		fmt.Fprintf(&b, " It belongs to the %s category", e.Category)
		if e.Domain != "" {
			fmt.Fprintf(&b, " in the %s domain", e.Domain)
		}
		b.WriteString(".")
	} else if e.Domain != "" {
		fmt.Fprintf(&b, " It belongs to the %s domain.", e.Domain)
	}
	if e.Classification != "" {
		fmt.Fprintf(&b, " Its data classification is %s.", e.Classification)
	}
	if e.IsPII {
		if e.PIIType != "" {
			fmt.Fprintf(&b, " It contains personally identifiable information of type %s.", e.PIIType)
		} else {
			b.WriteString(" It contains personally identifiable information.")
		}
	}
	if e.DependencyCount > 0 {
		fmt.Fprintf(&b, " It has %d dependencies.", e.DependencyCount)
	}
	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, " Tags: %s.", strings.Join(e.Tags, ", "))
	}
	return b.String()
}
