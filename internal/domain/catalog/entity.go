// Package catalog holds the metadata-object model shared between layers.
package catalog

// ObjectType is the kind of database object an entity describes.
type ObjectType string

// Catalog object type constants.
const (
	Table     ObjectType = "table"
	View      ObjectType = "view"
	Procedure ObjectType = "procedure"
	Function  ObjectType = "function"
	Column    ObjectType = "column"
)

// Entity is one row of the metadata catalog: a table, column or procedure
// together with its business and governance attributes.
type Entity struct {
	DocumentID      string
	ObjectType      ObjectType
	Name            string
	Schema          string
	Database        string
	BusinessPurpose string
	Category        string
	Classification  string
	Domain          string
	IsPII           bool
	PIIType         string
	Tags            []string
	DependencyCount int
}

// QualifiedName returns schema.name, or just the name when the schema is empty.
func (e Entity) QualifiedName() string {
	if e.Schema == "" {
		return e.Name
	}
	return e.Schema + "." + e.Name
}

// AttributeFilter is an exact-match conjunction over catalog attributes,
// parsed from key:value tokens of a metadata query.
type AttributeFilter struct {
	Database       string
	Schema         string
	ObjectType     string
	Category       string
	Classification string
	Domain         string
	PII            *bool
}

// IsEmpty reports whether no attribute is constrained.
func (f AttributeFilter) IsEmpty() bool {
	return f.Database == "" && f.Schema == "" && f.ObjectType == "" &&
		f.Category == "" && f.Classification == "" && f.Domain == "" && f.PII == nil
}
