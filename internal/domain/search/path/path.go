package path

// Path is the retrieval strategy selected for a query.
type Path string

// Routing path constants.
const (
	// Keyword matches object names exactly or by substring.
	Keyword Path = "keyword"
	// Semantic runs dual-embedding hybrid vector search.
	Semantic Path = "semantic"
	// Relationship traverses the lineage graph.
	Relationship Path = "relationship"
	// Metadata filters on catalog attributes parsed from the query.
	Metadata Path = "metadata"
	// Agentic combines semantic search with downstream graph expansion.
	Agentic Path = "agentic"
)

// IsValid checks if the path is one of the supported values.
func (p Path) IsValid() bool {
	return p == Keyword || p == Semantic || p == Relationship || p == Metadata || p == Agentic
}

// All returns every routing path, in dispatch order.
func All() []Path {
	return []Path{Keyword, Semantic, Relationship, Metadata, Agentic}
}
