// Package graph holds the lineage graph model: nodes, directed edges and
// traced PII flow paths.
package graph

// Node is one vertex of the lineage graph. Nodes are owned by the engine's
// in-memory snapshot after a rebuild and are never mutated in place.
type Node struct {
	ID         string
	ObjectType string
	Name       string
	Schema     string
	Database   string
	IsPII      bool
	PIIType    string
	Properties map[string]string
}

// Edge is a directed lineage relationship between two nodes.
type Edge struct {
	SourceID string
	TargetID string
	Type     string
	Weight   float64
}

// TraversalHit is one node reached by a dependency traversal.
type TraversalHit struct {
	Node     Node
	Depth    int
	ParentID string
}

// PiiFlowPath is a traced path from a PII-bearing source node to a sink
// (a node with no outgoing edges). Path lists node ids from source to sink
// inclusive.
type PiiFlowPath struct {
	SourceID      string
	PIIType       string
	DestinationID string
	Path          []string
}
