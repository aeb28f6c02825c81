package mealgraph

// GraphNode represents a generic node from a Neo4j graph.
// It is a domain-agnostic representation, capturing the essential components of any node:
// its unique internal ID, its labels, and its properties. This struct is designed to be
// easily serialized to JSON.
type GraphNode struct {
	// ID is the unique internal identifier assigned by Neo4j to the node (ElementId).
	ID string `json:"id"`

	// Labels is a slice of strings containing all the labels attached to the node (e.g., ["Recipe"]).
	Labels []string `json:"labels"`

	// Properties is a map containing the key-value properties of the node.
	// Embeddings are stripped before the node is returned.
	Properties map[string]interface{} `json:"properties"`
}

// Edge represents a generic relationship (or edge) between two nodes in a Neo4j graph.
type Edge struct {
	// ID is the unique internal identifier assigned by Neo4j to the relationship (ElementId).
	ID string `json:"id"`

	// Source is the ElementId of the node where the relationship starts.
	Source string `json:"source"`

	// Target is the ElementId of the node where the relationship ends.
	Target string `json:"target"`

	// Type is the relationship's type (e.g., "CONTAINS", "BELONGS_TO").
	Type string `json:"type"`
}

// GraphResult is a top-level container for a generic graph query result,
// in the nodes/edges shape most graph visualization libraries consume.
type GraphResult struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*Edge      `json:"edges"`
}
