// Package knowledge implements the in-memory knowledge graph for elevator
// fault diagnosis: a typed node/edge store, bounded path search, and a causal
// reasoner that walks the graph to find root causes and downstream effects.
package knowledge

import "strings"

// NodeType classifies nodes in the knowledge graph.
type NodeType string

const (
	NodeComponent    NodeType = "component"
	NodeFaultCode    NodeType = "fault_code"
	NodeSymptom      NodeType = "symptom"
	NodeAction       NodeType = "action"
	NodeTool         NodeType = "tool"
	NodePart         NodeType = "part"
	NodeDocument     NodeType = "document"
	NodeManufacturer NodeType = "manufacturer"
	// Fallback buckets for imported graph data whose category could not be parsed.
	NodeEntity    NodeType = "entity"
	NodeProcedure NodeType = "procedure"
)

var nodeTypes = map[NodeType]bool{
	NodeComponent: true, NodeFaultCode: true, NodeSymptom: true,
	NodeAction: true, NodeTool: true, NodePart: true, NodeDocument: true,
	NodeManufacturer: true, NodeEntity: true, NodeProcedure: true,
}

// ParseNodeType maps a string to a NodeType, falling back to NodeEntity for
// unknown categories. Legacy exports carry types this code never defined;
// rejecting them would make old graph dumps unloadable.
func ParseNodeType(s string) NodeType {
	t := NodeType(s)
	if nodeTypes[t] {
		return t
	}
	return NodeEntity
}

// EdgeType classifies directed edges in the knowledge graph.
type EdgeType string

const (
	EdgeCausedBy       EdgeType = "CAUSED_BY"
	EdgeIndicates      EdgeType = "INDICATES"
	EdgeRequires       EdgeType = "REQUIRES"
	EdgePartOf         EdgeType = "PART_OF"
	EdgeConnectedTo    EdgeType = "CONNECTED_TO"
	EdgeDocumentedIn   EdgeType = "DOCUMENTED_IN"
	EdgeManufacturedBy EdgeType = "MANUFACTURED_BY"
	EdgeResolves       EdgeType = "RESOLVES"
	EdgeContains       EdgeType = "CONTAINS"
	EdgeHasSubcode     EdgeType = "HAS_SUBCODE"
	EdgeResolvedBy     EdgeType = "RESOLVED_BY"
	EdgeTestedBy       EdgeType = "TESTED_BY"
)

var edgeTypes = map[EdgeType]bool{
	EdgeCausedBy: true, EdgeIndicates: true, EdgeRequires: true,
	EdgePartOf: true, EdgeConnectedTo: true, EdgeDocumentedIn: true,
	EdgeManufacturedBy: true, EdgeResolves: true, EdgeContains: true,
	EdgeHasSubcode: true, EdgeResolvedBy: true, EdgeTestedBy: true,
}

// ParseEdgeType maps a string to an EdgeType, falling back to
// EdgeConnectedTo for unknown relation names.
func ParseEdgeType(s string) EdgeType {
	t := EdgeType(s)
	if edgeTypes[t] {
		return t
	}
	return EdgeConnectedTo
}

// Humanize renders the edge type for prose: "CAUSED_BY" -> "caused by".
func (t EdgeType) Humanize() string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}

// Node is a typed vertex in the knowledge graph.
type Node struct {
	ID             string         `json:"id"`
	Type           NodeType       `json:"type"`
	Name           string         `json:"name"`
	Properties     map[string]any `json:"properties,omitempty"`
	SourceDocument string         `json:"source_document,omitempty"`
	Confidence     float64        `json:"confidence"`
}

// Edge is a typed directed arc between two nodes. The store holds at most
// one edge per ordered (source, target) pair.
type Edge struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       EdgeType       `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Weight     float64        `json:"weight"`
	Confidence float64        `json:"confidence"`
}

// ReasoningPath is an ordered walk through the graph: len(Edges) is always
// len(Nodes)-1 for a non-empty path.
type ReasoningPath struct {
	Nodes       []Node  `json:"nodes"`
	Edges       []Edge  `json:"edges"`
	TotalWeight float64 `json:"total_weight"`
}

// Length returns the number of edges in the path.
func (p ReasoningPath) Length() int { return len(p.Edges) }

// String renders the path as "[A] --CAUSED_BY--> [B]".
func (p ReasoningPath) String() string {
	if len(p.Nodes) == 0 {
		return "Empty path"
	}
	var b strings.Builder
	for i, n := range p.Nodes {
		b.WriteString("[")
		b.WriteString(n.Name)
		b.WriteString("]")
		if i < len(p.Edges) {
			b.WriteString(" --")
			b.WriteString(string(p.Edges[i].Type))
			b.WriteString("--> ")
		}
	}
	return b.String()
}

// CausalChain is the result of a root-cause search for one symptom or fault.
// RootCauses may repeat a name when multiple branches reach the same
// component; callers that want a set must dedupe themselves.
type CausalChain struct {
	Symptom     string          `json:"symptom"`
	RootCauses  []string        `json:"root_causes"`
	Paths       []ReasoningPath `json:"paths"`
	Confidence  float64         `json:"confidence"`
	Explanation string          `json:"explanation"`
}

// GraphStats summarizes store contents.
type GraphStats struct {
	TotalNodes  int            `json:"total_nodes"`
	TotalEdges  int            `json:"total_edges"`
	NodesByType map[string]int `json:"nodes_by_type"`
	EdgesByType map[string]int `json:"edges_by_type"`
}
