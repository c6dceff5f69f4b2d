package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HoistlineAI/hoistline-mvp/pkg/fn"
)

// Direction selects which adjacency to scan in Neighbors.
type Direction string

const (
	DirIn   Direction = "in"
	DirOut  Direction = "out"
	DirBoth Direction = "both"
)

// EdgeAny matches every edge type in Neighbors.
const EdgeAny EdgeType = ""

var (
	ErrEmptyNodeID     = errors.New("knowledge: empty node id")
	ErrEmptyEndpoint   = errors.New("knowledge: edge endpoint id is empty")
	ErrUnknownEndpoint = errors.New("knowledge: edge endpoint not in graph")
)

// Options configures a Store.
type Options struct {
	// StrictEndpoints rejects edges whose endpoints are not present in the
	// graph. Off by default: legacy exports contain dangling references and
	// must still load.
	StrictEndpoints bool
}

// adjacency is one direction of a node's edge set, keyed by neighbor id and
// iterated in first-insert order so traversal results are deterministic.
type adjacency struct {
	edges map[string]Edge
	order []string
}

func (a *adjacency) put(neighborID string, e Edge) {
	if a.edges == nil {
		a.edges = make(map[string]Edge)
	}
	if _, ok := a.edges[neighborID]; !ok {
		a.order = append(a.order, neighborID)
	}
	a.edges[neighborID] = e
}

// Store is the in-memory knowledge graph: an arena of nodes plus per-node
// outgoing and incoming adjacency maps. It is the read path of record; the
// optional Mirror receives a best-effort copy of every write.
//
// The store has no internal locking. Callers must serialize mutations and
// keep reads out of flight while a mutation runs. There is no delete API.
type Store struct {
	nodes  map[string]Node
	order  []string // node ids in insertion order
	out    map[string]*adjacency
	in     map[string]*adjacency
	nedges int

	opts   Options
	mirror Mirror
	logger *slog.Logger
}

// NewStore creates a Store. mirror may be nil; logger defaults to
// slog.Default().
func NewStore(mirror Mirror, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		nodes:  make(map[string]Node),
		out:    make(map[string]*adjacency),
		in:     make(map[string]*adjacency),
		opts:   opts,
		mirror: mirror,
		logger: logger,
	}
}

// AddNode inserts or overwrites a node by id and returns the id. A zero
// Confidence means unset and defaults to 1.0. Mirror failures are logged and
// swallowed.
func (s *Store) AddNode(ctx context.Context, node Node) (string, error) {
	if node.ID == "" {
		return "", ErrEmptyNodeID
	}
	if node.Confidence == 0 {
		node.Confidence = 1.0
	}
	if _, exists := s.nodes[node.ID]; !exists {
		s.order = append(s.order, node.ID)
	}
	s.nodes[node.ID] = node

	if s.mirror != nil {
		if err := s.mirror.CreateNode(ctx, nodeLabel(node.Type), mirrorProps(node)); err != nil {
			s.logger.Warn("mirror node write failed", "id", node.ID, "error", err)
		}
	}

	s.logger.Debug("added node", "id", node.ID, "type", string(node.Type))
	return node.ID, nil
}

// AddEdge inserts the single edge for the ordered (source, target) pair,
// overwriting any previous edge between the same pair (last write wins on
// type, weight, and properties). Returns "source->target".
//
// Endpoints are not required to exist unless Options.StrictEndpoints is set.
func (s *Store) AddEdge(ctx context.Context, edge Edge) (string, error) {
	if edge.SourceID == "" || edge.TargetID == "" {
		return "", ErrEmptyEndpoint
	}
	if s.opts.StrictEndpoints {
		for _, id := range []string{edge.SourceID, edge.TargetID} {
			if _, ok := s.nodes[id]; !ok {
				return "", fmt.Errorf("%w: %s", ErrUnknownEndpoint, id)
			}
		}
	}
	if edge.Weight == 0 {
		edge.Weight = 1.0
	}
	if edge.Confidence == 0 {
		edge.Confidence = 1.0
	}

	fwd := s.out[edge.SourceID]
	if fwd == nil {
		fwd = &adjacency{}
		s.out[edge.SourceID] = fwd
	}
	if _, dup := fwd.edges[edge.TargetID]; !dup {
		s.nedges++
	}
	fwd.put(edge.TargetID, edge)

	rev := s.in[edge.TargetID]
	if rev == nil {
		rev = &adjacency{}
		s.in[edge.TargetID] = rev
	}
	rev.put(edge.SourceID, edge)

	if s.mirror != nil {
		source, sok := s.nodes[edge.SourceID]
		target, tok := s.nodes[edge.TargetID]
		if sok && tok {
			err := s.mirror.CreateRelationship(ctx,
				edge.SourceID, nodeLabel(source.Type),
				edge.TargetID, nodeLabel(target.Type),
				string(edge.Type), edge.Properties)
			if err != nil {
				s.logger.Warn("mirror edge write failed",
					"source", edge.SourceID, "target", edge.TargetID, "error", err)
			}
		}
	}

	s.logger.Debug("added edge",
		"source", edge.SourceID, "type", string(edge.Type), "target", edge.TargetID)
	return edge.SourceID + "->" + edge.TargetID, nil
}

// GetNode returns the node with the given id.
func (s *Store) GetNode(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// GetEdge returns the edge for the ordered (source, target) pair.
func (s *Store) GetEdge(sourceID, targetID string) (Edge, bool) {
	adj := s.out[sourceID]
	if adj == nil {
		return Edge{}, false
	}
	e, ok := adj.edges[targetID]
	return e, ok
}

// Neighbors returns the neighbor nodes of id in the given direction(s),
// optionally filtered by edge type (EdgeAny matches all). Outgoing neighbors
// come before incoming ones when dir is DirBoth. Neighbors whose node record
// is missing (dangling edges) are skipped.
func (s *Store) Neighbors(id string, edgeType EdgeType, dir Direction) []Node {
	var neighbors []Node

	if dir == DirOut || dir == DirBoth {
		if adj := s.out[id]; adj != nil {
			for _, targetID := range adj.order {
				e := adj.edges[targetID]
				if edgeType != EdgeAny && e.Type != edgeType {
					continue
				}
				if n, ok := s.nodes[targetID]; ok {
					neighbors = append(neighbors, n)
				}
			}
		}
	}
	if dir == DirIn || dir == DirBoth {
		if adj := s.in[id]; adj != nil {
			for _, sourceID := range adj.order {
				e := adj.edges[sourceID]
				if edgeType != EdgeAny && e.Type != edgeType {
					continue
				}
				if n, ok := s.nodes[sourceID]; ok {
					neighbors = append(neighbors, n)
				}
			}
		}
	}
	return neighbors
}

// NodeByName returns the first node, in insertion order, whose name contains
// the query (case-insensitive). Ambiguous queries resolve to the earliest
// inserted match.
func (s *Store) NodeByName(query string) (Node, bool) {
	q := strings.ToLower(query)
	for _, id := range s.order {
		n := s.nodes[id]
		if strings.Contains(strings.ToLower(n.Name), q) {
			return n, true
		}
	}
	return Node{}, false
}

// FindFaultByCode scans fault_code and entity nodes for one whose "code"
// property or name equals code. First match in insertion order wins.
func (s *Store) FindFaultByCode(code string) (Node, bool) {
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Type != NodeFaultCode && n.Type != NodeEntity {
			continue
		}
		nodeCode := n.Name
		if c, ok := n.Properties["code"].(string); ok && c != "" {
			nodeCode = c
		}
		if nodeCode == code {
			return n, true
		}
	}
	return Node{}, false
}

// FaultResolution returns the procedure nodes that resolve a fault.
func (s *Store) FaultResolution(faultNodeID string) []Node {
	return s.Neighbors(faultNodeID, EdgeResolvedBy, DirOut)
}

// FaultTests returns the procedure nodes that test a fault.
func (s *Store) FaultTests(faultNodeID string) []Node {
	return s.Neighbors(faultNodeID, EdgeTestedBy, DirOut)
}

// Nodes returns every node in insertion order.
func (s *Store) Nodes() []Node {
	nodes := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		nodes = append(nodes, s.nodes[id])
	}
	return nodes
}

// Edges returns every edge, grouped by source node in insertion order.
func (s *Store) Edges() []Edge {
	edges := make([]Edge, 0, s.nedges)
	for _, id := range s.order {
		adj := s.out[id]
		if adj == nil {
			continue
		}
		for _, target := range adj.order {
			edges = append(edges, adj.edges[target])
		}
	}
	return edges
}

// MirrorBackfill replays the whole graph into m with bounded concurrency,
// nodes first so relationship MERGEs find their endpoints. Unlike the
// per-write mirroring done by AddNode and AddEdge, backfill failures are
// returned, not swallowed: a bulk replay that silently drops records is
// worse than one that aborts. Edges with a missing endpoint record are
// skipped, matching AddEdge. Returns the node and edge counts written.
func (s *Store) MirrorBackfill(ctx context.Context, m Mirror, workers int) (int, int, error) {
	nodeResults := fn.ParMapResult(s.Nodes(), workers, func(n Node) fn.Result[string] {
		if err := m.CreateNode(ctx, nodeLabel(n.Type), mirrorProps(n)); err != nil {
			return fn.Errf[string]("backfill node %s: %w", n.ID, err)
		}
		return fn.Ok(n.ID)
	})
	nodes, err := fn.Collect(nodeResults).Unwrap()
	if err != nil {
		return 0, 0, err
	}

	var linkable []Edge
	for _, e := range s.Edges() {
		_, sok := s.nodes[e.SourceID]
		_, tok := s.nodes[e.TargetID]
		if sok && tok {
			linkable = append(linkable, e)
		}
	}
	edgeResults := fn.ParMapResult(linkable, workers, func(e Edge) fn.Result[string] {
		source := s.nodes[e.SourceID]
		target := s.nodes[e.TargetID]
		err := m.CreateRelationship(ctx,
			e.SourceID, nodeLabel(source.Type),
			e.TargetID, nodeLabel(target.Type),
			string(e.Type), e.Properties)
		if err != nil {
			return fn.Errf[string]("backfill edge %s->%s: %w", e.SourceID, e.TargetID, err)
		}
		return fn.Ok(e.SourceID + "->" + e.TargetID)
	})
	edges, err := fn.Collect(edgeResults).Unwrap()
	if err != nil {
		return len(nodes), 0, err
	}
	return len(nodes), len(edges), nil
}

// Stats returns node/edge counts grouped by type.
func (s *Store) Stats() GraphStats {
	stats := GraphStats{
		TotalNodes:  len(s.nodes),
		TotalEdges:  s.nedges,
		NodesByType: make(map[string]int),
		EdgesByType: make(map[string]int),
	}
	for _, n := range s.nodes {
		stats.NodesByType[string(n.Type)]++
	}
	for _, adj := range s.out {
		for _, e := range adj.edges {
			stats.EdgesByType[string(e.Type)]++
		}
	}
	return stats
}

// mirrorProps builds the property map written to the mirror for a node.
func mirrorProps(n Node) map[string]any {
	props := map[string]any{"id": n.ID, "name": n.Name}
	for k, v := range n.Properties {
		props[k] = v
	}
	return props
}

// nodeLabel renders a node type as a mirror label, e.g. "fault_code" ->
// "Fault_code". Kept byte-compatible with existing mirrored graphs.
func nodeLabel(t NodeType) string {
	s := string(t)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
