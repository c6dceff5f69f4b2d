package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// recordingMirror counts mirror writes and can be forced to fail. Writes
// arrive concurrently during backfill, so the counters are guarded.
type recordingMirror struct {
	mu    sync.Mutex
	nodes int
	rels  int
	err   error
}

func (m *recordingMirror) CreateNode(_ context.Context, _ string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes++
	return m.err
}

func (m *recordingMirror) CreateRelationship(_ context.Context, _, _, _, _, _ string, _ map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels++
	return m.err
}

func (m *recordingMirror) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes, m.rels
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(nil, Options{}, nil)
}

func mustAddNode(t *testing.T, s *Store, n Node) {
	t.Helper()
	if _, err := s.AddNode(context.Background(), n); err != nil {
		t.Fatalf("AddNode(%s): %v", n.ID, err)
	}
}

func mustAddEdge(t *testing.T, s *Store, e Edge) {
	t.Helper()
	if _, err := s.AddEdge(context.Background(), e); err != nil {
		t.Fatalf("AddEdge(%s->%s): %v", e.SourceID, e.TargetID, err)
	}
}

func TestAddNodeReadAfterWrite(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{
		ID:         "k1",
		Type:       NodeComponent,
		Name:       "Relay K1",
		Properties: map[string]any{"voltage": "24V"},
	})

	got, ok := s.GetNode("k1")
	if !ok {
		t.Fatal("expected node k1")
	}
	if got.Name != "Relay K1" || got.Type != NodeComponent {
		t.Fatalf("unexpected node: %+v", got)
	}
	if got.Confidence != 1.0 {
		t.Fatalf("expected default confidence 1.0, got %v", got.Confidence)
	}
	if got.Properties["voltage"] != "24V" {
		t.Fatalf("missing property, got %v", got.Properties)
	}
}

func TestAddNodeEmptyID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddNode(context.Background(), Node{Type: NodeComponent}); !errors.Is(err, ErrEmptyNodeID) {
		t.Fatalf("expected ErrEmptyNodeID, got %v", err)
	}
}

func TestDuplicateNodeOverwrites(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "n", Type: NodeComponent, Name: "Old"})
	mustAddNode(t, s, Node{ID: "n", Type: NodeSymptom, Name: "New"})

	stats := s.Stats()
	if stats.TotalNodes != 1 {
		t.Fatalf("expected 1 node after duplicate insert, got %d", stats.TotalNodes)
	}
	got, _ := s.GetNode("n")
	if got.Name != "New" || got.Type != NodeSymptom {
		t.Fatalf("expected overwrite, got %+v", got)
	}
}

func TestAddEdgeOverwritesOrderedPair(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "a", Type: NodeComponent, Name: "A"})
	mustAddNode(t, s, Node{ID: "b", Type: NodeComponent, Name: "B"})
	mustAddEdge(t, s, Edge{SourceID: "a", TargetID: "b", Type: EdgeConnectedTo})
	mustAddEdge(t, s, Edge{SourceID: "a", TargetID: "b", Type: EdgeCausedBy, Weight: 2.5})

	if got := s.Stats().TotalEdges; got != 1 {
		t.Fatalf("expected 1 edge for the ordered pair, got %d", got)
	}
	e, ok := s.GetEdge("a", "b")
	if !ok {
		t.Fatal("expected edge a->b")
	}
	if e.Type != EdgeCausedBy || e.Weight != 2.5 {
		t.Fatalf("expected last write to win, got %+v", e)
	}
	// The reverse direction is a distinct pair.
	mustAddEdge(t, s, Edge{SourceID: "b", TargetID: "a", Type: EdgeConnectedTo})
	if got := s.Stats().TotalEdges; got != 2 {
		t.Fatalf("expected 2 edges with reverse pair, got %d", got)
	}
}

func TestAddEdgeDefaults(t *testing.T) {
	s := newTestStore(t)
	mustAddEdge(t, s, Edge{SourceID: "x", TargetID: "y", Type: EdgeConnectedTo})
	e, _ := s.GetEdge("x", "y")
	if e.Weight != 1.0 || e.Confidence != 1.0 {
		t.Fatalf("expected default weight/confidence 1.0, got %+v", e)
	}
}

func TestAddEdgeLenientDanglingByDefault(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AddEdge(context.Background(), Edge{SourceID: "ghost", TargetID: "phantom", Type: EdgeConnectedTo}); err != nil {
		t.Fatalf("lenient mode should accept dangling edges: %v", err)
	}
	if got := s.Stats().TotalEdges; got != 1 {
		t.Fatalf("expected dangling edge counted, got %d", got)
	}
}

func TestAddEdgeStrictEndpoints(t *testing.T) {
	s := NewStore(nil, Options{StrictEndpoints: true}, nil)
	mustAddNode(t, s, Node{ID: "a", Type: NodeComponent, Name: "A"})

	_, err := s.AddEdge(context.Background(), Edge{SourceID: "a", TargetID: "missing", Type: EdgeConnectedTo})
	if !errors.Is(err, ErrUnknownEndpoint) {
		t.Fatalf("expected ErrUnknownEndpoint, got %v", err)
	}
	if got := s.Stats().TotalEdges; got != 0 {
		t.Fatalf("rejected edge must not be stored, got %d", got)
	}
}

func TestNeighbors(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "hub", Type: NodeComponent, Name: "Hub"})
	mustAddNode(t, s, Node{ID: "out1", Type: NodeComponent, Name: "Out1"})
	mustAddNode(t, s, Node{ID: "out2", Type: NodeFaultCode, Name: "Out2"})
	mustAddNode(t, s, Node{ID: "in1", Type: NodeComponent, Name: "In1"})
	mustAddEdge(t, s, Edge{SourceID: "hub", TargetID: "out1", Type: EdgeConnectedTo})
	mustAddEdge(t, s, Edge{SourceID: "hub", TargetID: "out2", Type: EdgeCausedBy})
	mustAddEdge(t, s, Edge{SourceID: "in1", TargetID: "hub", Type: EdgeConnectedTo})

	if got := s.Neighbors("hub", EdgeAny, DirOut); len(got) != 2 {
		t.Fatalf("expected 2 outgoing neighbors, got %d", len(got))
	}
	if got := s.Neighbors("hub", EdgeAny, DirIn); len(got) != 1 || got[0].ID != "in1" {
		t.Fatalf("unexpected incoming neighbors: %+v", got)
	}
	both := s.Neighbors("hub", EdgeAny, DirBoth)
	if len(both) != 3 {
		t.Fatalf("expected 3 neighbors in both directions, got %d", len(both))
	}
	// Outgoing neighbors come first, in edge-insertion order.
	if both[0].ID != "out1" || both[1].ID != "out2" || both[2].ID != "in1" {
		t.Fatalf("unexpected neighbor order: %v", []string{both[0].ID, both[1].ID, both[2].ID})
	}

	filtered := s.Neighbors("hub", EdgeCausedBy, DirOut)
	if len(filtered) != 1 || filtered[0].ID != "out2" {
		t.Fatalf("edge type filter failed: %+v", filtered)
	}
}

func TestNeighborsSkipsDangling(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "a", Type: NodeComponent, Name: "A"})
	mustAddEdge(t, s, Edge{SourceID: "a", TargetID: "gone", Type: EdgeConnectedTo})

	if got := s.Neighbors("a", EdgeAny, DirOut); len(got) != 0 {
		t.Fatalf("expected dangling neighbor skipped, got %+v", got)
	}
}

func TestNodeByName(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "m1", Type: NodeComponent, Name: "Door Motor"})
	mustAddNode(t, s, Node{ID: "m2", Type: NodeComponent, Name: "Motor Controller"})

	got, ok := s.NodeByName("MOTOR")
	if !ok {
		t.Fatal("expected a match")
	}
	// First match in insertion order wins.
	if got.ID != "m1" {
		t.Fatalf("expected m1, got %s", got.ID)
	}
	if _, ok := s.NodeByName("hydraulic"); ok {
		t.Fatal("expected no match")
	}
}

func TestFindFaultByCode(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "c1", Type: NodeComponent, Name: "2001"}) // wrong type, ignored
	mustAddNode(t, s, Node{
		ID:         "fault_2001",
		Type:       NodeEntity,
		Name:       "Peak value over limit",
		Properties: map[string]any{"code": "2001"},
	})
	mustAddNode(t, s, Node{ID: "f505", Type: NodeFaultCode, Name: "F505"})

	got, ok := s.FindFaultByCode("2001")
	if !ok || got.ID != "fault_2001" {
		t.Fatalf("expected match via code property, got %+v ok=%v", got, ok)
	}
	got, ok = s.FindFaultByCode("F505")
	if !ok || got.ID != "f505" {
		t.Fatalf("expected match via name, got %+v ok=%v", got, ok)
	}
	if _, ok := s.FindFaultByCode("9999"); ok {
		t.Fatal("expected no match")
	}
}

func TestFaultResolutionAndTests(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "fault", Type: NodeEntity, Name: "F100", Properties: map[string]any{"code": "100"}})
	mustAddNode(t, s, Node{ID: "proc1", Type: NodeProcedure, Name: "Reset", Properties: map[string]any{"text": "Power cycle the system"}})
	mustAddNode(t, s, Node{ID: "proc2", Type: NodeProcedure, Name: "Measure"})
	mustAddEdge(t, s, Edge{SourceID: "fault", TargetID: "proc1", Type: EdgeResolvedBy})
	mustAddEdge(t, s, Edge{SourceID: "fault", TargetID: "proc2", Type: EdgeTestedBy})

	res := s.FaultResolution("fault")
	if len(res) != 1 || res[0].Properties["text"] != "Power cycle the system" {
		t.Fatalf("unexpected resolutions: %+v", res)
	}
	tests := s.FaultTests("fault")
	if len(tests) != 1 || tests[0].ID != "proc2" {
		t.Fatalf("unexpected tests: %+v", tests)
	}
}

func TestStatsByType(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "c1", Type: NodeComponent, Name: "C1"})
	mustAddNode(t, s, Node{ID: "c2", Type: NodeComponent, Name: "C2"})
	mustAddNode(t, s, Node{ID: "f1", Type: NodeFaultCode, Name: "F1"})
	mustAddEdge(t, s, Edge{SourceID: "f1", TargetID: "c1", Type: EdgeCausedBy})

	stats := s.Stats()
	if stats.TotalNodes != 3 || stats.TotalEdges != 1 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.NodesByType["component"] != 2 || stats.NodesByType["fault_code"] != 1 {
		t.Fatalf("unexpected node type counts: %v", stats.NodesByType)
	}
	if stats.EdgesByType["CAUSED_BY"] != 1 {
		t.Fatalf("unexpected edge type counts: %v", stats.EdgesByType)
	}
}

func TestMirrorReceivesWrites(t *testing.T) {
	m := &recordingMirror{}
	s := NewStore(m, Options{}, nil)
	mustAddNode(t, s, Node{ID: "a", Type: NodeComponent, Name: "A"})
	mustAddNode(t, s, Node{ID: "b", Type: NodeComponent, Name: "B"})
	mustAddEdge(t, s, Edge{SourceID: "a", TargetID: "b", Type: EdgeConnectedTo})

	if nodes, rels := m.counts(); nodes != 2 || rels != 1 {
		t.Fatalf("expected 2 node and 1 relationship writes, got %d/%d", nodes, rels)
	}
}

func TestMirrorFailureSwallowed(t *testing.T) {
	m := &recordingMirror{err: errors.New("bolt down")}
	s := NewStore(m, Options{}, nil)

	if _, err := s.AddNode(context.Background(), Node{ID: "a", Type: NodeComponent, Name: "A"}); err != nil {
		t.Fatalf("mirror failure must not surface: %v", err)
	}
	if _, ok := s.GetNode("a"); !ok {
		t.Fatal("in-memory write must land despite mirror failure")
	}
}

func TestMirrorSkipsEdgesWithUnknownEndpoints(t *testing.T) {
	m := &recordingMirror{}
	s := NewStore(m, Options{}, nil)
	mustAddEdge(t, s, Edge{SourceID: "x", TargetID: "y", Type: EdgeConnectedTo})

	// Neither endpoint has a node record, so there is nothing to label the
	// relationship with; the mirror write is skipped, not guessed.
	if _, rels := m.counts(); rels != 0 {
		t.Fatalf("expected no mirrored relationship, got %d", rels)
	}
}

func TestMirrorBackfill(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "a", Type: NodeComponent, Name: "A"})
	mustAddNode(t, s, Node{ID: "b", Type: NodeComponent, Name: "B"})
	mustAddNode(t, s, Node{ID: "c", Type: NodeFaultCode, Name: "E42"})
	mustAddEdge(t, s, Edge{SourceID: "c", TargetID: "a", Type: EdgeCausedBy})
	mustAddEdge(t, s, Edge{SourceID: "a", TargetID: "b", Type: EdgeConnectedTo})
	// Dangling edge: target has no node record, so backfill must skip it.
	mustAddEdge(t, s, Edge{SourceID: "a", TargetID: "ghost", Type: EdgeConnectedTo})

	m := &recordingMirror{}
	nodes, edges, err := s.MirrorBackfill(context.Background(), m, 4)
	if err != nil {
		t.Fatalf("MirrorBackfill: %v", err)
	}
	if nodes != 3 || edges != 2 {
		t.Fatalf("expected 3 nodes and 2 edges written, got %d/%d", nodes, edges)
	}
	if mn, mr := m.counts(); mn != 3 || mr != 2 {
		t.Fatalf("mirror saw %d node and %d relationship writes", mn, mr)
	}
}

func TestMirrorBackfillPropagatesErrors(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "a", Type: NodeComponent, Name: "A"})
	mustAddNode(t, s, Node{ID: "b", Type: NodeComponent, Name: "B"})
	mustAddEdge(t, s, Edge{SourceID: "a", TargetID: "b", Type: EdgeConnectedTo})

	m := &recordingMirror{err: errors.New("bolt down")}
	if _, _, err := s.MirrorBackfill(context.Background(), m, 2); err == nil {
		t.Fatal("expected backfill to surface the mirror error")
	}
}

func TestNodesAndEdgesInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	mustAddNode(t, s, Node{ID: "b", Type: NodeComponent, Name: "B"})
	mustAddNode(t, s, Node{ID: "a", Type: NodeComponent, Name: "A"})
	mustAddEdge(t, s, Edge{SourceID: "b", TargetID: "a", Type: EdgeConnectedTo})
	mustAddEdge(t, s, Edge{SourceID: "a", TargetID: "b", Type: EdgeConnectedTo})

	nodes := s.Nodes()
	if len(nodes) != 2 || nodes[0].ID != "b" || nodes[1].ID != "a" {
		t.Fatalf("unexpected node order: %+v", nodes)
	}
	edges := s.Edges()
	if len(edges) != 2 || edges[0].SourceID != "b" || edges[1].SourceID != "a" {
		t.Fatalf("unexpected edge order: %+v", edges)
	}
}
