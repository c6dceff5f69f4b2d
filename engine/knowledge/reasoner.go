package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Summarizer turns a reasoning prompt into prose. The production
// implementation calls an LLM; the Reasoner treats it as optional and always
// has a deterministic template fallback, so summarizer latency or failure
// never affects the graph results themselves.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// defaultPathDepth bounds ExplainConnection's shortest-path search.
const defaultPathDepth = 5

// Reasoner performs causal analysis over a Store: multi-hop backward search
// for root causes, forward search for effects, and path explanations. Every
// call is a read-only computation over the current store snapshot.
type Reasoner struct {
	store      *Store
	summarizer Summarizer
	logger     *slog.Logger
}

// NewReasoner creates a Reasoner. summarizer may be nil; logger defaults to
// slog.Default().
func NewReasoner(store *Store, summarizer Summarizer, logger *slog.Logger) *Reasoner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reasoner{store: store, summarizer: summarizer, logger: logger}
}

// resolve finds a node by id, then by case-insensitive name substring.
func (r *Reasoner) resolve(identifier string) (Node, bool) {
	if n, ok := r.store.GetNode(identifier); ok {
		return n, true
	}
	return r.store.NodeByName(identifier)
}

// FindCauses walks from a symptom or fault toward its causes along
// CAUSED_BY and INDICATES edges (the edges point fault -> cause, so the walk
// follows edge direction while moving against causality) and collects root
// causes: component nodes with no further causal successor. The visited set
// is copied per branch, so a cause reachable along several branches
// contributes one path per branch. RootCauses is intentionally not
// deduplicated.
func (r *Reasoner) FindCauses(ctx context.Context, identifier string, maxDepth int) CausalChain {
	chain, ok := r.CollectCauses(identifier, maxDepth)
	if !ok {
		return chain
	}
	chain.Explanation = r.ExplainCauses(ctx, chain)
	return chain
}

// CollectCauses is the walk half of FindCauses: it computes root causes,
// paths, and confidence without ever touching the summarizer, so callers
// that serialize graph access can hold their read lock for the walk alone
// and render the explanation after releasing it. Returns false when no node
// matches the identifier; the chain then already carries its final
// explanation.
func (r *Reasoner) CollectCauses(identifier string, maxDepth int) (CausalChain, bool) {
	start, ok := r.resolve(identifier)
	if !ok {
		return CausalChain{
			Symptom:     identifier,
			RootCauses:  []string{},
			Paths:       []ReasoningPath{},
			Explanation: "No matching node found for: " + identifier,
		}, false
	}

	w := &causeWalker{
		store:      r.store,
		maxDepth:   maxDepth,
		rootCauses: []string{},
		paths:      []ReasoningPath{},
	}
	w.walk(start.ID, []Node{start}, nil, 0, map[string]bool{})
	if w.exhausted {
		r.logger.Warn("cause traversal hit step budget", "start", start.ID)
	}

	return CausalChain{
		Symptom:    identifier,
		RootCauses: w.rootCauses,
		Paths:      w.paths,
		Confidence: pathConfidence(w.paths),
	}, true
}

// causeWalker carries the state of one backward traversal.
type causeWalker struct {
	store      *Store
	maxDepth   int
	steps      int
	exhausted  bool
	rootCauses []string
	paths      []ReasoningPath
}

func (w *causeWalker) walk(nodeID string, path []Node, edges []Edge, depth int, visited map[string]bool) {
	if depth >= w.maxDepth || visited[nodeID] {
		return
	}
	if w.steps >= stepBudget {
		w.exhausted = true
		return
	}
	w.steps++
	visited[nodeID] = true

	type hop struct {
		node Node
		edge Edge
	}
	var causal []hop
	for _, neighbor := range w.store.Neighbors(nodeID, EdgeAny, DirOut) {
		e, ok := w.store.GetEdge(nodeID, neighbor.ID)
		if !ok {
			continue
		}
		if e.Type == EdgeCausedBy || e.Type == EdgeIndicates {
			causal = append(causal, hop{node: neighbor, edge: e})
		}
	}

	if len(causal) == 0 {
		// No further causal edges: this node terminates the chain. Only
		// components count as root causes.
		node, ok := w.store.GetNode(nodeID)
		if !ok || node.Type != NodeComponent {
			return
		}
		w.rootCauses = append(w.rootCauses, node.Name)
		if len(path) > 1 {
			p := ReasoningPath{
				Nodes: append([]Node(nil), path...),
				Edges: append([]Edge(nil), edges...),
			}
			for _, e := range p.Edges {
				p.TotalWeight += e.Weight
			}
			w.paths = append(w.paths, p)
		}
		return
	}

	for _, h := range causal {
		// Copy the visited set so the same ancestor can be reached again
		// along a different branch.
		branch := make(map[string]bool, len(visited))
		for id := range visited {
			branch[id] = true
		}
		w.walk(h.node.ID,
			append(append([]Node(nil), path...), h.node),
			append(append([]Edge(nil), edges...), h.edge),
			depth+1, branch)
	}
}

// FindEffects walks downstream from a component or action: an edge
// X --CAUSED_BY--> C arriving at C means X is an effect of C, so the walk
// follows incoming causal edges and returns the names of reachable
// fault_code and symptom nodes. Unlike FindCauses the visited set is shared
// across the whole walk: a node is expanded at most once. The two walks are
// deliberately distinct strategies; unifying them changes result sets.
func (r *Reasoner) FindEffects(identifier string, maxDepth int) []string {
	start, ok := r.resolve(identifier)
	if !ok {
		return nil
	}

	var effects []string
	visited := map[string]bool{}
	steps := 0

	var walk func(nodeID string, depth int)
	walk = func(nodeID string, depth int) {
		if depth >= maxDepth || visited[nodeID] || steps >= stepBudget {
			return
		}
		steps++
		visited[nodeID] = true

		for _, neighbor := range r.store.Neighbors(nodeID, EdgeAny, DirIn) {
			e, ok := r.store.GetEdge(neighbor.ID, nodeID)
			if !ok || (e.Type != EdgeCausedBy && e.Type != EdgeIndicates) {
				continue
			}
			if neighbor.Type == NodeFaultCode || neighbor.Type == NodeSymptom {
				effects = append(effects, neighbor.Name)
			}
			walk(neighbor.ID, depth+1)
		}
	}
	walk(start.ID, 0)
	return effects
}

// ExplainConnection renders how two nodes relate: shortest path forward,
// then reverse if the forward search finds nothing, then prose via the
// summarizer or the deterministic template.
func (r *Reasoner) ExplainConnection(ctx context.Context, start, end string) string {
	path, msg := r.ConnectionPath(start, end)
	if path == nil {
		return msg
	}
	return r.ExplainPath(ctx, *path)
}

// ConnectionPath is the search half of ExplainConnection: it resolves both
// endpoints and finds the shortest path between them, trying the reverse
// direction when the forward search fails. When path is nil the message
// explains why. No summarizer call happens here.
func (r *Reasoner) ConnectionPath(start, end string) (*ReasoningPath, string) {
	startNode, sok := r.resolve(start)
	endNode, eok := r.resolve(end)
	if !sok || !eok {
		return nil, fmt.Sprintf("Could not find connection between '%s' and '%s'", start, end)
	}

	path := r.store.FindPath(startNode.ID, endNode.ID, defaultPathDepth)
	if path == nil {
		path = r.store.FindPath(endNode.ID, startNode.ID, defaultPathDepth)
	}
	if path == nil {
		return nil, fmt.Sprintf("No connection found between '%s' and '%s'", startNode.Name, endNode.Name)
	}
	return path, ""
}

// ExplainPath renders a found path as prose via the summarizer or the
// deterministic template.
func (r *Reasoner) ExplainPath(ctx context.Context, path ReasoningPath) string {
	if r.summarizer != nil {
		prompt := fmt.Sprintf(`Explain this connection path in an elevator system:

Path: %s

Provide a brief, technician-friendly explanation of how these components
are related and what this connection means for troubleshooting.`, path.String())
		text, err := r.summarizer.Summarize(ctx, prompt)
		if err == nil {
			return text
		}
		r.logger.Warn("path explanation summarizer failed", "error", err)
	}
	return templateExplanation(path)
}

// ExplainCauses produces the explanation for a collected chain: summarizer
// first when configured and paths exist, template otherwise.
func (r *Reasoner) ExplainCauses(ctx context.Context, chain CausalChain) string {
	symptom := chain.Symptom
	if r.summarizer != nil && len(chain.Paths) > 0 {
		var lines []string
		for i, p := range chain.Paths {
			if i == 3 {
				break
			}
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, p.String()))
		}
		prompt := fmt.Sprintf(`Explain the causal relationship in this elevator fault diagnosis:

Symptom/Fault: %s
Root Causes Found: %s

Reasoning Paths:
%s

Provide a clear, technician-friendly explanation of:
1. Why these components might cause this symptom
2. The most likely root cause
3. What to check first

Keep it concise (2-3 paragraphs).`,
			symptom, joinOr(chain.RootCauses, "None identified"), strings.Join(lines, "\n"))

		text, err := r.summarizer.Summarize(ctx, prompt)
		if err == nil {
			return text
		}
		r.logger.Warn("causal explanation summarizer failed", "symptom", symptom, "error", err)
	}
	return templateCausalExplanation(symptom, chain.RootCauses)
}

// templateExplanation renders a path as prose: "Starting from A, which is
// caused by B.".
func templateExplanation(path ReasoningPath) string {
	if len(path.Nodes) == 0 {
		return "Empty path"
	}
	parts := []string{"Starting from " + path.Nodes[0].Name}
	for i, e := range path.Edges {
		if i+1 < len(path.Nodes) {
			parts = append(parts, fmt.Sprintf("which is %s %s", e.Type.Humanize(), path.Nodes[i+1].Name))
		}
	}
	return strings.Join(parts, ", ") + "."
}

// templateCausalExplanation is the deterministic fallback for FindCauses.
func templateCausalExplanation(symptom string, rootCauses []string) string {
	switch len(rootCauses) {
	case 0:
		return fmt.Sprintf("No root causes identified for %s.", symptom)
	case 1:
		return fmt.Sprintf("The symptom '%s' is likely caused by %s.", symptom, rootCauses[0])
	default:
		causes := strings.Join(rootCauses[:len(rootCauses)-1], ", ") + " or " + rootCauses[len(rootCauses)-1]
		return fmt.Sprintf("The symptom '%s' may be caused by %s.", symptom, causes)
	}
}

// pathConfidence scores a causal chain in [0,1]: shorter paths and more
// independent paths raise confidence. The exact constants are load-bearing
// for numeric parity with existing clients.
func pathConfidence(paths []ReasoningPath) float64 {
	if len(paths) == 0 {
		return 0
	}
	numPaths := float64(len(paths))
	var totalLen float64
	for _, p := range paths {
		totalLen += float64(p.Length())
	}
	avgLen := totalLen / numPaths

	lengthFactor := 1.0 / (1.0 + avgLen*0.2)
	pathFactor := numPaths * 0.3
	if pathFactor > 1.0 {
		pathFactor = 1.0
	}

	confidence := (lengthFactor + pathFactor) / 2
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.0 {
		confidence = 0.0
	}
	return confidence
}

// joinOr joins names with commas, or returns fallback for an empty list.
func joinOr(names []string, fallback string) string {
	if len(names) == 0 {
		return fallback
	}
	return strings.Join(names, ", ")
}
