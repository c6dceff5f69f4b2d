package knowledge

const (
	// maxAllPaths caps FindAllPaths results. Simple-path enumeration is
	// combinatorial on dense graphs; without a cap one query can dominate
	// the process.
	maxAllPaths = 64
	// stepBudget bounds the number of nodes expanded by a single traversal.
	stepBudget = 100_000
)

// FindPath returns the shortest directed path from start to end by edge
// count, or nil if either endpoint is absent or the shortest path is longer
// than maxDepth edges. The depth check runs after the search: a route longer
// than maxDepth yields nil even when no shorter one exists, it is never
// truncated or replaced by a longer in-bound alternative.
func (s *Store) FindPath(startID, endID string, maxDepth int) *ReasoningPath {
	if _, ok := s.nodes[startID]; !ok {
		return nil
	}
	if _, ok := s.nodes[endID]; !ok {
		return nil
	}
	if startID == endID {
		p := s.buildPath([]string{startID})
		return &p
	}

	// Unweighted BFS. Every construction path sets weight 1.0 today, so
	// hop count and weighted distance coincide.
	prev := map[string]string{startID: ""}
	queue := []string{startID}
	found := false
	for len(queue) > 0 && !found {
		current := queue[0]
		queue = queue[1:]
		adj := s.out[current]
		if adj == nil {
			continue
		}
		for _, next := range adj.order {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = current
			if next == endID {
				found = true
				break
			}
			queue = append(queue, next)
		}
	}
	if !found {
		return nil
	}

	var ids []string
	for id := endID; id != ""; id = prev[id] {
		ids = append(ids, id)
	}
	// Reverse into start->end order.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	if len(ids) > maxDepth+1 {
		return nil
	}
	p := s.buildPath(ids)
	return &p
}

// FindAllPaths enumerates simple directed paths from start to end with at
// most maxDepth edges. Results are capped at maxAllPaths and the search
// stops once stepBudget node expansions are spent; both guards keep dense
// graphs from blowing up a single query.
func (s *Store) FindAllPaths(startID, endID string, maxDepth int) []ReasoningPath {
	if _, ok := s.nodes[startID]; !ok {
		return nil
	}
	if _, ok := s.nodes[endID]; !ok {
		return nil
	}

	var paths []ReasoningPath
	onPath := map[string]bool{startID: true}
	steps := 0

	var walk func(current string, trail []string)
	walk = func(current string, trail []string) {
		if len(paths) >= maxAllPaths || steps >= stepBudget {
			return
		}
		steps++
		if current == endID {
			ids := make([]string, len(trail))
			copy(ids, trail)
			paths = append(paths, s.buildPath(ids))
			return
		}
		if len(trail)-1 >= maxDepth {
			return
		}
		adj := s.out[current]
		if adj == nil {
			return
		}
		for _, next := range adj.order {
			if onPath[next] {
				continue
			}
			onPath[next] = true
			walk(next, append(trail, next))
			onPath[next] = false
		}
	}
	walk(startID, []string{startID})
	return paths
}

// buildPath assembles a ReasoningPath from an id sequence. Ids without a
// node record are skipped; missing edges (should not happen for ids produced
// by a traversal) are skipped too.
func (s *Store) buildPath(ids []string) ReasoningPath {
	var p ReasoningPath
	for i, id := range ids {
		if n, ok := s.nodes[id]; ok {
			p.Nodes = append(p.Nodes, n)
		}
		if i < len(ids)-1 {
			if e, ok := s.GetEdge(id, ids[i+1]); ok {
				p.Edges = append(p.Edges, e)
				p.TotalWeight += e.Weight
			}
		}
	}
	return p
}
