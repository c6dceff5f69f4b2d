package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HoistlineAI/hoistline-mvp/engine/domain"
)

// jsonNode and jsonEdge mirror the graph export format on disk. The format
// is shared with existing exports and must stay byte-compatible.
type jsonNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

type jsonEdge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Weight     float64        `json:"weight"`
	Properties map[string]any `json:"properties,omitempty"`
}

// LoadFromJSON reads nodes.json and edges.json from dir into the store and
// returns how many of each were loaded. Either file may be absent. Unknown
// node or edge type strings fall back to the generic category instead of
// failing the load; legacy exports predate the current type set.
func (s *Store) LoadFromJSON(ctx context.Context, dir string) (int, int, error) {
	var nodeCount, edgeCount int

	nodesFile := filepath.Join(dir, "nodes.json")
	if data, err := os.ReadFile(nodesFile); err == nil {
		var records []jsonNode
		if err := json.Unmarshal(data, &records); err != nil {
			return 0, 0, fmt.Errorf("knowledge: parse %s: %w", nodesFile, err)
		}
		for _, rec := range records {
			node := Node{
				ID:         rec.ID,
				Type:       ParseNodeType(rec.Type),
				Name:       nodeName(rec),
				Properties: rec.Properties,
			}
			if _, err := s.AddNode(ctx, node); err != nil {
				return nodeCount, edgeCount, fmt.Errorf("knowledge: load node %q: %w", rec.ID, err)
			}
			nodeCount++
		}
	} else if !os.IsNotExist(err) {
		return 0, 0, fmt.Errorf("knowledge: read %s: %w", nodesFile, err)
	}

	edgesFile := filepath.Join(dir, "edges.json")
	if data, err := os.ReadFile(edgesFile); err == nil {
		var records []jsonEdge
		if err := json.Unmarshal(data, &records); err != nil {
			return nodeCount, 0, fmt.Errorf("knowledge: parse %s: %w", edgesFile, err)
		}
		for _, rec := range records {
			edge := Edge{
				SourceID:   rec.Source,
				TargetID:   rec.Target,
				Type:       ParseEdgeType(rec.Type),
				Weight:     rec.Weight,
				Properties: rec.Properties,
			}
			if _, err := s.AddEdge(ctx, edge); err != nil {
				return nodeCount, edgeCount, fmt.Errorf("knowledge: load edge %s->%s: %w", rec.Source, rec.Target, err)
			}
			edgeCount++
		}
	} else if !os.IsNotExist(err) {
		return nodeCount, 0, fmt.Errorf("knowledge: read %s: %w", edgesFile, err)
	}

	s.logger.Info("loaded graph from json", "dir", dir, "nodes", nodeCount, "edges", edgeCount)
	return nodeCount, edgeCount, nil
}

// nodeName derives a display name: properties name, code, title, then label.
func nodeName(rec jsonNode) string {
	for _, key := range []string{"name", "code", "title"} {
		if v, ok := rec.Properties[key].(string); ok && v != "" {
			return v
		}
	}
	return rec.Label
}

// ExportToJSON writes the store as nodes.json and edges.json in the bulk
// load format, so an export loaded into a fresh store reproduces the same
// stats. Files are written in insertion order.
func (s *Store) ExportToJSON(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("knowledge: export dir: %w", err)
	}

	nodes := make([]jsonNode, 0, len(s.order))
	for _, id := range s.order {
		n := s.nodes[id]
		nodes = append(nodes, jsonNode{
			ID:         n.ID,
			Type:       string(n.Type),
			Label:      n.Name,
			Properties: n.Properties,
		})
	}
	edges := make([]jsonEdge, 0, s.nedges)
	for _, id := range s.order {
		adj := s.out[id]
		if adj == nil {
			continue
		}
		for _, targetID := range adj.order {
			e := adj.edges[targetID]
			edges = append(edges, jsonEdge{
				Source:     e.SourceID,
				Target:     e.TargetID,
				Type:       string(e.Type),
				Weight:     e.Weight,
				Properties: e.Properties,
			})
		}
	}

	for name, v := range map[string]any{"nodes.json": nodes, "edges.json": edges} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("knowledge: marshal %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("knowledge: write %s: %w", name, err)
		}
	}
	return nil
}

// BuildFromExtraction bulk-inserts one document's extraction results: a
// document node, component nodes linked via DOCUMENTED_IN, CONNECTED_TO
// edges for connections, and FAULT_<code> nodes with CAUSED_BY edges toward
// each implicated component.
func (s *Store) BuildFromExtraction(ctx context.Context, res domain.ExtractionResult) error {
	if err := domain.ValidateExtraction(res); err != nil {
		return fmt.Errorf("knowledge: extraction rejected: %w", err)
	}

	if _, err := s.AddNode(ctx, Node{
		ID:   res.DocumentID,
		Type: NodeDocument,
		Name: res.DocumentID,
	}); err != nil {
		return err
	}

	for _, comp := range res.Components {
		node := Node{
			ID:             comp.ID,
			Type:           NodeComponent,
			Name:           comp.Name,
			Properties:     comp.Specs,
			SourceDocument: res.DocumentID,
		}
		if _, err := s.AddNode(ctx, node); err != nil {
			return err
		}
		if _, err := s.AddEdge(ctx, Edge{
			SourceID: node.ID,
			TargetID: res.DocumentID,
			Type:     EdgeDocumentedIn,
		}); err != nil {
			return err
		}
	}

	for _, conn := range res.Connections {
		if _, err := s.AddEdge(ctx, Edge{
			SourceID:   conn.SourceID,
			TargetID:   conn.TargetID,
			Type:       EdgeConnectedTo,
			Properties: map[string]any{"label": conn.Label},
		}); err != nil {
			return err
		}
	}

	for _, fault := range res.FaultCodes {
		faultID := "FAULT_" + fault.Code
		if _, err := s.AddNode(ctx, Node{
			ID:   faultID,
			Type: NodeFaultCode,
			Name: fault.Code,
			Properties: map[string]any{
				"description": fault.Description,
				"severity":    fault.Severity,
			},
			SourceDocument: res.DocumentID,
		}); err != nil {
			return err
		}
		if _, err := s.AddEdge(ctx, Edge{
			SourceID: faultID,
			TargetID: res.DocumentID,
			Type:     EdgeDocumentedIn,
		}); err != nil {
			return err
		}
		for _, compID := range fault.RelatedComponents {
			if _, err := s.AddEdge(ctx, Edge{
				SourceID: faultID,
				TargetID: compID,
				Type:     EdgeCausedBy,
			}); err != nil {
				return err
			}
		}
	}

	s.logger.Info("built graph from extraction",
		"document", res.DocumentID,
		"components", len(res.Components),
		"connections", len(res.Connections),
		"faults", len(res.FaultCodes))
	return nil
}
