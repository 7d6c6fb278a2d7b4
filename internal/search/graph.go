package search

import (
	"strings"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
)

// GraphNode/GraphEdge mirror spec §3's derived graph view: node id = note
// path, group = first path segment or "root"; edge = resolved wikilink.
// Shapes are adapted from the teacher's internal/graph Node/Edge types
// (internal/graph/graph.go), simplified to the single node/edge kind this
// spec calls for — the teacher's richer persisted node-type enum and
// extraction machinery is not reused.
type GraphNode struct {
	ID    string
	Group string
}

type GraphEdge struct {
	Source string
	Target string
}

// Graph derives nodes/edges from note_metadata + note_links on demand
// (spec §4.12 "GET /api/graph").
func (e *Engine) Graph(tenant string) ([]GraphNode, []GraphEdge, error) {
	rows, err := e.db.Query(`SELECT path FROM note_metadata WHERE tenant = ?`, tenant)
	if err != nil {
		return nil, nil, apperr.Internal("graph node query failed", err)
	}
	defer rows.Close()

	var nodes []GraphNode
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, nil, apperr.Internal("failed to scan graph node", err)
		}
		nodes = append(nodes, GraphNode{ID: path, Group: firstSegment(path)})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperr.Internal("failed to iterate graph nodes", err)
	}

	edgeRows, err := e.db.Query(`SELECT source_path, target_path FROM note_links
		WHERE tenant = ? AND is_resolved = 1`, tenant)
	if err != nil {
		return nil, nil, apperr.Internal("graph edge query failed", err)
	}
	defer edgeRows.Close()

	var edges []GraphEdge
	for edgeRows.Next() {
		var src string
		var tgt *string
		if err := edgeRows.Scan(&src, &tgt); err != nil {
			return nil, nil, apperr.Internal("failed to scan graph edge", err)
		}
		if tgt != nil {
			edges = append(edges, GraphEdge{Source: src, Target: *tgt})
		}
	}
	return nodes, edges, edgeRows.Err()
}

func firstSegment(path string) string {
	if idx := strings.Index(path, "/"); idx >= 0 {
		return path[:idx]
	}
	return "root"
}
