// Package contexttree implements C11: per-tenant conversation tree
// storage — nodes with parent links, HEAD pointer, checkpoints, pruning
// (spec §4.11). Grounded on the teacher's internal/store/db.go
// transaction-per-operation idiom; ids grounded on sibling repos'
// google/uuid usage (the teacher has no UUID need since it's
// single-tenant/single-session).
package contexttree

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bigwolfeman/document-mcp/internal/apperr"
	"github.com/bigwolfeman/document-mcp/internal/index"
)

// ToolCall mirrors one entry of a ConversationNode's tool_calls sequence.
type ToolCall struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Result string `json:"result"`
}

// Node mirrors spec §3's ConversationNode.
type Node struct {
	ID           string
	RootID       string
	ParentID     *string
	Tenant       string
	Project      string
	CreatedAt    time.Time
	Question     string
	Answer       string
	ToolCalls    []ToolCall
	TokensUsed   int
	ModelUsed    string
	Label        *string
	IsCheckpoint bool
	IsRoot       bool
}

// Tree mirrors spec §3's ConversationTree.
type Tree struct {
	RootID        string
	Tenant        string
	Project       string
	CurrentNodeID string
	CreatedAt     time.Time
	LastActivity  time.Time
	NodeCount     int
	MaxNodes      int
	Label         *string
}

// Store owns conversation tree CRUD against the shared index database.
type Store struct {
	db *index.DB
}

func New(db *index.DB) *Store {
	return &Store{db: db}
}

// CreateTree inserts both a root ConversationNode (empty question/answer,
// is_root=true) and the tree row atomically (spec §4.11 invariant).
func (s *Store) CreateTree(tenant, project string, label *string, maxNodes int) (*Tree, error) {
	if maxNodes <= 0 {
		maxNodes = 30
	}
	rootID := uuid.NewString()
	now := time.Now().UTC()

	err := s.db.Tx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO context_nodes
			(id, root_id, parent_id, tenant, project, created_at, question, answer,
			 tool_calls_blob, tokens_used, model_used, label, is_checkpoint, is_root)
			VALUES (?, ?, NULL, ?, ?, ?, '', '', '[]', 0, '', NULL, 0, 1)`,
			rootID, rootID, tenant, project, now.Format(time.RFC3339)); err != nil {
			return apperr.Internal("failed to insert root node", err)
		}
		if _, err := tx.Exec(`INSERT INTO context_trees
			(root_id, tenant, project, current_node_id, created_at, last_activity, node_count, max_nodes, label)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			rootID, tenant, project, rootID, now.Format(time.RFC3339), now.Format(time.RFC3339), maxNodes, nullableLabel(label)); err != nil {
			return apperr.Internal("failed to insert tree", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetTree(tenant, rootID)
}

func nullableLabel(label *string) any {
	if label == nil {
		return nil
	}
	return *label
}

// GetTrees returns every tree for tenant+project.
func (s *Store) GetTrees(tenant, project string) ([]*Tree, error) {
	rows, err := s.db.Query(`SELECT root_id, tenant, project, current_node_id, created_at,
		last_activity, node_count, max_nodes, label
		FROM context_trees WHERE tenant = ? AND project = ? ORDER BY last_activity DESC`, tenant, project)
	if err != nil {
		return nil, apperr.Internal("failed to list trees", err)
	}
	defer rows.Close()

	var out []*Tree
	for rows.Next() {
		t, err := scanTree(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTree(rows rowScanner) (*Tree, error) {
	var t Tree
	var created, lastActivity string
	var label sql.NullString
	if err := rows.Scan(&t.RootID, &t.Tenant, &t.Project, &t.CurrentNodeID, &created,
		&lastActivity, &t.NodeCount, &t.MaxNodes, &label); err != nil {
		return nil, apperr.Internal("failed to scan tree", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, created)
	t.LastActivity, _ = time.Parse(time.RFC3339, lastActivity)
	if label.Valid {
		v := label.String
		t.Label = &v
	}
	return &t, nil
}

// GetTree returns one tree by (tenant, rootID); fails not_found.
func (s *Store) GetTree(tenant, rootID string) (*Tree, error) {
	row := s.db.QueryRow(`SELECT root_id, tenant, project, current_node_id, created_at,
		last_activity, node_count, max_nodes, label
		FROM context_trees WHERE tenant = ? AND root_id = ?`, tenant, rootID)
	t, err := scanTree(row)
	if err != nil {
		if err.(*apperr.E).Unwrap() == sql.ErrNoRows {
			return nil, apperr.NotFound("conversation tree")
		}
		return nil, err
	}
	return t, nil
}

// DeleteTree removes a tree and (cascade) its nodes.
func (s *Store) DeleteTree(tenant, rootID string) error {
	return s.db.Tx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM context_trees WHERE tenant = ? AND root_id = ?`, tenant, rootID)
		if err != nil {
			return apperr.Internal("failed to delete tree", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("conversation tree")
		}
		if _, err := tx.Exec(`DELETE FROM context_nodes WHERE tenant = ? AND root_id = ?`, tenant, rootID); err != nil {
			return apperr.Internal("failed to delete nodes", err)
		}
		return nil
	})
}

// GetNode returns one node by id; fails not_found.
func (s *Store) GetNode(tenant, id string) (*Node, error) {
	row := s.db.QueryRow(`SELECT id, root_id, parent_id, tenant, project, created_at, question,
		answer, tool_calls_blob, tokens_used, model_used, label, is_checkpoint, is_root
		FROM context_nodes WHERE tenant = ? AND id = ?`, tenant, id)
	n, err := scanNode(row)
	if err != nil {
		return nil, apperr.NotFound("conversation node")
	}
	return n, nil
}

func scanNode(row rowScanner) (*Node, error) {
	var n Node
	var parentID, label sql.NullString
	var created string
	var toolCallsBlob string
	var isCheckpoint, isRoot int
	if err := row.Scan(&n.ID, &n.RootID, &parentID, &n.Tenant, &n.Project, &created, &n.Question,
		&n.Answer, &toolCallsBlob, &n.TokensUsed, &n.ModelUsed, &label, &isCheckpoint, &isRoot); err != nil {
		return nil, err
	}
	n.CreatedAt, _ = time.Parse(time.RFC3339, created)
	if parentID.Valid {
		v := parentID.String
		n.ParentID = &v
	}
	if label.Valid {
		v := label.String
		n.Label = &v
	}
	n.IsCheckpoint = isCheckpoint != 0
	n.IsRoot = isRoot != 0
	_ = json.Unmarshal([]byte(toolCallsBlob), &n.ToolCalls)
	return &n, nil
}

// CreateNode inserts a new node as a child of parentID, increments
// node_count, and moves HEAD to the new node in the same transaction
// (spec §4.11).
func (s *Store) CreateNode(tenant, rootID, parentID, project, question, answer string,
	toolCalls []ToolCall, tokensUsed int, modelUsed string) (*Node, error) {

	id := uuid.NewString()
	now := time.Now().UTC()
	blob, err := json.Marshal(toolCalls)
	if err != nil {
		return nil, apperr.Internal("failed to marshal tool calls", err)
	}

	err = s.db.Tx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM context_trees WHERE tenant = ? AND root_id = ?`,
			tenant, rootID).Scan(&exists); err != nil {
			return apperr.Internal("failed to verify tree", err)
		}
		if exists == 0 {
			return apperr.NotFound("conversation tree")
		}
		if _, err := tx.Exec(`INSERT INTO context_nodes
			(id, root_id, parent_id, tenant, project, created_at, question, answer,
			 tool_calls_blob, tokens_used, model_used, label, is_checkpoint, is_root)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0, 0)`,
			id, rootID, parentID, tenant, project, now.Format(time.RFC3339), question, answer,
			string(blob), tokensUsed, modelUsed); err != nil {
			return apperr.Internal("failed to insert node", err)
		}
		if _, err := tx.Exec(`UPDATE context_trees SET current_node_id = ?, last_activity = ?,
			node_count = node_count + 1 WHERE tenant = ? AND root_id = ?`,
			id, now.Format(time.RFC3339), tenant, rootID); err != nil {
			return apperr.Internal("failed to update tree", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetNode(tenant, id)
}

// UpdateNode patches label and/or is_checkpoint on an existing node.
func (s *Store) UpdateNode(tenant, id string, label *string, isCheckpoint *bool) (*Node, error) {
	err := s.db.Tx(func(tx *sql.Tx) error {
		if label != nil {
			if _, err := tx.Exec(`UPDATE context_nodes SET label = ? WHERE tenant = ? AND id = ?`, *label, tenant, id); err != nil {
				return apperr.Internal("failed to update label", err)
			}
		}
		if isCheckpoint != nil {
			v := 0
			if *isCheckpoint {
				v = 1
			}
			if _, err := tx.Exec(`UPDATE context_nodes SET is_checkpoint = ? WHERE tenant = ? AND id = ?`, v, tenant, id); err != nil {
				return apperr.Internal("failed to update checkpoint flag", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetNode(tenant, id)
}

// Checkout only moves HEAD; it does not alter parent links (spec §4.11).
func (s *Store) Checkout(tenant, rootID, nodeID string) error {
	return s.db.Tx(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM context_nodes WHERE tenant = ? AND id = ? AND root_id = ?`,
			tenant, nodeID, rootID).Scan(&count); err != nil {
			return apperr.Internal("failed to verify node", err)
		}
		if count == 0 {
			return apperr.NotFound("conversation node")
		}
		res, err := tx.Exec(`UPDATE context_trees SET current_node_id = ?, last_activity = ?
			WHERE tenant = ? AND root_id = ?`, nodeID, time.Now().UTC().Format(time.RFC3339), tenant, rootID)
		if err != nil {
			return apperr.Internal("failed to checkout node", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("conversation tree")
		}
		return nil
	})
}

// PathToHead walks parent_id from current_node_id to the root then
// reverses, guarding against cycles (spec §9: "should be impossible by
// construction — log and abort the request").
func (s *Store) PathToHead(tenant, rootID string) ([]string, error) {
	tree, err := s.GetTree(tenant, rootID)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	var reversed []string
	current := tree.CurrentNodeID
	for current != "" {
		if visited[current] {
			return nil, apperr.Internal("context tree cycle detected", nil)
		}
		visited[current] = true
		reversed = append(reversed, current)

		node, err := s.GetNode(tenant, current)
		if err != nil {
			return nil, err
		}
		if node.ParentID == nil {
			break
		}
		current = *node.ParentID
	}

	out := make([]string, len(reversed))
	for i, id := range reversed {
		out[len(reversed)-1-i] = id
	}
	return out, nil
}

// PruneTree deletes every non-checkpoint, non-root node not on the path
// from HEAD to root, then recounts (spec §4.11/§4.9).
func (s *Store) PruneTree(tenant, rootID string) (removed, remaining int, err error) {
	path, err := s.PathToHead(tenant, rootID)
	if err != nil {
		return 0, 0, err
	}
	keep := make(map[string]bool, len(path))
	for _, id := range path {
		keep[id] = true
	}

	err = s.db.Tx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT id, is_checkpoint, is_root FROM context_nodes
			WHERE tenant = ? AND root_id = ?`, tenant, rootID)
		if err != nil {
			return apperr.Internal("failed to list nodes for prune", err)
		}
		var toDelete []string
		for rows.Next() {
			var id string
			var isCheckpoint, isRoot int
			if err := rows.Scan(&id, &isCheckpoint, &isRoot); err != nil {
				rows.Close()
				return apperr.Internal("failed to scan node for prune", err)
			}
			if keep[id] || isCheckpoint != 0 || isRoot != 0 {
				continue
			}
			toDelete = append(toDelete, id)
		}
		rows.Close()

		for _, id := range toDelete {
			if _, err := tx.Exec(`DELETE FROM context_nodes WHERE tenant = ? AND id = ?`, tenant, id); err != nil {
				return apperr.Internal("failed to delete pruned node", err)
			}
		}
		removed = len(toDelete)

		if err := tx.QueryRow(`SELECT COUNT(*) FROM context_nodes WHERE tenant = ? AND root_id = ?`,
			tenant, rootID).Scan(&remaining); err != nil {
			return apperr.Internal("failed to recount nodes", err)
		}
		_, err = tx.Exec(`UPDATE context_trees SET node_count = ? WHERE tenant = ? AND root_id = ?`,
			remaining, tenant, rootID)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, remaining, nil
}

// GetActiveTreeID returns the tree with the most recent last_activity for
// tenant+project.
func (s *Store) GetActiveTreeID(tenant, project string) (string, error) {
	var rootID string
	err := s.db.QueryRow(`SELECT root_id FROM context_trees WHERE tenant = ? AND project = ?
		ORDER BY last_activity DESC LIMIT 1`, tenant, project).Scan(&rootID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", apperr.NotFound("conversation tree")
		}
		return "", apperr.Internal("failed to find active tree", err)
	}
	return rootID, nil
}

// SetActiveTree bumps last_activity on rootID so it becomes the active
// tree for its tenant+project.
func (s *Store) SetActiveTree(tenant, rootID string) error {
	return s.db.Tx(func(tx *sql.Tx) error {
		r, err := tx.Exec(`UPDATE context_trees SET last_activity = ?
			WHERE tenant = ? AND root_id = ?`, time.Now().UTC().Format(time.RFC3339), tenant, rootID)
		if err != nil {
			return apperr.Internal("failed to set active tree", err)
		}
		if n, _ := r.RowsAffected(); n == 0 {
			return apperr.NotFound("conversation tree")
		}
		return nil
	})
}
