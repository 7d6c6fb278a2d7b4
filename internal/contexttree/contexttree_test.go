package contexttree

import (
	"testing"

	"github.com/bigwolfeman/document-mcp/internal/index"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := index.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestCreateTreeInsertsRootNode(t *testing.T) {
	s := newStore(t)
	tree, err := s.CreateTree("t1", "proj", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tree.NodeCount != 1 {
		t.Fatalf("NodeCount = %d, want 1", tree.NodeCount)
	}
	root, err := s.GetNode("t1", tree.CurrentNodeID)
	if err != nil {
		t.Fatal(err)
	}
	if !root.IsRoot {
		t.Fatalf("expected root node IsRoot=true")
	}
}

func TestCreateNodeMovesHead(t *testing.T) {
	s := newStore(t)
	tree, _ := s.CreateTree("t1", "proj", nil, 0)
	node, err := s.CreateNode("t1", tree.RootID, tree.CurrentNodeID, "proj", "q", "a", nil, 10, "m")
	if err != nil {
		t.Fatal(err)
	}
	updated, err := s.GetTree("t1", tree.RootID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.CurrentNodeID != node.ID {
		t.Fatalf("HEAD = %s, want %s", updated.CurrentNodeID, node.ID)
	}
	if updated.NodeCount != 2 {
		t.Fatalf("NodeCount = %d, want 2", updated.NodeCount)
	}
}

func TestPathToHeadWalksToRoot(t *testing.T) {
	s := newStore(t)
	tree, _ := s.CreateTree("t1", "proj", nil, 0)
	n1, _ := s.CreateNode("t1", tree.RootID, tree.CurrentNodeID, "proj", "q1", "a1", nil, 0, "m")
	n2, _ := s.CreateNode("t1", tree.RootID, n1.ID, "proj", "q2", "a2", nil, 0, "m")

	path, err := s.PathToHead("t1", tree.RootID)
	if err != nil {
		t.Fatal(err)
	}
	if len(path) != 3 || path[0] != tree.RootID || path[2] != n2.ID {
		t.Fatalf("unexpected path: %+v", path)
	}
}

func TestPruneDropsNonCheckpointOffPath(t *testing.T) {
	s := newStore(t)
	tree, _ := s.CreateTree("t1", "proj", nil, 0)
	n1, _ := s.CreateNode("t1", tree.RootID, tree.CurrentNodeID, "proj", "q1", "a1", nil, 0, "m")
	// branch off n1's parent (the root) and never advance HEAD past n1's sibling
	sibling, _ := s.CreateNode("t1", tree.RootID, tree.RootID, "proj", "q-sibling", "a", nil, 0, "m")
	_ = n1
	// HEAD is now sibling; n1 is off-path and not a checkpoint.
	removed, remaining, err := s.PruneTree("t1", tree.RootID)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if remaining != 2 {
		t.Fatalf("remaining = %d, want 2 (root + sibling)", remaining)
	}
	if _, err := s.GetNode("t1", sibling.ID); err != nil {
		t.Fatalf("sibling (on path to HEAD) should survive prune: %v", err)
	}
}

func TestCheckoutMovesHeadOnly(t *testing.T) {
	s := newStore(t)
	tree, _ := s.CreateTree("t1", "proj", nil, 0)
	n1, _ := s.CreateNode("t1", tree.RootID, tree.CurrentNodeID, "proj", "q1", "a1", nil, 0, "m")
	if err := s.Checkout("t1", tree.RootID, tree.RootID); err != nil {
		t.Fatal(err)
	}
	updated, _ := s.GetTree("t1", tree.RootID)
	if updated.CurrentNodeID != tree.RootID {
		t.Fatalf("HEAD = %s, want root", updated.CurrentNodeID)
	}
	node, _ := s.GetNode("t1", n1.ID)
	if node.ParentID == nil || *node.ParentID != tree.RootID {
		t.Fatalf("checkout must not alter parent links")
	}
}
