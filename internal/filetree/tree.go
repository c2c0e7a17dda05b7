package filetree

import (
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"strings"
)

// NodeID indexes a node in a Tree's arena. IDs are only meaningful for the
// tree that issued them and may be reused after the node is removed.
type NodeID int32

// NoNode is returned where no node exists.
const NoNode NodeID = -1

type node struct {
	rec      FileRecord
	parent   NodeID
	children []NodeID // sorted by rec.Path
	live     bool
}

// Tree is a rooted multi-way tree of file records. Children of every node are
// kept sorted by path with no duplicates. A Tree is not safe for concurrent use.
type Tree struct {
	nodes []node
	free  []NodeID
	root  NodeID
	count int
}

// New returns a tree holding only root.
func New(root FileRecord) *Tree {
	t := &Tree{root: NoNode}
	t.root = t.alloc(root, NoNode)
	return t
}

func (t *Tree) alloc(rec FileRecord, parent NodeID) NodeID {
	t.count++
	n := node{rec: rec, parent: parent, live: true}
	if k := len(t.free); k > 0 {
		id := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[id] = n
		return id
	}
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) release(id NodeID) {
	for _, child := range t.nodes[id].children {
		t.release(child)
	}
	t.nodes[id] = node{parent: NoNode}
	t.free = append(t.free, id)
	t.count--
}

// Root returns the root node.
func (t *Tree) Root() NodeID {
	return t.root
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int {
	return t.count
}

// Valid reports whether id refers to a live node.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes) && t.nodes[id].live
}

// Record returns the record stored at id.
func (t *Tree) Record(id NodeID) FileRecord {
	return t.nodes[id].rec
}

// Path is shorthand for Record(id).Path.
func (t *Tree) Path(id NodeID) string {
	return t.nodes[id].rec.Path
}

// IsDir is shorthand for Record(id).IsDir.
func (t *Tree) IsDir(id NodeID) bool {
	return t.nodes[id].rec.IsDir
}

// Parent returns the parent of id, or NoNode for the root.
func (t *Tree) Parent(id NodeID) NodeID {
	return t.nodes[id].parent
}

// Children returns a copy of id's children in path order.
func (t *Tree) Children(id NodeID) []NodeID {
	return slices.Clone(t.nodes[id].children)
}

func (t *Tree) search(parent NodeID, path string) (int, bool) {
	return slices.BinarySearchFunc(t.nodes[parent].children, path, func(id NodeID, target string) int {
		return strings.Compare(t.nodes[id].rec.Path, target)
	})
}

// Child returns the child of parent with the given path.
func (t *Tree) Child(parent NodeID, path string) (NodeID, bool) {
	i, ok := t.search(parent, path)
	if !ok {
		return NoNode, false
	}
	return t.nodes[parent].children[i], true
}

// Find locates path, descending one path element per level.
func (t *Tree) Find(path string) (NodeID, bool) {
	path = filepath.Clean(path)
	rootPath := t.Path(t.root)
	if path == rootPath {
		return t.root, true
	}

	prefix := rootPath
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	rel, ok := strings.CutPrefix(path, prefix)
	if !ok {
		return NoNode, false
	}

	cur := t.root
	for elem := range strings.SplitSeq(rel, string(filepath.Separator)) {
		next, found := t.Child(cur, filepath.Join(t.Path(cur), elem))
		if !found {
			return NoNode, false
		}
		cur = next
	}
	return cur, true
}

// Insert adds rec as a child of parent at its sorted position. A sibling with
// the same path is replaced together with its subtree.
func (t *Tree) Insert(parent NodeID, rec FileRecord) NodeID {
	i, exists := t.search(parent, rec.Path)
	if exists {
		t.release(t.nodes[parent].children[i])
		id := t.alloc(rec, parent)
		t.nodes[parent].children[i] = id
		return id
	}
	id := t.alloc(rec, parent)
	t.nodes[parent].children = slices.Insert(t.nodes[parent].children, i, id)
	return id
}

// SetRecord replaces the record at id, keeping its children. rec.Path must
// equal the stored path.
func (t *Tree) SetRecord(id NodeID, rec FileRecord) {
	t.nodes[id].rec = rec
}

// Remove erases id and its subtree. The root cannot be removed.
func (t *Tree) Remove(id NodeID) bool {
	if id == t.root || !t.Valid(id) {
		return false
	}
	parent := t.nodes[id].parent
	if i, ok := t.search(parent, t.nodes[id].rec.Path); ok {
		t.nodes[parent].children = slices.Delete(t.nodes[parent].children, i, i+1)
	}
	t.release(id)
	return true
}

// Graft copies the subtree of src rooted at srcID under parent and returns the
// id of the copied head.
func (t *Tree) Graft(parent NodeID, src *Tree, srcID NodeID) NodeID {
	head := t.Insert(parent, src.nodes[srcID].rec)
	t.copyChildren(head, src, srcID)
	return head
}

// copyChildren appends copies of src's children under dst. Source order is
// already sorted, so no searching is needed.
func (t *Tree) copyChildren(dst NodeID, src *Tree, srcID NodeID) {
	srcChildren := src.nodes[srcID].children
	if len(srcChildren) == 0 {
		return
	}
	ids := make([]NodeID, 0, len(srcChildren))
	for _, child := range srcChildren {
		id := t.alloc(src.nodes[child].rec, dst)
		t.copyChildren(id, src, child)
		ids = append(ids, id)
	}
	t.nodes[dst].children = ids
}

// ReplaceSubtree swaps the subtree at id for a copy of src's subtree at srcID
// and returns the id of the new head. Replacing the root rebuilds the tree.
func (t *Tree) ReplaceSubtree(id NodeID, src *Tree, srcID NodeID) NodeID {
	if id == t.root {
		*t = *src.Subtree(srcID)
		return t.root
	}
	parent := t.nodes[id].parent
	t.Remove(id)
	return t.Graft(parent, src, srcID)
}

// Subtree returns a compacted copy of the subtree at id.
func (t *Tree) Subtree(id NodeID) *Tree {
	out := New(t.nodes[id].rec)
	out.copyChildren(out.root, t, id)
	return out
}

// Clone returns a compacted deep copy of t.
func (t *Tree) Clone() *Tree {
	return t.Subtree(t.root)
}

// Walk yields id and its descendants in pre-order.
func (t *Tree) Walk(id NodeID) iter.Seq2[NodeID, FileRecord] {
	return func(yield func(NodeID, FileRecord) bool) {
		t.walk(id, yield)
	}
}

func (t *Tree) walk(id NodeID, yield func(NodeID, FileRecord) bool) bool {
	if !yield(id, t.nodes[id].rec) {
		return false
	}
	for _, child := range t.nodes[id].children {
		if !t.walk(child, yield) {
			return false
		}
	}
	return true
}

// Records returns every record in pre-order.
func (t *Tree) Records() []FileRecord {
	out := make([]FileRecord, 0, t.count)
	for _, rec := range t.Walk(t.root) {
		out = append(out, rec)
	}
	return out
}

// Check verifies the structural invariants: parent links agree with child
// lists, children sit directly under their parent's path, and siblings are
// strictly ascending.
func (t *Tree) Check() error {
	for id, rec := range t.Walk(t.root) {
		children := t.nodes[id].children
		for i, child := range children {
			n := t.nodes[child]
			if n.parent != id {
				return fmt.Errorf("node %s: parent link points to %d, want %d", n.rec.Path, n.parent, id)
			}
			if filepath.Dir(n.rec.Path) != rec.Path {
				return fmt.Errorf("node %s: not a direct child of %s", n.rec.Path, rec.Path)
			}
			if i > 0 && t.nodes[children[i-1]].rec.Path >= n.rec.Path {
				return fmt.Errorf("children of %s out of order at %s", rec.Path, n.rec.Path)
			}
		}
		if !rec.IsDir && len(children) > 0 {
			return fmt.Errorf("file %s has children", rec.Path)
		}
	}
	return nil
}
