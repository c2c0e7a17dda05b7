package filetree

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dir(path string) FileRecord {
	return FileRecord{Path: path, IsDir: true, ModTime: epoch}
}

func file(path string, size uint64) FileRecord {
	return FileRecord{Path: path, Size: size, ModTime: epoch}
}

// build inserts records in the given order; each record's parent must
// already be present.
func build(t *testing.T, root FileRecord, recs ...FileRecord) *Tree {
	t.Helper()
	tree := New(root)
	for _, rec := range recs {
		parent, ok := tree.Find(filepath.Dir(rec.Path))
		require.True(t, ok, "parent of %s", rec.Path)
		tree.Insert(parent, rec)
	}
	require.NoError(t, tree.Check())
	return tree
}

func paths(recs []FileRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Path
	}
	return out
}

func TestTree_InsertKeepsSiblingsSorted(t *testing.T) {
	tree := build(t, dir("/w"),
		file("/w/c", 1),
		file("/w/a", 1),
		dir("/w/b"),
		file("/w/b/z", 1),
		file("/w/b/y", 1),
	)

	assert.Equal(t, []string{"/w", "/w/a", "/w/b", "/w/b/y", "/w/b/z", "/w/c"}, paths(tree.Records()))
	assert.Equal(t, 6, tree.Len())
}

func TestTree_InsertReplacesExistingSibling(t *testing.T) {
	tree := build(t, dir("/w"), dir("/w/d"), file("/w/d/x", 1), file("/w/d/y", 1))

	tree.Insert(tree.Root(), file("/w/d", 7))

	require.NoError(t, tree.Check())
	assert.Equal(t, 2, tree.Len())
	id, ok := tree.Find("/w/d")
	require.True(t, ok)
	assert.False(t, tree.IsDir(id))
	assert.Equal(t, uint64(7), tree.Record(id).Size)
}

func TestTree_Find(t *testing.T) {
	tree := build(t, dir("/w"), dir("/w/a"), dir("/w/a/b"), file("/w/a/b/c.txt", 3), file("/w/ab", 1))

	tests := []struct {
		path  string
		found bool
	}{
		{"/w", true},
		{"/w/", true},
		{"/w/a", true},
		{"/w/a/b/c.txt", true},
		{"/w/ab", true},
		{"/w/a/c.txt", false},
		{"/wa", false},
		{"/other", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			id, ok := tree.Find(tt.path)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, filepath.Clean(tt.path), tree.Path(id))
			}
		})
	}
}

func TestTree_FindUnderFilesystemRoot(t *testing.T) {
	tree := build(t, dir("/"), dir("/etc"), file("/etc/hosts", 9))

	id, ok := tree.Find("/etc/hosts")
	require.True(t, ok)
	assert.Equal(t, uint64(9), tree.Record(id).Size)
}

func TestTree_RemoveDropsSubtreeAndRecyclesIDs(t *testing.T) {
	tree := build(t, dir("/w"), dir("/w/d"), file("/w/d/x", 1), file("/w/e", 1))

	id, _ := tree.Find("/w/d")
	require.True(t, tree.Remove(id))
	require.NoError(t, tree.Check())
	assert.Equal(t, []string{"/w", "/w/e"}, paths(tree.Records()))

	before := len(tree.nodes)
	tree.Insert(tree.Root(), file("/w/f", 1))
	tree.Insert(tree.Root(), file("/w/g", 1))
	assert.Equal(t, before, len(tree.nodes), "freed slots should be reused")
	assert.False(t, tree.Remove(tree.Root()))
}

func TestTree_ReplaceSubtree(t *testing.T) {
	tree := build(t, dir("/w"), dir("/w/d"), file("/w/d/old", 1), file("/w/z", 1))
	scan := build(t, dir("/w/d"), file("/w/d/new1", 1), dir("/w/d/sub"), file("/w/d/sub/new2", 1))

	id, _ := tree.Find("/w/d")
	head := tree.ReplaceSubtree(id, scan, scan.Root())

	require.NoError(t, tree.Check())
	assert.Equal(t, "/w/d", tree.Path(head))
	assert.Equal(t, []string{"/w", "/w/d", "/w/d/new1", "/w/d/sub", "/w/d/sub/new2", "/w/z"}, paths(tree.Records()))

	root := build(t, dir("/w"), file("/w/only", 2))
	tree.ReplaceSubtree(tree.Root(), root, root.Root())
	assert.Equal(t, []string{"/w", "/w/only"}, paths(tree.Records()))
}

func TestTree_CloneIsIndependent(t *testing.T) {
	tree := build(t, dir("/w"), file("/w/a", 1))
	clone := tree.Clone()

	tree.Insert(tree.Root(), file("/w/b", 1))

	assert.Equal(t, 2, clone.Len())
	assert.Equal(t, 3, tree.Len())
}

func TestTree_WalkStopsEarly(t *testing.T) {
	tree := build(t, dir("/w"), file("/w/a", 1), file("/w/b", 1), file("/w/c", 1))

	var seen []string
	for _, rec := range tree.Walk(tree.Root()) {
		seen = append(seen, rec.Path)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"/w", "/w/a"}, seen)
}

func TestTree_CheckDetectsDisorder(t *testing.T) {
	tree := build(t, dir("/w"), file("/w/a", 1), file("/w/b", 1))
	children := tree.nodes[tree.Root()].children
	children[0], children[1] = children[1], children[0]

	assert.Error(t, tree.Check())
}

func TestFileRecord_ContentEqual(t *testing.T) {
	base := file("/w/a", 10)

	assert.True(t, base.ContentEqual(file("/other/path", 10)), "path is not content")
	assert.False(t, base.ContentEqual(file("/w/a", 11)))

	later := base
	later.ModTime = epoch.Add(time.Second)
	assert.False(t, base.ContentEqual(later))

	sameInstant := base
	sameInstant.ModTime = epoch.In(time.FixedZone("x", 3600))
	assert.True(t, base.ContentEqual(sameInstant))

	assert.False(t, base.ContentEqual(FileRecord{Path: "/w/a", IsDir: true, Size: 10, ModTime: epoch}))
}

func TestChangeKind_Text(t *testing.T) {
	for _, kind := range []ChangeKind{Added, Modified, Removed} {
		text, err := kind.MarshalText()
		require.NoError(t, err)

		var decoded ChangeKind
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, kind, decoded)
	}

	_, err := ParseKind("renamed")
	assert.Error(t, err)
}
