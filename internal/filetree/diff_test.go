package filetree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(events []ChangeEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Kind.String() + " " + ev.Record.Path
	}
	return out
}

func TestDiff_IdenticalTreesYieldNothing(t *testing.T) {
	recs := []FileRecord{dir("/w/a"), file("/w/a/1", 1), dir("/w/a/b"), file("/w/a/b/2", 2), file("/w/c", 3)}
	old := build(t, dir("/w"), recs...)
	cur := build(t, dir("/w"), recs...)

	assert.Empty(t, Diff(old, old.Root(), cur, cur.Root(), true))
	assert.Empty(t, Diff(old, old.Root(), cur, cur.Root(), false))
	assert.Empty(t, Pair(old, old.Root(), cur, cur.Root(), true))
}

func TestDiff_MergeOrder(t *testing.T) {
	old := build(t, dir("/w"), file("/w/a", 1), file("/w/c", 1), file("/w/e", 1))
	cur := build(t, dir("/w"), file("/w/b", 1), file("/w/c", 2), file("/w/e", 1), file("/w/f", 1))

	changes := Diff(old, old.Root(), cur, cur.Root(), false)

	assert.Equal(t, []string{
		"removed /w/a",
		"added /w/b",
		"modified /w/c",
		"added /w/f",
	}, kinds(Events(changes)))

	for _, c := range changes {
		switch c.Kind {
		case Added:
			assert.Equal(t, NoNode, c.Old)
			assert.Equal(t, c.Record.Path, cur.Path(c.New))
		case Removed:
			assert.Equal(t, NoNode, c.New)
			assert.Equal(t, c.Record.Path, old.Path(c.Old))
		case Modified:
			assert.Equal(t, c.Record.Path, old.Path(c.Old))
			assert.Equal(t, uint64(2), c.Record.Size, "modified carries the new record")
		}
	}
}

func TestDiff_TypeFlipIsRemoveThenAdd(t *testing.T) {
	old := build(t, dir("/w"), dir("/w/x"), file("/w/x/inner", 1))
	cur := build(t, dir("/w"), file("/w/x", 4))

	changes := Diff(old, old.Root(), cur, cur.Root(), true)
	assert.Equal(t, []string{"removed /w/x", "added /w/x"}, kinds(Events(changes)))

	expanded := Expand(old, cur, changes)
	assert.Equal(t, []string{"removed /w/x", "removed /w/x/inner", "added /w/x"}, kinds(expanded))
}

func TestDiff_DiskNameChangeIsRemoveThenAdd(t *testing.T) {
	renamed := dir("/w/caf\u00e9")
	renamed.DiskPath = "/w/cafe\u0301"
	old := build(t, dir("/w"), dir("/w/caf\u00e9"), file("/w/caf\u00e9/x", 1))
	cur := build(t, dir("/w"), renamed, file("/w/caf\u00e9/x", 1))

	assert.Equal(t, []string{"removed /w/caf\u00e9", "added /w/caf\u00e9"}, kinds(Events(Diff(old, old.Root(), cur, cur.Root(), true))))
	again := cur.Clone()
	assert.Empty(t, Diff(cur, cur.Root(), again, again.Root(), true))
}

func TestDiff_ShallowDoesNotDescend(t *testing.T) {
	old := build(t, dir("/w"), dir("/w/d"), file("/w/d/x", 1))
	cur := build(t, dir("/w"), dir("/w/d"), file("/w/d/x", 2))

	assert.Empty(t, Diff(old, old.Root(), cur, cur.Root(), false))
	assert.Equal(t, []string{"modified /w/d/x"}, kinds(Events(Diff(old, old.Root(), cur, cur.Root(), true))))
}

func TestDiff_RecursesIntoDirectoryEvenWhenItsRecordChanged(t *testing.T) {
	old := build(t, dir("/w"), dir("/w/d"), file("/w/d/x", 1))
	touched := dir("/w/d")
	touched.ModTime = epoch.Add(time.Minute)
	cur := build(t, dir("/w"), touched, file("/w/d/x", 1), file("/w/d/y", 1))

	assert.Equal(t, []string{"modified /w/d", "added /w/d/y"}, kinds(Events(Diff(old, old.Root(), cur, cur.Root(), true))))
}

func TestDiff_ModifiedAndNestedAdd(t *testing.T) {
	old := build(t, dir("/watch"), file("/watch/a.txt", 10), dir("/watch/dir"))
	cur := build(t, dir("/watch"), file("/watch/a.txt", 5), dir("/watch/dir"), file("/watch/dir/b.txt", 1))

	changes := Diff(old, old.Root(), cur, cur.Root(), true)
	events := Expand(old, cur, changes)

	assert.Equal(t, []string{"modified /watch/a.txt", "added /watch/dir/b.txt"}, kinds(events))

	Apply(old, events)
	require.NoError(t, old.Check())
	id, ok := old.Find("/watch/a.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(5), old.Record(id).Size)
	_, ok = old.Find("/watch/dir/b.txt")
	assert.True(t, ok)
}

func TestExpand_RemovedDirectoryCoversEveryDescendant(t *testing.T) {
	// 3 files and 2 subdirectories under /w/gone.
	old := build(t, dir("/w"),
		dir("/w/gone"),
		file("/w/gone/f1", 1),
		dir("/w/gone/s1"),
		file("/w/gone/s1/f2", 1),
		dir("/w/gone/s1/s2"),
		file("/w/gone/s1/s2/f3", 1),
		file("/w/keep", 1),
	)
	cur := build(t, dir("/w"), file("/w/keep", 1))

	events := Expand(old, cur, Diff(old, old.Root(), cur, cur.Root(), true))

	require.Len(t, events, 1+3+2)
	assert.Equal(t, []string{
		"removed /w/gone",
		"removed /w/gone/f1",
		"removed /w/gone/s1",
		"removed /w/gone/s1/f2",
		"removed /w/gone/s1/s2",
		"removed /w/gone/s1/s2/f3",
	}, kinds(events))

	seen := map[string]bool{}
	for _, ev := range events {
		assert.False(t, seen[ev.Record.Path], "duplicate %s", ev.Record.Path)
		seen[ev.Record.Path] = true
	}
}

func TestExpand_AddedDirectoryCoversEveryDescendant(t *testing.T) {
	old := build(t, dir("/w"))
	cur := build(t, dir("/w"), dir("/w/moved"), file("/w/moved/a", 1), dir("/w/moved/b"), file("/w/moved/b/c", 1))

	events := Expand(old, cur, Diff(old, old.Root(), cur, cur.Root(), true))

	assert.Equal(t, []string{
		"added /w/moved",
		"added /w/moved/a",
		"added /w/moved/b",
		"added /w/moved/b/c",
	}, kinds(events))
}

func TestApply_ReproducesScannedTree(t *testing.T) {
	later := epoch.Add(time.Hour)
	tests := []struct {
		name string
		old  []FileRecord
		cur  []FileRecord
	}{
		{
			name: "mixed",
			old:  []FileRecord{file("/w/a", 1), dir("/w/d"), file("/w/d/x", 1), dir("/w/gone"), file("/w/gone/y", 1)},
			cur:  []FileRecord{file("/w/a", 2), file("/w/b", 1), dir("/w/d"), file("/w/d/z", 1), dir("/w/new"), dir("/w/new/deep"), file("/w/new/deep/q", 1)},
		},
		{
			name: "type flips",
			old:  []FileRecord{dir("/w/a"), file("/w/a/inner", 1), file("/w/b", 1)},
			cur:  []FileRecord{file("/w/a", 1), dir("/w/b"), file("/w/b/inner", 1)},
		},
		{
			name: "everything removed",
			old:  []FileRecord{dir("/w/a"), dir("/w/a/b"), file("/w/a/b/c", 1)},
		},
		{
			name: "directory mtime only",
			old:  []FileRecord{dir("/w/a")},
			cur:  []FileRecord{{Path: "/w/a", IsDir: true, ModTime: later}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := build(t, dir("/w"), tt.old...)
			cur := build(t, dir("/w"), tt.cur...)

			events := Expand(old, cur, Diff(old, old.Root(), cur, cur.Root(), true))
			assert.Zero(t, Apply(old, events))

			require.NoError(t, old.Check())
			got, want := old.Records(), cur.Records()
			require.Equal(t, paths(want), paths(got))
			for i := range want {
				assert.True(t, want[i].ContentEqual(got[i]), "record %s", want[i].Path)
			}
			assert.Empty(t, Diff(old, old.Root(), cur, cur.Root(), true))
		})
	}
}
