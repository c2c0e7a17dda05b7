package filetree

import (
	"path/filepath"
	"strings"
)

// Change is a ChangeEvent together with the nodes it was derived from, so a
// caller can expand directory adds and removes into their subtrees.
type Change struct {
	ChangeEvent
	// Old is the node in the old tree (Removed, Modified), else NoNode.
	Old NodeID
	// New is the node in the new tree (Added, Modified), else NoNode.
	New NodeID
}

// Diff compares the children of oldParent in old with the children of
// newParent in cur. Both child lists are sorted, so a single merge pass finds
// every add, remove and modification. When recursive is set the walk descends
// into every directory present on both sides.
//
// A path whose directory-ness or on-disk name changed is reported as Removed
// followed by Added rather than Modified.
func Diff(old *Tree, oldParent NodeID, cur *Tree, newParent NodeID, recursive bool) []Change {
	d := differ{old: old, cur: cur, recursive: recursive}
	d.children(oldParent, newParent)
	return d.out
}

type differ struct {
	old, cur  *Tree
	recursive bool
	out       []Change
}

func (d *differ) children(oldParent, newParent NodeID) {
	oc := d.old.nodes[oldParent].children
	nc := d.cur.nodes[newParent].children
	i, j := 0, 0
	for i < len(oc) || j < len(nc) {
		switch {
		case j == len(nc):
			d.removed(oc[i])
			i++
		case i == len(oc):
			d.added(nc[j])
			j++
		default:
			switch c := strings.Compare(d.old.Path(oc[i]), d.cur.Path(nc[j])); {
			case c < 0:
				d.removed(oc[i])
				i++
			case c > 0:
				d.added(nc[j])
				j++
			default:
				d.pair(oc[i], nc[j])
				i++
				j++
			}
		}
	}
}

// pair compares a node present on both sides.
func (d *differ) pair(o, n NodeID) {
	oldRec, newRec := d.old.Record(o), d.cur.Record(n)
	if oldRec.IsDir != newRec.IsDir || oldRec.OnDisk() != newRec.OnDisk() {
		d.removed(o)
		d.added(n)
		return
	}
	if !oldRec.ContentEqual(newRec) {
		d.out = append(d.out, Change{ChangeEvent: ChangeEvent{Kind: Modified, Record: newRec}, Old: o, New: n})
	}
	if d.recursive && newRec.IsDir {
		d.children(o, n)
	}
}

// Pair compares two heads that share a path, such as the notified directory
// in the mirror and its rescan.
func Pair(old *Tree, o NodeID, cur *Tree, n NodeID, recursive bool) []Change {
	d := differ{old: old, cur: cur, recursive: recursive}
	d.pair(o, n)
	return d.out
}

func (d *differ) added(n NodeID) {
	d.out = append(d.out, Change{ChangeEvent: ChangeEvent{Kind: Added, Record: d.cur.Record(n)}, Old: NoNode, New: n})
}

func (d *differ) removed(o NodeID) {
	d.out = append(d.out, Change{ChangeEvent: ChangeEvent{Kind: Removed, Record: d.old.Record(o)}, Old: o, New: NoNode})
}

// Events strips node references from changes.
func Events(changes []Change) []ChangeEvent {
	out := make([]ChangeEvent, len(changes))
	for i, c := range changes {
		out[i] = c.ChangeEvent
	}
	return out
}

// Expand flattens changes into events, replacing every directory add with
// its subtree from cur and every directory remove with its subtree from old,
// both in pre-order.
func Expand(old, cur *Tree, changes []Change) []ChangeEvent {
	out := make([]ChangeEvent, 0, len(changes))
	for _, c := range changes {
		switch {
		case c.Kind == Added && c.Record.IsDir:
			for _, rec := range cur.Walk(c.New) {
				out = append(out, ChangeEvent{Kind: Added, Record: rec})
			}
		case c.Kind == Removed && c.Record.IsDir:
			for _, rec := range old.Walk(c.Old) {
				out = append(out, ChangeEvent{Kind: Removed, Record: rec})
			}
		default:
			out = append(out, c.ChangeEvent)
		}
	}
	return out
}

// Apply replays events against t in order. Removing a directory drops its
// subtree, so later Removed events for its descendants are no-ops. It returns
// the number of Added and Modified events whose target could not be found.
func Apply(t *Tree, events []ChangeEvent) int {
	misses := 0
	for _, ev := range events {
		switch ev.Kind {
		case Added:
			parent, ok := t.Find(filepath.Dir(ev.Record.Path))
			if !ok {
				misses++
				continue
			}
			t.Insert(parent, ev.Record)
		case Modified:
			id, ok := t.Find(ev.Record.Path)
			if !ok {
				misses++
				continue
			}
			t.SetRecord(id, ev.Record)
		case Removed:
			if id, ok := t.Find(ev.Record.Path); ok {
				t.Remove(id)
			}
		}
	}
	return misses
}
