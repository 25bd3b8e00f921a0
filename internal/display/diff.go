package display

import "reflect"

// Diff lists monitor IDs that appeared, disappeared or changed between two
// snapshots.
type Diff struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Compare diffs prev against next. Monitors are keyed by ID, so an ID
// change shows up as one removal and one addition.
func Compare(prev, next *Snapshot) Diff {
	var d Diff
	old := map[string]Monitor{}
	if prev != nil {
		for _, m := range prev.Monitors {
			old[m.ID] = m
		}
	}
	seen := map[string]bool{}
	if next != nil {
		for _, m := range next.Monitors {
			seen[m.ID] = true
			before, ok := old[m.ID]
			switch {
			case !ok:
				d.Added = append(d.Added, m.ID)
			case !reflect.DeepEqual(before, m):
				d.Changed = append(d.Changed, m.ID)
			}
		}
	}
	if prev != nil {
		for _, m := range prev.Monitors {
			if !seen[m.ID] {
				d.Removed = append(d.Removed, m.ID)
			}
		}
	}
	return d
}
