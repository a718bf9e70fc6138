// Package state holds the expansion and selection state of a tree view as
// an immutable value updated by a pure reducer.
package state

import (
	"sort"

	"github.com/rescale/rescale-foldernav/internal/models"
)

// View is what the user sees of the tree: which folders render their
// children, which node is selected, and which folder the sidebar is
// rooted at. Views are immutable; Reduce returns a new one.
type View struct {
	expanded map[string]struct{}
	selected string
	openRoot string
}

// NewView returns the initial view: root expanded, selected and open.
func NewView() View {
	return View{
		expanded: map[string]struct{}{models.RootID: {}},
		selected: models.RootID,
		openRoot: models.RootID,
	}
}

// IsExpanded reports whether id renders its children.
func (v View) IsExpanded(id string) bool {
	_, ok := v.expanded[id]
	return ok
}

// Expanded returns the expanded ids, sorted.
func (v View) Expanded() []string {
	ids := make([]string, 0, len(v.expanded))
	for id := range v.expanded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Selected returns the breadcrumb target.
func (v View) Selected() string {
	if v.selected == "" {
		return models.RootID
	}
	return v.selected
}

// OpenRoot returns the folder the sidebar is rooted at.
func (v View) OpenRoot() string {
	if v.openRoot == "" {
		return models.RootID
	}
	return v.openRoot
}

// withExpanded copies the expanded set and applies fn to the copy.
func (v View) withExpanded(fn func(map[string]struct{})) View {
	next := make(map[string]struct{}, len(v.expanded)+1)
	for id := range v.expanded {
		next[id] = struct{}{}
	}
	fn(next)
	v.expanded = next
	return v
}
