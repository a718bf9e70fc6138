package state

import (
	"github.com/rescale/rescale-foldernav/internal/models"
)

// Action is a tagged view action.
type Action interface {
	isAction()
}

// Expand adds a folder to the expanded set.
type Expand struct{ ID string }

// Collapse removes a folder from the expanded set. Cached children stay.
type Collapse struct{ ID string }

// CollapseAll resets the expanded set to just the root.
type CollapseAll struct{}

// Select moves the selection pointer.
type Select struct{ ID string }

// OpenAsRoot re-roots the sidebar at a folder and selects it.
type OpenAsRoot struct{ ID string }

// UpdateFolder carries a fetched folder. The navigator applies it to the
// tree cache as a merge; Reduce leaves the view unchanged.
type UpdateFolder struct{ Node models.Node }

// SetLoading flags a folder fetch in the tree cache. Like UpdateFolder it
// is applied by the navigator, not by Reduce.
type SetLoading struct {
	ID      string
	Loading bool
}

// Removed reports ids evicted after a successful delete. Any of them
// that are selected, open or expanded are replaced: the selection and open
// root move to Fallback, expansion is dropped.
type Removed struct {
	IDs      []string
	Fallback string
}

func (Expand) isAction()       {}
func (Collapse) isAction()     {}
func (CollapseAll) isAction()  {}
func (Select) isAction()       {}
func (OpenAsRoot) isAction()   {}
func (UpdateFolder) isAction() {}
func (SetLoading) isAction()   {}
func (Removed) isAction()      {}

// Reduce applies action to v and returns the resulting view. It never
// modifies v.
func Reduce(v View, action Action) View {
	switch a := action.(type) {
	case Expand:
		if a.ID == "" || v.IsExpanded(a.ID) {
			return v
		}
		return v.withExpanded(func(m map[string]struct{}) { m[a.ID] = struct{}{} })

	case Collapse:
		if !v.IsExpanded(a.ID) {
			return v
		}
		return v.withExpanded(func(m map[string]struct{}) { delete(m, a.ID) })

	case CollapseAll:
		v.expanded = map[string]struct{}{models.RootID: {}}
		return v

	case Select:
		if a.ID == "" {
			return v
		}
		v.selected = a.ID
		return v

	case OpenAsRoot:
		if a.ID == "" {
			return v
		}
		v.openRoot = a.ID
		v.selected = a.ID
		return v.withExpanded(func(m map[string]struct{}) { m[a.ID] = struct{}{} })

	case Removed:
		return removeIDs(v, a)

	case UpdateFolder, SetLoading:
		return v

	default:
		return v
	}
}

func removeIDs(v View, a Removed) View {
	fallback := a.Fallback
	if fallback == "" {
		fallback = models.RootID
	}

	gone := make(map[string]bool, len(a.IDs))
	for _, id := range a.IDs {
		if id != models.RootID {
			gone[id] = true
		}
	}
	if len(gone) == 0 {
		return v
	}

	if gone[v.Selected()] {
		v.selected = fallback
	}
	if gone[v.OpenRoot()] {
		v.openRoot = fallback
	}
	return v.withExpanded(func(m map[string]struct{}) {
		for id := range gone {
			delete(m, id)
		}
	})
}
