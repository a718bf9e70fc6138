package state

import (
	"testing"

	"github.com/rescale/rescale-foldernav/internal/models"
)

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewView(t *testing.T) {
	v := NewView()
	if !v.IsExpanded(models.RootID) {
		t.Error("root should start expanded")
	}
	if v.Selected() != models.RootID || v.OpenRoot() != models.RootID {
		t.Errorf("selected=%s open=%s", v.Selected(), v.OpenRoot())
	}
}

func TestZeroViewDefaultsToRoot(t *testing.T) {
	var v View
	if v.Selected() != models.RootID || v.OpenRoot() != models.RootID {
		t.Errorf("zero view should report root, got %s/%s", v.Selected(), v.OpenRoot())
	}
	v = Reduce(v, Expand{ID: "a"})
	if !v.IsExpanded("a") {
		t.Error("Expand on zero view failed")
	}
}

func TestExpandCollapse(t *testing.T) {
	v0 := NewView()
	v1 := Reduce(v0, Expand{ID: "a"})

	if !v1.IsExpanded("a") {
		t.Error("a should be expanded")
	}
	if v0.IsExpanded("a") {
		t.Error("Reduce must not modify its input")
	}

	v2 := Reduce(v1, Collapse{ID: "a"})
	if v2.IsExpanded("a") {
		t.Error("a should be collapsed")
	}
	if !v1.IsExpanded("a") {
		t.Error("Collapse must not modify its input")
	}
}

func TestCollapseAllKeepsOnlyRoot(t *testing.T) {
	v := NewView()
	for _, id := range []string{"a", "b", "c"} {
		v = Reduce(v, Expand{ID: id})
	}
	v = Reduce(v, Select{ID: "b"})

	v = Reduce(v, CollapseAll{})
	if !sameIDs(v.Expanded(), []string{models.RootID}) {
		t.Errorf("expanded = %v", v.Expanded())
	}
	if v.Selected() != "b" {
		t.Error("CollapseAll must not change the selection")
	}
}

func TestSelectAndOpenAsRoot(t *testing.T) {
	v := Reduce(NewView(), Select{ID: "a"})
	if v.Selected() != "a" || v.OpenRoot() != models.RootID {
		t.Errorf("after select: selected=%s open=%s", v.Selected(), v.OpenRoot())
	}

	v = Reduce(v, OpenAsRoot{ID: "b"})
	if v.OpenRoot() != "b" || v.Selected() != "b" || !v.IsExpanded("b") {
		t.Errorf("after open-as-root: selected=%s open=%s expanded=%v", v.Selected(), v.OpenRoot(), v.Expanded())
	}

	if got := Reduce(v, Select{ID: ""}); got.Selected() != "b" {
		t.Error("empty select should be ignored")
	}
}

func TestCacheActionsLeaveViewUnchanged(t *testing.T) {
	v := Reduce(NewView(), Expand{ID: "a"})

	for _, action := range []Action{
		UpdateFolder{Node: models.Node{ID: "a", Kind: models.KindFolder}},
		SetLoading{ID: "a", Loading: true},
	} {
		got := Reduce(v, action)
		if !sameIDs(got.Expanded(), v.Expanded()) || got.Selected() != v.Selected() {
			t.Errorf("%T changed the view", action)
		}
	}
}

func TestRemovedReselectsFallback(t *testing.T) {
	v := NewView()
	v = Reduce(v, Expand{ID: "y"})
	v = Reduce(v, Expand{ID: "x"})
	v = Reduce(v, Select{ID: "x"})

	v = Reduce(v, Removed{IDs: []string{"x", "x-child"}, Fallback: "y"})

	if v.Selected() != "y" {
		t.Errorf("selected = %s, want parent y", v.Selected())
	}
	if v.IsExpanded("x") {
		t.Error("removed folder should leave the expanded set")
	}
	if !v.IsExpanded("y") {
		t.Error("parent should stay expanded")
	}
}

func TestRemovedWithoutFallbackSelectsRoot(t *testing.T) {
	v := Reduce(NewView(), OpenAsRoot{ID: "x"})

	v = Reduce(v, Removed{IDs: []string{"x"}})
	if v.Selected() != models.RootID || v.OpenRoot() != models.RootID {
		t.Errorf("selected=%s open=%s, want root", v.Selected(), v.OpenRoot())
	}
}

func TestRemovedUnrelatedKeepsSelection(t *testing.T) {
	v := Reduce(NewView(), Select{ID: "a"})
	v = Reduce(v, Removed{IDs: []string{"b"}, Fallback: models.RootID})
	if v.Selected() != "a" {
		t.Errorf("selection moved to %s", v.Selected())
	}
}

func TestRemovedNeverDropsRoot(t *testing.T) {
	v := Reduce(NewView(), Removed{IDs: []string{models.RootID}})
	if !v.IsExpanded(models.RootID) || v.Selected() != models.RootID {
		t.Error("root must survive a Removed action")
	}
}
