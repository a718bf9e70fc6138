package tree

import (
	"errors"
	"sort"
	"testing"

	"github.com/rescale/rescale-foldernav/internal/models"
)

func folder(id, name string, children ...models.Node) models.Node {
	if children == nil {
		children = []models.Node{}
	}
	return models.Node{ID: id, Name: name, Kind: models.KindFolder, Children: children}
}

func shallow(id, name string) models.Node {
	return models.Node{ID: id, Name: name, Kind: models.KindFolder}
}

func file(id, name string) models.Node {
	return models.Node{ID: id, Name: name, Kind: models.KindFile}
}

func childIDs(n models.Node) []string {
	ids := make([]string, len(n.Children))
	for i, c := range n.Children {
		ids[i] = c.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
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

func TestNewCacheHasUnloadedRoot(t *testing.T) {
	c := NewCache(nil)

	root, err := c.Get(models.RootID)
	if err != nil {
		t.Fatalf("Get(root) failed: %v", err)
	}
	if root.IsLoaded || root.Children != nil {
		t.Errorf("fresh root should be unloaded with nil children, got %+v", root)
	}
	if c.Status(models.RootID) != StatusUnknown {
		t.Errorf("fresh root status = %v, want unknown", c.Status(models.RootID))
	}
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	c := NewCache(nil)
	_, err := c.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertFetchedInsertsShallowChildren(t *testing.T) {
	c := NewCache(nil)
	c.SetLoading(models.RootID, true)

	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A"), file("f", "readme.sql")))

	root, _ := c.Get(models.RootID)
	if !root.IsLoaded || root.IsLoading {
		t.Errorf("root should be loaded and not loading: %+v", root)
	}
	if !equalIDs(childIDs(root), []string{"a", "f"}) {
		t.Errorf("children = %v", childIDs(root))
	}

	a, err := c.Get("a")
	if err != nil {
		t.Fatalf("shallow child not inserted: %v", err)
	}
	if a.IsLoaded {
		t.Error("shallow child should not be loaded")
	}
	if _, err := c.Get("f"); err != nil {
		t.Errorf("file child should be indexed: %v", err)
	}
}

func TestUpsertFetchedEmptyFolderIsConfirmedEmpty(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root"))

	root, _ := c.Get(models.RootID)
	if root.Children == nil || len(root.Children) != 0 {
		t.Errorf("loaded empty folder should have empty non-nil children, got %#v", root.Children)
	}
}

// A parent refresh that reports a loaded child as a shallow reference must
// not erase the child's subtree.
func TestUpsertFetchedPreservesLoadedDescendants(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A")))
	c.UpsertFetched(folder("a", "A", shallow("c", "C")))
	c.UpsertFetched(folder("c", "C"))

	// Server now returns A as a shallow reference again.
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A")))

	a, _ := c.Get("a")
	if !a.IsLoaded {
		t.Fatal("A should remain loaded after root refresh")
	}
	if !equalIDs(childIDs(a), []string{"c"}) {
		t.Fatalf("A children = %v, want [c]", childIDs(a))
	}
	if !a.Children[0].IsLoaded {
		t.Error("C should remain loaded after root refresh")
	}
}

func TestUpsertFetchedUpdatesShallowReferenceButKeepsLoading(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A")))
	c.SetLoading("a", true)

	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A renamed")))

	a, _ := c.Get("a")
	if a.Name != "A renamed" {
		t.Errorf("shallow reference should pick up new name, got %q", a.Name)
	}
	if !a.IsLoading {
		t.Error("in-flight load flag should survive a parent refresh")
	}
}

func TestUpsertFetchedReplacesChildrenList(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A"), shallow("b", "B")))
	c.UpsertFetched(folder(models.RootID, "Root", shallow("b", "B"), shallow("d", "D")))

	root, _ := c.Get(models.RootID)
	if !equalIDs(childIDs(root), []string{"b", "d"}) {
		t.Errorf("children = %v, want [b d]", childIDs(root))
	}
}

func TestUpsertFetchedSkipsSelfReference(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow(models.RootID, "Root"), shallow("a", "A")))

	root, _ := c.Get(models.RootID)
	if !equalIDs(childIDs(root), []string{"a"}) {
		t.Errorf("children = %v, want [a]", childIDs(root))
	}
}

func TestSetLoadingDoesNotTouchChildren(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A")))

	c.SetLoading(models.RootID, true)
	root, _ := c.Get(models.RootID)
	if !root.IsLoading || !root.IsLoaded || len(root.Children) != 1 {
		t.Errorf("unexpected root after SetLoading: %+v", root)
	}
	if c.Status(models.RootID) != StatusLoading {
		t.Errorf("status = %v, want loading", c.Status(models.RootID))
	}

	c.SetLoading(models.RootID, false)
	if c.Status(models.RootID) != StatusLoaded {
		t.Errorf("status = %v, want loaded", c.Status(models.RootID))
	}

	c.SetLoading("missing", true)
	if c.Has("missing") {
		t.Error("SetLoading must not create entries")
	}
}

func TestTryBeginLoad(t *testing.T) {
	c := NewCache(nil)
	if !c.TryBeginLoad(models.RootID) {
		t.Fatal("first TryBeginLoad should succeed")
	}
	if c.TryBeginLoad(models.RootID) {
		t.Error("second TryBeginLoad should report a load already in flight")
	}
	if !c.TryBeginLoad("absent") {
		t.Error("absent ids should always be fetchable")
	}

	c.UpsertFetched(folder(models.RootID, "Root"))
	if c.TryBeginLoad(models.RootID) {
		t.Error("loaded folders should not be fetched again")
	}
}

func TestRename(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A")))
	c.UpsertFetched(folder("a", "A", file("f", "q1.sql")))

	if err := c.Rename("a", "Archive"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	a, _ := c.Get("a")
	if a.Name != "Archive" || !a.IsLoaded || len(a.Children) != 1 {
		t.Errorf("rename should only touch the name: %+v", a)
	}
	root, _ := c.Get(models.RootID)
	if root.Children[0].Name != "Archive" {
		t.Errorf("parent listing should show new name, got %q", root.Children[0].Name)
	}

	if err := c.Rename("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveUnlinksAndEvictsDescendants(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A"), shallow("b", "B")))
	c.UpsertFetched(folder("a", "A", shallow("c", "C"), file("f", "q1.sql")))
	c.UpsertFetched(folder("c", "C", file("g", "deep.sql")))

	removed := c.Remove("a")
	sort.Strings(removed)
	if !equalIDs(removed, []string{"a", "c", "f", "g"}) {
		t.Errorf("removed = %v", removed)
	}
	for _, id := range []string{"a", "c", "f", "g"} {
		if c.Has(id) {
			t.Errorf("%s should be evicted", id)
		}
	}
	root, _ := c.Get(models.RootID)
	if !equalIDs(childIDs(root), []string{"b"}) {
		t.Errorf("root children = %v, want [b]", childIDs(root))
	}
}

func TestRemoveRootIsIgnored(t *testing.T) {
	c := NewCache(nil)
	if removed := c.Remove(models.RootID); removed != nil {
		t.Errorf("root must never be removed, got %v", removed)
	}
	if !c.Has(models.RootID) {
		t.Error("root disappeared")
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	c := NewCache(nil)
	if removed := c.Remove("nope"); removed != nil {
		t.Errorf("expected nil, got %v", removed)
	}
}

func TestParentOf(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A")))
	c.UpsertFetched(folder("a", "A", file("f", "q1.sql")))

	if p, ok := c.ParentOf("f"); !ok || p != "a" {
		t.Errorf("ParentOf(f) = %q, %v", p, ok)
	}
	if p, ok := c.ParentOf("a"); !ok || p != models.RootID {
		t.Errorf("ParentOf(a) = %q, %v", p, ok)
	}
	if _, ok := c.ParentOf(models.RootID); ok {
		t.Error("root has no parent")
	}
}

func TestWalkDepthFirstInListingOrder(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A"), shallow("b", "B")))
	c.UpsertFetched(folder("a", "A", file("f", "q1.sql")))

	var order []string
	var depths []int
	c.Walk(models.RootID, func(n models.Node, depth int) bool {
		order = append(order, n.ID)
		depths = append(depths, depth)
		return true
	})

	if !equalIDs(order, []string{models.RootID, "a", "f", "b"}) {
		t.Errorf("walk order = %v", order)
	}
	if depths[2] != 2 {
		t.Errorf("file depth = %d, want 2", depths[2])
	}

	var pruned []string
	c.Walk(models.RootID, func(n models.Node, depth int) bool {
		pruned = append(pruned, n.ID)
		return n.ID != "a"
	})
	if !equalIDs(pruned, []string{models.RootID, "a", "b"}) {
		t.Errorf("pruned walk = %v", pruned)
	}
}

func TestResetKeepsOnlyRoot(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root", shallow("a", "A")))
	c.Reset()

	if c.Len() != 1 {
		t.Errorf("Len after reset = %d, want 1", c.Len())
	}
	if c.Status(models.RootID) != StatusUnknown {
		t.Error("root should be unloaded after reset")
	}
}

func TestUpsertFetchedFileNode(t *testing.T) {
	c := NewCache(nil)
	c.UpsertFetched(models.Node{ID: "f", Name: "q1.sql", Kind: models.KindFile, SQL: "SELECT 1"})

	f, err := c.Get("f")
	if err != nil {
		t.Fatal(err)
	}
	if f.IsLoaded || f.Children != nil || f.SQL != "SELECT 1" {
		t.Errorf("unexpected file entry: %+v", f)
	}
}
