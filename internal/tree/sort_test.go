package tree

import (
	"errors"
	"testing"
	"time"

	"github.com/rescale/rescale-foldernav/internal/models"
)

func TestChildrenSorted(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	c := NewCache(nil)
	c.UpsertFetched(folder(models.RootID, "Root",
		models.Node{ID: "b", Name: "beta", Kind: models.KindFile, Size: 30, UpdatedAt: day(2)},
		models.Node{ID: "a", Name: "Alpha", Kind: models.KindFile, Size: 10, UpdatedAt: day(3)},
		models.Node{ID: "d", Name: "delta", Kind: models.KindFolder},
		models.Node{ID: "c", Name: "gamma", Kind: models.KindFile, Size: 20, UpdatedAt: day(1)},
	))

	tests := []struct {
		name string
		spec SortSpec
		want []string
	}{
		{"listing order", SortSpec{}, []string{"b", "a", "d", "c"}},
		{"name asc", SortSpec{Field: SortByName}, []string{"a", "b", "d", "c"}},
		{"name desc", SortSpec{Field: SortByName, Descending: true}, []string{"c", "d", "b", "a"}},
		{"size asc", SortSpec{Field: SortBySize}, []string{"d", "a", "c", "b"}},
		{"date desc", SortSpec{Field: SortByDate, Descending: true}, []string{"a", "b", "c", "d"}},
		{"folders first", SortSpec{Field: SortByName, FoldersFirst: true}, []string{"d", "a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			children, err := c.Children(models.RootID, tt.spec)
			if err != nil {
				t.Fatal(err)
			}
			got := make([]string, len(children))
			for i, ch := range children {
				got[i] = ch.ID
			}
			if !equalIDs(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	// Sorting a view never reorders the cache.
	root, _ := c.Get(models.RootID)
	if !equalIDs(childIDs(root), []string{"b", "a", "d", "c"}) {
		t.Errorf("cache order changed: %v", childIDs(root))
	}
}

func TestChildrenOfUnloadedAndUnknown(t *testing.T) {
	c := NewCache(nil)
	children, err := c.Children(models.RootID, SortSpec{})
	if err != nil || children == nil || len(children) != 0 {
		t.Errorf("unloaded folder: %v, %v", children, err)
	}
	if _, err := c.Children("nope", SortSpec{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestParseSortField(t *testing.T) {
	if f, err := ParseSortField("SIZE"); err != nil || f != SortBySize {
		t.Errorf("ParseSortField(SIZE) = %v, %v", f, err)
	}
	if _, err := ParseSortField("color"); err == nil {
		t.Error("expected error for unknown field")
	}
}
