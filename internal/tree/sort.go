package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rescale/rescale-foldernav/internal/models"
)

// SortField selects the key used by Children.
type SortField string

const (
	SortByName SortField = "name"
	SortByDate SortField = "date"
	SortBySize SortField = "size"
)

// SortSpec orders a folder listing. The zero value keeps listing order.
type SortSpec struct {
	Field      SortField
	Descending bool

	// FoldersFirst groups folders ahead of files regardless of Field.
	FoldersFirst bool
}

// ParseSortField accepts "name", "date" or "size"; "" keeps listing order.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(s)); f {
	case "", SortByName, SortByDate, SortBySize:
		return f, nil
	default:
		return "", fmt.Errorf("unknown sort field %q (want name, date or size)", s)
	}
}

// Children returns the cached children of a loaded folder ordered by spec.
// It returns ErrNotFound for unknown ids and an empty slice for folders
// not yet loaded. The cache's own ordering is never changed.
func (c *Cache) Children(id string, spec SortSpec) ([]models.Node, error) {
	n, err := c.Get(id)
	if err != nil {
		return nil, err
	}
	children := n.Children
	if children == nil {
		return []models.Node{}, nil
	}
	SortNodes(children, spec)
	return children, nil
}

// SortNodes sorts nodes in place. Ties fall back to name then id so the
// order is deterministic.
func SortNodes(nodes []models.Node, spec SortSpec) {
	if spec.Field == "" && !spec.FoldersFirst {
		return
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if spec.FoldersFirst && a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		if spec.Field == "" {
			return false
		}
		cmp := compare(a, b, spec.Field)
		if spec.Descending {
			cmp = -cmp
		}
		return cmp < 0
	})
}

func compare(a, b models.Node, field SortField) int {
	switch field {
	case SortByDate:
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
	case SortBySize:
		switch {
		case a.Size < b.Size:
			return -1
		case a.Size > b.Size:
			return 1
		}
	}
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
