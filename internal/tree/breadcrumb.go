package tree

import (
	"github.com/rescale/rescale-foldernav/internal/models"
)

// Resolve builds the path from the root to id using only the children
// lists already in the cache.
//
// The result is never empty and always ends with id. It starts at the root
// when the chain of parents is fully cached. When a parent cannot be
// found, or a cycle is detected, the path found so far is returned and the
// inconsistency is logged at debug level. An id the cache has never seen
// resolves to the single crumb {id, id}.
func Resolve(c *Cache, id string) []models.Crumb {
	c.mu.RLock()
	defer c.mu.RUnlock()

	target, ok := c.entries[id]
	if !ok {
		return []models.Crumb{{ID: id, Name: id}}
	}

	// Built leaf first, reversed at the end.
	path := []models.Crumb{{ID: id, Name: target.node.Name}}
	visited := map[string]bool{id: true}

	cur := id
	for cur != models.RootID {
		parent, ok := c.parentOfLocked(cur)
		if !ok {
			c.logger.Debug().
				Str("id", id).
				Str("orphan", cur).
				Msg("Breadcrumb incomplete: no cached parent")
			break
		}
		if visited[parent] {
			c.logger.Debug().
				Str("id", id).
				Str("parent", parent).
				Msg("Breadcrumb cycle detected")
			break
		}
		visited[parent] = true
		path = append(path, models.Crumb{ID: parent, Name: c.entries[parent].node.Name})
		cur = parent
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
