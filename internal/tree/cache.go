// Package tree holds the local, partially loaded view of the remote folder
// tree: the node cache, breadcrumb resolution and navigation history.
package tree

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rescale/rescale-foldernav/internal/logging"
	"github.com/rescale/rescale-foldernav/internal/models"
)

// ErrNotFound is returned by Get for ids the cache has never observed.
// Callers treat it as "not yet fetched", not as a failure.
var ErrNotFound = errors.New("node not in cache")

// LoadStatus is the per-folder lifecycle state.
type LoadStatus int

const (
	StatusUnknown LoadStatus = iota // present as a shallow reference, or absent
	StatusLoading                   // fetch in flight
	StatusLoaded                    // children snapshot present
)

func (s LoadStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// entry stores a node without its children; children are kept as ids so
// that a refreshed parent never clobbers a loaded child's own subtree.
type entry struct {
	node     models.Node
	children []string
	loaded   bool
	loading  bool
}

// Cache maps node ids to cached nodes. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *logging.Logger
}

// NewCache returns a cache holding only a shallow, unloaded root folder.
func NewCache(logger *logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Cache{
		entries: make(map[string]*entry),
		logger:  logger,
	}
	c.entries[models.RootID] = &entry{node: rootNode()}
	return c
}

func rootNode() models.Node {
	return models.Node{ID: models.RootID, Name: models.RootName, Kind: models.KindFolder}
}

// Get returns the node with its one-level children. Loaded folders carry
// a non-nil Children slice; unloaded folders carry nil.
func (c *Cache) Get(id string) (models.Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	if !ok {
		return models.Node{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.materialize(e), nil
}

// materialize must be called with the lock held.
func (c *Cache) materialize(e *entry) models.Node {
	n := e.node
	n.IsLoaded = e.loaded
	n.IsLoading = e.loading
	n.Children = nil
	if e.loaded {
		n.Children = make([]models.Node, 0, len(e.children))
		for _, cid := range e.children {
			ce, ok := c.entries[cid]
			if !ok {
				continue
			}
			child := ce.node
			child.IsLoaded = ce.loaded
			child.IsLoading = ce.loading
			n.Children = append(n.Children, child)
		}
	}
	return n
}

// Has reports whether id is cached.
func (c *Cache) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// UpsertFetched merges a freshly fetched folder (or file) into the cache.
//
// The fetched node becomes loaded with exactly the fetched children, in
// order. Children not yet cached are inserted as shallow, unloaded
// entries. A child that is already cached keeps its own loaded state and
// children; only its display fields are refreshed, and only when it is
// not itself loaded.
func (c *Cache) UpsertFetched(n models.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[n.ID]
	if !ok {
		e = &entry{}
		c.entries[n.ID] = e
	}
	e.node = n.Shallow()
	e.loading = false

	if !n.IsFolder() {
		e.loaded = false
		e.children = nil
		return
	}

	e.loaded = true
	e.children = make([]string, 0, len(n.Children))
	for _, child := range n.Children {
		if child.ID == "" || child.ID == n.ID {
			c.logger.Debug().Str("parent", n.ID).Str("child", child.ID).Msg("Skipping invalid child reference")
			continue
		}
		e.children = append(e.children, child.ID)

		existing, ok := c.entries[child.ID]
		switch {
		case !ok:
			c.entries[child.ID] = &entry{node: child.Shallow()}
		case !existing.loaded:
			// Refresh name and metadata of a shallow reference but leave
			// an in-flight load marked.
			existing.node = child.Shallow()
		}
	}
}

// SetLoading flags a folder as having a fetch in flight. Unknown ids are
// ignored.
func (c *Cache) SetLoading(id string, loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok {
		e.loading = loading
	}
}

// TryBeginLoad atomically marks id as loading when it is neither loaded
// nor loading, and reports whether the caller should start a fetch.
// Absent ids are not created and always return true.
func (c *Cache) TryBeginLoad(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return true
	}
	if e.loading || e.loaded {
		return false
	}
	e.loading = true
	return true
}

// Rename updates the display name of a cached node. Returns ErrNotFound
// when the id is not cached.
func (c *Cache) Rename(id, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.node.Name = name
	return nil
}

// Remove evicts a node, unlinks it from every parent's children list and
// evicts its cached descendants. The root is never removed. Returns the
// evicted ids, the node itself first.
func (c *Cache) Remove(id string) []string {
	if id == models.RootID {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; !ok {
		return nil
	}

	for _, e := range c.entries {
		e.children = removeID(e.children, id)
	}

	var removed []string
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		e, ok := c.entries[cur]
		if !ok {
			continue
		}
		delete(c.entries, cur)
		removed = append(removed, cur)
		for i := len(e.children) - 1; i >= 0; i-- {
			cid := e.children[i]
			// A descendant still listed by a surviving parent stays cached.
			if !c.referencedLocked(cid) {
				stack = append(stack, cid)
			}
		}
	}
	return removed
}

func (c *Cache) referencedLocked(id string) bool {
	for _, e := range c.entries {
		for _, cid := range e.children {
			if cid == id {
				return true
			}
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// Status returns the lifecycle state of a folder.
func (c *Cache) Status(id string) LoadStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[id]
	switch {
	case !ok:
		return StatusUnknown
	case e.loading:
		return StatusLoading
	case e.loaded:
		return StatusLoaded
	default:
		return StatusUnknown
	}
}

// ParentOf scans loaded folders for one listing id. The root and orphaned
// nodes report false.
func (c *Cache) ParentOf(id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parentOfLocked(id)
}

func (c *Cache) parentOfLocked(id string) (string, bool) {
	if id == models.RootID {
		return "", false
	}
	// Root first so the common case resolves without visiting the map in
	// random order.
	if root, ok := c.entries[models.RootID]; ok && contains(root.children, id) {
		return models.RootID, true
	}
	for pid, e := range c.entries {
		if contains(e.children, id) {
			return pid, true
		}
	}
	return "", false
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Len returns the number of cached nodes, root included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Walk visits cached nodes depth-first from id in listing order. fn
// receives each node (with one-level children) and its depth; returning
// false skips the node's subtree. Cycles are visited once.
func (c *Cache) Walk(id string, fn func(n models.Node, depth int) bool) {
	type frame struct {
		id    string
		depth int
	}

	visited := make(map[string]bool)
	stack := []frame{{id: id}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.id] {
			continue
		}
		visited[f.id] = true

		c.mu.RLock()
		e, ok := c.entries[f.id]
		var n models.Node
		if ok {
			n = c.materialize(e)
		}
		c.mu.RUnlock()
		if !ok {
			continue
		}

		if !fn(n, f.depth) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: n.Children[i].ID, depth: f.depth + 1})
		}
	}
}

// Reset drops everything but a fresh, unloaded root. Used when the
// backend or credentials change.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]*entry{models.RootID: {node: rootNode()}}
}
