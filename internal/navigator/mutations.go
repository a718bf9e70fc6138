package navigator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/rescale/rescale-foldernav/internal/models"
	"github.com/rescale/rescale-foldernav/internal/state"
	"github.com/rescale/rescale-foldernav/internal/tree"
)

func (n *Navigator) beginMutation() func() {
	n.mu.Lock()
	n.pending++
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		n.pending--
		n.mu.Unlock()
	}
}

func (n *Navigator) mutationFailed(op, id string, err error) error {
	rerr := &RemoteError{Op: op, ID: id, Err: err}
	n.logger.Warn().Err(err).Str("op", op).Str("id", id).Msg("Mutation rejected")
	n.eventBus.PublishMutationFailed(op, id, rerr)
	return rerr
}

// Create adds a node under parentID and then re-fetches the parent so the
// new child shows up in the parent's authoritative listing. The cache is
// not touched when the create fails. A successful create whose follow-up
// fetch fails returns the created node together with the fetch error.
func (n *Navigator) Create(ctx context.Context, parentID string, draft models.Draft) (models.Node, error) {
	if err := draft.Validate(); err != nil {
		return models.Node{}, err
	}
	if n.baseCtx.Err() != nil {
		return models.Node{}, ErrClosed
	}
	done := n.beginMutation()
	defer done()

	created, err := n.svc().CreateNode(ctx, parentID, draft)
	if err != nil {
		return models.Node{}, n.mutationFailed(OpCreate, parentID, err)
	}
	n.logger.Info().Str("parent", parentID).Str("id", created.ID).Str("name", created.Name).Msg("Node created")

	if err := n.fetch(ctx, parentID, false); err != nil {
		return created, fmt.Errorf("refresh %s after create: %w", parentID, err)
	}
	return created, nil
}

// Rename changes a node's display name and re-fetches its parent when the
// parent is cached. The root cannot be renamed.
//
// Object store backends re-key a node on rename. When the returned node
// carries a different id, the old id and its cached subtree are evicted
// and view state pointing at it moves to the new id.
func (n *Navigator) Rename(ctx context.Context, id, newName string) (models.Node, error) {
	if id == models.RootID {
		return models.Node{}, ErrRootImmutable
	}
	if err := models.ValidateName(newName); err != nil {
		return models.Node{}, err
	}
	if n.baseCtx.Err() != nil {
		return models.Node{}, ErrClosed
	}
	done := n.beginMutation()
	defer done()

	parentID, hasParent := n.cache.ParentOf(id)

	renamed, err := n.svc().RenameNode(ctx, id, newName)
	if err != nil {
		return models.Node{}, n.mutationFailed(OpRename, id, err)
	}

	name := renamed.Name
	if name == "" {
		name = newName
	}

	n.mu.Lock()
	before := n.view.Selected()
	wasExpanded := n.view.IsExpanded(id)
	rekeyed := renamed.ID != "" && renamed.ID != id
	if rekeyed {
		removed := n.evictLocked(id)
		n.applyLocked(state.Removed{IDs: removed, Fallback: renamed.ID})
		if wasExpanded {
			n.applyLocked(state.Expand{ID: renamed.ID})
		}
	} else if err := n.cache.Rename(id, name); err != nil && !errors.Is(err, tree.ErrNotFound) {
		n.mu.Unlock()
		return renamed, err
	}
	after := n.view.Selected()
	n.mu.Unlock()

	ev := n.logger.Info().Str("id", id).Str("name", name)
	if rekeyed {
		ev = ev.Str("new_id", renamed.ID)
	}
	ev.Msg("Node renamed")

	if hasParent {
		if err := n.fetch(ctx, parentID, false); err != nil {
			return renamed, fmt.Errorf("refresh %s after rename: %w", parentID, err)
		}
	}
	if before != after {
		n.publishSelection(after)
	}
	return renamed, nil
}

// evictLocked drops id and its cached descendants and forgets their
// in-flight and failure bookkeeping, so late responses are discarded.
// Returns the evicted ids. n.mu must be held.
func (n *Navigator) evictLocked(id string) []string {
	removed := n.cache.Remove(id)
	if len(removed) == 0 {
		removed = []string{id}
	}
	for _, rid := range removed {
		n.epochs[rid]++
		delete(n.failures, rid)
		delete(n.inflight, rid)
	}
	return removed
}

// Delete removes a node. On success it and its cached descendants are
// evicted, and a selection inside the deleted subtree moves to the
// deleted node's parent, or to the root when the parent is not known.
// A failed delete leaves cache and view untouched.
func (n *Navigator) Delete(ctx context.Context, id string) error {
	if id == models.RootID {
		return ErrRootImmutable
	}
	if n.baseCtx.Err() != nil {
		return ErrClosed
	}
	done := n.beginMutation()
	defer done()

	fallback, ok := n.cache.ParentOf(id)
	if !ok {
		fallback = models.RootID
	}

	if err := n.svc().DeleteNode(ctx, id); err != nil {
		return n.mutationFailed(OpDelete, id, err)
	}

	n.mu.Lock()
	before := n.view.Selected()
	removed := n.evictLocked(id)
	n.applyLocked(state.Removed{IDs: removed, Fallback: fallback})
	after := n.view.Selected()
	n.mu.Unlock()

	n.logger.Info().Str("id", id).Int("evicted", len(removed)).Msg("Node deleted")
	n.eventBus.PublishNodeRemoved(id, removed)
	if before != after {
		n.publishSelection(after)
	}
	return nil
}

// RefreshExpanded re-fetches every expanded folder that is cached, with
// at most FetchConcurrency fetches in flight. Every folder is attempted;
// the failures are joined.
func (n *Navigator) RefreshExpanded(ctx context.Context) error {
	var ids []string
	for _, id := range n.View().Expanded() {
		if n.cache.Has(id) {
			ids = append(ids, id)
		}
	}

	var g errgroup.Group
	g.SetLimit(n.opts.FetchConcurrency)

	errs := make([]error, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			errs[i] = n.fetch(ctx, id, false)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Prefetch loads the subtree under id breadth-first, down to depth levels
// of folders (depth 1 loads id itself). Folders already loaded are not
// fetched again but are still descended into. onLoaded, if set, is called
// once per folder fetched; it may be called concurrently. The first fetch
// error cancels the rest.
func (n *Navigator) Prefetch(ctx context.Context, id string, depth int, onLoaded func(models.Node)) error {
	if depth < 1 {
		depth = 1
	}
	if n.baseCtx.Err() != nil {
		return ErrClosed
	}

	level := []string{id}
	for d := 0; d < depth && len(level) > 0; d++ {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(n.opts.FetchConcurrency)

		for _, fid := range level {
			if n.cache.Status(fid) == tree.StatusLoaded {
				continue
			}
			g.Go(func() error {
				if err := n.fetch(gctx, fid, false); err != nil {
					return err
				}
				if onLoaded != nil {
					if node, err := n.cache.Get(fid); err == nil {
						onLoaded(node)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		var next []string
		for _, fid := range level {
			node, err := n.cache.Get(fid)
			if err != nil {
				continue
			}
			for _, child := range node.Children {
				if child.IsFolder() {
					next = append(next, child.ID)
				}
			}
		}
		level = next
	}
	return nil
}
