// Package memstore is an in-memory folder service. It backs the `serve`
// command and `--backend memory`, and doubles as the reference backend in
// tests.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rescale/rescale-foldernav/internal/logging"
	"github.com/rescale/rescale-foldernav/internal/models"
)

// DeletePolicy decides what DeleteNode does with a non-empty folder.
type DeletePolicy string

const (
	// DeleteReject refuses non-empty folders with models.ErrFolderNotEmpty.
	DeleteReject DeletePolicy = "reject"
	// DeleteCascade removes the folder and everything under it.
	DeleteCascade DeletePolicy = "cascade"
)

// ParseDeletePolicy accepts "reject" and "cascade"; empty means reject.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeleteReject:
		return DeleteReject, nil
	case DeleteCascade:
		return DeleteCascade, nil
	default:
		return "", fmt.Errorf("unknown delete policy %q", s)
	}
}

// Options configures a Store.
type Options struct {
	DeletePolicy DeletePolicy
	// Seed loads the sample Reports/Dashboards tree.
	Seed bool
	// Latency delays every call, to exercise loading states by hand.
	Latency time.Duration
	Logger  *logging.Logger
}

type record struct {
	node     models.Node // Children always nil
	children []string
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	policy  DeletePolicy
	latency time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// New returns a store holding an empty root, plus the sample tree when
// opts.Seed is set.
func New(opts Options) *Store {
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = DeleteReject
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	s := &Store{
		records: make(map[string]*record),
		policy:  opts.DeletePolicy,
		latency: opts.Latency,
		logger:  opts.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.records[models.RootID] = &record{
		node: models.Node{ID: models.RootID, Name: models.RootName, Kind: models.KindFolder, UpdatedAt: s.now()},
	}
	if opts.Seed {
		s.seed()
	}
	return s
}

func (s *Store) seed() {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	folder := func(parent, id, name string) {
		s.insert(parent, models.Node{ID: id, Name: name, Kind: models.KindFolder, UpdatedAt: at})
	}
	report := func(parent, id, name, sql string) {
		s.insert(parent, models.Node{
			ID:         id,
			Name:       name,
			Kind:       models.KindFile,
			SQL:        sql,
			DatabaseID: "analytics",
			Size:       int64(len(sql)),
			UpdatedAt:  at,
		})
	}

	folder(models.RootID, "folder-1", "Reports")
	folder(models.RootID, "folder-2", "Dashboards")
	folder("folder-1", "folder-1-1", "Financial")
	folder("folder-1", "folder-1-2", "Marketing")
	report("folder-1-1", "file-1-1-1", "Q1 Report", "SELECT * FROM financial_data WHERE quarter = 1")
	report("folder-1-1", "file-1-1-2", "Q2 Report", "SELECT * FROM financial_data WHERE quarter = 2")
	report("folder-1-2", "file-1-2-1", "Campaign Analysis", "SELECT * FROM marketing_campaigns")
	report("folder-2", "file-2-1", "Executive Dashboard", "SELECT * FROM executive_metrics")
}

// insert must be called with the write lock held (or before publication).
func (s *Store) insert(parentID string, n models.Node) {
	n.ParentID = parentID
	n.Children = nil
	s.records[n.ID] = &record{node: n}
	p := s.records[parentID]
	p.children = append(p.children, n.ID)
}

func (s *Store) delay(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchNode returns a folder with its direct children, or a file. An empty
// id means the root.
func (s *Store) FetchNode(ctx context.Context, id string) (models.Node, error) {
	if err := s.delay(ctx); err != nil {
		return models.Node{}, err
	}
	if id == "" {
		id = models.RootID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, id)
	}
	n := r.node
	if n.IsFolder() {
		n.Children = make([]models.Node, 0, len(r.children))
		for _, cid := range r.children {
			n.Children = append(n.Children, s.records[cid].node)
		}
	}
	return n, nil
}

func (s *Store) siblingNamed(parentID, name, except string) bool {
	for _, cid := range s.records[parentID].children {
		if cid != except && s.records[cid].node.Name == name {
			return true
		}
	}
	return false
}

// CreateNode adds a file or folder under parentID with a fresh uuid.
func (s *Store) CreateNode(ctx context.Context, parentID string, draft models.Draft) (models.Node, error) {
	if err := draft.Validate(); err != nil {
		return models.Node{}, err
	}
	if err := s.delay(ctx); err != nil {
		return models.Node{}, err
	}
	if parentID == "" {
		parentID = models.RootID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.records[parentID]
	if !ok {
		return models.Node{}, fmt.Errorf("%w: parent %s", models.ErrNodeNotFound, parentID)
	}
	if !parent.node.IsFolder() {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNotAFolder, parentID)
	}
	if s.siblingNamed(parentID, draft.Name, "") {
		return models.Node{}, fmt.Errorf("%w: %q in %s", models.ErrNameConflict, draft.Name, parentID)
	}

	n := models.Node{
		ID:          uuid.NewString(),
		Name:        draft.Name,
		Kind:        draft.Kind,
		SQL:         draft.SQL,
		Description: draft.Description,
		DatabaseID:  draft.DatabaseID,
		UpdatedAt:   s.now(),
	}
	if n.Kind == models.KindFile {
		n.Size = int64(len(draft.SQL) + len(draft.Content))
	}
	s.insert(parentID, n)
	parent.node.UpdatedAt = n.UpdatedAt

	s.logger.Debug().Str("id", n.ID).Str("parent", parentID).Str("name", n.Name).Msg("Created node")
	return s.records[n.ID].node, nil
}

// RenameNode changes a node's name. Names are unique among siblings.
func (s *Store) RenameNode(ctx context.Context, id, newName string) (models.Node, error) {
	if id == models.RootID {
		return models.Node{}, models.ErrRootImmutable
	}
	if err := models.ValidateName(newName); err != nil {
		return models.Node{}, err
	}
	if err := s.delay(ctx); err != nil {
		return models.Node{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, id)
	}
	if s.siblingNamed(r.node.ParentID, newName, id) {
		return models.Node{}, fmt.Errorf("%w: %q in %s", models.ErrNameConflict, newName, r.node.ParentID)
	}
	r.node.Name = newName
	r.node.UpdatedAt = s.now()
	return r.node, nil
}

// DeleteNode removes a node according to the store's delete policy.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	if id == models.RootID {
		return models.ErrRootImmutable
	}
	if err := s.delay(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrNodeNotFound, id)
	}
	if len(r.children) > 0 && s.policy != DeleteCascade {
		return fmt.Errorf("%w: %s has %d children", models.ErrFolderNotEmpty, id, len(r.children))
	}

	if p, ok := s.records[r.node.ParentID]; ok {
		for i, cid := range p.children {
			if cid == id {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
	}

	removed := 0
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cr, ok := s.records[cur]; ok {
			stack = append(stack, cr.children...)
			delete(s.records, cur)
			removed++
		}
	}
	s.logger.Debug().Str("id", id).Int("removed", removed).Msg("Deleted node")
	return nil
}

// Len returns the number of stored nodes, root included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
