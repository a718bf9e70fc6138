// Package navigator drives the tree cache: it fetches folders on demand,
// keeps expansion, selection and history state, and reconciles the cache
// after mutations by re-fetching from the folder service.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rescale/rescale-foldernav/internal/constants"
	"github.com/rescale/rescale-foldernav/internal/events"
	"github.com/rescale/rescale-foldernav/internal/logging"
	"github.com/rescale/rescale-foldernav/internal/models"
	"github.com/rescale/rescale-foldernav/internal/state"
	"github.com/rescale/rescale-foldernav/internal/tree"
)

// Options configures a Navigator. Zero values select defaults.
type Options struct {
	HistoryLimit     int
	FetchConcurrency int
	FetchTimeout     time.Duration
	EventBus         *events.EventBus
	Logger           *logging.Logger
}

// Navigator is the single owner of a tree cache. It is safe for
// concurrent use; fetches run in their own goroutines and may overlap,
// the last response for a node wins.
type Navigator struct {
	cache    *tree.Cache
	eventBus *events.EventBus
	logger   *logging.Logger
	opts     Options

	// mu guards everything below and serializes cache writes made on
	// fetch completion against deletes.
	mu         sync.Mutex
	service    FolderService
	view       state.View
	history    *tree.History
	failures   map[string]*RemoteError
	inflight   map[string]int
	epochs     map[string]uint64 // bumped when an id is evicted
	generation uint64            // bumped when the service is replaced
	pending    int

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a navigator over svc with an empty cache. The root is
// pushed onto history as the first visited folder.
func New(svc FolderService, opts Options) *Navigator {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = constants.DefaultHistoryLimit
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = constants.DefaultFetchConcurrency
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = constants.DefaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Navigator{
		service:  svc,
		cache:    tree.NewCache(opts.Logger.Named("cache")),
		eventBus: opts.EventBus,
		logger:   opts.Logger,
		opts:     opts,
		view:     state.NewView(),
		history:  tree.NewHistory(opts.HistoryLimit),
		failures: make(map[string]*RemoteError),
		inflight: make(map[string]int),
		epochs:   make(map[string]uint64),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	n.history.Push(models.RootID)
	return n
}

func (n *Navigator) svc() FolderService {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.service
}

// SetService swaps the folder service (e.g. after a credential change).
// The cache, view and history restart from an unloaded root and
// responses still in flight from the old service are discarded.
func (n *Navigator) SetService(svc FolderService) {
	n.mu.Lock()
	n.service = svc
	n.generation++
	n.cache.Reset()
	n.view = state.NewView()
	n.history = tree.NewHistory(n.opts.HistoryLimit)
	n.history.Push(models.RootID)
	n.failures = make(map[string]*RemoteError)
	n.inflight = make(map[string]int)
	n.epochs = make(map[string]uint64)
	n.mu.Unlock()

	n.eventBus.Publish(&events.ConfigChangedEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventConfigChanged, Time: time.Now()},
		Source:    "service",
	})
}

// Cache exposes read access to the tree cache.
func (n *Navigator) Cache() *tree.Cache {
	return n.cache
}

// Get returns a cached node; tree.ErrNotFound means "not yet fetched".
func (n *Navigator) Get(id string) (models.Node, error) {
	return n.cache.Get(id)
}

// View returns the current expansion and selection state.
func (n *Navigator) View() state.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view
}

// Selected returns the selected id.
func (n *Navigator) Selected() string {
	return n.View().Selected()
}

// Breadcrumb returns the path to the current selection.
func (n *Navigator) Breadcrumb() []models.Crumb {
	return tree.Resolve(n.cache, n.Selected())
}

// BreadcrumbFor returns the path to any cached node.
func (n *Navigator) BreadcrumbFor(id string) []models.Crumb {
	return tree.Resolve(n.cache, id)
}

// apply routes one action to the state it belongs to and returns the
// resulting view.
func (n *Navigator) apply(action state.Action) state.View {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.applyLocked(action)
	return n.view
}

// applyLocked is apply with n.mu held. UpdateFolder and SetLoading write
// the tree cache; every other action goes through the view reducer.
func (n *Navigator) applyLocked(action state.Action) {
	switch a := action.(type) {
	case state.UpdateFolder:
		n.cache.UpsertFetched(a.Node)
	case state.SetLoading:
		n.cache.SetLoading(a.ID, a.Loading)
	default:
		n.view = state.Reduce(n.view, action)
	}
}

// isFile reports whether id is cached as a file. Files have no listing to
// load and cannot be expanded.
func (n *Navigator) isFile(id string) bool {
	node, err := n.cache.Get(id)
	return err == nil && !node.IsFolder()
}

// Expand marks a folder expanded and starts a background fetch when its
// children are neither loaded nor loading. It returns immediately. Known
// files are ignored.
func (n *Navigator) Expand(ctx context.Context, id string) {
	if n.isFile(id) {
		return
	}
	n.apply(state.Expand{ID: id})
	n.loadAsync(ctx, id)
}

// Collapse hides a folder's children. Cached data is kept and in-flight
// fetches are left to complete.
func (n *Navigator) Collapse(id string) {
	n.apply(state.Collapse{ID: id})
}

// CollapseAll collapses everything but the root.
func (n *Navigator) CollapseAll() {
	n.apply(state.CollapseAll{})
}

// Select moves the selection to id, records folders in history and
// fetches the target when it is not loaded.
func (n *Navigator) Select(ctx context.Context, id string) {
	n.selectID(ctx, id, true)
}

// OpenAsRoot re-roots the view at a folder.
func (n *Navigator) OpenAsRoot(ctx context.Context, id string) {
	n.mu.Lock()
	n.applyLocked(state.OpenAsRoot{ID: id})
	n.history.Push(id)
	n.mu.Unlock()

	n.publishSelection(id)
	n.loadAsync(ctx, id)
}

func (n *Navigator) selectID(ctx context.Context, id string, record bool) {
	node, err := n.cache.Get(id)
	known := err == nil
	isFolder := !known || node.IsFolder()

	n.mu.Lock()
	n.applyLocked(state.Select{ID: id})
	if record && isFolder {
		n.history.Push(id)
	}
	n.mu.Unlock()

	n.publishSelection(id)
	if isFolder {
		n.loadAsync(ctx, id)
	}
}

func (n *Navigator) publishSelection(id string) {
	n.eventBus.PublishSelectionChanged(id, models.FormatPath(tree.Resolve(n.cache, id)))
}

// Back moves history back and selects that entry without recording it.
// An entry whose node has since been deleted selects the root instead.
func (n *Navigator) Back(ctx context.Context) (string, error) {
	n.mu.Lock()
	id, err := n.history.Back()
	n.mu.Unlock()
	if err != nil {
		return "", err
	}
	return n.visit(ctx, id), nil
}

// Forward is the inverse of Back.
func (n *Navigator) Forward(ctx context.Context) (string, error) {
	n.mu.Lock()
	id, err := n.history.Forward()
	n.mu.Unlock()
	if err != nil {
		return "", err
	}
	return n.visit(ctx, id), nil
}

func (n *Navigator) visit(ctx context.Context, id string) string {
	if !n.cache.Has(id) {
		n.logger.Debug().Str("id", id).Msg("History entry no longer cached, falling back to root")
		id = models.RootID
	}
	n.selectID(ctx, id, false)
	return id
}

// CanGoBack reports whether Back would succeed.
func (n *Navigator) CanGoBack() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.history.CanGoBack()
}

// CanGoForward reports whether Forward would succeed.
func (n *Navigator) CanGoForward() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.history.CanGoForward()
}

// History returns a copy of the history entries and the cursor.
func (n *Navigator) History() ([]string, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.history.Entries(), n.history.Cursor()
}

// Ensure loads id synchronously unless it is already loaded. A cached
// file is complete as it is.
func (n *Navigator) Ensure(ctx context.Context, id string) error {
	if n.cache.Status(id) == tree.StatusLoaded || n.isFile(id) {
		return nil
	}
	return n.fetch(ctx, id, false)
}

// Refresh fetches id regardless of its load state and merges the result.
func (n *Navigator) Refresh(ctx context.Context, id string) error {
	return n.fetch(ctx, id, false)
}

// loadAsync starts a background fetch when id is a folder that is neither
// loaded nor loading.
func (n *Navigator) loadAsync(ctx context.Context, id string) {
	if n.baseCtx.Err() != nil || n.isFile(id) {
		return
	}
	if !n.cache.TryBeginLoad(id) {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.fetch(ctx, id, true); err != nil {
			n.logger.Debug().Err(err).Str("id", id).Msg("Background fetch did not complete")
		}
	}()
}

// fetchContext bounds a fetch by the caller, the navigator lifetime and
// the fetch timeout.
func (n *Navigator) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	fctx, cancel := context.WithTimeout(ctx, n.opts.FetchTimeout)
	stop := context.AfterFunc(n.baseCtx, cancel)
	return fctx, func() {
		stop()
		cancel()
	}
}

// fetch performs one FetchNode round trip and merges the result. marked
// means the caller already set the loading flag.
//
// A response is discarded without touching the cache when the caller's
// context or the navigator was cancelled while it was in flight, when the
// node was deleted meanwhile, or when the service was replaced.
func (n *Navigator) fetch(ctx context.Context, id string, marked bool) error {
	n.mu.Lock()
	svc := n.service
	gen := n.generation
	epoch := n.epochs[id]
	n.inflight[id]++
	if !marked {
		n.applyLocked(state.SetLoading{ID: id, Loading: true})
	}
	n.mu.Unlock()

	fctx, cancel := n.fetchContext(ctx)
	defer cancel()

	start := time.Now()
	node, err := svc.FetchNode(fctx, id)
	elapsed := time.Since(start)
	if err == nil && fctx.Err() != nil {
		// Answered after the deadline.
		err = fctx.Err()
	}

	n.mu.Lock()
	current := gen == n.generation
	remaining := 0
	if current {
		n.inflight[id]--
		remaining = n.inflight[id]
		if remaining <= 0 {
			delete(n.inflight, id)
		}
	}
	cancelled := ctx.Err() != nil || n.baseCtx.Err() != nil

	var result error
	switch {
	case !current || epoch != n.epochs[id]:
		result = fmt.Errorf("fetch %s: response discarded, node evicted", id)
	case cancelled:
		n.applyLocked(state.SetLoading{ID: id, Loading: remaining > 0})
		result = fmt.Errorf("fetch %s: %w", id, context.Canceled)
	case err != nil:
		n.applyLocked(state.SetLoading{ID: id, Loading: remaining > 0})
		rerr := &RemoteError{Op: OpFetch, ID: id, Err: err}
		n.failures[id] = rerr
		result = rerr
	default:
		if node.ID == "" {
			node.ID = id
		}
		n.applyLocked(state.UpdateFolder{Node: node})
		if remaining > 0 {
			n.applyLocked(state.SetLoading{ID: id, Loading: true})
		}
		delete(n.failures, id)
	}
	n.mu.Unlock()

	var rerr *RemoteError
	switch {
	case result == nil:
		n.logger.Debug().
			Str("id", id).
			Int("children", len(node.Children)).
			Dur("elapsed", elapsed).
			Msg("Folder loaded")
		n.eventBus.PublishNodeLoaded(id, len(node.Children), elapsed)
	case errors.As(result, &rerr):
		n.logger.Warn().Err(err).Str("id", id).Dur("elapsed", elapsed).Msg("Failed to load folder")
		n.eventBus.PublishNodeLoadFailed(id, elapsed, rerr)
	default:
		n.logger.Debug().Str("id", id).Msg("Discarded folder response")
	}
	return result
}

// Status is a snapshot of pending work and recorded failures.
type Status struct {
	Loading          []string               // ids with a fetch in flight, sorted
	PendingMutations int                    // create/rename/delete calls in flight
	Failures         map[string]*RemoteError // last failure per node id
}

// Status returns the pending/error status exposed to the UI layer.
func (n *Navigator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := Status{
		Loading:          make([]string, 0, len(n.inflight)),
		PendingMutations: n.pending,
		Failures:         make(map[string]*RemoteError, len(n.failures)),
	}
	for id := range n.inflight {
		st.Loading = append(st.Loading, id)
	}
	sort.Strings(st.Loading)
	for id, err := range n.failures {
		st.Failures[id] = err
	}
	return st
}

// LastError returns the last recorded failure for id, if any.
func (n *Navigator) LastError(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.failures[id]; ok {
		return err
	}
	return nil
}

// Wait blocks until every background fetch has completed.
func (n *Navigator) Wait() {
	n.wg.Wait()
}

// Close cancels in-flight fetches and waits for them to return. Their
// responses are discarded.
func (n *Navigator) Close() {
	n.cancel()
	n.wg.Wait()
}
