package objstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rescale/rescale-foldernav/internal/http"
	"github.com/rescale/rescale-foldernav/internal/logging"
	"github.com/rescale/rescale-foldernav/internal/models"
)

const delimiter = "/"

// Options configures a Service.
type Options struct {
	// Prefix scopes the tree to part of the bucket. The root folder maps to
	// the prefix itself.
	Prefix string
	// Cascade lets DeleteNode remove non-empty folders. Otherwise they are
	// refused with models.ErrFolderNotEmpty.
	Cascade bool
	// Retry overrides http.DefaultRetryConfig for bucket calls.
	Retry  *http.RetryConfig
	Logger *logging.Logger
}

// Service implements the navigator's FolderService over a Bucket.
type Service struct {
	bucket  Bucket
	prefix  string
	cascade bool
	retry   http.RetryConfig
	logger  *logging.Logger
}

// NewService returns a folder service over bucket.
func NewService(bucket Bucket, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	retry := http.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	s := &Service{
		bucket:  bucket,
		prefix:  normalizePrefix(opts.Prefix),
		cascade: opts.Cascade,
		retry:   retry,
		logger:  opts.Logger,
	}
	s.retry.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		s.logger.Warn().Err(err).Int("attempt", attempt).Str("type", errType.String()).Msg("Retrying object store call")
	}
	return s
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, delimiter)
	if p == "" {
		return ""
	}
	return p + delimiter
}

// Prefix returns the normalized key prefix of the root folder.
func (s *Service) Prefix() string {
	return s.prefix
}

// do runs a bucket call with retries. Missing keys are never retried.
func (s *Service) do(ctx context.Context, fn func() error) error {
	return http.ExecuteWithRetry(ctx, s.retry, func() error {
		err := fn()
		if errors.Is(err, ErrObjectNotFound) {
			return &http.Permanent{Err: err}
		}
		return err
	})
}

// rel maps a node id to its key relative to the prefix; the root is "".
func rel(id string) string {
	if id == "" || id == models.RootID {
		return ""
	}
	return id
}

func isFolderKey(r string) bool {
	return r == "" || strings.HasSuffix(r, delimiter)
}

func nodeID(r string) string {
	if r == "" {
		return models.RootID
	}
	return r
}

// parentOf returns the id of the folder holding r.
func parentOf(r string) string {
	trimmed := strings.TrimSuffix(r, delimiter)
	i := strings.LastIndex(trimmed, delimiter)
	if i < 0 {
		return models.RootID
	}
	return trimmed[:i+1]
}

func baseName(r string) string {
	return path.Base(strings.TrimSuffix(r, delimiter))
}

func (s *Service) fileNode(r string, obj Object) models.Node {
	return models.Node{
		ID:          r,
		Name:        baseName(r),
		Kind:        models.KindFile,
		ParentID:    parentOf(r),
		Description: obj.Metadata[MetaDescription],
		DatabaseID:  obj.Metadata[MetaDatabaseID],
		Size:        obj.Size,
		UpdatedAt:   obj.LastModified,
	}
}

func (s *Service) folderNode(r string) models.Node {
	n := models.Node{ID: nodeID(r), Kind: models.KindFolder}
	if r == "" {
		n.Name = models.RootName
		return n
	}
	n.Name = baseName(r)
	n.ParentID = parentOf(r)
	return n
}

func (s *Service) list(ctx context.Context, r, delim string) (Listing, error) {
	var l Listing
	err := s.do(ctx, func() error {
		var err error
		l, err = s.bucket.List(ctx, s.prefix+r, delim)
		return err
	})
	if err != nil {
		return Listing{}, fmt.Errorf("list %q: %w", r, err)
	}
	return l, nil
}

func (s *Service) head(ctx context.Context, r string) (Object, error) {
	var obj Object
	err := s.do(ctx, func() error {
		var err error
		obj, err = s.bucket.Head(ctx, s.prefix+r)
		return err
	})
	return obj, err
}

// folderExists accepts a marker object or any content under the folder.
func (s *Service) folderExists(ctx context.Context, r string) (bool, error) {
	if r == "" {
		return true, nil
	}
	if _, err := s.head(ctx, r); err == nil {
		return true, nil
	} else if !errors.Is(err, ErrObjectNotFound) {
		return false, err
	}
	l, err := s.list(ctx, r, delimiter)
	if err != nil {
		return false, err
	}
	return len(l.Objects) > 0 || len(l.Prefixes) > 0, nil
}

// FetchNode returns a folder with one level of children, or a file with
// its SQL body.
func (s *Service) FetchNode(ctx context.Context, id string) (models.Node, error) {
	r := rel(id)
	if !isFolderKey(r) {
		return s.fetchFile(ctx, r)
	}

	hasMarker := r == ""
	if !hasMarker {
		if _, err := s.head(ctx, r); err == nil {
			hasMarker = true
		} else if !errors.Is(err, ErrObjectNotFound) {
			return models.Node{}, fmt.Errorf("fetch %s: %w", id, err)
		}
	}

	l, err := s.list(ctx, r, delimiter)
	if err != nil {
		return models.Node{}, err
	}

	n := s.folderNode(r)
	n.Children = make([]models.Node, 0, len(l.Prefixes)+len(l.Objects))
	for _, p := range l.Prefixes {
		n.Children = append(n.Children, s.folderNode(strings.TrimPrefix(p, s.prefix)))
	}
	for _, obj := range l.Objects {
		childRel := strings.TrimPrefix(obj.Key, s.prefix)
		if childRel == r || isFolderKey(childRel) {
			continue
		}
		n.Children = append(n.Children, s.fileNode(childRel, obj))
	}
	if !hasMarker && len(n.Children) == 0 {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, id)
	}
	return n, nil
}

func (s *Service) fetchFile(ctx context.Context, r string) (models.Node, error) {
	var (
		body []byte
		obj  Object
	)
	err := s.do(ctx, func() error {
		var err error
		body, obj, err = s.bucket.Get(ctx, s.prefix+r)
		return err
	})
	if errors.Is(err, ErrObjectNotFound) {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, r)
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("fetch %s: %w", r, err)
	}
	n := s.fileNode(r, obj)
	n.SQL = string(body)
	return n, nil
}

// nameTaken reports whether a file or folder called name exists in the
// folder parentRel. except is skipped (the node being renamed).
func (s *Service) nameTaken(ctx context.Context, parentRel, name, except string) (bool, error) {
	for _, candidate := range []string{parentRel + name, parentRel + name + delimiter} {
		if candidate == except {
			continue
		}
		if strings.HasSuffix(candidate, delimiter) {
			ok, err := s.folderExists(ctx, candidate)
			if err != nil || ok {
				return ok, err
			}
			continue
		}
		if _, err := s.head(ctx, candidate); err == nil {
			return true, nil
		} else if !errors.Is(err, ErrObjectNotFound) {
			return false, err
		}
	}
	return false, nil
}

// CreateNode writes a folder marker or a file object under parentID.
func (s *Service) CreateNode(ctx context.Context, parentID string, draft models.Draft) (models.Node, error) {
	if err := draft.Validate(); err != nil {
		return models.Node{}, err
	}
	parentRel := rel(parentID)
	if !isFolderKey(parentRel) {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNotAFolder, parentID)
	}
	ok, err := s.folderExists(ctx, parentRel)
	if err != nil {
		return models.Node{}, fmt.Errorf("create in %s: %w", parentID, err)
	}
	if !ok {
		return models.Node{}, fmt.Errorf("%w: parent %s", models.ErrNodeNotFound, parentID)
	}
	taken, err := s.nameTaken(ctx, parentRel, draft.Name, "")
	if err != nil {
		return models.Node{}, fmt.Errorf("create in %s: %w", parentID, err)
	}
	if taken {
		return models.Node{}, fmt.Errorf("%w: %q in %s", models.ErrNameConflict, draft.Name, parentID)
	}

	if draft.Kind == models.KindFolder {
		r := parentRel + draft.Name + delimiter
		if err := s.do(ctx, func() error { return s.bucket.Put(ctx, s.prefix+r, nil, nil) }); err != nil {
			return models.Node{}, fmt.Errorf("create folder %s: %w", r, err)
		}
		s.logger.Debug().Str("key", s.prefix+r).Msg("Created folder marker")
		return s.folderNode(r), nil
	}

	r := parentRel + draft.Name
	body := draft.Content
	if len(body) == 0 {
		body = []byte(draft.SQL)
	}
	meta := map[string]string{}
	if draft.Description != "" {
		meta[MetaDescription] = draft.Description
	}
	if draft.DatabaseID != "" {
		meta[MetaDatabaseID] = draft.DatabaseID
	}
	if err := s.do(ctx, func() error { return s.bucket.Put(ctx, s.prefix+r, body, meta) }); err != nil {
		return models.Node{}, fmt.Errorf("create file %s: %w", r, err)
	}
	s.logger.Debug().Str("key", s.prefix+r).Int("bytes", len(body)).Msg("Created file object")

	obj, err := s.head(ctx, r)
	if err != nil {
		// The write succeeded; report what was written.
		obj = Object{Key: s.prefix + r, Size: int64(len(body)), Metadata: meta}
	}
	n := s.fileNode(r, obj)
	n.SQL = draft.SQL
	return n, nil
}

// RenameNode moves a node to a new key in the same folder. Object stores
// have no rename, so the node is copied then deleted, and the returned
// node carries the new id.
func (s *Service) RenameNode(ctx context.Context, id, newName string) (models.Node, error) {
	r := rel(id)
	if r == "" {
		return models.Node{}, models.ErrRootImmutable
	}
	if err := models.ValidateName(newName); err != nil {
		return models.Node{}, err
	}

	folder := isFolderKey(r)
	if folder {
		ok, err := s.folderExists(ctx, r)
		if err != nil {
			return models.Node{}, fmt.Errorf("rename %s: %w", id, err)
		}
		if !ok {
			return models.Node{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, id)
		}
	} else if _, err := s.head(ctx, r); errors.Is(err, ErrObjectNotFound) {
		return models.Node{}, fmt.Errorf("%w: %s", models.ErrNodeNotFound, id)
	} else if err != nil {
		return models.Node{}, fmt.Errorf("rename %s: %w", id, err)
	}

	parent := rel(parentOf(r))
	target := parent + newName
	if folder {
		target += delimiter
	}
	if target == r {
		return s.FetchNode(ctx, id)
	}
	taken, err := s.nameTaken(ctx, parent, newName, r)
	if err != nil {
		return models.Node{}, fmt.Errorf("rename %s: %w", id, err)
	}
	if taken {
		return models.Node{}, fmt.Errorf("%w: %q in %s", models.ErrNameConflict, newName, nodeID(parent))
	}

	if !folder {
		if err := s.move(ctx, r, target); err != nil {
			return models.Node{}, fmt.Errorf("rename %s: %w", id, err)
		}
		obj, err := s.head(ctx, target)
		if err != nil {
			return models.Node{}, fmt.Errorf("rename %s: %w", id, err)
		}
		return s.fileNode(target, obj), nil
	}

	l, err := s.list(ctx, r, "")
	if err != nil {
		return models.Node{}, err
	}
	for _, obj := range l.Objects {
		src := strings.TrimPrefix(obj.Key, s.prefix)
		if err := s.move(ctx, src, target+strings.TrimPrefix(src, r)); err != nil {
			return models.Node{}, fmt.Errorf("rename %s: %w", id, err)
		}
	}
	if len(l.Objects) == 0 {
		// Marker missing from the listing; recreate it under the new name.
		if err := s.do(ctx, func() error { return s.bucket.Put(ctx, s.prefix+target, nil, nil) }); err != nil {
			return models.Node{}, fmt.Errorf("rename %s: %w", id, err)
		}
	}
	s.logger.Debug().Str("from", r).Str("to", target).Int("objects", len(l.Objects)).Msg("Renamed folder")
	return s.folderNode(target), nil
}

func (s *Service) move(ctx context.Context, src, dst string) error {
	if err := s.do(ctx, func() error { return s.bucket.Copy(ctx, s.prefix+src, s.prefix+dst) }); err != nil {
		return err
	}
	return s.do(ctx, func() error { return s.bucket.Delete(ctx, s.prefix+src) })
}

// DeleteNode removes a file, or a folder and (with Cascade) its contents.
func (s *Service) DeleteNode(ctx context.Context, id string) error {
	r := rel(id)
	if r == "" {
		return models.ErrRootImmutable
	}

	if !isFolderKey(r) {
		if _, err := s.head(ctx, r); errors.Is(err, ErrObjectNotFound) {
			return fmt.Errorf("%w: %s", models.ErrNodeNotFound, id)
		} else if err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		return s.do(ctx, func() error { return s.bucket.Delete(ctx, s.prefix+r) })
	}

	l, err := s.list(ctx, r, "")
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(l.Objects))
	contents := 0
	for _, obj := range l.Objects {
		keys = append(keys, obj.Key)
		if obj.Key != s.prefix+r {
			contents++
		}
	}
	if len(keys) == 0 {
		if _, err := s.head(ctx, r); errors.Is(err, ErrObjectNotFound) {
			return fmt.Errorf("%w: %s", models.ErrNodeNotFound, id)
		}
		keys = append(keys, s.prefix+r)
	}
	if contents > 0 && !s.cascade {
		return fmt.Errorf("%w: %s holds %d objects", models.ErrFolderNotEmpty, id, contents)
	}

	// Deepest keys first so a partial failure never leaves orphans
	// without their folder marker.
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		if err := s.do(ctx, func() error { return s.bucket.Delete(ctx, key) }); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	s.logger.Debug().Str("id", id).Int("objects", len(keys)).Msg("Deleted folder")
	return nil
}
