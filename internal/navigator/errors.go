package navigator

import (
	"errors"
	"fmt"

	"github.com/rescale/rescale-foldernav/internal/models"
)

// Operation names carried by RemoteError and mutation events.
const (
	OpFetch  = "fetch"
	OpCreate = "create"
	OpRename = "rename"
	OpDelete = "delete"
)

// ErrRootImmutable is returned, before any remote call, for attempts to
// rename or delete the root.
var ErrRootImmutable = models.ErrRootImmutable

// ErrClosed is returned by operations started after Close.
var ErrClosed = errors.New("navigator closed")

// RemoteError reports a failure of the folder service. The cache is left
// exactly as it was before the attempt.
type RemoteError struct {
	Op  string
	ID  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemote reports whether err came from the folder service.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
