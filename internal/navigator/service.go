package navigator

import (
	"context"

	"github.com/rescale/rescale-foldernav/internal/models"
)

// FolderService is the remote system of record for the tree. FetchNode
// returns a node with one level of children; "root" must always resolve.
// DeleteNode may refuse non-empty folders; that policy belongs to the
// backend.
type FolderService interface {
	FetchNode(ctx context.Context, id string) (models.Node, error)
	CreateNode(ctx context.Context, parentID string, draft models.Draft) (models.Node, error)
	RenameNode(ctx context.Context, id, newName string) (models.Node, error)
	DeleteNode(ctx context.Context, id string) error
}
