package api

import "github.com/rescale/rescale-foldernav/internal/models"

// CreateRequest is the body of POST /api/folders.
type CreateRequest struct {
	ParentID string       `json:"parentId"`
	Item     models.Draft `json:"item"`
}

// NodeUpdates lists the mutable fields of a node. Only the name can change.
type NodeUpdates struct {
	Name string `json:"name"`
}

// RenameRequest is the body of PATCH /api/folders.
type RenameRequest struct {
	ID      string      `json:"id"`
	Updates NodeUpdates `json:"updates"`
}

// DeleteResponse is the body of a successful DELETE /api/folders.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
