package models

import "errors"

// Errors shared by every folder service backend. Backends wrap them with
// context; the HTTP server maps them to status codes and the API client
// maps them back, so errors.Is works end to end.
var (
	// ErrNodeNotFound indicates the id does not exist in the folder service.
	ErrNodeNotFound = errors.New("node not found")

	// ErrFolderNotEmpty indicates the service refused to delete a folder
	// that still has children.
	ErrFolderNotEmpty = errors.New("folder is not empty")

	// ErrNotAFolder indicates a folder operation was attempted on a file.
	ErrNotAFolder = errors.New("not a folder")

	// ErrNameConflict indicates a sibling with the same name already exists.
	ErrNameConflict = errors.New("name already exists")

	// ErrRootImmutable indicates an attempt to rename or delete the root.
	ErrRootImmutable = errors.New("root folder cannot be renamed or deleted")

	// ErrInvalidName indicates a rejected node name.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidDraft indicates a malformed create request.
	ErrInvalidDraft = errors.New("invalid draft")
)
