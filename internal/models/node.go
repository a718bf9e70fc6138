// Package models contains the data types shared by the tree cache, the
// navigator and every folder service backend.
package models

import (
	"fmt"
	"strings"
	"time"
)

// RootID is the identifier of the single root folder. It always resolves
// and is never deleted.
const RootID = "root"

// RootName is the display name used for the root folder until the service
// reports its own.
const RootName = "Root"

// Kind distinguishes folders from files.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFolder || k == KindFile
}

// Node represents one folder or file in the remote tree.
//
// Children is only meaningful for folders. An empty, non-nil slice on a
// loaded folder means "confirmed empty"; a nil slice on an unloaded
// folder means "unknown".
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     Kind   `json:"type"`
	ParentID string `json:"parentId,omitempty"`
	Children []Node `json:"children,omitempty"`

	// File fields carried through from the folder service untouched.
	SQL         string    `json:"sql,omitempty"`
	Description string    `json:"description,omitempty"`
	DatabaseID  string    `json:"databaseId,omitempty"`
	Size        int64     `json:"size,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`

	// Cache metadata, folders only. Never sent over the wire.
	IsLoaded  bool `json:"-"`
	IsLoading bool `json:"-"`
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool {
	return n.Kind == KindFolder
}

// Shallow returns a copy of n without its children and without cache
// metadata, i.e. the shape of a reference found in a parent's listing.
func (n Node) Shallow() Node {
	n.Children = nil
	n.IsLoaded = false
	n.IsLoading = false
	return n
}

// Crumb is one element of a breadcrumb path.
type Crumb struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FormatPath joins crumb names into a display path ("Root > Reports > Q1").
func FormatPath(crumbs []Crumb) string {
	parts := make([]string, len(crumbs))
	for i, c := range crumbs {
		parts[i] = c.Name
	}
	return strings.Join(parts, " > ")
}

// Draft carries the fields of a node to be created. The service assigns
// the id.
type Draft struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"type"`
	SQL         string `json:"sql,omitempty"`
	Description string `json:"description,omitempty"`
	DatabaseID  string `json:"databaseId,omitempty"`

	// Content is the body of a file for object-store backends.
	Content []byte `json:"content,omitempty"`
}

// Validate checks the draft before any remote call is made.
func (d Draft) Validate() error {
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDraft, d.Kind)
	}
	if d.Kind == KindFolder && (d.SQL != "" || len(d.Content) > 0) {
		return fmt.Errorf("%w: folders cannot carry file content", ErrInvalidDraft)
	}
	return nil
}

// ValidateName rejects names that cannot be stored by every backend.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case trimmed != name:
		return fmt.Errorf("%w: leading or trailing whitespace in %q", ErrInvalidName, name)
	case strings.Contains(name, "/"):
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidName, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	return nil
}
