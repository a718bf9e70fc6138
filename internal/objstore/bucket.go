// Package objstore serves the folder tree out of an object store bucket.
//
// Keys under the configured prefix form the tree. A folder is a key
// ending in "/" (backed by an empty marker object, though folders that
// only exist implicitly through their contents are also listed). A file
// is any other key; its body is the SQL text and its metadata carries the
// description and database id. Node ids are keys relative to the prefix,
// so renaming a node changes its id.
package objstore

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by a Bucket when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Metadata keys stored on file objects. Azure requires metadata names to
// be valid identifiers, hence no dashes.
const (
	MetaDescription = "description"
	MetaDatabaseID  = "databaseid"
)

// Object describes one stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	// Metadata is only filled by Get and Head. Keys are lower case.
	Metadata map[string]string
}

// Listing is the result of Bucket.List.
type Listing struct {
	Objects []Object
	// Prefixes holds the common prefixes (sub-folders) when a delimiter
	// was given, each ending in the delimiter.
	Prefixes []string
}

// Bucket is the subset of object store operations the folder service
// needs. Implementations return ErrObjectNotFound (possibly wrapped) for
// missing keys on Get and Head.
type Bucket interface {
	// List returns objects under prefix. With a delimiter the listing is
	// one level deep; with an empty delimiter it is recursive.
	List(ctx context.Context, prefix, delimiter string) (Listing, error)
	Get(ctx context.Context, key string) ([]byte, Object, error)
	Head(ctx context.Context, key string) (Object, error)
	Put(ctx context.Context, key string, body []byte, metadata map[string]string) error
	// Copy duplicates src to dst within the bucket, metadata included.
	Copy(ctx context.Context, src, dst string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
