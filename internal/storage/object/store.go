// Package object provides the blob-store storage backend. Entities are
// serialized as JSON documents in named collections; an ObjectStore
// abstracts the byte store so the same repositories run against a local
// filesystem or an S3-compatible service.
package object

import "context"

// ObjectStore is the byte-addressable document store the repositories are
// layered on.
type ObjectStore interface {
	// Put writes the JSON encoding of data to collection/id.
	Put(ctx context.Context, collection, id string, data any) error
	// Get decodes the document at collection/id into out. Returns
	// domain.ErrNotFound (wrapped) when the document is absent.
	Get(ctx context.Context, collection, id string, out any) error
	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error
	// List returns the document IDs in a collection, in no particular
	// order.
	List(ctx context.Context, collection string) ([]string, error)
	// Exists reports whether a document is present.
	Exists(ctx context.Context, collection, id string) (bool, error)
}
