package store

import (
	"context"
	"io"
)

// Client is the minimal operation set every physical adapter implements.
// A Client wraps one backend session; it is not safe for concurrent use by
// multiple goroutines and must be closed when the unit of work ends.
type Client interface {
	// Get returns the row's properties, or an empty map (never nil) when
	// the row is absent.
	Get(ctx context.Context, keySpace, columnFamily, key string) (Properties, error)

	// Insert upserts the row with partial-update semantics. probablyNew is
	// an optimization hint only; adapters must not rely on it for
	// correctness.
	Insert(ctx context.Context, keySpace, columnFamily, key string, values Properties, probablyNew bool) error

	// Remove deletes the row entirely. Removing an absent row is not an
	// error.
	Remove(ctx context.Context, keySpace, columnFamily, key string) error

	// Find returns a lazy sequence of rows matching the predicate map.
	// Callers must close the returned Rows on every exit path.
	Find(ctx context.Context, keySpace, columnFamily string, query Query) (Rows, error)

	// ListChildren returns the rows whose stored parent hash equals
	// RowHash(keySpace, columnFamily, key).
	ListChildren(ctx context.Context, keySpace, columnFamily, key string) (Rows, error)

	// ListAll returns every row in the column family.
	ListAll(ctx context.Context, keySpace, columnFamily string) (Rows, error)

	// AllCount returns the number of rows in the column family.
	AllCount(ctx context.Context, keySpace, columnFamily string) (int64, error)

	// StreamBodyOut opens the streamed body identified by streamID for the
	// given row. The caller owns the returned reader.
	StreamBodyOut(ctx context.Context, keySpace, columnFamily, contentID, contentBlockID, streamID string, content Properties) (io.ReadCloser, error)

	// StreamBodyIn stores a streamed body and returns the metadata
	// properties to merge into the owning row.
	StreamBodyIn(ctx context.Context, keySpace, columnFamily, contentID, contentBlockID, streamID string, content Properties, in io.Reader) (Properties, error)

	// HasBody reports whether a streamed body exists for the row.
	HasBody(content Properties, streamID string) bool

	// RowHash returns the contract digest for the triple. See RowHash.
	RowHash(keySpace, columnFamily, key string) string

	// Close releases the backend session. Safe to call after failed
	// operations.
	Close() error
}

// Pool hands out one Client per logical session.
type Pool interface {
	GetClient(ctx context.Context) (Client, error)
	Close(ctx context.Context) error
}

// StreamedContentHelper reads and writes streamed binary bodies on behalf
// of an adapter. The adapter only decides whether a stream exists.
type StreamedContentHelper interface {
	ReadBody(ctx context.Context, keySpace, columnFamily, contentBlockID, streamID string, content Properties) (io.ReadCloser, error)
	WriteBody(ctx context.Context, keySpace, columnFamily, contentID, contentBlockID, streamID string, content Properties, in io.Reader) (Properties, error)
	HasStream(content Properties, streamID string) bool
}
