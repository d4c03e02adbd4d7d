package storage

import (
	"context"
	"time"
)

// An object fetched from a bucket.
type Object struct {
	Bucket string
	Key    string

	// The full object contents. Imaging instances are small enough (a few
	// MB at most) that the archiver holds them in memory.
	Body []byte

	// The time the object was last written, used as the timestamp of the
	// zip entry created from it.
	LastModified time.Time
}

// The two operations the pipeline needs from an object store. All
// implementations must be safe for concurrent use since the archiver
// shares one Store between its workers.
type Store interface {
	// Fetches an object. A missing object or bucket returns
	// ErrNotFound or ErrNoSuchBucket respectively.
	GetObject(ctx context.Context, bucket, key string) (*Object, error)

	// Stores body at bucket/key, replacing any existing object.
	PutObject(ctx context.Context, bucket, key string, body []byte) error
}
