package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/liquidgecka/testlib"
)

func TestMemStore_GetPut(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	ctx := context.Background()
	when := time.Date(2022, 1, 7, 12, 0, 0, 0, time.UTC)
	m := NewMemStore()
	m.Now = func() time.Time { return when }

	// Unknown buckets and keys.
	_, err := m.GetObject(ctx, "bucket", "key")
	T.Equal(err, ErrNoSuchBucket("bucket"))
	m.CreateBucket("bucket")
	_, err = m.GetObject(ctx, "bucket", "key")
	T.Equal(err, ErrNotFound("bucket/key"))

	// Stored data is copied in both directions.
	data := []byte("data")
	T.ExpectSuccess(m.PutObject(ctx, "bucket", "key", data))
	data[0] = 'X'
	obj, err := m.GetObject(ctx, "bucket", "key")
	T.ExpectSuccess(err)
	T.Equal(string(obj.Body), "data")
	T.Equal(obj.Bucket, "bucket")
	T.Equal(obj.Key, "key")
	T.Equal(obj.LastModified, when)
	obj.Body[0] = 'Y'
	obj, err = m.GetObject(ctx, "bucket", "key")
	T.ExpectSuccess(err)
	T.Equal(string(obj.Body), "data")

	// Puts create buckets implicitly.
	T.ExpectSuccess(m.PutObject(ctx, "other", "b", nil))
	T.ExpectSuccess(m.PutObject(ctx, "other", "a", nil))
	T.Equal(m.Keys("other"), []string{"a", "b"})
	T.Equal(m.Keys("missing"), []string{})
}

func TestMemStore_Hooks(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	ctx := context.Background()
	var m MemStore
	m.BeforePut = func(bucket, key string) error {
		return fmt.Errorf("put %s/%s", bucket, key)
	}
	m.BeforeGet = func(bucket, key string) error {
		return fmt.Errorf("get %s/%s", bucket, key)
	}
	T.ExpectErrorMessage(m.PutObject(ctx, "b", "k", nil), "put b/k")
	_, err := m.GetObject(ctx, "b", "k")
	T.ExpectErrorMessage(err, "get b/k")
}

func TestMemStore_Canceled(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemStore()
	T.Equal(m.PutObject(ctx, "b", "k", nil), context.Canceled)
	_, err := m.GetObject(ctx, "b", "k")
	T.Equal(err, context.Canceled)
}
