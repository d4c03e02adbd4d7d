package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// An in memory Store. Buckets are created implicitly by the first put,
// or explicitly with CreateBucket so that gets against an empty bucket
// return ErrNotFound rather than ErrNoSuchBucket.
type MemStore struct {
	lock    sync.Mutex
	buckets map[string]map[string]Object

	// Optional hooks called before every operation. Returning an error
	// fails the operation with that error, which lets tests simulate
	// outages and flaky reads.
	BeforeGet func(bucket, key string) error
	BeforePut func(bucket, key string) error

	// Returns the modification time assigned to new objects. Defaults to
	// time.Now.
	Now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		buckets: make(map[string]map[string]Object),
	}
}

func (m *MemStore) CreateBucket(bucket string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.buckets == nil {
		m.buckets = make(map[string]map[string]Object)
	}
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]Object)
	}
}

func (m *MemStore) GetObject(
	ctx context.Context,
	bucket, key string,
) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.BeforeGet != nil {
		if err := m.BeforeGet(bucket, key); err != nil {
			return nil, err
		}
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, ErrNoSuchBucket(bucket)
	}
	obj, ok := b[key]
	if !ok {
		return nil, ErrNotFound(bucket + "/" + key)
	}
	body := make([]byte, len(obj.Body))
	copy(body, obj.Body)
	obj.Body = body
	return &obj, nil
}

func (m *MemStore) PutObject(
	ctx context.Context,
	bucket, key string,
	body []byte,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.BeforePut != nil {
		if err := m.BeforePut(bucket, key); err != nil {
			return err
		}
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	data := make([]byte, len(body))
	copy(data, body)
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.buckets == nil {
		m.buckets = make(map[string]map[string]Object)
	}
	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string]Object)
		m.buckets[bucket] = b
	}
	b[key] = Object{
		Bucket:       bucket,
		Key:          key,
		Body:         data,
		LastModified: now(),
	}
	return nil
}

// Returns the sorted keys stored in a bucket.
func (m *MemStore) Keys(bucket string) []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
