package milvus_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/largo-chat/cluster-ops/internal/milvus"
)

// memObjects is an in-memory stand-in for the S3 backup store.
type memObjects struct {
	objects map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (m *memObjects) Put(ctx context.Context, key string, data []byte) error {
	m.objects[key] = data
	return nil
}

func (m *memObjects) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (m *memObjects) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// fakeStore is an in-memory Milvus.
type fakeStore struct {
	schemas map[string]*entity.Schema
	indexes map[string][]milvus.IndexBackup
	dropped []string
	closed  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		schemas: map[string]*entity.Schema{},
		indexes: map[string][]milvus.IndexBackup{},
	}
}

func (f *fakeStore) add(schema *entity.Schema, indexes ...milvus.IndexBackup) {
	f.schemas[schema.CollectionName] = schema
	f.indexes[schema.CollectionName] = indexes
}

func (f *fakeStore) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	for name := range f.schemas {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeStore) HasCollection(ctx context.Context, name string) (bool, error) {
	_, ok := f.schemas[name]
	return ok, nil
}

func (f *fakeStore) DescribeCollection(ctx context.Context, name string) (*entity.Schema, error) {
	schema, ok := f.schemas[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return schema, nil
}

func (f *fakeStore) Indexes(ctx context.Context, collection string) ([]milvus.IndexBackup, error) {
	return f.indexes[collection], nil
}

func (f *fakeStore) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if _, ok := f.schemas[schema.CollectionName]; ok {
		return fmt.Errorf("collection %s already exists", schema.CollectionName)
	}
	f.schemas[schema.CollectionName] = schema
	return nil
}

func (f *fakeStore) DropCollection(ctx context.Context, name string) error {
	delete(f.schemas, name)
	delete(f.indexes, name)
	f.dropped = append(f.dropped, name)
	return nil
}

func (f *fakeStore) CreateIndex(ctx context.Context, collection string, backup milvus.IndexBackup) error {
	if backup.IndexType == "" {
		return fmt.Errorf("index %s has no index type", backup.Name)
	}
	f.indexes[collection] = append(f.indexes[collection], backup)
	return nil
}

func (f *fakeStore) Close(ctx context.Context) error {
	f.closed = true
	return nil
}
