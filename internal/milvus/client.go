/*
Copyright 2025 Largo Chat.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package milvus backs up and restores collection definitions around a
// cluster upgrade. Backups carry schemas and index definitions, not
// vector data; vectors survive in object storage and are re-served by
// the upgraded cluster.
package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/milvus-io/milvus/pkg/v2/util/merr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/largo-chat/cluster-ops/internal/poll"
)

// Store is the slice of the Milvus API backup and restore depend on.
type Store interface {
	ListCollections(ctx context.Context) ([]string, error)
	HasCollection(ctx context.Context, name string) (bool, error)
	DescribeCollection(ctx context.Context, name string) (*entity.Schema, error)
	Indexes(ctx context.Context, collection string) ([]IndexBackup, error)
	CreateCollection(ctx context.Context, schema *entity.Schema) error
	DropCollection(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, collection string, backup IndexBackup) error
	Close(ctx context.Context) error
}

// ObjectStore persists backup documents. The S3 implementation lives
// in the aws package; tests use an in-memory map.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

type Client struct {
	client *milvusclient.Client
}

var connectSpec = poll.Spec{Interval: 3 * time.Second, MaxWait: 15 * time.Second}

// Connect dials the proxy, retrying briefly. The proxy can lag its
// Service by a few seconds right after a rollout.
func Connect(ctx context.Context, address string) (*Client, error) {
	log := log.FromContext(ctx)

	var client *milvusclient.Client
	err := poll.Until(ctx, connectSpec, func(ctx context.Context) (bool, error) {
		c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
			Address: address,
		})
		if err != nil {
			log.V(1).Info("Milvus not reachable yet", "address", address,
				"error", err.Error())
			return false, nil
		}
		client = c
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to milvus at %s: %w", address, err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	return c.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
}

func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	return c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
}

func (c *Client) DescribeCollection(ctx context.Context, name string) (*entity.Schema, error) {
	collection, err := c.client.DescribeCollection(ctx,
		milvusclient.NewDescribeCollectionOption(name))
	if err != nil {
		return nil, err
	}
	return collection.Schema, nil
}

// Indexes lists per field because the SDK's index description does not
// carry the field name back.
func (c *Client) Indexes(ctx context.Context, collection string) ([]IndexBackup, error) {
	schema, err := c.DescribeCollection(ctx, collection)
	if err != nil {
		return nil, err
	}
	var backups []IndexBackup
	for _, field := range schema.Fields {
		names, err := c.client.ListIndexes(ctx,
			milvusclient.NewListIndexOption(collection).WithFieldName(field.Name))
		if err != nil {
			if errors.Is(err, merr.ErrIndexNotFound) {
				continue
			}
			return nil, err
		}
		for _, name := range names {
			description, err := c.client.DescribeIndex(ctx,
				milvusclient.NewDescribeIndexOption(collection, name))
			if err != nil {
				return nil, err
			}
			backups = append(backups, indexBackup(field.Name, description))
		}
	}
	return backups, nil
}

func (c *Client) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	return c.client.CreateCollection(ctx,
		milvusclient.NewCreateCollectionOption(schema.CollectionName, schema))
}

func (c *Client) DropCollection(ctx context.Context, name string) error {
	return c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(name))
}

func (c *Client) CreateIndex(ctx context.Context, collection string, backup IndexBackup) error {
	idx, err := backup.Index()
	if err != nil {
		return err
	}
	task, err := c.client.CreateIndex(ctx,
		milvusclient.NewCreateIndexOption(collection, backup.Field, idx))
	if err != nil {
		return err
	}
	return task.Await(ctx)
}

func indexBackup(field string, description milvusclient.IndexDescription) IndexBackup {
	backup := IndexBackup{
		Field:  field,
		Name:   description.Name(),
		Params: map[string]string{},
	}
	for k, v := range description.Params() {
		switch k {
		case index.IndexTypeKey:
			backup.IndexType = v
		case index.MetricTypeKey:
			backup.MetricType = v
		default:
			backup.Params[k] = v
		}
	}
	return backup
}

// Index rebuilds the SDK index object from a backup entry. Known
// types get their typed constructors; anything else is replayed
// verbatim as a generic index.
func (b IndexBackup) Index() (index.Index, error) {
	metric := entity.MetricType(b.MetricType)
	if metric == "" {
		metric = entity.L2
	}
	switch b.IndexType {
	case "FLAT":
		return index.NewFlatIndex(metric), nil
	case "IVF_FLAT":
		return index.NewIvfFlatIndex(metric, b.paramInt("nlist", 1024)), nil
	case "HNSW":
		return index.NewHNSWIndex(metric,
			b.paramInt("M", 16), b.paramInt("efConstruction", 200)), nil
	case "AUTOINDEX":
		return index.NewAutoIndex(metric), nil
	case "":
		return nil, fmt.Errorf("index %s has no index type recorded", b.Name)
	default:
		params := map[string]string{
			index.IndexTypeKey:  b.IndexType,
			index.MetricTypeKey: b.MetricType,
		}
		for k, v := range b.Params {
			params[k] = v
		}
		return index.NewGenericIndex(b.Name, params), nil
	}
}

func (b IndexBackup) paramInt(key string, fallback int) int {
	if raw, ok := b.Params[key]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return fallback
}
