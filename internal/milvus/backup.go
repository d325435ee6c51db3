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

package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	backupPrefix    = "backup-"
	schemaObject    = "schema.json"
	indexesObject   = "indexes.json"
)

// BackupID names one backup generation, e.g. "backup-1756500000".
func NewBackupID(now time.Time) string {
	return fmt.Sprintf("%s%d", backupPrefix, now.Unix())
}

// Backup writes every collection's schema and index definitions under
// <backupID>/<collection>/ in the object store. It returns the names
// of the collections captured.
func Backup(ctx context.Context, store Store, objects ObjectStore,
	backupID string) ([]string, error) {

	log := log.FromContext(ctx)

	collections, err := store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	sort.Strings(collections)

	for _, collection := range collections {
		schema, err := store.DescribeCollection(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("describing collection %s: %w", collection, err)
		}
		backup, skipped := BackupFromSchema(schema)
		for _, field := range skipped {
			log.Info("Field type not representable in backup, skipping",
				"collection", collection, "field", field)
		}
		if err := putJSON(ctx, objects,
			path.Join(backupID, collection, schemaObject), backup); err != nil {
			return nil, err
		}

		indexes, err := store.Indexes(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("listing indexes for %s: %w", collection, err)
		}
		// The index document is optional; a collection without indexes
		// gets none.
		if len(indexes) > 0 {
			if err := putJSON(ctx, objects,
				path.Join(backupID, collection, indexesObject), indexes); err != nil {
				return nil, err
			}
		}
		log.Info("Collection backed up", "collection", collection,
			"indexes", len(indexes))
	}
	return collections, nil
}

// LatestBackupID scans the store for the newest backup generation.
func LatestBackupID(ctx context.Context, objects ObjectStore) (string, error) {
	keys, err := objects.List(ctx, backupPrefix)
	if err != nil {
		return "", err
	}
	ids := map[string]bool{}
	for _, key := range keys {
		if i := strings.IndexByte(key, '/'); i > 0 {
			ids[key[:i]] = true
		}
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("no backups found")
	}
	var sorted []string
	for id := range ids {
		sorted = append(sorted, id)
	}
	// Unix timestamps of equal width sort correctly as strings.
	sort.Strings(sorted)
	return sorted[len(sorted)-1], nil
}

// backupCollections lists the collections captured in a backup.
func backupCollections(ctx context.Context, objects ObjectStore,
	backupID string) ([]string, error) {

	keys, err := objects.List(ctx, backupID+"/")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var collections []string
	for _, key := range keys {
		if !strings.HasSuffix(key, "/"+schemaObject) {
			continue
		}
		rest := strings.TrimPrefix(key, backupID+"/")
		collection := strings.TrimSuffix(rest, "/"+schemaObject)
		if collection != "" && !seen[collection] {
			seen[collection] = true
			collections = append(collections, collection)
		}
	}
	sort.Strings(collections)
	return collections, nil
}

func putJSON(ctx context.Context, objects ObjectStore, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := objects.Put(ctx, key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func getJSON(ctx context.Context, objects ObjectStore, key string, v any) error {
	data, err := objects.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}
