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
	"fmt"
	"path"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// RestoreReport says what a restore actually did. Skipped fields and
// failed indexes degrade the result without failing it; the caller
// reports them as warnings.
type RestoreReport struct {
	Restored      []string
	SkippedFields map[string][]string
	FailedIndexes map[string][]string
}

func (r *RestoreReport) Degraded() bool {
	return len(r.SkippedFields) > 0 || len(r.FailedIndexes) > 0
}

// Restore recreates every collection captured in the backup. An
// existing collection with the same name is dropped first; the backup
// is the source of truth once a restore is asked for.
func Restore(ctx context.Context, store Store, objects ObjectStore,
	backupID string) (*RestoreReport, error) {

	log := log.FromContext(ctx)

	collections, err := backupCollections(ctx, objects, backupID)
	if err != nil {
		return nil, fmt.Errorf("reading backup %s: %w", backupID, err)
	}
	if len(collections) == 0 {
		return nil, fmt.Errorf("backup %s contains no collections", backupID)
	}

	report := &RestoreReport{
		SkippedFields: map[string][]string{},
		FailedIndexes: map[string][]string{},
	}
	for _, collection := range collections {
		var backup CollectionBackup
		if err := getJSON(ctx, objects,
			path.Join(backupID, collection, schemaObject), &backup); err != nil {
			return nil, err
		}
		schema, skipped := backup.Schema()
		if len(skipped) > 0 {
			log.Info("Unrecognised field types in backup, restoring without them",
				"collection", collection, "fields", skipped)
			report.SkippedFields[collection] = skipped
		}
		if len(schema.Fields) == 0 {
			return nil, fmt.Errorf("collection %s: no restorable fields", collection)
		}

		exists, err := store.HasCollection(ctx, collection)
		if err != nil {
			return nil, err
		}
		if exists {
			if err := store.DropCollection(ctx, collection); err != nil {
				return nil, fmt.Errorf("dropping collection %s: %w", collection, err)
			}
			log.Info("Existing collection dropped before restore",
				"collection", collection)
		}
		if err := store.CreateCollection(ctx, schema); err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", collection, err)
		}

		indexes, err := readIndexes(ctx, objects, backupID, collection)
		if err != nil {
			return nil, err
		}
		for _, idx := range indexes {
			if err := store.CreateIndex(ctx, collection, idx); err != nil {
				log.Error(err, "Failed to recreate index",
					"collection", collection, "index", idx.Name)
				report.FailedIndexes[collection] =
					append(report.FailedIndexes[collection], idx.Name)
			}
		}

		report.Restored = append(report.Restored, collection)
		log.Info("Collection restored", "collection", collection)
	}
	return report, nil
}

// readIndexes loads a collection's index document. Backups only carry
// one when the collection had indexes; absence means none to reapply.
func readIndexes(ctx context.Context, objects ObjectStore, backupID,
	collection string) ([]IndexBackup, error) {

	key := path.Join(backupID, collection, indexesObject)
	keys, err := objects.List(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	var indexes []IndexBackup
	if err := getJSON(ctx, objects, key, &indexes); err != nil {
		return nil, err
	}
	return indexes, nil
}

// Verify checks that every collection in the backup exists on the
// cluster, returning the missing ones.
func Verify(ctx context.Context, store Store, objects ObjectStore,
	backupID string) ([]string, error) {

	collections, err := backupCollections(ctx, objects, backupID)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, collection := range collections {
		exists, err := store.HasCollection(ctx, collection)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, collection)
		}
	}
	return missing, nil
}
