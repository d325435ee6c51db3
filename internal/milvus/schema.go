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
	"strconv"

	"github.com/milvus-io/milvus/client/v2/entity"
)

// CollectionBackup is the schema.json document stored for each
// collection. Field types use the pymilvus enum spelling
// ("DataType.INT64", "DataType.FLOAT_VECTOR") so backups interoperate
// with the Python tooling that reads the same bucket.
type CollectionBackup struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Fields      []FieldBackup `json:"fields"`
}

type FieldBackup struct {
	Name      string            `json:"name"`
	Type      string            `json:"type"`
	IsPrimary bool              `json:"is_primary,omitempty"`
	AutoID    bool              `json:"auto_id,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// IndexBackup is one entry of the indexes.json document.
type IndexBackup struct {
	Field      string            `json:"field"`
	Name       string            `json:"name"`
	IndexType  string            `json:"index_type"`
	MetricType string            `json:"metric_type,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

var fieldTypeNames = map[entity.FieldType]string{
	entity.FieldTypeBool:           "DataType.BOOL",
	entity.FieldTypeInt8:           "DataType.INT8",
	entity.FieldTypeInt16:          "DataType.INT16",
	entity.FieldTypeInt32:          "DataType.INT32",
	entity.FieldTypeInt64:          "DataType.INT64",
	entity.FieldTypeFloat:          "DataType.FLOAT",
	entity.FieldTypeDouble:         "DataType.DOUBLE",
	entity.FieldTypeString:         "DataType.STRING",
	entity.FieldTypeVarChar:        "DataType.VARCHAR",
	entity.FieldTypeJSON:           "DataType.JSON",
	entity.FieldTypeBinaryVector:   "DataType.BINARY_VECTOR",
	entity.FieldTypeFloatVector:    "DataType.FLOAT_VECTOR",
	entity.FieldTypeFloat16Vector:  "DataType.FLOAT16_VECTOR",
	entity.FieldTypeBFloat16Vector: "DataType.BFLOAT16_VECTOR",
	entity.FieldTypeSparseVector:   "DataType.SPARSE_FLOAT_VECTOR",
}

var fieldTypes = func() map[string]entity.FieldType {
	types := make(map[string]entity.FieldType, len(fieldTypeNames))
	for fieldType, name := range fieldTypeNames {
		types[name] = fieldType
	}
	return types
}()

// BackupFromSchema converts a live collection schema into its backup
// document. The second return lists fields whose type has no backup
// spelling; they are omitted from the document.
func BackupFromSchema(schema *entity.Schema) (CollectionBackup, []string) {
	backup := CollectionBackup{
		Name:        schema.CollectionName,
		Description: schema.Description,
	}
	var skipped []string
	for _, field := range schema.Fields {
		name, ok := fieldTypeNames[field.DataType]
		if !ok {
			skipped = append(skipped, field.Name)
			continue
		}
		entry := FieldBackup{
			Name:      field.Name,
			Type:      name,
			IsPrimary: field.PrimaryKey,
			AutoID:    field.AutoID,
		}
		if len(field.TypeParams) > 0 {
			entry.Params = make(map[string]string, len(field.TypeParams))
			for k, v := range field.TypeParams {
				entry.Params[k] = v
			}
		}
		backup.Fields = append(backup.Fields, entry)
	}
	return backup, skipped
}

// Schema rebuilds the entity schema from a backup document. Fields
// with an unrecognised type spelling are skipped and returned by name;
// the caller decides whether that degrades or fails the restore.
func (b CollectionBackup) Schema() (*entity.Schema, []string) {
	schema := entity.NewSchema().
		WithName(b.Name).
		WithDescription(b.Description)

	var skipped []string
	for _, field := range b.Fields {
		fieldType, ok := fieldTypes[field.Type]
		if !ok {
			skipped = append(skipped, field.Name)
			continue
		}
		entityField := entity.NewField().
			WithName(field.Name).
			WithDataType(fieldType)
		if field.IsPrimary {
			entityField = entityField.WithIsPrimaryKey(true)
		}
		if field.AutoID {
			entityField = entityField.WithIsAutoID(true)
		}
		if dim, ok := paramInt(field.Params, "dim"); ok {
			entityField = entityField.WithDim(dim)
		}
		if maxLength, ok := paramInt(field.Params, "max_length"); ok {
			entityField = entityField.WithMaxLength(maxLength)
		}
		schema = schema.WithField(entityField)
	}
	return schema, skipped
}

func paramInt(params map[string]string, key string) (int64, bool) {
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
