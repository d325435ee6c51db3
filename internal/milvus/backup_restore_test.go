package milvus_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/largo-chat/cluster-ops/internal/milvus"
)

func docsSchema() *entity.Schema {
	return entity.NewSchema().
		WithName("docs").
		WithField(entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName("vec").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(128))
}

var _ = Describe("Backup", func() {
	var (
		ctx     context.Context
		store   *fakeStore
		objects *memObjects
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newFakeStore()
		objects = newMemObjects()
	})

	It("writes schema and index documents per collection", func() {
		store.add(docsSchema(), milvus.IndexBackup{
			Field: "vec", Name: "vec_idx", IndexType: "HNSW", MetricType: "L2",
		})

		collections, err := milvus.Backup(ctx, store, objects, "backup-1756500000")
		Expect(err).NotTo(HaveOccurred())
		Expect(collections).To(ConsistOf("docs"))

		Expect(objects.objects).To(HaveKey("backup-1756500000/docs/schema.json"))
		Expect(objects.objects).To(HaveKey("backup-1756500000/docs/indexes.json"))

		var backup milvus.CollectionBackup
		Expect(json.Unmarshal(
			objects.objects["backup-1756500000/docs/schema.json"], &backup)).To(Succeed())
		Expect(backup.Fields).To(HaveLen(2))
		Expect(backup.Fields[0].Type).To(Equal("DataType.INT64"))
		Expect(backup.Fields[1].Type).To(Equal("DataType.FLOAT_VECTOR"))
		Expect(backup.Fields[1].Params).To(HaveKeyWithValue("dim", "128"))
	})

	It("omits the index document for collections without indexes", func() {
		store.add(docsSchema())

		_, err := milvus.Backup(ctx, store, objects, "backup-1756500000")
		Expect(err).NotTo(HaveOccurred())
		Expect(objects.objects).To(HaveKey("backup-1756500000/docs/schema.json"))
		Expect(objects.objects).NotTo(HaveKey("backup-1756500000/docs/indexes.json"))
	})

	It("succeeds on an empty instance", func() {
		collections, err := milvus.Backup(ctx, store, objects, "backup-1756500000")
		Expect(err).NotTo(HaveOccurred())
		Expect(collections).To(BeEmpty())
	})
})

var _ = Describe("LatestBackupID", func() {
	It("picks the newest generation", func() {
		objects := newMemObjects()
		for _, id := range []string{"backup-1756400000", "backup-1756500000"} {
			Expect(objects.Put(context.Background(),
				id+"/docs/schema.json", []byte("{}"))).To(Succeed())
		}
		id, err := milvus.LatestBackupID(context.Background(), objects)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal("backup-1756500000"))
	})

	It("errors when the bucket holds no backups", func() {
		_, err := milvus.LatestBackupID(context.Background(), newMemObjects())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Restore", func() {
	var (
		ctx      context.Context
		objects  *memObjects
		backupID string
	)

	BeforeEach(func() {
		ctx = context.Background()
		objects = newMemObjects()
		backupID = milvus.NewBackupID(time.Now())

		source := newFakeStore()
		source.add(docsSchema(), milvus.IndexBackup{
			Field: "vec", Name: "vec_idx", IndexType: "HNSW", MetricType: "L2",
		})
		_, err := milvus.Backup(ctx, source, objects, backupID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("recreates collections and indexes on an empty cluster", func() {
		target := newFakeStore()
		report, err := milvus.Restore(ctx, target, objects, backupID)
		Expect(err).NotTo(HaveOccurred())

		Expect(report.Restored).To(ConsistOf("docs"))
		Expect(report.Degraded()).To(BeFalse())
		Expect(target.schemas).To(HaveKey("docs"))
		Expect(target.schemas["docs"].Fields).To(HaveLen(2))
		Expect(target.indexes["docs"]).To(HaveLen(1))
		Expect(target.dropped).To(BeEmpty())
	})

	It("drops an existing collection of the same name first", func() {
		target := newFakeStore()
		target.add(entity.NewSchema().WithName("docs").
			WithField(entity.NewField().
				WithName("old").
				WithDataType(entity.FieldTypeInt64).
				WithIsPrimaryKey(true)))

		report, err := milvus.Restore(ctx, target, objects, backupID)
		Expect(err).NotTo(HaveOccurred())
		Expect(target.dropped).To(ConsistOf("docs"))
		Expect(report.Restored).To(ConsistOf("docs"))

		// The restored schema replaced the old one wholesale.
		names := []string{}
		for _, field := range target.schemas["docs"].Fields {
			names = append(names, field.Name)
		}
		Expect(names).To(ConsistOf("id", "vec"))
	})

	It("degrades instead of failing on unrecognised field types", func() {
		backup := milvus.CollectionBackup{
			Name: "docs",
			Fields: []milvus.FieldBackup{
				{Name: "id", Type: "DataType.INT64", IsPrimary: true},
				{Name: "aux", Type: "DataType.HOLOGRAM_VECTOR"},
			},
		}
		data, err := json.Marshal(backup)
		Expect(err).NotTo(HaveOccurred())
		Expect(objects.Put(ctx, backupID+"/docs/schema.json", data)).To(Succeed())

		target := newFakeStore()
		report, err := milvus.Restore(ctx, target, objects, backupID)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Degraded()).To(BeTrue())
		Expect(report.SkippedFields).To(HaveKeyWithValue("docs", ConsistOf("aux")))
		Expect(target.schemas["docs"].Fields).To(HaveLen(1))
	})

	It("restores a collection whose backup has no index document", func() {
		schemaOnly := newMemObjects()
		Expect(schemaOnly.Put(ctx, "backup-1756500000/docs/schema.json",
			objects.objects[backupID+"/docs/schema.json"])).To(Succeed())

		target := newFakeStore()
		report, err := milvus.Restore(ctx, target, schemaOnly, "backup-1756500000")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Restored).To(ConsistOf("docs"))
		Expect(report.Degraded()).To(BeFalse())
		Expect(target.schemas).To(HaveKey("docs"))
		Expect(target.indexes["docs"]).To(BeEmpty())
	})

	It("records indexes that could not be recreated", func() {
		indexes := []milvus.IndexBackup{{Field: "vec", Name: "broken"}}
		data, err := json.Marshal(indexes)
		Expect(err).NotTo(HaveOccurred())
		Expect(objects.Put(ctx, backupID+"/docs/indexes.json", data)).To(Succeed())

		target := newFakeStore()
		report, err := milvus.Restore(ctx, target, objects, backupID)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Degraded()).To(BeTrue())
		Expect(report.FailedIndexes).To(HaveKeyWithValue("docs", ConsistOf("broken")))
	})

	It("fails on a backup with no collections", func() {
		_, err := milvus.Restore(ctx, newFakeStore(), newMemObjects(), backupID)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Verify", func() {
	It("reports collections missing from the cluster", func() {
		ctx := context.Background()
		objects := newMemObjects()
		backupID := milvus.NewBackupID(time.Now())

		source := newFakeStore()
		source.add(docsSchema())
		_, err := milvus.Backup(ctx, source, objects, backupID)
		Expect(err).NotTo(HaveOccurred())

		missing, err := milvus.Verify(ctx, newFakeStore(), objects, backupID)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(ConsistOf("docs"))

		missing, err = milvus.Verify(ctx, source, objects, backupID)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeEmpty())
	})
})
