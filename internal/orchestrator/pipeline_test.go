package orchestrator_test

import (
	"context"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/milvus-io/milvus/client/v2/entity"
	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
	"github.com/largo-chat/cluster-ops/internal/helm"
	"github.com/largo-chat/cluster-ops/internal/kube"
	"github.com/largo-chat/cluster-ops/internal/milvus"
	"github.com/largo-chat/cluster-ops/internal/orchestrator"
	"github.com/largo-chat/cluster-ops/internal/poll"
)

// fakeBucket is an in-memory BackupBucket that records whether the
// bucket was ever touched.
type fakeBucket struct {
	objects   map[string][]byte
	ensured   bool
	ensureErr error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (b *fakeBucket) EnsureBucket(ctx context.Context) error {
	if b.ensureErr != nil {
		return b.ensureErr
	}
	b.ensured = true
	return nil
}

func (b *fakeBucket) Put(ctx context.Context, key string, data []byte) error {
	b.objects[key] = data
	return nil
}

func (b *fakeBucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (b *fakeBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// fakeMilvus is a minimal in-memory Store shared by the standalone and
// cluster endpoints of the test pipeline.
type fakeMilvus struct {
	schemas map[string]*entity.Schema
	indexes map[string][]milvus.IndexBackup
	drops   int
	dials   int
}

func newFakeMilvus() *fakeMilvus {
	return &fakeMilvus{
		schemas: map[string]*entity.Schema{},
		indexes: map[string][]milvus.IndexBackup{},
	}
}

func (f *fakeMilvus) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	for name := range f.schemas {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeMilvus) HasCollection(ctx context.Context, name string) (bool, error) {
	_, ok := f.schemas[name]
	return ok, nil
}

func (f *fakeMilvus) DescribeCollection(ctx context.Context, name string) (*entity.Schema, error) {
	schema, ok := f.schemas[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	return schema, nil
}

func (f *fakeMilvus) Indexes(ctx context.Context, collection string) ([]milvus.IndexBackup, error) {
	return f.indexes[collection], nil
}

func (f *fakeMilvus) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	f.schemas[schema.CollectionName] = schema
	return nil
}

func (f *fakeMilvus) DropCollection(ctx context.Context, name string) error {
	delete(f.schemas, name)
	f.drops++
	return nil
}

func (f *fakeMilvus) CreateIndex(ctx context.Context, collection string, backup milvus.IndexBackup) error {
	f.indexes[collection] = append(f.indexes[collection], backup)
	return nil
}

func (f *fakeMilvus) Close(ctx context.Context) error { return nil }

func readyNode(name string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func readyPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "milvus",
			Labels:    map[string]string{"app.kubernetes.io/instance": "milvus"},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func lbService(hostname string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "milvus-proxy",
			Namespace: "milvus",
			Labels:    map[string]string{"app.kubernetes.io/instance": "milvus"},
		},
		Spec: corev1.ServiceSpec{
			Type:  corev1.ServiceTypeLoadBalancer,
			Ports: []corev1.ServicePort{{Name: "milvus", Port: 19530}},
		},
		Status: corev1.ServiceStatus{
			LoadBalancer: corev1.LoadBalancerStatus{
				Ingress: []corev1.LoadBalancerIngress{{Hostname: hostname}},
			},
		},
	}
}

var _ = Describe("Pipeline", func() {
	var (
		cluster  *corev1alpha1.MilvusCluster
		bucket   *fakeBucket
		instance *fakeMilvus
		kubec    client.Client
		pipeline *orchestrator.Pipeline
		prompter *scriptedPrompter
		runner   *orchestrator.Runner
	)

	BeforeEach(func() {
		cluster = &corev1alpha1.MilvusCluster{
			Spec: corev1alpha1.MilvusClusterSpec{
				Namespace: "milvus",
				Release:   "milvus",
				Chart:     "milvus/milvus",
				Endpoint:  corev1alpha1.EndpointSpec{Host: "localhost", Port: 19530},
				Upgrade: corev1alpha1.UpgradeSpec{
					StorageClass: "gp3",
				},
			},
		}
		bucket = newFakeBucket()
		instance = newFakeMilvus()
		instance.schemas["docs"] = entity.NewSchema().
			WithName("docs").
			WithField(entity.NewField().
				WithName("id").
				WithDataType(entity.FieldTypeInt64).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().
				WithName("vec").
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(128))

		kubec = fake.NewClientBuilder().
			WithScheme(scheme.Scheme).
			WithObjects(
				readyNode("a"), readyNode("b"), readyNode("c"),
				readyPod("milvus-proxy-0"),
				&storagev1.StorageClass{ObjectMeta: metav1.ObjectMeta{Name: "gp3"}},
			).
			Build()

		prompter = &scriptedPrompter{answer: true}
		pipeline = &orchestrator.Pipeline{
			Cluster: cluster,
			Survey:  &kube.Survey{Client: kubec},
			// `true` accepts any arguments and does nothing, standing
			// in for the helm binary.
			Helm:    &helm.Client{Binary: "true"},
			Objects: bucket,
			Dial: func(ctx context.Context, address string) (milvus.Store, error) {
				instance.dials++
				return instance, nil
			},
			Prompter: prompter,
			Poll:     poll.Spec{Interval: 1, MaxWait: 1},
			MinNodes: 3,
		}
		runner = &orchestrator.Runner{Prompter: prompter}
	})

	It("carries a standalone release to cluster mode end to end", func() {
		result, err := runner.Run(context.Background(), pipeline.Stages())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Succeeded))

		Expect(cluster.Status.BackupID).To(HavePrefix("backup-"))
		Expect(bucket.objects).To(HaveKey(
			cluster.Status.BackupID + "/docs/schema.json"))
		Expect(instance.drops).To(Equal(1),
			"the standalone collection is dropped before restore")
		Expect(instance.schemas).To(HaveKey("docs"))
		Expect(cluster.Status.Endpoint).NotTo(BeEmpty())
	})

	It("makes no changes when the operator declines", func() {
		prompter.answer = false

		result, err := runner.Run(context.Background(), pipeline.Stages())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Aborted))

		Expect(bucket.ensured).To(BeFalse())
		Expect(bucket.objects).To(BeEmpty())
		Expect(instance.dials).To(BeZero())
		Expect(instance.drops).To(BeZero())
		Expect(cluster.Status.BackupID).To(BeEmpty())
	})

	It("warns but proceeds when the cluster is too small", func() {
		pipeline.MinNodes = 5

		result, err := runner.Run(context.Background(), pipeline.Stages())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Warned))
		Expect(result.Stages[0].Outcome).To(Equal(orchestrator.Warned))
		Expect(result.Stages[0].Reason).To(ContainSubstring("ready nodes"))
		Expect(result.Stages).To(HaveLen(6),
			"an undersized cluster never blocks the upgrade")
		Expect(cluster.Status.BackupID).To(HavePrefix("backup-"))
	})

	It("reports the provisioned LoadBalancer endpoint", func() {
		cluster.Spec.Upgrade.ExternalAccess = true
		Expect(kubec.Create(context.Background(),
			lbService("lb.eu-west-2.elb.amazonaws.com"))).To(Succeed())

		result, err := runner.Run(context.Background(), pipeline.Stages())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Succeeded))
		Expect(cluster.Status.Endpoint).To(
			Equal("lb.eu-west-2.elb.amazonaws.com:19530"))
	})

	It("warns when no external endpoint has been provisioned yet", func() {
		cluster.Spec.Upgrade.ExternalAccess = true

		result, err := runner.Run(context.Background(), pipeline.Stages())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Warned))
		verify := result.Stages[len(result.Stages)-1]
		Expect(verify.Outcome).To(Equal(orchestrator.Warned))
		Expect(verify.Reason).To(ContainSubstring("external endpoint"))
		Expect(cluster.Status.Endpoint).To(Equal("localhost:19530"),
			"the declared address stands in until the LoadBalancer appears")
	})

	It("continues past a failed backup when the operator accepts the risk", func() {
		bucket.ensureErr = fmt.Errorf("access denied")

		result, err := runner.Run(context.Background(), pipeline.Stages())
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(orchestrator.Warned))
		Expect(result.Stages).To(HaveLen(6))
		Expect(cluster.Status.BackupID).To(BeEmpty())
		Expect(instance.drops).To(BeZero(),
			"nothing is dropped without a backup to restore from")
		// confirm, then the backup gate, then the restore gate
		Expect(prompter.prompts).To(HaveLen(3))
	})
})
