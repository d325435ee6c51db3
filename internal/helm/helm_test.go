package helm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
)

func TestClusterValues(t *testing.T) {
	spec := &corev1alpha1.UpgradeSpec{
		Replicas: corev1alpha1.ReplicaSpec{
			Proxy:     2,
			QueryNode: 3,
			DataNode:  2,
			IndexNode: 2,
		},
		PersistenceSize: "100Gi",
		StorageClass:    "gp3",
		ExternalAccess:  true,
	}

	values := clusterValues(spec)
	assert.Contains(t, values, "cluster.enabled=true")
	assert.Contains(t, values, "proxy.replicas=2")
	assert.Contains(t, values, "queryNode.replicas=3")
	assert.Contains(t, values, "dataNode.replicas=2")
	assert.Contains(t, values, "indexNode.replicas=2")
	assert.Contains(t, values, "minio.persistence.size=100Gi")
	assert.Contains(t, values, "minio.persistence.storageClass=gp3")
	assert.Contains(t, values, "etcd.persistence.storageClass=gp3")
	assert.Contains(t, values, "service.type=LoadBalancer")
}

func TestClusterValuesZeroSpecKeepsChartDefaults(t *testing.T) {
	values := clusterValues(&corev1alpha1.UpgradeSpec{})
	assert.Equal(t, []string{"cluster.enabled=true"}, values,
		"unset fields must not override the chart")
}

func TestCheckInstalledMissingBinary(t *testing.T) {
	c := &Client{Binary: "definitely-not-helm-binary"}
	assert.Error(t, c.CheckInstalled())
}
