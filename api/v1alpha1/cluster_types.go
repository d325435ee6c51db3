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

package v1alpha1

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// MilvusCluster is the desired-state document for one Milvus deployment on
// EKS. It is loaded from a YAML file by the CLI; there is no control plane
// watching it.
type MilvusCluster struct {
	Spec   MilvusClusterSpec   `json:"spec,omitempty" yaml:"spec"`
	Status MilvusClusterStatus `json:"status,omitempty" yaml:"status,omitempty"`
}

// MilvusClusterSpec defines the desired state of the deployment
type MilvusClusterSpec struct {
	// Namespace the Milvus release lives in
	Namespace string `json:"namespace,omitempty" yaml:"namespace"`
	// Helm release name
	Release string `json:"release,omitempty" yaml:"release"`
	// Helm chart reference, e.g. milvus/milvus
	Chart string `json:"chart,omitempty" yaml:"chart"`
	// Milvus client endpoint
	Endpoint EndpointSpec `json:"endpoint,omitempty" yaml:"endpoint"`
	// Cluster access principals
	Access AccessSpec `json:"access,omitempty" yaml:"access"`
	// Load-balancer controller identity
	IRSA IRSASpec `json:"irsa,omitempty" yaml:"irsa"`
	// Backup destination
	Backup BackupSpec `json:"backup,omitempty" yaml:"backup"`
	// Cluster-mode upgrade parameters
	Upgrade UpgradeSpec `json:"upgrade,omitempty" yaml:"upgrade"`
	// Optional DNS alias for the provisioned endpoint
	DNS DNSSpec `json:"dns,omitempty" yaml:"dns,omitempty"`
	// Optional downstream chat Lambda to reconfigure
	Lambda LambdaSpec `json:"lambda,omitempty" yaml:"lambda,omitempty"`
}

type EndpointSpec struct {
	Host string `json:"host,omitempty" yaml:"host"`
	Port int    `json:"port,omitempty" yaml:"port"`
}

func (e EndpointSpec) Address() string {
	port := e.Port
	if port == 0 {
		port = 19530
	}
	return fmt.Sprintf("%s:%d", e.Host, port)
}

type BackupSpec struct {
	// S3 bucket holding backup manifests
	Bucket string `json:"bucket,omitempty" yaml:"bucket"`
}

type UpgradeSpec struct {
	// Replica counts per Milvus component
	Replicas ReplicaSpec `json:"replicas,omitempty" yaml:"replicas"`
	// Persistent volume size for each stateful component
	PersistenceSize string `json:"persistenceSize,omitempty" yaml:"persistenceSize"`
	// Kubernetes storage class backing the persistent volumes
	StorageClass string `json:"storageClass,omitempty" yaml:"storageClass"`
	// Expose the proxy through a LoadBalancer service
	ExternalAccess bool `json:"externalAccess,omitempty" yaml:"externalAccess"`
}

type ReplicaSpec struct {
	Proxy     int `json:"proxy,omitempty" yaml:"proxy"`
	QueryNode int `json:"queryNode,omitempty" yaml:"queryNode"`
	DataNode  int `json:"dataNode,omitempty" yaml:"dataNode"`
	IndexNode int `json:"indexNode,omitempty" yaml:"indexNode"`
}

type DNSSpec struct {
	// Route53 hosted zone the record is created in
	HostedZoneID string `json:"hostedZoneID,omitempty" yaml:"hostedZoneID"`
	// Fully qualified record name pointing at the endpoint
	Name string `json:"name,omitempty" yaml:"name"`
}

func (d DNSSpec) Enabled() bool {
	return d.HostedZoneID != "" && d.Name != ""
}

type LambdaSpec struct {
	// Function name or ARN of the chat Lambda
	FunctionName string `json:"functionName,omitempty" yaml:"functionName"`
	// Secrets Manager ARNs the function depends on, checked before
	// reconfiguration
	SecretARNs []string `json:"secretARNs,omitempty" yaml:"secretARNs,omitempty"`
}

// MilvusClusterStatus records the observed results of the last run
type MilvusClusterStatus struct {
	// AWS status
	AWS AWSStatus `json:"aws,omitempty" yaml:"aws,omitempty"`
	// Identifier of the most recent backup prefix
	BackupID string `json:"backupID,omitempty" yaml:"backupID,omitempty"`
	// Externally reachable endpoint, when provisioned
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// Load reads a MilvusCluster document from a YAML file.
func Load(path string) (*MilvusCluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cluster := &MilvusCluster{}
	if err := yaml.Unmarshal(data, cluster); err != nil {
		return nil, fmt.Errorf("parsing cluster document %s: %w", path, err)
	}
	return cluster, nil
}
