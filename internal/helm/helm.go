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

// Package helm shells out to the helm binary. The chart owns pod
// topology and storage; this package only hands it values.
package helm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
)

type Client struct {
	// Binary overrides the helm executable path, for tests.
	Binary string
	// Kubeconfig is passed through with --kubeconfig when set.
	Kubeconfig string
	// Timeout bounds a single helm invocation.
	Timeout time.Duration
}

const defaultTimeout = 15 * time.Minute

func (c *Client) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return "helm"
}

// CheckInstalled verifies the helm binary is on PATH.
func (c *Client) CheckInstalled() error {
	if _, err := exec.LookPath(c.binary()); err != nil {
		return fmt.Errorf("helm binary not found: %w", err)
	}
	return nil
}

// UpgradeInstall converts the cluster document into chart values and
// runs `helm upgrade --install`. The --wait is deliberately omitted;
// readiness is polled separately with a bounded deadline.
func (c *Client) UpgradeInstall(ctx context.Context, spec *corev1alpha1.MilvusClusterSpec) error {
	args := []string{
		"upgrade", "--install", spec.Release, spec.Chart,
		"--namespace", spec.Namespace,
		"--create-namespace",
	}
	for _, value := range clusterValues(&spec.Upgrade) {
		args = append(args, "--set", value)
	}
	_, err := c.run(ctx, args...)
	return err
}

// Status returns the release status output, or an error when the
// release is missing.
func (c *Client) Status(ctx context.Context, namespace, release string) (string, error) {
	return c.run(ctx, "status", release, "--namespace", namespace)
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	log := log.FromContext(ctx)

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.Kubeconfig != "" {
		args = append(args, "--kubeconfig", c.Kubeconfig)
	}
	log.V(1).Info("Running helm", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		return "", fmt.Errorf("helm %s: %w: %s", args[0], err, detail)
	}
	return stdout.String(), nil
}

// clusterValues renders the values that flip the chart from standalone
// to distributed mode. Anything the document leaves zero keeps the
// chart default.
func clusterValues(spec *corev1alpha1.UpgradeSpec) []string {
	values := []string{
		"cluster.enabled=true",
	}
	replicas := map[string]int{
		"proxy":     spec.Replicas.Proxy,
		"queryNode": spec.Replicas.QueryNode,
		"dataNode":  spec.Replicas.DataNode,
		"indexNode": spec.Replicas.IndexNode,
	}
	for _, component := range []string{"proxy", "queryNode", "dataNode", "indexNode"} {
		if n := replicas[component]; n > 0 {
			values = append(values, fmt.Sprintf("%s.replicas=%d", component, n))
		}
	}
	if spec.PersistenceSize != "" {
		values = append(values,
			"minio.persistence.size="+spec.PersistenceSize)
	}
	if spec.StorageClass != "" {
		values = append(values,
			"minio.persistence.storageClass="+spec.StorageClass,
			"etcd.persistence.storageClass="+spec.StorageClass)
	}
	if spec.ExternalAccess {
		values = append(values, "service.type=LoadBalancer")
	}
	return values
}
