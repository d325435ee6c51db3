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

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
	"github.com/largo-chat/cluster-ops/internal/helm"
	"github.com/largo-chat/cluster-ops/internal/kube"
	"github.com/largo-chat/cluster-ops/internal/milvus"
	"github.com/largo-chat/cluster-ops/internal/poll"
)

// BackupBucket is object storage that can bootstrap itself.
type BackupBucket interface {
	milvus.ObjectStore
	EnsureBucket(ctx context.Context) error
}

// Dialer opens a Milvus connection to an address. Injected so the
// pipeline can be run against fakes.
type Dialer func(ctx context.Context, address string) (milvus.Store, error)

// Pipeline carries a standalone Milvus release to cluster mode:
// survey, confirm, back up definitions, upgrade the chart, restore,
// verify.
type Pipeline struct {
	Cluster  *corev1alpha1.MilvusCluster
	Survey   *kube.Survey
	Helm     *helm.Client
	Objects  BackupBucket
	Dial     Dialer
	Prompter Prompter
	Poll     poll.Spec

	// MinNodes is the node count below which the resource check
	// warns. Zero means the check only surveys.
	MinNodes int
}

func (p *Pipeline) Stages() []Stage {
	return []Stage{
		{Name: "check-resources", Class: Advisory, Run: p.checkResources},
		{Name: "confirm", Class: Critical, Run: p.confirm},
		{Name: "backup", Class: Gated, Run: p.backup},
		{Name: "upgrade", Class: Critical, Run: p.upgrade},
		{Name: "restore", Class: Gated, Run: p.restore},
		{Name: "verify", Class: Advisory, Run: p.verify},
	}
}

func (p *Pipeline) checkResources(ctx context.Context) ([]string, error) {
	spec := &p.Cluster.Spec

	nodes, err := p.Survey.NodeCount(ctx)
	if err != nil {
		return nil, err
	}
	if p.MinNodes > 0 && nodes < p.MinNodes {
		return nil, fmt.Errorf("%d ready nodes, cluster mode needs at least %d",
			nodes, p.MinNodes)
	}

	var warnings []string
	if spec.Upgrade.StorageClass != "" {
		ok, err := p.Survey.HasStorageClass(ctx, spec.Upgrade.StorageClass)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("storage class %q not found", spec.Upgrade.StorageClass)
		}
	}

	snapshot, err := p.Survey.Namespace(ctx, spec.Namespace)
	if err != nil {
		return nil, err
	}
	if ready, pending := snapshot.PodsReady(spec.Release); !ready {
		warnings = append(warnings, fmt.Sprintf(
			"release pods not all ready before upgrade: %v", pending))
	}
	return warnings, nil
}

func (p *Pipeline) confirm(ctx context.Context) ([]string, error) {
	spec := &p.Cluster.Spec
	proceed, err := p.Prompter.Confirm(fmt.Sprintf(
		"Upgrade release %q in namespace %q to cluster mode? "+
			"Collections will be dropped and restored from backup",
		spec.Release, spec.Namespace))
	if err != nil {
		return nil, err
	}
	if !proceed {
		return nil, ErrDeclined
	}
	return nil, nil
}

func (p *Pipeline) backup(ctx context.Context) ([]string, error) {
	logger := log.FromContext(ctx)
	spec := &p.Cluster.Spec

	if err := p.Objects.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	store, err := p.Dial(ctx, spec.Endpoint.Address())
	if err != nil {
		return nil, err
	}
	defer store.Close(ctx)

	backupID := milvus.NewBackupID(time.Now())
	collections, err := milvus.Backup(ctx, store, p.Objects, backupID)
	if err != nil {
		return nil, err
	}
	p.Cluster.Status.BackupID = backupID
	logger.Info("Backup complete", "backupID", backupID,
		"collections", len(collections))

	if len(collections) == 0 {
		return []string{"no collections found to back up"}, nil
	}
	return nil, nil
}

func (p *Pipeline) upgrade(ctx context.Context) ([]string, error) {
	spec := &p.Cluster.Spec

	if err := p.Helm.UpgradeInstall(ctx, spec); err != nil {
		return nil, err
	}

	var warnings []string
	err := poll.Until(ctx, p.Poll, func(ctx context.Context) (bool, error) {
		snapshot, err := p.Survey.Namespace(ctx, spec.Namespace)
		if err != nil {
			return false, err
		}
		ready, _ := snapshot.PodsReady(spec.Release)
		return ready, nil
	})
	if err != nil {
		// The deployment keeps converging on its own; restore is
		// attempted regardless and verify reports the state.
		warnings = append(warnings, fmt.Sprintf("rollout still in progress: %v", err))
	}

	snapshot, err := p.Survey.Namespace(ctx, spec.Namespace)
	if err != nil {
		return warnings, err
	}
	if endpoint := snapshot.ExternalEndpoint(spec.Release); endpoint != "" {
		p.Cluster.Status.Endpoint = endpoint
	} else {
		p.Cluster.Status.Endpoint = spec.Endpoint.Address()
	}
	return warnings, nil
}

func (p *Pipeline) restore(ctx context.Context) ([]string, error) {
	status := &p.Cluster.Status

	if status.BackupID == "" {
		return nil, fmt.Errorf("no backup recorded for this run")
	}
	store, err := p.Dial(ctx, status.Endpoint)
	if err != nil {
		return nil, err
	}
	defer store.Close(ctx)

	report, err := milvus.Restore(ctx, store, p.Objects, status.BackupID)
	if err != nil {
		return nil, err
	}
	var warnings []string
	for collection, fields := range report.SkippedFields {
		warnings = append(warnings, fmt.Sprintf(
			"collection %s restored without fields %v", collection, fields))
	}
	for collection, indexes := range report.FailedIndexes {
		warnings = append(warnings, fmt.Sprintf(
			"collection %s missing indexes %v", collection, indexes))
	}
	return warnings, nil
}

func (p *Pipeline) verify(ctx context.Context) ([]string, error) {
	logger := log.FromContext(ctx)
	spec := &p.Cluster.Spec
	status := &p.Cluster.Status

	snapshot, err := p.Survey.Namespace(ctx, spec.Namespace)
	if err != nil {
		return nil, err
	}
	logger.Info("Release resources after upgrade",
		"pods", len(snapshot.Pods),
		"services", len(snapshot.Services),
		"claims", len(snapshot.Claims))

	var warnings []string
	if endpoint := snapshot.ExternalEndpoint(spec.Release); endpoint != "" {
		status.Endpoint = endpoint
		logger.Info("External endpoint provisioned", "endpoint", endpoint)
	} else if spec.Upgrade.ExternalAccess {
		warnings = append(warnings,
			"no external endpoint provisioned for the release yet")
	}

	store, err := p.Dial(ctx, status.Endpoint)
	if err != nil {
		return warnings, err
	}
	defer store.Close(ctx)

	missing, err := milvus.Verify(ctx, store, p.Objects, status.BackupID)
	if err != nil {
		return warnings, err
	}
	if len(missing) > 0 {
		return warnings, fmt.Errorf("collections missing after restore: %v", missing)
	}
	return warnings, nil
}
