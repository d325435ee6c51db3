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

package kube

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
	"github.com/largo-chat/cluster-ops/internal/poll"
)

const restartedAtAnnotation = "kubectl.kubernetes.io/restartedAt"

type RolloutReconciler struct {
	client.Client
	Poll poll.Spec
}

// Reconcile restarts the deployment named in the IRSA spec so its pods
// pick up the freshly annotated service account, then waits for the
// rollout. A rollout that does not finish in time is recorded in the
// status but not treated as an error; the deployment converges on its
// own.
func (r *RolloutReconciler) Reconcile(ctx context.Context,
	spec *corev1alpha1.IRSASpec,
	status *corev1alpha1.MilvusClusterStatus) error {

	log := log.FromContext(ctx)

	if spec.Deployment == "" {
		return nil
	}
	key := client.ObjectKey{Name: spec.Deployment, Namespace: spec.Namespace}
	deployment := &appsv1.Deployment{}
	if err := r.Get(ctx, key, deployment); err != nil {
		if errors.IsNotFound(err) {
			log.Info("Deployment not found, skipping restart",
				"name", spec.Deployment, "namespace", spec.Namespace)
			return nil
		}
		return err
	}

	if deployment.Spec.Template.Annotations == nil {
		deployment.Spec.Template.Annotations = map[string]string{}
	}
	deployment.Spec.Template.Annotations[restartedAtAnnotation] =
		time.Now().UTC().Format(time.RFC3339)
	if err := r.Update(ctx, deployment); err != nil {
		log.Error(err, "Failed to restart deployment", "name", spec.Deployment)
		return err
	}
	log.Info("Deployment restart requested", "name", spec.Deployment)

	err := poll.Until(ctx, r.Poll, func(ctx context.Context) (bool, error) {
		current := &appsv1.Deployment{}
		if err := r.Get(ctx, key, current); err != nil {
			return false, err
		}
		return deploymentReady(current), nil
	})
	if err != nil {
		log.Info("Rollout did not complete in time", "name", spec.Deployment,
			"error", fmt.Sprint(err))
		status.AWS.IRSA.RolloutComplete = false
		return nil
	}
	status.AWS.IRSA.RolloutComplete = true
	return nil
}

func deploymentReady(d *appsv1.Deployment) bool {
	want := int32(1)
	if d.Spec.Replicas != nil {
		want = *d.Spec.Replicas
	}
	return d.Status.ObservedGeneration >= d.Generation &&
		d.Status.UpdatedReplicas == want &&
		d.Status.ReadyReplicas == want
}
