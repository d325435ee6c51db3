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

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
)

// roleARNAnnotation is how EKS pod identity webhooks find the role to
// assume for a pod running under the service account.
const roleARNAnnotation = "eks.amazonaws.com/role-arn"

type ServiceAccountReconciler struct {
	client.Client
}

// Reconcile creates the service account with the IRSA role annotation,
// or patches the annotation onto an existing account. Existing
// annotations from other controllers are preserved.
func (r *ServiceAccountReconciler) Reconcile(ctx context.Context,
	spec *corev1alpha1.IRSASpec,
	status *corev1alpha1.MilvusClusterStatus) error {

	log := log.FromContext(ctx)

	roleARN := status.AWS.IRSA.RoleARN
	serviceAccount := &corev1.ServiceAccount{}
	err := r.Get(ctx, client.ObjectKey{
		Name:      spec.ServiceAccount,
		Namespace: spec.Namespace},
		serviceAccount,
	)
	if err != nil {
		if !errors.IsNotFound(err) {
			log.Error(err, "Failed to get ServiceAccount", "name",
				spec.ServiceAccount, "namespace", spec.Namespace)
			return err
		}

		serviceAccount.Name = spec.ServiceAccount
		serviceAccount.Namespace = spec.Namespace
		serviceAccount.Annotations = map[string]string{roleARNAnnotation: roleARN}
		if err := r.Create(ctx, serviceAccount); err != nil {
			log.Error(err, "Failed to create ServiceAccount", "name",
				spec.ServiceAccount, "namespace", spec.Namespace)
			return err
		}
		log.Info("ServiceAccount created", "name", spec.ServiceAccount,
			"namespace", spec.Namespace)
		return nil
	}

	if serviceAccount.Annotations[roleARNAnnotation] == roleARN {
		return nil
	}
	if serviceAccount.Annotations == nil {
		serviceAccount.Annotations = map[string]string{}
	}
	serviceAccount.Annotations[roleARNAnnotation] = roleARN
	if err := r.Update(ctx, serviceAccount); err != nil {
		log.Error(err, "Failed to update ServiceAccount", "name",
			spec.ServiceAccount, "namespace", spec.Namespace)
		return err
	}
	log.Info("ServiceAccount annotated", "name", spec.ServiceAccount,
		"role", roleARN)
	return nil
}
