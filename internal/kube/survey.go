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
	"strings"

	corev1 "k8s.io/api/core/v1"
	storagev1 "k8s.io/api/storage/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Survey answers the read-only questions the pipeline asks about the
// cluster before and after the upgrade.
type Survey struct {
	client.Client
}

// Snapshot is the state of a release namespace at one point in time.
type Snapshot struct {
	Pods     []corev1.Pod
	Services []corev1.Service
	Claims   []corev1.PersistentVolumeClaim
}

func (s *Survey) NodeCount(ctx context.Context) (int, error) {
	nodes := &corev1.NodeList{}
	if err := s.List(ctx, nodes); err != nil {
		return 0, err
	}
	ready := 0
	for _, node := range nodes.Items {
		for _, cond := range node.Status.Conditions {
			if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
				ready++
				break
			}
		}
	}
	return ready, nil
}

func (s *Survey) HasStorageClass(ctx context.Context, name string) (bool, error) {
	sc := &storagev1.StorageClass{}
	if err := s.Get(ctx, client.ObjectKey{Name: name}, sc); err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Survey) Namespace(ctx context.Context, name string) (*Snapshot, error) {
	snapshot := &Snapshot{}
	inNamespace := client.InNamespace(name)

	pods := &corev1.PodList{}
	if err := s.List(ctx, pods, inNamespace); err != nil {
		return nil, err
	}
	snapshot.Pods = pods.Items

	services := &corev1.ServiceList{}
	if err := s.List(ctx, services, inNamespace); err != nil {
		return nil, err
	}
	snapshot.Services = services.Items

	claims := &corev1.PersistentVolumeClaimList{}
	if err := s.List(ctx, claims, inNamespace); err != nil {
		return nil, err
	}
	snapshot.Claims = claims.Items

	return snapshot, nil
}

// PodsReady reports whether every pod carrying the release label is
// running with all containers ready. The second return lists the pods
// still pending, for operator-facing messages.
func (snap *Snapshot) PodsReady(release string) (bool, []string) {
	var pending []string
	for _, pod := range snap.Pods {
		if release != "" && pod.Labels["app.kubernetes.io/instance"] != release {
			continue
		}
		if !podReady(&pod) {
			pending = append(pending, pod.Name)
		}
	}
	return len(pending) == 0, pending
}

// ExternalEndpoint finds the LoadBalancer address exposed for the
// release proxy. Empty when no ingress has been provisioned yet.
func (snap *Snapshot) ExternalEndpoint(release string) string {
	for _, svc := range snap.Services {
		if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
			continue
		}
		if release != "" && svc.Labels["app.kubernetes.io/instance"] != release {
			continue
		}
		for _, ingress := range svc.Status.LoadBalancer.Ingress {
			host := ingress.Hostname
			if host == "" {
				host = ingress.IP
			}
			if host == "" {
				continue
			}
			for _, port := range svc.Spec.Ports {
				if strings.Contains(port.Name, "milvus") || port.Port == 19530 {
					return fmt.Sprintf("%s:%d", host, port.Port)
				}
			}
			return host
		}
	}
	return ""
}

func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
