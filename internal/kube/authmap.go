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
	"strings"

	yaml "gopkg.in/yaml.v2"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	authMapName      = "aws-auth"
	authMapNamespace = "kube-system"
)

// RoleMapping is one mapRoles entry of the aws-auth ConfigMap. Field
// names follow the format EKS expects.
type RoleMapping struct {
	RoleARN  string   `yaml:"rolearn"`
	Username string   `yaml:"username"`
	Groups   []string `yaml:"groups"`
}

type AuthMapReconciler struct {
	client.Client
}

// Reconcile maps an IAM role into the cluster through the aws-auth
// ConfigMap. An entry for the same role ARN is rewritten in place;
// entries for other roles are preserved untouched.
func (r *AuthMapReconciler) Reconcile(ctx context.Context, mapping RoleMapping) error {
	log := log.FromContext(ctx)

	configMap := &corev1.ConfigMap{}
	key := client.ObjectKey{Name: authMapName, Namespace: authMapNamespace}
	if err := r.Get(ctx, key, configMap); err != nil {
		if !errors.IsNotFound(err) {
			log.Error(err, "Failed to get aws-auth ConfigMap")
			return err
		}
		configMap.Name = authMapName
		configMap.Namespace = authMapNamespace
		configMap.Data = map[string]string{}
		mapRoles, err := renderMapRoles([]RoleMapping{mapping})
		if err != nil {
			return err
		}
		configMap.Data["mapRoles"] = mapRoles
		if err := r.Create(ctx, configMap); err != nil {
			log.Error(err, "Failed to create aws-auth ConfigMap")
			return err
		}
		log.Info("aws-auth ConfigMap created", "rolearn", mapping.RoleARN)
		return nil
	}

	mappings, err := parseMapRoles(configMap.Data["mapRoles"])
	if err != nil {
		return err
	}
	updated, changed := upsertMapping(mappings, mapping)
	if !changed {
		return nil
	}
	mapRoles, err := renderMapRoles(updated)
	if err != nil {
		return err
	}
	if configMap.Data == nil {
		configMap.Data = map[string]string{}
	}
	configMap.Data["mapRoles"] = mapRoles
	if err := r.Update(ctx, configMap); err != nil {
		log.Error(err, "Failed to update aws-auth ConfigMap")
		return err
	}
	log.Info("aws-auth mapping updated", "rolearn", mapping.RoleARN,
		"username", mapping.Username)
	return nil
}

// EnsureGroupBinding binds a mapped group to a ClusterRole. Groups in
// the system: namespace already carry built-in bindings and are left
// alone.
func (r *AuthMapReconciler) EnsureGroupBinding(ctx context.Context,
	group, clusterRole string) error {

	log := log.FromContext(ctx)

	if strings.HasPrefix(group, "system:") {
		return nil
	}

	name := bindingName(group)
	binding := &rbacv1.ClusterRoleBinding{}
	if err := r.Get(ctx, client.ObjectKey{Name: name}, binding); err == nil {
		return nil
	} else if !errors.IsNotFound(err) {
		log.Error(err, "Failed to get ClusterRoleBinding", "name", name)
		return err
	}

	binding.Name = name
	binding.Subjects = []rbacv1.Subject{
		{
			Kind:     rbacv1.GroupKind,
			APIGroup: rbacv1.GroupName,
			Name:     group,
		},
	}
	binding.RoleRef = rbacv1.RoleRef{
		APIGroup: rbacv1.GroupName,
		Kind:     "ClusterRole",
		Name:     clusterRole,
	}
	if err := client.IgnoreAlreadyExists(r.Create(ctx, binding)); err != nil {
		log.Error(err, "Failed to create ClusterRoleBinding", "name", name)
		return err
	}
	log.Info("ClusterRoleBinding created", "name", name, "group", group)
	return nil
}

func parseMapRoles(data string) ([]RoleMapping, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var mappings []RoleMapping
	if err := yaml.Unmarshal([]byte(data), &mappings); err != nil {
		return nil, err
	}
	return mappings, nil
}

func renderMapRoles(mappings []RoleMapping) (string, error) {
	out, err := yaml.Marshal(mappings)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// upsertMapping replaces the entry with a matching role ARN, or appends
// when none matches. The second return is false when the entry was
// already up to date.
func upsertMapping(mappings []RoleMapping, mapping RoleMapping) ([]RoleMapping, bool) {
	for i, m := range mappings {
		if m.RoleARN != mapping.RoleARN {
			continue
		}
		if m.Username == mapping.Username && equalGroups(m.Groups, mapping.Groups) {
			return mappings, false
		}
		mappings[i] = mapping
		return mappings, true
	}
	return append(mappings, mapping), true
}

func equalGroups(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bindingName(group string) string {
	sanitized := strings.ToLower(strings.NewReplacer(":", "-", "/", "-").Replace(group))
	return "milvus-access-" + sanitized
}
