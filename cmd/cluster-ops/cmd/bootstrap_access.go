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

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/largo-chat/cluster-ops/internal/aws"
	"github.com/largo-chat/cluster-ops/internal/kube"
)

func bootstrapAccessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap-access",
		Short: "Grant an IAM principal access to the EKS cluster",
		Long: `Create the access role trusted by the operator's IAM user, attach a
policy allowing it to reach the EKS API, and map the role into the
cluster through the aws-auth ConfigMap with the configured username
and groups.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cluster, err := loadCluster()
			if err != nil {
				return err
			}
			awsc, err := awsClient(cfg)
			if err != nil {
				return err
			}
			kubec, err := kubeClient(cfg)
			if err != nil {
				return err
			}

			access := &aws.AccessReconciler{
				AWS:         awsc,
				ClusterName: cfg.ClusterName,
			}
			if cluster.Spec.Access.UserARN == "" {
				// No trusted user named; the role trusts the cluster
				// OIDC provider instead.
				irsa := &aws.IRSAReconciler{AWS: awsc, ClusterName: cfg.ClusterName}
				issuer, err := irsa.ClusterIssuer(ctx)
				if err != nil {
					return fmt.Errorf("discovering cluster OIDC issuer: %w", err)
				}
				access.OIDCProvider = issuer
			}
			if err := access.Reconcile(ctx, &cluster.Spec.Access, &cluster.Status); err != nil {
				return fmt.Errorf("reconciling access role: %w", err)
			}

			authMap := &kube.AuthMapReconciler{Client: kubec}
			mapping := kube.RoleMapping{
				RoleARN:  cluster.Status.AWS.Role.ARN,
				Username: cluster.Spec.Access.Username,
				Groups:   cluster.Spec.Access.Groups,
			}
			if err := authMap.Reconcile(ctx, mapping); err != nil {
				return fmt.Errorf("reconciling aws-auth mapping: %w", err)
			}
			for _, group := range cluster.Spec.Access.Groups {
				if err := authMap.EnsureGroupBinding(ctx, group, "cluster-admin"); err != nil {
					return fmt.Errorf("binding group %s: %w", group, err)
				}
			}

			fmt.Printf("Access role %s mapped as %s\n",
				cluster.Status.AWS.Role.ARN, cluster.Spec.Access.Username)
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(bootstrapAccessCmd())
}
