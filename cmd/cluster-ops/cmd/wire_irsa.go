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

func wireIRSACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wire-irsa",
		Short: "Wire IAM Roles for Service Accounts for the load balancer controller",
		Long: `Register the cluster's OIDC issuer with IAM, create the role trusted
by the controller's service account, annotate the service account, and
restart the controller deployment so its pods assume the role.`,
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

			irsa := &aws.IRSAReconciler{
				AWS:         awsc,
				ClusterName: cfg.ClusterName,
			}
			if err := irsa.Reconcile(ctx, &cluster.Spec.IRSA, &cluster.Status); err != nil {
				return fmt.Errorf("reconciling IRSA role: %w", err)
			}

			if err := kube.EnsureNamespace(ctx, kubec, cluster.Spec.IRSA.Namespace); err != nil {
				return err
			}
			serviceAccount := &kube.ServiceAccountReconciler{Client: kubec}
			if err := serviceAccount.Reconcile(ctx, &cluster.Spec.IRSA, &cluster.Status); err != nil {
				return fmt.Errorf("reconciling service account: %w", err)
			}

			rollout := &kube.RolloutReconciler{Client: kubec}
			if err := rollout.Reconcile(ctx, &cluster.Spec.IRSA, &cluster.Status); err != nil {
				return fmt.Errorf("restarting deployment: %w", err)
			}

			fmt.Printf("Service account %s/%s now assumes %s\n",
				cluster.Spec.IRSA.Namespace, cluster.Spec.IRSA.ServiceAccount,
				cluster.Status.AWS.IRSA.RoleARN)
			if !cluster.Status.AWS.IRSA.RolloutComplete {
				fmt.Println("Rollout still in progress; pods will pick up the role as they restart")
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(wireIRSACmd())
}
