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

func reconfigureLambdaCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "reconfigure-lambda",
		Short: "Point the chat Lambda at the cluster endpoint",
		Long: `Verify the secrets the function depends on, then rewrite its
MILVUS_HOST and MILVUS_PORT environment variables to the current
cluster endpoint. Without --endpoint the LoadBalancer address is
discovered from the release namespace.`,
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

			if endpoint == "" {
				kubec, err := kubeClient(cfg)
				if err != nil {
					return err
				}
				survey := &kube.Survey{Client: kubec}
				snapshot, err := survey.Namespace(ctx, cluster.Spec.Namespace)
				if err != nil {
					return err
				}
				endpoint = snapshot.ExternalEndpoint(cluster.Spec.Release)
				if endpoint == "" {
					endpoint = cluster.Spec.Endpoint.Address()
				}
			}
			cluster.Status.Endpoint = endpoint

			secrets := &aws.SecretReconciler{AWS: awsc}
			if err := secrets.Reconcile(ctx, &cluster.Spec.Lambda, &cluster.Status); err != nil {
				return fmt.Errorf("secret preflight: %w", err)
			}

			fn := &aws.LambdaReconciler{AWS: awsc}
			if err := fn.Reconcile(ctx, &cluster.Spec.Lambda, &cluster.Status); err != nil {
				return err
			}
			fmt.Printf("Function %s now targets %s\n",
				cluster.Spec.Lambda.FunctionName, endpoint)
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "",
		"Milvus endpoint to inject (defaults to the discovered LoadBalancer)")
	return cmd
}

func init() {
	rootCmd.AddCommand(reconfigureLambdaCmd())
}
