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
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/largo-chat/cluster-ops/internal/aws"
	"github.com/largo-chat/cluster-ops/internal/events"
	"github.com/largo-chat/cluster-ops/internal/helm"
	"github.com/largo-chat/cluster-ops/internal/kube"
	"github.com/largo-chat/cluster-ops/internal/milvus"
	"github.com/largo-chat/cluster-ops/internal/orchestrator"
	"github.com/largo-chat/cluster-ops/internal/poll"
)

func upgradeCmd() *cobra.Command {
	var (
		minNodes    int
		waitMinutes int
	)

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the standalone Milvus release to cluster mode",
		Long: `Run the full upgrade pipeline: survey cluster capacity, confirm the
plan, back up collection definitions to S3, upgrade the Helm release
to distributed mode, restore the collections onto the new cluster and
verify they all came back.

Declining the confirmation aborts the run before anything changes.`,
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

			helmClient := &helm.Client{Kubeconfig: cfg.Kubeconfig}
			if err := helmClient.CheckInstalled(); err != nil {
				return err
			}

			var notifier events.Notifier
			if cfg.PulsarURL != "" {
				eventsClient, err := events.NewEventsClient(cfg.PulsarURL,
					"cluster-ops-stages")
				if err != nil {
					return fmt.Errorf("connecting to pulsar: %w", err)
				}
				go eventsClient.Listen()
				defer eventsClient.Close()
				notifier = eventsClient
			}

			pipeline := &orchestrator.Pipeline{
				Cluster: cluster,
				Survey:  &kube.Survey{Client: kubec},
				Helm:    helmClient,
				Objects: &aws.BackupStore{AWS: awsc, Bucket: backupBucket(cfg, cluster)},
				Dial: func(ctx context.Context, address string) (milvus.Store, error) {
					return milvus.Connect(ctx, address)
				},
				Prompter: prompter(),
				Poll: poll.Spec{
					Interval: 10 * time.Second,
					MaxWait:  time.Duration(waitMinutes) * time.Minute,
				},
				MinNodes: minNodes,
			}

			runner := &orchestrator.Runner{
				Prompter: prompter(),
				Notifier: notifier,
			}
			result, runErr := runner.Run(ctx, pipeline.Stages())
			printRun(result)
			if runErr != nil {
				return runErr
			}
			if result.Outcome == orchestrator.Aborted {
				return nil
			}

			if cluster.Spec.DNS.Enabled() {
				dns := &aws.Route53Reconciler{AWS: awsc}
				if err := dns.Reconcile(ctx, &cluster.Spec.DNS, &cluster.Status); err != nil {
					// The cluster is up either way; DNS can be retried.
					fmt.Printf("Warning: DNS record not updated: %v\n", err)
				}
			}
			lambda := &aws.LambdaReconciler{AWS: awsc}
			if err := lambda.Reconcile(ctx, &cluster.Spec.Lambda, &cluster.Status); err != nil {
				// Same: the endpoint can be re-injected with
				// reconfigure-lambda once the function is reachable.
				fmt.Printf("Warning: Lambda not reconfigured: %v\n", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&minNodes, "min-nodes", 3,
		"Minimum ready nodes required for cluster mode (0 disables the check)")
	cmd.Flags().IntVar(&waitMinutes, "wait-minutes", 10,
		"How long to wait for the release pods after the upgrade")
	return cmd
}

func printRun(result *orchestrator.RunResult) {
	fmt.Printf("\nRun %s: %s\n", result.RunID, result.Outcome)
	for _, stage := range result.Stages {
		line := fmt.Sprintf("  %-16s %s", stage.Stage, stage.Outcome)
		if stage.Reason != "" {
			line += " (" + stage.Reason + ")"
		}
		fmt.Println(line)
		for _, warning := range stage.Warnings {
			fmt.Printf("    warning: %s\n", warning)
		}
	}
}

func init() {
	rootCmd.AddCommand(upgradeCmd())
}
