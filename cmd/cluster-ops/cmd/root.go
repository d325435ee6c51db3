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

// Package cmd provides the CLI commands for cluster-ops.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
	"github.com/largo-chat/cluster-ops/internal/aws"
	"github.com/largo-chat/cluster-ops/internal/config"
	"github.com/largo-chat/cluster-ops/internal/kube"
	"github.com/largo-chat/cluster-ops/internal/orchestrator"
)

var (
	configPath  string
	envFilePath string
	clusterPath string
	assumeYes   bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "cluster-ops",
	Short: "Operate the Milvus cluster behind largo-chat",
	Long: `cluster-ops automates the lifecycle of the Milvus deployment on EKS:
granting cluster access, wiring IRSA, and carrying a standalone release
to cluster mode with collection definitions backed up to S3 and
restored afterwards.

Destructive commands describe their plan and ask for confirmation
before changing anything (use --yes to skip).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ctrl.SetLogger(zap.New(zap.UseDevMode(verbose)))
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml",
		"Path to the operator configuration file")
	rootCmd.PersistentFlags().StringVar(&envFilePath, "env-file", "",
		"Optional .env file merged over the configuration")
	rootCmd.PersistentFlags().StringVar(&clusterPath, "cluster-file", "cluster.yaml",
		"Path to the MilvusCluster document")
	rootCmd.PersistentFlags().BoolVar(&assumeYes, "yes", false,
		"Skip confirmation prompts (use with caution)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false,
		"Enable verbose logging")
}

// loadConfig layers the .env file over the YAML configuration and
// validates the result before anything talks to AWS or the cluster.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if err := cfg.Load(configPath); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", configPath, err)
	}
	if envFilePath != "" {
		if err := cfg.MergeEnvFile(envFilePath); err != nil {
			return nil, fmt.Errorf("merging env file %s: %w", envFilePath, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadCluster() (*corev1alpha1.MilvusCluster, error) {
	cluster, err := corev1alpha1.Load(clusterPath)
	if err != nil {
		return nil, fmt.Errorf("loading cluster document %s: %w", clusterPath, err)
	}
	return cluster, nil
}

func awsClient(cfg *config.Config) (*aws.AWSClient, error) {
	client := &aws.AWSClient{}
	if err := client.Initialise(aws.AWSConfig{
		AccountID: cfg.AWS.AccountID,
		Region:    cfg.AWS.Region,
	}); err != nil {
		return nil, fmt.Errorf("initialising AWS session: %w", err)
	}
	return client, nil
}

func kubeClient(cfg *config.Config) (client.Client, error) {
	c, err := kube.NewClient(cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes client: %w", err)
	}
	return c, nil
}

// backupBucket resolves the backup destination: the cluster document
// wins, the environment-derived configuration is the fallback.
func backupBucket(cfg *config.Config, cluster *corev1alpha1.MilvusCluster) string {
	if cluster.Spec.Backup.Bucket != "" {
		return cluster.Spec.Backup.Bucket
	}
	return cfg.Backup.Bucket
}

func prompter() *orchestrator.TerminalPrompter {
	return &orchestrator.TerminalPrompter{
		In:        os.Stdin,
		Out:       os.Stdout,
		AssumeYes: assumeYes,
	}
}
