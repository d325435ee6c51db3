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
	"time"

	"github.com/spf13/cobra"

	"github.com/largo-chat/cluster-ops/internal/aws"
	"github.com/largo-chat/cluster-ops/internal/milvus"
)

func backupCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Back up collection schemas and indexes to S3",
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
			if address == "" {
				address = cluster.Spec.Endpoint.Address()
			}

			bucket := backupBucket(cfg, cluster)
			objects := &aws.BackupStore{AWS: awsc, Bucket: bucket}
			if err := objects.EnsureBucket(ctx); err != nil {
				return err
			}
			store, err := milvus.Connect(ctx, address)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			backupID := milvus.NewBackupID(time.Now())
			collections, err := milvus.Backup(ctx, store, objects, backupID)
			if err != nil {
				return err
			}
			fmt.Printf("Backed up %d collections to s3://%s/%s/\n",
				len(collections), bucket, backupID)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "",
		"Milvus address (defaults to the endpoint in the cluster document)")
	return cmd
}

func init() {
	rootCmd.AddCommand(backupCmd())
}
