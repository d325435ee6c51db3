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
	"github.com/largo-chat/cluster-ops/internal/milvus"
)

func verifyCmd() *cobra.Command {
	var (
		address  string
		backupID string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every backed-up collection exists on the cluster",
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

			objects := &aws.BackupStore{AWS: awsc, Bucket: backupBucket(cfg, cluster)}
			if backupID == "" {
				backupID, err = milvus.LatestBackupID(ctx, objects)
				if err != nil {
					return err
				}
			}

			store, err := milvus.Connect(ctx, address)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			missing, err := milvus.Verify(ctx, store, objects, backupID)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return fmt.Errorf("collections missing from %s: %v", address, missing)
			}
			fmt.Printf("All collections from %s present on %s\n", backupID, address)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "",
		"Milvus address (defaults to the endpoint in the cluster document)")
	cmd.Flags().StringVar(&backupID, "backup-id", "",
		"Backup to verify against (defaults to the most recent)")
	return cmd
}

func init() {
	rootCmd.AddCommand(verifyCmd())
}
