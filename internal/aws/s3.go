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

package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// BackupStore keeps backup manifests under an S3 bucket. It satisfies
// milvus.ObjectStore.
type BackupStore struct {
	AWS    *AWSClient
	S3     s3iface.S3API
	Bucket string
}

func (s *BackupStore) s3() s3iface.S3API {
	if s.S3 == nil {
		s.S3 = s3.New(s.AWS.sess)
	}
	return s.S3
}

// EnsureBucket creates the backup bucket when it does not exist.
func (s *BackupStore) EnsureBucket(ctx context.Context) error {
	log := log.FromContext(ctx)

	if _, err := s.s3().HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.Bucket),
	}); err == nil {
		return nil // Bucket exists.
	} else if aerr, ok := err.(awserr.Error); !ok ||
		(aerr.Code() != "NotFound" && aerr.Code() != s3.ErrCodeNoSuchBucket) {
		return err
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(s.Bucket),
	}
	// us-east-1 rejects an explicit location constraint.
	if region := s.AWS.Region(); region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &s3.CreateBucketConfiguration{
			LocationConstraint: aws.String(region),
		}
	}
	if _, err := s.s3().CreateBucketWithContext(ctx, input); err != nil {
		if aerr, ok := err.(awserr.Error); ok &&
			(aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou ||
				aerr.Code() == s3.ErrCodeBucketAlreadyExists) {
			return nil
		}
		return err
	}
	log.Info("Backup bucket created", "bucket", s.Bucket)
	return nil
}

func (s *BackupStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.s3().PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *BackupStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3().GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", s.Bucket, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *BackupStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.s3().ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, *obj.Key)
		}
		return true
	})
	return keys, err
}
