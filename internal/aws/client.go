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
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sts"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

type AWSConfig struct {
	AccountID string `yaml:"accountID"`
	Region    string `yaml:"region"`
}

type AWSClient struct {
	config AWSConfig
	sess   *session.Session
}

func (c *AWSClient) Initialise(config AWSConfig) error {
	c.config = config

	// Create a new session.
	if sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.Region),
	}); err == nil {
		c.sess = sess
		return nil
	} else {
		return fmt.Errorf("creating AWS session: %w", err)
	}
}

func (c *AWSClient) Enabled() bool {
	return c.sess != nil
}

func (c *AWSClient) Region() string {
	return c.config.Region
}

// AccountID returns the configured account ID, asking STS for it the first
// time when the config leaves it blank.
func (c *AWSClient) AccountID(ctx context.Context) (string, error) {
	if c.config.AccountID != "" {
		return c.config.AccountID, nil
	}

	identity, err := sts.New(c.sess).GetCallerIdentityWithContext(ctx,
		&sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("resolving account ID: %w", err)
	}
	c.config.AccountID = *identity.Account

	log.FromContext(ctx).Info("Resolved account ID from STS",
		"accountID", c.config.AccountID)
	return c.config.AccountID, nil
}
