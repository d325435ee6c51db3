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

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

// Config is the operator-environment configuration, assembled once at
// startup and passed explicitly to every operation. Nothing else in the
// repo reads ambient environment state.
type Config struct {
	AWS struct {
		AccountID string `yaml:"accountID"`
		Region    string `yaml:"region" validate:"required"`
	} `yaml:"aws"`
	// EKS cluster the tool operates against
	ClusterName string `yaml:"clusterName" validate:"required"`
	// Path to a kubeconfig; empty selects the default loading rules
	Kubeconfig string `yaml:"kubeconfig"`
	Milvus     struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"milvus"`
	Backup struct {
		Bucket string `yaml:"bucket" validate:"required"`
	} `yaml:"backup"`
	// Optional event bus; empty disables publishing
	PulsarURL string `yaml:"pulsarURL"`
}

func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}

// MergeEnvFile fills config gaps from a flat KEY=VALUE file (the lambda/.env
// layout the deployment already maintains). Keys the config does not know are
// ignored, and fields the YAML already set keep their value.
func (c *Config) MergeEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		c.apply(strings.TrimSpace(key), strings.Trim(strings.TrimSpace(value), `"`))
	}
	return scanner.Err()
}

func (c *Config) apply(key, value string) {
	switch key {
	case "AWS_REGION":
		fillString(&c.AWS.Region, value)
	case "AWS_ACCOUNT_ID":
		fillString(&c.AWS.AccountID, value)
	case "EKS_CLUSTER_NAME":
		fillString(&c.ClusterName, value)
	case "MILVUS_BUCKET_NAME":
		fillString(&c.Backup.Bucket, value)
	case "MILVUS_HOST":
		fillString(&c.Milvus.Host, value)
	case "MILVUS_PORT":
		if c.Milvus.Port != 0 {
			return
		}
		if port, err := strconv.Atoi(value); err == nil {
			c.Milvus.Port = port
		}
	case "PULSAR_URL":
		fillString(&c.PulsarURL, value)
	}
}

func fillString(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// Validate reports all missing required fields at once. A config that does
// not validate aborts the command before any external call is made.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var missing []string
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				missing = append(missing, fe.Namespace())
			}
			return fmt.Errorf("missing required configuration: %s",
				strings.Join(missing, ", "))
		}
		return err
	}
	return nil
}
