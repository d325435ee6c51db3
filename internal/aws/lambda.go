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
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
)

// LambdaReconciler points the chat function at the cluster endpoint by
// rewriting its environment. No update is issued when the environment
// already matches.
type LambdaReconciler struct {
	AWS    *AWSClient
	Lambda lambdaiface.LambdaAPI
}

func (r *LambdaReconciler) lambda() lambdaiface.LambdaAPI {
	if r.Lambda == nil {
		r.Lambda = lambda.New(r.AWS.sess)
	}
	return r.Lambda
}

func (r *LambdaReconciler) Reconcile(ctx context.Context, spec *corev1alpha1.LambdaSpec,
	status *corev1alpha1.MilvusClusterStatus) error {

	log := log.FromContext(ctx)

	if spec.FunctionName == "" {
		return nil
	}
	host, port, err := splitEndpoint(status.Endpoint)
	if err != nil {
		return err
	}

	conf, err := r.lambda().GetFunctionConfigurationWithContext(ctx,
		&lambda.GetFunctionConfigurationInput{
			FunctionName: aws.String(spec.FunctionName),
		})
	if err != nil {
		return fmt.Errorf("describing function %s: %w", spec.FunctionName, err)
	}

	env := map[string]*string{}
	if conf.Environment != nil {
		for k, v := range conf.Environment.Variables {
			env[k] = v
		}
	}
	want := map[string]*string{
		"MILVUS_HOST": aws.String(host),
		"MILVUS_PORT": aws.String(port),
	}
	if mapsEqual(env, want) {
		return nil
	}
	for k, v := range want {
		env[k] = v
	}

	_, err = r.lambda().UpdateFunctionConfigurationWithContext(ctx,
		&lambda.UpdateFunctionConfigurationInput{
			FunctionName: aws.String(spec.FunctionName),
			Environment:  &lambda.Environment{Variables: env},
		})
	if err != nil {
		return fmt.Errorf("updating function %s: %w", spec.FunctionName, err)
	}
	log.Info("Lambda environment updated", "function", spec.FunctionName, "host", host)
	return nil
}

// mapsEqual reports whether every entry of want is present in env with
// the same value. Extra entries in env are ignored.
func mapsEqual(env, want map[string]*string) bool {
	for k, v := range want {
		cur, ok := env[k]
		if !ok || cur == nil || v == nil || *cur != *v {
			return false
		}
	}
	return true
}

func splitEndpoint(endpoint string) (host, port string, err error) {
	if endpoint == "" {
		return "", "", fmt.Errorf("cluster endpoint not recorded; run upgrade first")
	}
	host = endpoint
	port = "19530"
	for i := len(endpoint) - 1; i >= 0; i-- {
		if endpoint[i] == ':' {
			host, port = endpoint[:i], endpoint[i+1:]
			break
		}
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", fmt.Errorf("malformed endpoint %q", endpoint)
	}
	return host, port, nil
}
