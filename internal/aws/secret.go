package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
)

type SecretReconciler struct {
	AWS     *AWSClient
	Secrets secretsmanageriface.SecretsManagerAPI
}

func (r *SecretReconciler) secrets() secretsmanageriface.SecretsManagerAPI {
	if r.Secrets == nil {
		r.Secrets = secretsmanager.New(r.AWS.sess)
	}
	return r.Secrets
}

// Reconcile verifies that every secret the chat function depends on is
// resolvable before the cluster is touched. A missing secret fails the
// preflight rather than surfacing later as a function error.
func (r *SecretReconciler) Reconcile(ctx context.Context,
	spec *corev1alpha1.LambdaSpec,
	status *corev1alpha1.MilvusClusterStatus) error {

	log := log.FromContext(ctx)

	for _, arn := range spec.SecretARNs {
		_, err := r.secrets().DescribeSecretWithContext(ctx, &secretsmanager.DescribeSecretInput{
			SecretId: aws.String(arn),
		})
		if err != nil {
			if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
				return fmt.Errorf("secret %s does not exist", arn)
			}
			return fmt.Errorf("failed to describe secret %s: %w", arn, err)
		}
		log.V(1).Info("Secret resolved", "SecretARN", arn)
	}
	return nil
}
