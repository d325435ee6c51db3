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
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/eks"
	"github.com/aws/aws-sdk-go/service/eks/eksiface"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
)

// Root CA thumbprint EKS OIDC issuers present; IAM requires one even
// though it no longer verifies it for EKS.
const oidcThumbprint = "9e99a48a9960b14926bb7f3b02e22da2b0ab7280"

// IRSAReconciler establishes the OIDC trust chain that lets a cluster
// service account call AWS APIs: issuer discovery, provider registration,
// a role whose trust is scoped to the service-account subject claim, and
// the controller policy on that role.
type IRSAReconciler struct {
	AWS         *AWSClient
	IAM         iamiface.IAMAPI
	EKS         eksiface.EKSAPI
	ClusterName string
}

func (r *IRSAReconciler) iam() iamiface.IAMAPI {
	if r.IAM == nil {
		r.IAM = iam.New(r.AWS.sess)
	}
	return r.IAM
}

func (r *IRSAReconciler) eks() eksiface.EKSAPI {
	if r.EKS == nil {
		r.EKS = eks.New(r.AWS.sess)
	}
	return r.EKS
}

func (r *IRSAReconciler) Reconcile(ctx context.Context,
	spec *corev1alpha1.IRSASpec,
	status *corev1alpha1.MilvusClusterStatus) error {

	log := log.FromContext(ctx)

	issuer, err := r.ClusterIssuer(ctx)
	if err != nil {
		log.Error(err, "Failed to discover OIDC issuer",
			"cluster", r.ClusterName)
		return err
	}

	providerARN, err := r.reconcileProvider(ctx, issuer)
	if err != nil {
		log.Error(err, "Failed to reconcile OIDC provider", "issuer", issuer)
		return err
	}
	status.AWS.OIDCProviderARN = providerARN

	accountID, err := r.AWS.AccountID(ctx)
	if err != nil {
		return err
	}
	trustDoc, err := renderPolicy("trust-oidc.json", map[string]any{
		"accountID": accountID,
		"oidc": map[string]any{
			"provider": issuer,
		},
		"namespace":      spec.Namespace,
		"serviceAccount": spec.ServiceAccount,
	})
	if err != nil {
		return err
	}

	// The role must exist before the service account can be annotated
	// with its ARN; callers depend on that ordering.
	role, err := ensureRole(ctx, r.iam(), spec.RoleName, trustDoc)
	if err != nil {
		log.Error(err, "Failed to reconcile IRSA role", "role", spec.RoleName)
		return err
	}
	status.AWS.IRSA.RoleARN = *role.Arn

	policyDoc, err := renderPolicy("lb-controller-policy.json", nil)
	if err != nil {
		return err
	}
	policyName := spec.PolicyName
	if policyName == "" {
		policyName = spec.RoleName
	}
	if err := ensureRolePolicy(ctx, r.iam(), spec.RoleName,
		policyName, policyDoc); err != nil {
		log.Error(err, "Failed to reconcile IRSA role policy",
			"role", spec.RoleName)
		return err
	}

	return nil
}

// ClusterIssuer returns the cluster's OIDC issuer host (no scheme), the
// form IAM uses in provider ARNs and condition keys.
func (r *IRSAReconciler) ClusterIssuer(ctx context.Context) (string, error) {
	cluster, err := r.eks().DescribeClusterWithContext(ctx,
		&eks.DescribeClusterInput{
			Name: aws.String(r.ClusterName),
		})
	if err != nil {
		return "", err
	}
	if cluster.Cluster == nil || cluster.Cluster.Identity == nil ||
		cluster.Cluster.Identity.Oidc == nil ||
		cluster.Cluster.Identity.Oidc.Issuer == nil {
		return "", fmt.Errorf("cluster %s reports no OIDC issuer", r.ClusterName)
	}
	return strings.TrimPrefix(*cluster.Cluster.Identity.Oidc.Issuer, "https://"), nil
}

// reconcileProvider registers the issuer with IAM when no provider for it
// exists yet, and returns the provider ARN either way.
func (r *IRSAReconciler) reconcileProvider(ctx context.Context,
	issuer string) (string, error) {

	log := log.FromContext(ctx)

	providers, err := r.iam().ListOpenIDConnectProvidersWithContext(ctx,
		&iam.ListOpenIDConnectProvidersInput{})
	if err != nil {
		return "", err
	}
	for _, provider := range providers.OpenIDConnectProviderList {
		if strings.HasSuffix(*provider.Arn, "/"+issuer) ||
			strings.HasSuffix(*provider.Arn, issuer) {
			return *provider.Arn, nil // Provider exists.
		}
	}

	created, err := r.iam().CreateOpenIDConnectProviderWithContext(ctx,
		&iam.CreateOpenIDConnectProviderInput{
			Url:            aws.String("https://" + issuer),
			ClientIDList:   []*string{aws.String("sts.amazonaws.com")},
			ThumbprintList: []*string{aws.String(oidcThumbprint)},
		})
	if err != nil {
		return "", err
	}
	log.Info("OIDC provider created", "issuer", issuer,
		"arn", *created.OpenIDConnectProviderArn)
	return *created.OpenIDConnectProviderArn, nil
}
