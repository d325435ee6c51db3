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
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
)

// AccessReconciler ensures the cluster-access IAM role exists and carries
// the policy needed to reach the EKS API. Creation is get-then-create;
// "already exists" is success, so a second run with identical inputs makes
// no additional create calls.
type AccessReconciler struct {
	AWS *AWSClient
	// Injectable for tests; defaults to a client on the AWS session.
	IAM iamiface.IAMAPI
	// EKS cluster the role grants access to
	ClusterName string
	// OIDC issuer host, set when the role trusts the cluster provider
	// instead of an IAM user
	OIDCProvider string
}

func (r *AccessReconciler) iam() iamiface.IAMAPI {
	if r.IAM == nil {
		r.IAM = iam.New(r.AWS.sess)
	}
	return r.IAM
}

func (r *AccessReconciler) Reconcile(ctx context.Context,
	spec *corev1alpha1.AccessSpec,
	status *corev1alpha1.MilvusClusterStatus) error {

	log := log.FromContext(ctx)

	trustDoc, err := r.trustDocument(ctx, spec)
	if err != nil {
		return err
	}

	role, err := ensureRole(ctx, r.iam(), spec.RoleName, trustDoc)
	if err != nil {
		log.Error(err, "Failed to reconcile IAM role", "role", spec.RoleName)
		return err
	}
	status.AWS.Role.Name = *role.RoleName
	status.AWS.Role.ARN = *role.Arn

	accountID, err := r.AWS.AccountID(ctx)
	if err != nil {
		return err
	}
	policyDoc, err := renderPolicy("cluster-access-policy.json", map[string]any{
		"accountID":   accountID,
		"clusterName": r.ClusterName,
	})
	if err != nil {
		return err
	}
	if err := ensureRolePolicy(ctx, r.iam(), spec.RoleName,
		spec.RoleName, policyDoc); err != nil {
		log.Error(err, "Failed to reconcile IAM role policy",
			"role", spec.RoleName)
		return err
	}

	return nil
}

func (r *AccessReconciler) trustDocument(ctx context.Context,
	spec *corev1alpha1.AccessSpec) (string, error) {

	if spec.UserARN != "" {
		return renderPolicy("trust-user.json", map[string]any{
			"userARN": spec.UserARN,
		})
	}

	if r.OIDCProvider == "" {
		return "", fmt.Errorf(
			"access spec names no trusted user and no OIDC provider is known for cluster %s",
			r.ClusterName)
	}
	accountID, err := r.AWS.AccountID(ctx)
	if err != nil {
		return "", err
	}
	return renderPolicy("trust-oidc.json", map[string]any{
		"accountID": accountID,
		"oidc": map[string]any{
			"provider": r.OIDCProvider,
		},
		"namespace":      "kube-system",
		"serviceAccount": "cluster-ops",
	})
}

// ensureRole returns the named role, creating it with the given trust
// document when it does not exist.
func ensureRole(ctx context.Context, svc iamiface.IAMAPI,
	roleName, trustDocument string) (*iam.Role, error) {

	log := log.FromContext(ctx)

	if role, err := svc.GetRoleWithContext(ctx, &iam.GetRoleInput{
		RoleName: &roleName,
	}); err == nil {
		return role.Role, nil // Role exists.
	} else if aerr, ok := err.(awserr.Error); ok {
		if aerr.Code() == iam.ErrCodeNoSuchEntityException {
			// Role does not exist. Continue.
			log.Info("Role does not exist", "role", roleName)
		} else {
			return nil, err
		}
	} else {
		return nil, err
	}

	if role, err := svc.CreateRoleWithContext(ctx, &iam.CreateRoleInput{
		RoleName:                 &roleName,
		Path:                     aws.String("/"),
		AssumeRolePolicyDocument: aws.String(trustDocument),
	}); err == nil {
		log.Info("Role created", "role", roleName)
		return role.Role, nil
	} else {
		return nil, err
	}
}

// ensureRolePolicy attaches the inline policy when it is not already
// present on the role.
func ensureRolePolicy(ctx context.Context, svc iamiface.IAMAPI,
	roleName, policyName, policyDocument string) error {

	log := log.FromContext(ctx)

	if _, err := svc.GetRolePolicyWithContext(ctx, &iam.GetRolePolicyInput{
		PolicyName: &policyName,
		RoleName:   &roleName,
	}); err == nil {
		return nil // Policy exists.
	} else if aerr, ok := err.(awserr.Error); ok {
		if aerr.Code() == iam.ErrCodeNoSuchEntityException {
			// Policy does not exist. Continue.
			log.Info("Policy does not exist", "policy", policyName,
				"role", roleName)
		} else {
			return err
		}
	} else {
		return err
	}

	if _, err := svc.PutRolePolicyWithContext(ctx, &iam.PutRolePolicyInput{
		PolicyDocument: aws.String(policyDocument),
		PolicyName:     &policyName,
		RoleName:       &roleName,
	}); err != nil {
		return err
	}
	log.Info("Policy created", "policy", policyName, "role", roleName)
	return nil
}
