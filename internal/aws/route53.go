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
	"github.com/aws/aws-sdk-go/service/route53"
	"github.com/aws/aws-sdk-go/service/route53/route53iface"
	"sigs.k8s.io/controller-runtime/pkg/log"

	corev1alpha1 "github.com/largo-chat/cluster-ops/api/v1alpha1"
)

type Route53Reconciler struct {
	AWS     *AWSClient
	Route53 route53iface.Route53API
}

func (r *Route53Reconciler) route53() route53iface.Route53API {
	if r.Route53 == nil {
		r.Route53 = route53.New(r.AWS.sess)
	}
	return r.Route53
}

// Reconcile upserts a CNAME for the cluster endpoint so clients keep a
// stable name across reinstalls of the chart.
func (r *Route53Reconciler) Reconcile(ctx context.Context,
	spec *corev1alpha1.DNSSpec,
	status *corev1alpha1.MilvusClusterStatus) error {

	log := log.FromContext(ctx)

	if !spec.Enabled() {
		return nil
	}
	target, _, err := splitEndpoint(status.Endpoint)
	if err != nil {
		return err
	}

	_, err = r.route53().ChangeResourceRecordSetsWithContext(ctx, r.changeInput(
		route53.ChangeActionUpsert, spec.Name, spec.HostedZoneID, target))
	if err != nil {
		log.Error(err, "Failed to upsert Route53 record", "Name", spec.Name)
		return err
	}
	log.Info("Route53 record upserted", "Name", spec.Name, "Target", target)
	return nil
}

func (r *Route53Reconciler) Teardown(ctx context.Context,
	spec *corev1alpha1.DNSSpec,
	status *corev1alpha1.MilvusClusterStatus) error {

	log := log.FromContext(ctx)

	if !spec.Enabled() {
		return nil
	}
	target, _, err := splitEndpoint(status.Endpoint)
	if err != nil {
		return err
	}

	_, err = r.route53().ChangeResourceRecordSetsWithContext(ctx, r.changeInput(
		route53.ChangeActionDelete, spec.Name, spec.HostedZoneID, target))
	if err != nil {
		log.Error(err, "Failed to delete Route53 record", "Name", spec.Name)
		return err
	}
	return nil
}

func (r *Route53Reconciler) changeInput(action, name, zoneID,
	target string) *route53.ChangeResourceRecordSetsInput {

	return &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &route53.ChangeBatch{
			Comment: aws.String(fmt.Sprintf("milvus endpoint %s", action)),
			Changes: []*route53.Change{
				{
					Action: aws.String(action),
					ResourceRecordSet: &route53.ResourceRecordSet{
						Name: aws.String(name),
						Type: aws.String(route53.RRTypeCname),
						TTL:  aws.Int64(300),
						ResourceRecords: []*route53.ResourceRecord{
							{Value: aws.String(target)},
						},
					},
				},
			},
		},
	}
}
