// Package compute collects EC2 instance, EBS volume and security group
// inventory for one region.
package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
)

// Service is the interface for compute inventory collection.
type Service interface {
	ListInstances(ctx context.Context) ([]model.ComputeInstance, error)
	ListVolumes(ctx context.Context) ([]model.BlockVolume, error)
	ListSecurityGroups(ctx context.Context) ([]model.NetworkRuleSet, error)
}

type service struct {
	client awsclient.ComputeAPI
	logger *zap.Logger
}

// NewService creates a new compute inventory service.
func NewService(client awsclient.ComputeAPI, logger *zap.Logger) Service {
	return &service{client: client, logger: logger}
}

// ListInstances returns every instance in the region with its IMDS
// classification. IMDSv2 is only counted when token use is required.
func (s *service) ListInstances(ctx context.Context) ([]model.ComputeInstance, error) {
	instances := []model.ComputeInstance{}

	paginator := ec2.NewDescribeInstancesPaginator(s.client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				state := ""
				if instance.State != nil {
					state = string(instance.State.Name)
				}
				instances = append(instances, model.ComputeInstance{
					InstanceID:  aws.ToString(instance.InstanceId),
					Name:        nameFromTags(instance.Tags, "Unnamed Instance"),
					PrivateIP:   stringOrNA(instance.PrivateIpAddress),
					PublicIP:    stringOrNA(instance.PublicIpAddress),
					State:       state,
					IMDSVersion: imdsVersion(instance.MetadataOptions),
				})
			}
		}
	}

	s.logger.Info("collected ec2 instances", zap.Int("count", len(instances)))
	return instances, nil
}

// ListVolumes returns every EBS volume in the region.
func (s *service) ListVolumes(ctx context.Context) ([]model.BlockVolume, error) {
	volumes := []model.BlockVolume{}

	paginator := ec2.NewDescribeVolumesPaginator(s.client, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, volume := range page.Volumes {
			created := ""
			if volume.CreateTime != nil {
				created = volume.CreateTime.UTC().Format(time.RFC3339)
			}
			attached := ""
			if len(volume.Attachments) > 0 {
				attached = aws.ToString(volume.Attachments[0].InstanceId)
			}
			volumes = append(volumes, model.BlockVolume{
				VolumeID:           aws.ToString(volume.VolumeId),
				Name:               nameFromTags(volume.Tags, "Unnamed Volume"),
				CreateTime:         created,
				SizeGiB:            aws.ToInt32(volume.Size),
				State:              string(volume.State),
				Encrypted:          aws.ToBool(volume.Encrypted),
				AttachedInstanceID: attached,
			})
		}
	}

	s.logger.Info("collected ebs volumes", zap.Int("count", len(volumes)))
	return volumes, nil
}

// ListSecurityGroups returns every security group with its world-open
// inbound rules called out.
func (s *service) ListSecurityGroups(ctx context.Context) ([]model.NetworkRuleSet, error) {
	groups := []model.NetworkRuleSet{}

	paginator := ec2.NewDescribeSecurityGroupsPaginator(s.client, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, sg := range page.SecurityGroups {
			vpcID := aws.ToString(sg.VpcId)
			if vpcID == "" {
				vpcID = "Default"
			}
			groups = append(groups, model.NetworkRuleSet{
				GroupID:           aws.ToString(sg.GroupId),
				GroupName:         aws.ToString(sg.GroupName),
				Description:       aws.ToString(sg.Description),
				VpcID:             vpcID,
				RiskyInboundRules: riskyInboundRules(sg.IpPermissions),
				InboundRuleCount:  len(sg.IpPermissions),
				OutboundRuleCount: len(sg.IpPermissionsEgress),
			})
		}
	}

	s.logger.Info("collected security groups", zap.Int("count", len(groups)))
	return groups, nil
}

func riskyInboundRules(permissions []types.IpPermission) []model.RiskyRule {
	var risky []model.RiskyRule
	for _, rule := range permissions {
		for _, ipRange := range rule.IpRanges {
			if aws.ToString(ipRange.CidrIp) != "0.0.0.0/0" {
				continue
			}
			risky = append(risky, model.RiskyRule{
				Protocol:  aws.ToString(rule.IpProtocol),
				PortRange: fmt.Sprintf("%s-%s", portLabel(rule.FromPort), portLabel(rule.ToPort)),
				Source:    "0.0.0.0/0",
			})
		}
	}
	return risky
}

func portLabel(port *int32) string {
	if port == nil {
		return "All"
	}
	return fmt.Sprintf("%d", *port)
}

func imdsVersion(opts *types.InstanceMetadataOptionsResponse) string {
	if opts != nil && opts.HttpTokens == types.HttpTokensStateRequired {
		return model.IMDSv2
	}
	return model.IMDSv1
}

func stringOrNA(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

func nameFromTags(tags []types.Tag, fallback string) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return fallback
}
