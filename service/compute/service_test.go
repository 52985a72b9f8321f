package compute

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
)

type fakeComputeAPI struct {
	instances *ec2.DescribeInstancesOutput
	volumes   *ec2.DescribeVolumesOutput
	groups    *ec2.DescribeSecurityGroupsOutput
	err       error
}

func (f *fakeComputeAPI) DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	return &ec2.DescribeRegionsOutput{}, f.err
}

func (f *fakeComputeAPI) DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.instances, nil
}

func (f *fakeComputeAPI) DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.volumes, nil
}

func (f *fakeComputeAPI) DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.groups, nil
}

func TestListInstancesClassifiesIMDS(t *testing.T) {
	api := &fakeComputeAPI{
		instances: &ec2.DescribeInstancesOutput{
			Reservations: []types.Reservation{{
				Instances: []types.Instance{
					{
						InstanceId:       aws.String("i-0001"),
						PrivateIpAddress: aws.String("10.0.0.5"),
						State:            &types.InstanceState{Name: types.InstanceStateNameRunning},
						Tags:             []types.Tag{{Key: aws.String("Name"), Value: aws.String("web-1")}},
						MetadataOptions:  &types.InstanceMetadataOptionsResponse{HttpTokens: types.HttpTokensStateRequired},
					},
					{
						InstanceId:      aws.String("i-0002"),
						State:           &types.InstanceState{Name: types.InstanceStateNameStopped},
						MetadataOptions: &types.InstanceMetadataOptionsResponse{HttpTokens: types.HttpTokensStateOptional},
					},
					{
						InstanceId: aws.String("i-0003"),
						State:      &types.InstanceState{Name: types.InstanceStateNameRunning},
					},
				},
			}},
		},
	}
	svc := NewService(api, zap.NewNop())

	instances, err := svc.ListInstances(context.Background())
	if err != nil {
		t.Fatalf("ListInstances failed: %v", err)
	}
	if len(instances) != 3 {
		t.Fatalf("expected 3 instances, got %d", len(instances))
	}

	first := instances[0]
	if first.IMDSVersion != model.IMDSv2 {
		t.Errorf("instance with required tokens classified %s, want %s", first.IMDSVersion, model.IMDSv2)
	}
	if first.Name != "web-1" {
		t.Errorf("expected Name tag, got %q", first.Name)
	}
	if first.PublicIP != "N/A" {
		t.Errorf("missing public ip should read N/A, got %q", first.PublicIP)
	}

	if instances[1].IMDSVersion != model.IMDSv1 {
		t.Errorf("instance with optional tokens classified %s, want %s", instances[1].IMDSVersion, model.IMDSv1)
	}
	if instances[1].Name != "Unnamed Instance" {
		t.Errorf("untagged instance name = %q", instances[1].Name)
	}
	if instances[2].IMDSVersion != model.IMDSv1 {
		t.Errorf("instance without metadata options classified %s, want %s", instances[2].IMDSVersion, model.IMDSv1)
	}
}

func TestListInstancesError(t *testing.T) {
	api := &fakeComputeAPI{err: errors.New("throttled")}
	svc := NewService(api, zap.NewNop())

	if _, err := svc.ListInstances(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestListVolumes(t *testing.T) {
	api := &fakeComputeAPI{
		volumes: &ec2.DescribeVolumesOutput{
			Volumes: []types.Volume{
				{
					VolumeId:  aws.String("vol-0001"),
					Size:      aws.Int32(100),
					State:     types.VolumeStateInUse,
					Encrypted: aws.Bool(true),
					Attachments: []types.VolumeAttachment{
						{InstanceId: aws.String("i-0001")},
					},
				},
				{
					VolumeId:  aws.String("vol-0002"),
					Size:      aws.Int32(8),
					State:     types.VolumeStateAvailable,
					Encrypted: aws.Bool(false),
				},
			},
		},
	}
	svc := NewService(api, zap.NewNop())

	volumes, err := svc.ListVolumes(context.Background())
	if err != nil {
		t.Fatalf("ListVolumes failed: %v", err)
	}
	if len(volumes) != 2 {
		t.Fatalf("expected 2 volumes, got %d", len(volumes))
	}
	if !volumes[0].Encrypted || volumes[0].AttachedInstanceID != "i-0001" {
		t.Errorf("unexpected first volume: %+v", volumes[0])
	}
	if volumes[1].Encrypted {
		t.Errorf("second volume should be unencrypted")
	}
	if volumes[1].Name != "Unnamed Volume" {
		t.Errorf("untagged volume name = %q", volumes[1].Name)
	}
}

func TestListSecurityGroupsFlagsWorldOpenRules(t *testing.T) {
	api := &fakeComputeAPI{
		groups: &ec2.DescribeSecurityGroupsOutput{
			SecurityGroups: []types.SecurityGroup{
				{
					GroupId:   aws.String("sg-0001"),
					GroupName: aws.String("web"),
					VpcId:     aws.String("vpc-1"),
					IpPermissions: []types.IpPermission{
						{
							IpProtocol: aws.String("tcp"),
							FromPort:   aws.Int32(22),
							ToPort:     aws.Int32(22),
							IpRanges:   []types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
						},
						{
							IpProtocol: aws.String("tcp"),
							FromPort:   aws.Int32(443),
							ToPort:     aws.Int32(443),
							IpRanges:   []types.IpRange{{CidrIp: aws.String("10.0.0.0/8")}},
						},
					},
				},
				{
					GroupId:   aws.String("sg-0002"),
					GroupName: aws.String("all-protocols"),
					IpPermissions: []types.IpPermission{
						{
							IpProtocol: aws.String("-1"),
							IpRanges:   []types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
						},
					},
				},
			},
		},
	}
	svc := NewService(api, zap.NewNop())

	groups, err := svc.ListSecurityGroups(context.Background())
	if err != nil {
		t.Fatalf("ListSecurityGroups failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	if len(groups[0].RiskyInboundRules) != 1 {
		t.Fatalf("expected 1 risky rule, got %d", len(groups[0].RiskyInboundRules))
	}
	rule := groups[0].RiskyInboundRules[0]
	if rule.PortRange != "22-22" || rule.Source != "0.0.0.0/0" {
		t.Errorf("unexpected risky rule: %+v", rule)
	}
	if groups[0].InboundRuleCount != 2 {
		t.Errorf("inbound rule count = %d, want 2", groups[0].InboundRuleCount)
	}

	if groups[1].VpcID != "Default" {
		t.Errorf("missing vpc should read Default, got %q", groups[1].VpcID)
	}
	if got := groups[1].RiskyInboundRules[0].PortRange; got != "All-All" {
		t.Errorf("all-ports rule range = %q, want All-All", got)
	}
}
