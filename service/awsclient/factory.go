// Package awsclient builds per-service AWS clients from caller-supplied
// credentials. Collectors depend on the narrow API interfaces defined
// here, never on concrete SDK clients.
package awsclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// HomeRegion is the canonical region used for region discovery and for
// account-global services.
const HomeRegion = "us-east-1"

const defaultHTTPTimeout = 30 * time.Second

// Credentials are plaintext AWS credentials scoped to one scan. The
// session token is empty for long-lived keys.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// ComputeAPI covers the EC2 calls the compute collectors use.
type ComputeAPI interface {
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
}

// ObjectStoreAPI covers the S3 calls the bucket collector uses.
type ObjectStoreAPI interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	GetBucketVersioning(ctx context.Context, params *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	GetPublicAccessBlock(ctx context.Context, params *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
}

// DatabaseAPI covers the RDS calls the database collector uses.
type DatabaseAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
}

// KeyManagementAPI covers the KMS calls the key collector uses.
type KeyManagementAPI interface {
	ListKeys(ctx context.Context, params *kms.ListKeysInput, optFns ...func(*kms.Options)) (*kms.ListKeysOutput, error)
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	GetKeyRotationStatus(ctx context.Context, params *kms.GetKeyRotationStatusInput, optFns ...func(*kms.Options)) (*kms.GetKeyRotationStatusOutput, error)
}

// IdentityAPI covers the IAM calls the identity collector uses.
type IdentityAPI interface {
	ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error)
	ListMFADevices(ctx context.Context, params *iam.ListMFADevicesInput, optFns ...func(*iam.Options)) (*iam.ListMFADevicesOutput, error)
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
}

// Factory constructs service clients for one credential set. One
// factory exists per scan; regions vary per call.
type Factory interface {
	Compute(ctx context.Context, region string) (ComputeAPI, error)
	ObjectStore(ctx context.Context, region string) (ObjectStoreAPI, error)
	Database(ctx context.Context, region string) (DatabaseAPI, error)
	KeyManagement(ctx context.Context, region string) (KeyManagementAPI, error)
	Identity(ctx context.Context) (IdentityAPI, error)
}

type factory struct {
	creds       Credentials
	httpTimeout time.Duration
}

// NewFactory creates a client factory for the supplied credentials.
func NewFactory(creds Credentials) Factory {
	return &factory{creds: creds, httpTimeout: defaultHTTPTimeout}
}

func (f *factory) config(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			f.creds.AccessKeyID, f.creds.SecretAccessKey, f.creds.SessionToken)),
		awsconfig.WithHTTPClient(&http.Client{Timeout: f.httpTimeout}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to build aws config for %s: %w", region, err)
	}
	return cfg, nil
}

func (f *factory) Compute(ctx context.Context, region string) (ComputeAPI, error) {
	cfg, err := f.config(ctx, region)
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(cfg), nil
}

func (f *factory) ObjectStore(ctx context.Context, region string) (ObjectStoreAPI, error) {
	cfg, err := f.config(ctx, region)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}

func (f *factory) Database(ctx context.Context, region string) (DatabaseAPI, error) {
	cfg, err := f.config(ctx, region)
	if err != nil {
		return nil, err
	}
	return rds.NewFromConfig(cfg), nil
}

func (f *factory) KeyManagement(ctx context.Context, region string) (KeyManagementAPI, error) {
	cfg, err := f.config(ctx, region)
	if err != nil {
		return nil, err
	}
	return kms.NewFromConfig(cfg), nil
}

// Identity is account-global; clients are always built in the home region.
func (f *factory) Identity(ctx context.Context) (IdentityAPI, error) {
	cfg, err := f.config(ctx, HomeRegion)
	if err != nil {
		return nil, err
	}
	return iam.NewFromConfig(cfg), nil
}
