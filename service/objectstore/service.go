// Package objectstore collects S3 bucket inventory. Bucket listing is
// account-global; each bucket is attributed to its home region.
package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
)

const encryptionNotFoundCode = "ServerSideEncryptionConfigurationNotFoundError"

// Service is the interface for bucket inventory collection.
type Service interface {
	ListBuckets(ctx context.Context, region string) ([]model.StorageBucket, error)
}

type service struct {
	client awsclient.ObjectStoreAPI
	logger *zap.Logger
}

// NewService creates a new bucket inventory service.
func NewService(client awsclient.ObjectStoreAPI, logger *zap.Logger) Service {
	return &service{client: client, logger: logger}
}

// ListBuckets returns the buckets homed in the given region. Per-bucket
// attribute lookups degrade individually: a failed lookup downgrades the
// attribute rather than failing the whole listing.
func (s *service) ListBuckets(ctx context.Context, region string) ([]model.StorageBucket, error) {
	listing, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}

	buckets := []model.StorageBucket{}
	for _, bucket := range listing.Buckets {
		name := aws.ToString(bucket.Name)

		bucketRegion, err := s.bucketRegion(ctx, name)
		if err != nil {
			s.logger.Warn("failed to resolve bucket region, skipping bucket",
				zap.String("bucket", name), zap.Error(err))
			continue
		}
		if bucketRegion != region {
			continue
		}

		created := ""
		if bucket.CreationDate != nil {
			created = bucket.CreationDate.UTC().Format(time.RFC3339)
		}

		buckets = append(buckets, model.StorageBucket{
			Name:              name,
			CreationDate:      created,
			Region:            bucketRegion,
			VersioningEnabled: s.versioningEnabled(ctx, name),
			EncryptionEnabled: s.encryptionEnabled(ctx, name),
			PublicAccessBlock: s.publicAccessBlock(ctx, name),
		})
	}

	s.logger.Info("collected s3 buckets",
		zap.String("region", region), zap.Int("count", len(buckets)))
	return buckets, nil
}

// An empty LocationConstraint means us-east-1.
func (s *service) bucketRegion(ctx context.Context, name string) (string, error) {
	location, err := s.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		return "", err
	}
	if location.LocationConstraint == "" {
		return awsclient.HomeRegion, nil
	}
	return string(location.LocationConstraint), nil
}

func (s *service) versioningEnabled(ctx context.Context, name string) bool {
	versioning, err := s.client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{
		Bucket: aws.String(name),
	})
	if err != nil {
		s.logger.Warn("failed to read bucket versioning",
			zap.String("bucket", name), zap.Error(err))
		return false
	}
	return versioning.Status == types.BucketVersioningStatusEnabled
}

func (s *service) encryptionEnabled(ctx context.Context, name string) bool {
	_, err := s.client.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{
		Bucket: aws.String(name),
	})
	if err == nil {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == encryptionNotFoundCode {
		return false
	}
	s.logger.Warn("failed to read bucket encryption",
		zap.String("bucket", name), zap.Error(err))
	return false
}

// A missing configuration returns nil, which reads as no block at all.
func (s *service) publicAccessBlock(ctx context.Context, name string) *model.PublicAccessBlock {
	pab, err := s.client.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{
		Bucket: aws.String(name),
	})
	if err != nil || pab.PublicAccessBlockConfiguration == nil {
		return nil
	}
	cfg := pab.PublicAccessBlockConfiguration
	return &model.PublicAccessBlock{
		BlockPublicAcls:       aws.ToBool(cfg.BlockPublicAcls),
		IgnorePublicAcls:      aws.ToBool(cfg.IgnorePublicAcls),
		BlockPublicPolicy:     aws.ToBool(cfg.BlockPublicPolicy),
		RestrictPublicBuckets: aws.ToBool(cfg.RestrictPublicBuckets),
	}
}
