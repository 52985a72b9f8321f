// Package keymgmt collects customer-managed KMS key inventory for one
// region. AWS-managed keys are not reported.
package keymgmt

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
)

// Service is the interface for key inventory collection.
type Service interface {
	ListKeys(ctx context.Context) ([]model.EncryptionKey, error)
}

type service struct {
	client awsclient.KeyManagementAPI
	logger *zap.Logger
}

// NewService creates a new key inventory service.
func NewService(client awsclient.KeyManagementAPI, logger *zap.Logger) Service {
	return &service{client: client, logger: logger}
}

// ListKeys returns every customer-managed key in the region with its
// rotation status. Keys whose metadata cannot be described are skipped.
func (s *service) ListKeys(ctx context.Context) ([]model.EncryptionKey, error) {
	keys := []model.EncryptionKey{}

	paginator := kms.NewListKeysPaginator(s.client, &kms.ListKeysInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, entry := range page.Keys {
			keyID := aws.ToString(entry.KeyId)

			keyInfo, err := s.client.DescribeKey(ctx, &kms.DescribeKeyInput{
				KeyId: entry.KeyId,
			})
			if err != nil {
				s.logger.Warn("failed to describe key, skipping",
					zap.String("key_id", keyID), zap.Error(err))
				continue
			}
			metadata := keyInfo.KeyMetadata
			if metadata == nil || metadata.KeyManager == types.KeyManagerTypeAws {
				continue
			}

			created := ""
			if metadata.CreationDate != nil {
				created = metadata.CreationDate.UTC().Format(time.RFC3339)
			}

			keys = append(keys, model.EncryptionKey{
				KeyID:           keyID,
				KeyARN:          aws.ToString(metadata.Arn),
				KeyState:        string(metadata.KeyState),
				KeyUsage:        string(metadata.KeyUsage),
				Origin:          string(metadata.Origin),
				RotationEnabled: s.rotationEnabled(ctx, entry.KeyId),
				CreationDate:    created,
			})
		}
	}

	s.logger.Info("collected kms keys", zap.Int("count", len(keys)))
	return keys, nil
}

// Rotation status is unavailable for some key types; those read as not
// rotated.
func (s *service) rotationEnabled(ctx context.Context, keyID *string) bool {
	rotation, err := s.client.GetKeyRotationStatus(ctx, &kms.GetKeyRotationStatusInput{
		KeyId: keyID,
	})
	if err != nil {
		s.logger.Warn("failed to read key rotation status",
			zap.String("key_id", aws.ToString(keyID)), zap.Error(err))
		return false
	}
	return rotation.KeyRotationEnabled
}
