// Package identity collects IAM user inventory. IAM is account-global,
// so this collector runs once per scan in the home region.
package identity

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
)

// Service is the interface for identity inventory collection.
type Service interface {
	ListUsers(ctx context.Context) ([]model.IdentityUser, error)
}

type service struct {
	client awsclient.IdentityAPI
	logger *zap.Logger
}

// NewService creates a new identity inventory service.
func NewService(client awsclient.IdentityAPI, logger *zap.Logger) Service {
	return &service{client: client, logger: logger}
}

// ListUsers returns every IAM user with MFA enrollment and active access
// key counts. Per-user lookups degrade individually.
func (s *service) ListUsers(ctx context.Context) ([]model.IdentityUser, error) {
	users := []model.IdentityUser{}

	paginator := iam.NewListUsersPaginator(s.client, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, user := range page.Users {
			userName := aws.ToString(user.UserName)

			created := ""
			if user.CreateDate != nil {
				created = user.CreateDate.UTC().Format(time.RFC3339)
			}
			passwordLastUsed := "Never"
			if user.PasswordLastUsed != nil {
				passwordLastUsed = user.PasswordLastUsed.UTC().Format(time.RFC3339)
			}

			users = append(users, model.IdentityUser{
				UserName:         userName,
				UserID:           aws.ToString(user.UserId),
				ARN:              aws.ToString(user.Arn),
				CreateDate:       created,
				PasswordLastUsed: passwordLastUsed,
				HasMFA:           s.hasMFA(ctx, userName),
				ActiveAccessKeys: s.activeAccessKeys(ctx, userName),
			})
		}
	}

	s.logger.Info("collected iam users", zap.Int("count", len(users)))
	return users, nil
}

func (s *service) hasMFA(ctx context.Context, userName string) bool {
	mfaDevices, err := s.client.ListMFADevices(ctx, &iam.ListMFADevicesInput{
		UserName: aws.String(userName),
	})
	if err != nil {
		s.logger.Warn("failed to list mfa devices",
			zap.String("user", userName), zap.Error(err))
		return false
	}
	return len(mfaDevices.MFADevices) > 0
}

func (s *service) activeAccessKeys(ctx context.Context, userName string) int {
	accessKeys, err := s.client.ListAccessKeys(ctx, &iam.ListAccessKeysInput{
		UserName: aws.String(userName),
	})
	if err != nil {
		s.logger.Warn("failed to list access keys",
			zap.String("user", userName), zap.Error(err))
		return 0
	}
	active := 0
	for _, key := range accessKeys.AccessKeyMetadata {
		if key.Status == types.StatusTypeActive {
			active++
		}
	}
	return active
}
