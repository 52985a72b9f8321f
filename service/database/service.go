// Package database collects RDS instance inventory for one region.
package database

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
)

// Service is the interface for database inventory collection.
type Service interface {
	ListDatabases(ctx context.Context) ([]model.DatabaseInstance, error)
}

type service struct {
	client awsclient.DatabaseAPI
	logger *zap.Logger
}

// NewService creates a new database inventory service.
func NewService(client awsclient.DatabaseAPI, logger *zap.Logger) Service {
	return &service{client: client, logger: logger}
}

// ListDatabases returns every RDS instance in the region.
func (s *service) ListDatabases(ctx context.Context) ([]model.DatabaseInstance, error) {
	databases := []model.DatabaseInstance{}

	paginator := rds.NewDescribeDBInstancesPaginator(s.client, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, db := range page.DBInstances {
			vpcID := ""
			if db.DBSubnetGroup != nil {
				vpcID = aws.ToString(db.DBSubnetGroup.VpcId)
			}
			databases = append(databases, model.DatabaseInstance{
				InstanceID:          aws.ToString(db.DBInstanceIdentifier),
				Engine:              aws.ToString(db.Engine),
				EngineVersion:       aws.ToString(db.EngineVersion),
				StorageEncrypted:    db.StorageEncrypted != nil && *db.StorageEncrypted,
				PubliclyAccessible:  db.PubliclyAccessible != nil && *db.PubliclyAccessible,
				MultiAZ:             db.MultiAZ != nil && *db.MultiAZ,
				DeletionProtection:  db.DeletionProtection != nil && *db.DeletionProtection,
				BackupRetentionDays: aws.ToInt32(db.BackupRetentionPeriod),
				VpcID:               vpcID,
			})
		}
	}

	s.logger.Info("collected rds databases", zap.Int("count", len(databases)))
	return databases, nil
}
