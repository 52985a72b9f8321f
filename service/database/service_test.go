package database

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"go.uber.org/zap"
)

type fakeDatabaseAPI struct {
	output *rds.DescribeDBInstancesOutput
	err    error
}

func (f *fakeDatabaseAPI) DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func TestListDatabases(t *testing.T) {
	api := &fakeDatabaseAPI{
		output: &rds.DescribeDBInstancesOutput{
			DBInstances: []types.DBInstance{
				{
					DBInstanceIdentifier:  aws.String("prod-db"),
					Engine:                aws.String("postgres"),
					EngineVersion:         aws.String("16.3"),
					StorageEncrypted:      aws.Bool(true),
					PubliclyAccessible:    aws.Bool(false),
					MultiAZ:               aws.Bool(true),
					DeletionProtection:    aws.Bool(true),
					BackupRetentionPeriod: aws.Int32(14),
					DBSubnetGroup:         &types.DBSubnetGroup{VpcId: aws.String("vpc-1")},
				},
				{
					DBInstanceIdentifier: aws.String("scratch-db"),
					Engine:               aws.String("mysql"),
					PubliclyAccessible:   aws.Bool(true),
				},
			},
		},
	}
	svc := NewService(api, zap.NewNop())

	databases, err := svc.ListDatabases(context.Background())
	if err != nil {
		t.Fatalf("ListDatabases failed: %v", err)
	}
	if len(databases) != 2 {
		t.Fatalf("expected 2 databases, got %d", len(databases))
	}

	prod := databases[0]
	if prod.InstanceID != "prod-db" || !prod.StorageEncrypted || prod.PubliclyAccessible {
		t.Errorf("unexpected prod database: %+v", prod)
	}
	if prod.BackupRetentionDays != 14 || prod.VpcID != "vpc-1" {
		t.Errorf("unexpected prod settings: %+v", prod)
	}

	scratch := databases[1]
	if !scratch.PubliclyAccessible || scratch.StorageEncrypted {
		t.Errorf("unexpected scratch database: %+v", scratch)
	}
	if scratch.VpcID != "" {
		t.Errorf("database without subnet group should have empty vpc, got %q", scratch.VpcID)
	}
}

func TestListDatabasesError(t *testing.T) {
	api := &fakeDatabaseAPI{err: errors.New("access denied")}
	svc := NewService(api, zap.NewNop())

	if _, err := svc.ListDatabases(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}
