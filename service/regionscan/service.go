// Package regionscan runs every collector against a single region and
// assembles the per-region result bundle.
package regionscan

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
	"github.com/thirukguru/perimeter-api/service/compute"
	"github.com/thirukguru/perimeter-api/service/database"
	"github.com/thirukguru/perimeter-api/service/identity"
	"github.com/thirukguru/perimeter-api/service/keymgmt"
	"github.com/thirukguru/perimeter-api/service/objectstore"
)

// Service is the interface for scanning one region.
type Service interface {
	ScanRegion(ctx context.Context, region string) model.RegionResult
}

type service struct {
	clients awsclient.Factory
	logger  *zap.Logger
}

// NewService creates a new region scanner over the given client factory.
func NewService(clients awsclient.Factory, logger *zap.Logger) Service {
	return &service{clients: clients, logger: logger}
}

// ScanRegion collects every service inventory for the region. Collectors
// run concurrently and fail independently: a collector error lands in the
// Errors map while the rest of the bundle is kept. Only client
// construction failure fails the whole region. The account-global
// identity inventory is collected in the home region only.
func (s *service) ScanRegion(ctx context.Context, region string) model.RegionResult {
	result := model.RegionResult{
		Region:   region,
		Services: map[string]any{},
		Errors:   map[string]string{},
	}

	computeClient, err := s.clients.Compute(ctx, region)
	if err != nil {
		return s.regionFailure(region, err)
	}
	objectStoreClient, err := s.clients.ObjectStore(ctx, region)
	if err != nil {
		return s.regionFailure(region, err)
	}
	databaseClient, err := s.clients.Database(ctx, region)
	if err != nil {
		return s.regionFailure(region, err)
	}
	keyClient, err := s.clients.KeyManagement(ctx, region)
	if err != nil {
		return s.regionFailure(region, err)
	}
	// Every client is built before any collector starts, so a
	// construction failure never leaves goroutines running.
	var identityClient awsclient.IdentityAPI
	if region == awsclient.HomeRegion {
		if identityClient, err = s.clients.Identity(ctx); err != nil {
			return s.regionFailure(region, err)
		}
	}

	computeSvc := compute.NewService(computeClient, s.logger)
	objectStoreSvc := objectstore.NewService(objectStoreClient, s.logger)
	databaseSvc := database.NewService(databaseClient, s.logger)
	keySvc := keymgmt.NewService(keyClient, s.logger)

	var mu sync.Mutex
	record := func(name string, bundle any, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			s.logger.Warn("collector failed",
				zap.String("region", region),
				zap.String("service", name),
				zap.Error(err))
			result.Errors[name] = err.Error()
			return
		}
		result.Services[name] = bundle
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		instances, err := computeSvc.ListInstances(gctx)
		record(model.ServiceCompute, model.ComputeBundle{Instances: instances}, err)
		return nil
	})
	g.Go(func() error {
		volumes, err := computeSvc.ListVolumes(gctx)
		record(model.ServiceVolumes, model.VolumeBundle{Volumes: volumes}, err)
		return nil
	})
	g.Go(func() error {
		groups, err := computeSvc.ListSecurityGroups(gctx)
		record(model.ServiceNetworkRules, model.NetworkRuleBundle{Groups: groups}, err)
		return nil
	})
	g.Go(func() error {
		buckets, err := objectStoreSvc.ListBuckets(gctx, region)
		record(model.ServiceObjectStore, model.BucketBundle{Buckets: buckets}, err)
		return nil
	})
	g.Go(func() error {
		databases, err := databaseSvc.ListDatabases(gctx)
		record(model.ServiceDatabase, model.DatabaseBundle{Databases: databases}, err)
		return nil
	})
	g.Go(func() error {
		keys, err := keySvc.ListKeys(gctx)
		record(model.ServiceKeys, model.KeyBundle{Keys: keys}, err)
		return nil
	})

	if identityClient != nil {
		identitySvc := identity.NewService(identityClient, s.logger)
		g.Go(func() error {
			users, err := identitySvc.ListUsers(gctx)
			record(model.ServiceIdentity, model.IdentityBundle{Users: users}, err)
			return nil
		})
	}

	_ = g.Wait()

	s.logger.Info("region scan finished",
		zap.String("region", region),
		zap.Int("services", len(result.Services)),
		zap.Int("failures", len(result.Errors)))
	return result
}

func (s *service) regionFailure(region string, err error) model.RegionResult {
	s.logger.Error("region scan failed",
		zap.String("region", region), zap.Error(err))
	return model.RegionResult{Region: region, Err: err.Error()}
}
