// Package scanner coordinates a full multi-region scan: region
// discovery, exclusion filtering and the time-budgeted region loop.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
	"github.com/thirukguru/perimeter-api/service/regionscan"
)

// DefaultBudgetSeconds is the scan time budget applied when the caller
// does not supply one.
const DefaultBudgetSeconds = 840

// safetyMargin is subtracted from the budget so the scan stops with
// enough time left to persist what it has.
const safetyMargin = 60 * time.Second

// CredentialError marks a scan failure caused by unusable credentials.
// Region discovery is the first call made with them, so a failure there
// fails the scan before any region work starts.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential validation failed: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Options control a single scan run.
type Options struct {
	BudgetSeconds   int
	ExcludedRegions []string
}

// Outcome is the full result of a scan run. RegionsScanned counts
// regions attempted, including ones that failed; TimedOut is set when
// the budget stopped the loop before every region was visited.
type Outcome struct {
	Results        []model.RegionResult
	RegionsScanned int
	TotalRegions   int
	TimedOut       bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Service is the interface for running multi-region scans.
type Service interface {
	Scan(ctx context.Context, creds awsclient.Credentials, opts Options) (Outcome, error)
}

type service struct {
	logger     *zap.Logger
	now        func() time.Time
	newFactory func(awsclient.Credentials) awsclient.Factory
	newScanner func(awsclient.Factory, *zap.Logger) regionscan.Service
}

// NewService creates a new scan coordinator.
func NewService(logger *zap.Logger) Service {
	return &service{
		logger:     logger,
		now:        time.Now,
		newFactory: awsclient.NewFactory,
		newScanner: regionscan.NewService,
	}
}

// Scan discovers the enabled regions, drops the excluded ones and scans
// the rest sequentially until done or the budget runs out. Region
// failures do not fail the scan; only unusable credentials do.
func (s *service) Scan(ctx context.Context, creds awsclient.Credentials, opts Options) (Outcome, error) {
	start := s.now()
	budget := time.Duration(opts.BudgetSeconds) * time.Second
	if opts.BudgetSeconds <= 0 {
		budget = DefaultBudgetSeconds * time.Second
	}
	deadline := budget - safetyMargin

	clients := s.newFactory(creds)
	regions, err := s.discoverRegions(ctx, clients)
	if err != nil {
		return Outcome{}, &CredentialError{Err: err}
	}
	regions = excludeRegions(regions, opts.ExcludedRegions)
	scanner := s.newScanner(clients, s.logger)

	outcome := Outcome{
		TotalRegions: len(regions),
		StartedAt:    start,
	}

	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		if s.now().Sub(start) > deadline {
			s.logger.Warn("scan budget exhausted, stopping early",
				zap.Int("regions_scanned", outcome.RegionsScanned),
				zap.Int("total_regions", outcome.TotalRegions))
			outcome.TimedOut = true
			break
		}
		outcome.Results = append(outcome.Results, scanner.ScanRegion(ctx, region))
		outcome.RegionsScanned++
	}

	outcome.FinishedAt = s.now()
	s.logger.Info("scan finished",
		zap.Int("regions_scanned", outcome.RegionsScanned),
		zap.Int("total_regions", outcome.TotalRegions),
		zap.Bool("timed_out", outcome.TimedOut),
		zap.Duration("elapsed", outcome.FinishedAt.Sub(start)))
	return outcome, nil
}

// discoverRegions lists the account's enabled regions from the home
// region. The home region sorts first so account-global inventory is
// collected before the budget can run out.
func (s *service) discoverRegions(ctx context.Context, clients awsclient.Factory) ([]string, error) {
	client, err := clients.Compute(ctx, awsclient.HomeRegion)
	if err != nil {
		return nil, err
	}
	described, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, err
	}

	regions := make([]string, 0, len(described.Regions))
	for _, region := range described.Regions {
		regions = append(regions, aws.ToString(region.RegionName))
	}
	sort.Slice(regions, func(i, j int) bool {
		if regions[i] == awsclient.HomeRegion {
			return true
		}
		if regions[j] == awsclient.HomeRegion {
			return false
		}
		return regions[i] < regions[j]
	})
	return regions, nil
}

func excludeRegions(regions, excluded []string) []string {
	if len(excluded) == 0 {
		return regions
	}
	drop := make(map[string]bool, len(excluded))
	for _, region := range excluded {
		drop[region] = true
	}
	kept := regions[:0]
	for _, region := range regions {
		if !drop[region] {
			kept = append(kept, region)
		}
	}
	return kept
}
