// Package dashboard aggregates persisted scan results into tenant-level
// security metrics, alerts and risk rankings.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/scanstore"
)

const (
	scanHistoryLimit = 10
	trendScanLimit   = 7
	topResourceLimit = 10
	defaultTrendDays = 30
)

// Risk score weights per resource condition.
const (
	scoreInstanceIMDSv1    = 10
	scoreInstanceBaseline  = 5
	scoreBucketUnencrypted = 15
	scoreBucketNoBlock     = 20
	scoreVolumeUnencrypted = 10
	scoreVolumeBaseline    = 2
)

// Query narrows the dashboard. A scan id pins the security view to that
// scan instead of the latest completed one; Days bounds the trend
// lookback window (default 30).
type Query struct {
	ScanID string
	Days   int
}

// Service is the interface for dashboard aggregation.
type Service interface {
	Metrics(ctx context.Context, tenantID string, q Query) (model.DashboardMetrics, error)
}

type service struct {
	store  scanstore.Service
	logger *zap.Logger
}

// NewService creates a new dashboard aggregator over the scan store.
func NewService(store scanstore.Service, logger *zap.Logger) Service {
	return &service{store: store, logger: logger}
}

// Metrics builds the full dashboard for a tenant. Security metrics,
// alerts and top resources come from the most recent completed scan, or
// from the scan named in the query; trends span the completed scans
// inside the lookback window. A tenant with no scans gets a zeroed
// dashboard, never an error; an unknown scan id is a not-found error.
func (s *service) Metrics(ctx context.Context, tenantID string, q Query) (model.DashboardMetrics, error) {
	scans, err := s.store.ListScans(ctx, tenantID, scanstore.ListOptions{})
	if err != nil {
		return model.DashboardMetrics{}, err
	}

	metrics := model.DashboardMetrics{
		ScanOverview:   buildOverview(scans),
		ServiceMetrics: []model.ServiceMetrics{},
		RegionMetrics:  []model.RegionMetrics{},
		ResourceTrends: []model.ResourceTrend{},
		TopResources:   []model.TopResource{},
		ScanHistory:    buildHistory(scans),
		Alerts:         []model.Alert{},
	}

	sourceID := ""
	if q.ScanID != "" {
		scan, err := s.store.GetScan(ctx, tenantID, q.ScanID)
		if err != nil {
			return model.DashboardMetrics{}, err
		}
		sourceID = scan.ID
	} else if latest := latestCompleted(scans); latest != nil {
		sourceID = latest.ID
	}
	if sourceID == "" {
		return metrics, nil
	}

	results, err := s.store.ListResultsByScan(ctx, tenantID, sourceID)
	if err != nil {
		return model.DashboardMetrics{}, err
	}
	inventory := decodeResults(results, s.logger)

	metrics.SecurityMetrics = inventory.securityMetrics()
	metrics.Alerts = inventory.alerts()
	metrics.TopResources = inventory.topResources()
	metrics.ServiceMetrics = serviceMetrics(results)
	metrics.RegionMetrics = regionMetrics(results)
	metrics.ScanOverview.TotalRegionsScanned = len(metrics.RegionMetrics)
	metrics.ScanOverview.TotalServicesScanned = len(metrics.ServiceMetrics)

	trends, err := s.buildTrends(ctx, tenantID, scans, q.Days)
	if err != nil {
		return model.DashboardMetrics{}, err
	}
	metrics.ResourceTrends = trends

	return metrics, nil
}

func buildOverview(scans []model.Scan) model.ScanOverview {
	overview := model.ScanOverview{}
	for _, scan := range scans {
		overview.TotalScans++
		switch scan.Status {
		case model.StatusCompleted:
			overview.CompletedScans++
		case model.StatusFailed:
			overview.FailedScans++
		case model.StatusRunning:
			overview.InProgressScans++
		}
	}
	if len(scans) > 0 {
		last := scans[0].CreatedAt
		overview.LastScanTime = &last
	}
	return overview
}

func buildHistory(scans []model.Scan) []model.ScanHistoryEntry {
	history := []model.ScanHistoryEntry{}
	for i, scan := range scans {
		if i == scanHistoryLimit {
			break
		}
		created := scan.CreatedAt
		history = append(history, model.ScanHistoryEntry{
			ScanID:        scan.ID,
			Name:          scan.Name,
			Status:        scan.Status,
			CreatedAt:     &created,
			CloudProvider: scan.CloudProvider,
			Metadata:      scan.Metadata,
		})
	}
	return history
}

func latestCompleted(scans []model.Scan) *model.Scan {
	for i := range scans {
		if scans[i].Status == model.StatusCompleted {
			return &scans[i]
		}
	}
	return nil
}

// inventory holds the decoded bundles of one scan, keyed by region.
type inventory struct {
	instances map[string][]model.ComputeInstance
	volumes   map[string][]model.BlockVolume
	buckets   map[string][]model.StorageBucket
	groups    map[string][]model.NetworkRuleSet
	databases map[string][]model.DatabaseInstance
	keys      map[string][]model.EncryptionKey
}

func decodeResults(results []model.ServiceScanResult, logger *zap.Logger) inventory {
	inv := inventory{
		instances: map[string][]model.ComputeInstance{},
		volumes:   map[string][]model.BlockVolume{},
		buckets:   map[string][]model.StorageBucket{},
		groups:    map[string][]model.NetworkRuleSet{},
		databases: map[string][]model.DatabaseInstance{},
		keys:      map[string][]model.EncryptionKey{},
	}
	for _, result := range results {
		var err error
		switch result.ServiceName {
		case model.ServiceCompute:
			var bundle model.ComputeBundle
			if err = json.Unmarshal(result.Data, &bundle); err == nil {
				inv.instances[result.Region] = bundle.Instances
			}
		case model.ServiceVolumes:
			var bundle model.VolumeBundle
			if err = json.Unmarshal(result.Data, &bundle); err == nil {
				inv.volumes[result.Region] = bundle.Volumes
			}
		case model.ServiceObjectStore:
			var bundle model.BucketBundle
			if err = json.Unmarshal(result.Data, &bundle); err == nil {
				inv.buckets[result.Region] = bundle.Buckets
			}
		case model.ServiceNetworkRules:
			var bundle model.NetworkRuleBundle
			if err = json.Unmarshal(result.Data, &bundle); err == nil {
				inv.groups[result.Region] = bundle.Groups
			}
		case model.ServiceDatabase:
			var bundle model.DatabaseBundle
			if err = json.Unmarshal(result.Data, &bundle); err == nil {
				inv.databases[result.Region] = bundle.Databases
			}
		case model.ServiceKeys:
			var bundle model.KeyBundle
			if err = json.Unmarshal(result.Data, &bundle); err == nil {
				inv.keys[result.Region] = bundle.Keys
			}
		}
		if err != nil {
			logger.Warn("skipping undecodable result row",
				zap.String("scan_id", result.ScanID),
				zap.String("service", result.ServiceName),
				zap.String("region", result.Region),
				zap.Error(err))
		}
	}
	return inv
}

func (inv inventory) securityMetrics() model.SecurityMetrics {
	metrics := model.SecurityMetrics{}
	for _, instances := range inv.instances {
		for _, instance := range instances {
			if instance.State == "running" {
				metrics.EC2InstancesRunning++
			} else {
				metrics.EC2InstancesStopped++
			}
			if instance.IMDSVersion == model.IMDSv1 {
				metrics.EC2IMDSv1Count++
			} else {
				metrics.EC2IMDSv2Count++
			}
		}
	}
	for _, buckets := range inv.buckets {
		for _, bucket := range buckets {
			if bucket.EncryptionEnabled {
				metrics.S3EncryptedBuckets++
			} else {
				metrics.S3UnencryptedBuckets++
			}
			if bucket.PublicAccessBlock.FullyBlocked() {
				metrics.S3PrivateBuckets++
			} else {
				metrics.S3PublicBuckets++
			}
		}
	}
	for _, volumes := range inv.volumes {
		for _, volume := range volumes {
			if volume.Encrypted {
				metrics.EBSEncryptedVolumes++
			} else {
				metrics.EBSUnencryptedVolumes++
			}
		}
	}
	for _, groups := range inv.groups {
		for _, group := range groups {
			if len(group.RiskyInboundRules) > 0 {
				metrics.RiskySecurityGroups++
			}
		}
	}
	for _, databases := range inv.databases {
		metrics.RDSDatabaseCount += len(databases)
	}
	for _, keys := range inv.keys {
		metrics.KMSKeyCount += len(keys)
	}
	return metrics
}

func (inv inventory) alerts() []model.Alert {
	alerts := []model.Alert{}
	for region, instances := range inv.instances {
		for _, instance := range instances {
			if instance.IMDSVersion == model.IMDSv1 {
				alerts = append(alerts, model.Alert{
					Type:     "ec2_imds_v1",
					Severity: model.AlertSeverityMedium,
					Message:  fmt.Sprintf("EC2 instance %s allows IMDSv1", instance.InstanceID),
					Resource: instance.InstanceID,
					Region:   region,
				})
			}
		}
	}
	for region, buckets := range inv.buckets {
		for _, bucket := range buckets {
			if !bucket.EncryptionEnabled {
				alerts = append(alerts, model.Alert{
					Type:     "s3_unencrypted",
					Severity: model.AlertSeverityHigh,
					Message:  fmt.Sprintf("S3 bucket %s has no default encryption", bucket.Name),
					Resource: bucket.Name,
					Region:   region,
				})
			}
			if !bucket.PublicAccessBlock.FullyBlocked() {
				alerts = append(alerts, model.Alert{
					Type:     "s3_public",
					Severity: model.AlertSeverityCritical,
					Message:  fmt.Sprintf("S3 bucket %s does not block public access", bucket.Name),
					Resource: bucket.Name,
					Region:   region,
				})
			}
		}
	}
	for region, volumes := range inv.volumes {
		for _, volume := range volumes {
			if !volume.Encrypted {
				alerts = append(alerts, model.Alert{
					Type:     "ebs_unencrypted",
					Severity: model.AlertSeverityMedium,
					Message:  fmt.Sprintf("EBS volume %s is not encrypted", volume.VolumeID),
					Resource: volume.VolumeID,
					Region:   region,
				})
			}
		}
	}
	for region, groups := range inv.groups {
		for _, group := range groups {
			if len(group.RiskyInboundRules) > 0 {
				alerts = append(alerts, model.Alert{
					Type:     "sg_open_inbound",
					Severity: model.AlertSeverityHigh,
					Message:  fmt.Sprintf("Security group %s allows inbound traffic from 0.0.0.0/0", group.GroupID),
					Resource: group.GroupID,
					Region:   region,
				})
			}
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if alerts[i].Resource != alerts[j].Resource {
			return alerts[i].Resource < alerts[j].Resource
		}
		return alerts[i].Type < alerts[j].Type
	})
	return alerts
}

func severityRank(severity string) int {
	switch severity {
	case model.AlertSeverityCritical:
		return 3
	case model.AlertSeverityHigh:
		return 2
	case model.AlertSeverityMedium:
		return 1
	}
	return 0
}

func (inv inventory) topResources() []model.TopResource {
	resources := []model.TopResource{}
	for region, instances := range inv.instances {
		for _, instance := range instances {
			score := scoreInstanceBaseline
			status := "ok"
			if instance.IMDSVersion == model.IMDSv1 {
				score = scoreInstanceIMDSv1
				status = "imds_v1"
			}
			resources = append(resources, model.TopResource{
				Name:      instance.InstanceID,
				Type:      "EC2",
				Region:    region,
				RiskScore: score,
				Status:    status,
			})
		}
	}
	for region, buckets := range inv.buckets {
		for _, bucket := range buckets {
			score := 0
			status := "ok"
			if !bucket.EncryptionEnabled {
				score += scoreBucketUnencrypted
				status = "unencrypted"
			}
			if !bucket.PublicAccessBlock.FullyBlocked() {
				score += scoreBucketNoBlock
				status = "public"
			}
			resources = append(resources, model.TopResource{
				Name:      bucket.Name,
				Type:      "S3",
				Region:    region,
				RiskScore: score,
				Status:    status,
			})
		}
	}
	for region, volumes := range inv.volumes {
		for _, volume := range volumes {
			score := scoreVolumeBaseline
			status := "encrypted"
			if !volume.Encrypted {
				score = scoreVolumeUnencrypted
				status = "unencrypted"
			}
			resources = append(resources, model.TopResource{
				Name:      volume.VolumeID,
				Type:      "EBS",
				Region:    region,
				RiskScore: score,
				Status:    status,
			})
		}
	}

	sort.SliceStable(resources, func(i, j int) bool {
		if resources[i].RiskScore != resources[j].RiskScore {
			return resources[i].RiskScore > resources[j].RiskScore
		}
		return resources[i].Name < resources[j].Name
	})
	if len(resources) > topResourceLimit {
		resources = resources[:topResourceLimit]
	}
	return resources
}

func serviceMetrics(results []model.ServiceScanResult) []model.ServiceMetrics {
	byService := map[string]*model.ServiceMetrics{}
	counts := resourceCounts(results)
	for _, result := range results {
		if result.ServiceName == model.ServiceRegionError {
			continue
		}
		entry, ok := byService[result.ServiceName]
		if !ok {
			entry = &model.ServiceMetrics{ServiceName: result.ServiceName}
			byService[result.ServiceName] = entry
		}
		entry.Regions = append(entry.Regions, result.Region)
		entry.ResourceCount += counts[result.ID]
		created := result.CreatedAt
		if entry.LastScanTime == nil || created.After(*entry.LastScanTime) {
			entry.LastScanTime = &created
		}
	}

	names := make([]string, 0, len(byService))
	for name := range byService {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []model.ServiceMetrics{}
	for _, name := range names {
		entry := byService[name]
		sort.Strings(entry.Regions)
		out = append(out, *entry)
	}
	return out
}

func regionMetrics(results []model.ServiceScanResult) []model.RegionMetrics {
	byRegion := map[string]*model.RegionMetrics{}
	counts := resourceCounts(results)
	for _, result := range results {
		if result.ServiceName == model.ServiceRegionError {
			continue
		}
		entry, ok := byRegion[result.Region]
		if !ok {
			entry = &model.RegionMetrics{Region: result.Region}
			byRegion[result.Region] = entry
		}
		entry.Services = append(entry.Services, result.ServiceName)
		entry.ResourceCount += counts[result.ID]
	}

	regions := make([]string, 0, len(byRegion))
	for region := range byRegion {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	out := []model.RegionMetrics{}
	for _, region := range regions {
		entry := byRegion[region]
		sort.Strings(entry.Services)
		out = append(out, *entry)
	}
	return out
}

// resourceCounts maps a result row id to the number of resources in its
// bundle. Every bundle is a single-key object holding one array.
func resourceCounts(results []model.ServiceScanResult) map[string]int {
	counts := map[string]int{}
	for _, result := range results {
		var bundle map[string][]json.RawMessage
		if err := json.Unmarshal(result.Data, &bundle); err != nil {
			continue
		}
		total := 0
		for _, items := range bundle {
			total += len(items)
		}
		counts[result.ID] = total
	}
	return counts
}

// buildTrends produces one dated point per completed scan inside the
// lookback window, oldest first.
func (s *service) buildTrends(ctx context.Context, tenantID string, scans []model.Scan, days int) ([]model.ResourceTrend, error) {
	if days <= 0 {
		days = defaultTrendDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	completed := []model.Scan{}
	for _, scan := range scans {
		if scan.Status != model.StatusCompleted || scan.CreatedAt.Before(cutoff) {
			continue
		}
		completed = append(completed, scan)
		if len(completed) == trendScanLimit {
			break
		}
	}

	trends := []model.ResourceTrend{}
	for i := len(completed) - 1; i >= 0; i-- {
		scan := completed[i]
		results, err := s.store.ListResultsByScan(ctx, tenantID, scan.ID)
		if err != nil {
			return nil, err
		}
		inv := decodeResults(results, s.logger)

		point := model.ResourceTrend{Date: scan.CreatedAt.Format("2006-01-02")}
		for _, instances := range inv.instances {
			point.EC2Count += len(instances)
		}
		for _, buckets := range inv.buckets {
			point.S3Count += len(buckets)
		}
		for _, databases := range inv.databases {
			point.RDSCount += len(databases)
		}
		for _, volumes := range inv.volumes {
			point.EBSCount += len(volumes)
		}
		trends = append(trends, point)
	}
	return trends, nil
}
