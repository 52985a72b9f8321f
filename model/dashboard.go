package model

import "time"

// Alert severities emitted by the dashboard rules.
const (
	AlertSeverityMedium   = "medium"
	AlertSeverityHigh     = "high"
	AlertSeverityCritical = "critical"
)

// SecurityMetrics holds the flat counters the dashboard renders.
type SecurityMetrics struct {
	EC2InstancesRunning   int `json:"ec2_instances_running"`
	EC2InstancesStopped   int `json:"ec2_instances_stopped"`
	EC2IMDSv1Count        int `json:"ec2_imds_v1_count"`
	EC2IMDSv2Count        int `json:"ec2_imds_v2_count"`
	S3EncryptedBuckets    int `json:"s3_encrypted_buckets"`
	S3UnencryptedBuckets  int `json:"s3_unencrypted_buckets"`
	S3PublicBuckets       int `json:"s3_public_buckets"`
	S3PrivateBuckets      int `json:"s3_private_buckets"`
	EBSEncryptedVolumes   int `json:"ebs_encrypted_volumes"`
	EBSUnencryptedVolumes int `json:"ebs_unencrypted_volumes"`
	RiskySecurityGroups   int `json:"security_groups_with_risky_rules"`
	RDSDatabaseCount      int `json:"rds_databases_count"`
	KMSKeyCount           int `json:"kms_keys_count"`
}

// Alert is a rule-flagged risk condition on a single resource.
type Alert struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Resource string `json:"resource"`
	Region   string `json:"region"`
}

// TopResource is a dashboard entry ranked by risk score.
type TopResource struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Region    string `json:"region"`
	RiskScore int    `json:"risk_score"`
	Status    string `json:"status"`
}

// ScanOverview summarizes a tenant's scan activity.
type ScanOverview struct {
	TotalScans           int        `json:"total_scans"`
	CompletedScans       int        `json:"completed_scans"`
	FailedScans          int        `json:"failed_scans"`
	InProgressScans      int        `json:"in_progress_scans"`
	TotalRegionsScanned  int        `json:"total_regions_scanned"`
	TotalServicesScanned int        `json:"total_services_scanned"`
	LastScanTime         *time.Time `json:"last_scan_time"`
}

// ServiceMetrics aggregates result rows for one service kind.
type ServiceMetrics struct {
	ServiceName   string     `json:"service_name"`
	ResourceCount int        `json:"resource_count"`
	Regions       []string   `json:"regions"`
	LastScanTime  *time.Time `json:"last_scan_time"`
}

// RegionMetrics aggregates result rows for one region.
type RegionMetrics struct {
	Region        string   `json:"region"`
	ResourceCount int      `json:"resource_count"`
	Services      []string `json:"services"`
}

// ResourceTrend is a dated point of resource counts.
type ResourceTrend struct {
	Date     string `json:"date"`
	EC2Count int    `json:"ec2_count"`
	S3Count  int    `json:"s3_count"`
	RDSCount int    `json:"rds_count"`
	EBSCount int    `json:"ebs_count"`
}

// ScanHistoryEntry is a compact scan record for the dashboard history.
type ScanHistoryEntry struct {
	ScanID        string       `json:"scan_id"`
	Name          string       `json:"name"`
	Status        ScanStatus   `json:"status"`
	CreatedAt     *time.Time   `json:"created_at"`
	CloudProvider string       `json:"cloud_provider"`
	Metadata      ScanMetadata `json:"metadata"`
}

// DashboardMetrics is the full dashboard response for a tenant.
type DashboardMetrics struct {
	ScanOverview    ScanOverview       `json:"scan_overview"`
	ServiceMetrics  []ServiceMetrics   `json:"service_metrics"`
	RegionMetrics   []RegionMetrics    `json:"region_metrics"`
	SecurityMetrics SecurityMetrics    `json:"security_metrics"`
	ResourceTrends  []ResourceTrend    `json:"resource_trends"`
	TopResources    []TopResource      `json:"top_resources"`
	ScanHistory     []ScanHistoryEntry `json:"scan_history"`
	Alerts          []Alert            `json:"alerts"`
}
