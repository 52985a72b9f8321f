package model

// Service name tags used for ServiceScanResult rows. These match the
// keys of the per-region result bundle.
const (
	ServiceCompute      = "ec2"
	ServiceVolumes      = "ebs"
	ServiceObjectStore  = "s3"
	ServiceNetworkRules = "security_groups"
	ServiceDatabase     = "rds"
	ServiceKeys         = "kms"
	ServiceIdentity     = "iam"

	// ServiceRegionError marks a diagnostic row persisted for a region
	// whose scan failed entirely.
	ServiceRegionError = "region_error"
)

// IMDS classification values for compute instances.
const (
	IMDSv1 = "IMDSv1"
	IMDSv2 = "IMDSv2"
)

// ComputeInstance is a normalized EC2 instance record.
type ComputeInstance struct {
	InstanceID  string `json:"InstanceId"`
	Name        string `json:"InstanceName"`
	PrivateIP   string `json:"PrivateIpAddress"`
	PublicIP    string `json:"PublicIpAddress"`
	State       string `json:"State"`
	IMDSVersion string `json:"IMDSVersion"`
}

// BlockVolume is a normalized EBS volume record.
type BlockVolume struct {
	VolumeID           string `json:"VolumeId"`
	Name               string `json:"VolumeName"`
	CreateTime         string `json:"CreateTime"`
	SizeGiB            int32  `json:"Size"`
	State              string `json:"State"`
	Encrypted          bool   `json:"Encrypted"`
	AttachedInstanceID string `json:"AttachedInstanceId,omitempty"`
}

// PublicAccessBlock mirrors the S3 public access block configuration.
// A nil pointer on StorageBucket means the configuration is absent.
type PublicAccessBlock struct {
	BlockPublicAcls       bool `json:"BlockPublicAcls"`
	IgnorePublicAcls      bool `json:"IgnorePublicAcls"`
	BlockPublicPolicy     bool `json:"BlockPublicPolicy"`
	RestrictPublicBuckets bool `json:"RestrictPublicBuckets"`
}

// FullyBlocked reports whether every public access setting is enabled.
func (p *PublicAccessBlock) FullyBlocked() bool {
	if p == nil {
		return false
	}
	return p.BlockPublicAcls && p.IgnorePublicAcls && p.BlockPublicPolicy && p.RestrictPublicBuckets
}

// StorageBucket is a normalized S3 bucket record.
type StorageBucket struct {
	Name              string             `json:"BucketName"`
	CreationDate      string             `json:"CreationDate"`
	Region            string             `json:"Region"`
	VersioningEnabled bool               `json:"VersioningEnabled"`
	EncryptionEnabled bool               `json:"EncryptionEnabled"`
	PublicAccessBlock *PublicAccessBlock `json:"PublicAccessBlockConfiguration"`
}

// RiskyRule is an inbound rule open to the world.
type RiskyRule struct {
	Protocol  string `json:"protocol"`
	PortRange string `json:"port_range"`
	Source    string `json:"source"`
}

// NetworkRuleSet is a normalized security group record.
type NetworkRuleSet struct {
	GroupID           string      `json:"GroupId"`
	GroupName         string      `json:"GroupName"`
	Description       string      `json:"Description"`
	VpcID             string      `json:"VpcId"`
	RiskyInboundRules []RiskyRule `json:"RiskyInboundRules"`
	InboundRuleCount  int         `json:"InboundRuleCount"`
	OutboundRuleCount int         `json:"OutboundRuleCount"`
}

// DatabaseInstance is a normalized RDS instance record.
type DatabaseInstance struct {
	InstanceID          string `json:"DBInstanceId"`
	Engine              string `json:"Engine"`
	EngineVersion       string `json:"EngineVersion"`
	StorageEncrypted    bool   `json:"StorageEncrypted"`
	PubliclyAccessible  bool   `json:"PubliclyAccessible"`
	MultiAZ             bool   `json:"MultiAZ"`
	DeletionProtection  bool   `json:"DeletionProtection"`
	BackupRetentionDays int32  `json:"BackupRetentionPeriod"`
	VpcID               string `json:"VpcId"`
}

// EncryptionKey is a normalized customer-managed KMS key record.
type EncryptionKey struct {
	KeyID           string `json:"KeyId"`
	KeyARN          string `json:"KeyArn"`
	KeyState        string `json:"KeyState"`
	KeyUsage        string `json:"KeyUsage"`
	Origin          string `json:"Origin"`
	RotationEnabled bool   `json:"RotationEnabled"`
	CreationDate    string `json:"CreationDate,omitempty"`
}

// IdentityUser is a normalized IAM user record.
type IdentityUser struct {
	UserName         string `json:"UserName"`
	UserID           string `json:"UserId"`
	ARN              string `json:"ARN"`
	CreateDate       string `json:"CreateDate"`
	PasswordLastUsed string `json:"PasswordLastUsed"`
	HasMFA           bool   `json:"HasMFA"`
	ActiveAccessKeys int    `json:"ActiveAccessKeys"`
}

// Per-service bundle wrappers. The wrapper key is the stable payload
// schema stored in ServiceScanResult.Data.

type ComputeBundle struct {
	Instances []ComputeInstance `json:"EC2Instances"`
}

type VolumeBundle struct {
	Volumes []BlockVolume `json:"EBSVolumes"`
}

type BucketBundle struct {
	Buckets []StorageBucket `json:"S3Buckets"`
}

type NetworkRuleBundle struct {
	Groups []NetworkRuleSet `json:"SecurityGroups"`
}

type DatabaseBundle struct {
	Databases []DatabaseInstance `json:"RDSDatabases"`
}

type KeyBundle struct {
	Keys []EncryptionKey `json:"KMSKeys"`
}

type IdentityBundle struct {
	Users []IdentityUser `json:"IAMUsers"`
}

// RegionResult is the outcome of scanning a single region: a bundle per
// successfully collected service, an error message per failed collector,
// or a whole-region error when client construction failed.
type RegionResult struct {
	Region   string            `json:"region"`
	Services map[string]any    `json:"services,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
	Err      string            `json:"error,omitempty"`
}

// Failed reports whether the region produced no usable data at all.
func (r RegionResult) Failed() bool {
	return r.Err != ""
}
