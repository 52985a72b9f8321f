// Package model defines the data structures used throughout the application.
package model

import (
	"encoding/json"
	"time"
)

// ScanStatus is the lifecycle state of a cloud scan.
type ScanStatus string

const (
	StatusRunning   ScanStatus = "RUNNING"
	StatusCompleted ScanStatus = "COMPLETED"
	StatusFailed    ScanStatus = "FAILED"
)

// Terminal reports whether the status may no longer transition.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProviderAWS is the only cloud provider tag currently supported.
const ProviderAWS = "AWS"

// Scan is one end-to-end inventory pass over a cloud account.
// The row is created with status RUNNING before any region is scanned
// and transitions exactly once to COMPLETED or FAILED.
type Scan struct {
	ID            string       `json:"scan_id"`
	TenantID      string       `json:"tenant_id"`
	Name          string       `json:"name"`
	CloudProvider string       `json:"cloud_provider"`
	Status        ScanStatus   `json:"status"`
	Metadata      ScanMetadata `json:"metadata"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ScanMetadata captures the options a scan ran with and its outcome.
type ScanMetadata struct {
	BudgetSeconds       int      `json:"scan_options,omitempty"`
	ExcludedRegions     []string `json:"excluded_regions,omitempty"`
	StartTimestamp      string   `json:"start_timestamp,omitempty"`
	CompletionTimestamp string   `json:"completion_timestamp,omitempty"`
	ScanResult          string   `json:"scan_result,omitempty"`
	ErrorMessage        string   `json:"error_message,omitempty"`
	RegionsScanned      int      `json:"regions_scanned,omitempty"`
	TotalRegions        int      `json:"total_regions,omitempty"`
	TimedOut            bool     `json:"timed_out,omitempty"`
}

// ServiceScanResult is one (scan, region, service) bundle discovered
// during a single scan. Rows are written in bulk inside the scan's
// persistence transaction and are immutable afterwards.
type ServiceScanResult struct {
	ID          string          `json:"id"`
	ScanID      string          `json:"scan_id"`
	TenantID    string          `json:"tenant_id"`
	ServiceName string          `json:"service_name"`
	Region      string          `json:"region"`
	Data        json.RawMessage `json:"service_scan_data"`
	Metadata    ResultMetadata  `json:"scan_result_metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ResultMetadata describes how a result row was produced.
type ResultMetadata struct {
	Timestamp   string `json:"timestamp,omitempty"`
	ServiceType string `json:"service_type,omitempty"`
}

// RegionInfo is a read-only region catalog entry.
type RegionInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CloudProvider string `json:"cloud_provider"`
}
