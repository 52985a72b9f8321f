package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanStatusTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   ScanStatus
		terminal bool
	}{
		{name: "running is not terminal", status: StatusRunning, terminal: false},
		{name: "completed is terminal", status: StatusCompleted, terminal: true},
		{name: "failed is terminal", status: StatusFailed, terminal: true},
		{name: "unknown is not terminal", status: ScanStatus("QUEUED"), terminal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestPublicAccessBlockFullyBlocked(t *testing.T) {
	tests := []struct {
		name    string
		block   *PublicAccessBlock
		blocked bool
	}{
		{
			name:    "absent configuration",
			block:   nil,
			blocked: false,
		},
		{
			name: "all settings enabled",
			block: &PublicAccessBlock{
				BlockPublicAcls:       true,
				IgnorePublicAcls:      true,
				BlockPublicPolicy:     true,
				RestrictPublicBuckets: true,
			},
			blocked: true,
		},
		{
			name: "one setting disabled",
			block: &PublicAccessBlock{
				BlockPublicAcls:   true,
				IgnorePublicAcls:  true,
				BlockPublicPolicy: true,
			},
			blocked: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blocked, tt.block.FullyBlocked())
		})
	}
}

func TestRegionResultFailed(t *testing.T) {
	tests := []struct {
		name   string
		result RegionResult
		failed bool
	}{
		{
			name:   "whole-region error",
			result: RegionResult{Region: "eu-west-1", Err: "client construction failed"},
			failed: true,
		},
		{
			name: "collector error only",
			result: RegionResult{
				Region:   "us-east-1",
				Services: map[string]any{ServiceCompute: ComputeBundle{}},
				Errors:   map[string]string{ServiceDatabase: "access denied"},
			},
			failed: false,
		},
		{
			name:   "clean region",
			result: RegionResult{Region: "us-east-1", Services: map[string]any{}},
			failed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.failed, tt.result.Failed())
		})
	}
}
