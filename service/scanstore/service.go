// Package scanstore persists scans and their service results in SQLite.
package scanstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
)

// ErrNotFound is returned when a requested row does not exist or is not
// visible to the requesting tenant.
var ErrNotFound = errors.New("not found")

const defaultListLimit = 50

// ListOptions filter and page a scan listing.
type ListOptions struct {
	Status   model.ScanStatus
	Provider string
	Limit    int
	Offset   int
}

// Service is the interface for scan persistence.
type Service interface {
	CreateScan(ctx context.Context, scan model.Scan) (model.Scan, error)
	SaveResults(ctx context.Context, scanID, tenantID string, results []model.RegionResult) error
	SaveServiceResult(ctx context.Context, result model.ServiceScanResult) (model.ServiceScanResult, error)
	MarkCompleted(ctx context.Context, scanID string, metadata model.ScanMetadata) error
	MarkFailed(ctx context.Context, scanID string, metadata model.ScanMetadata) error
	GetScan(ctx context.Context, tenantID, scanID string) (model.Scan, error)
	ListScans(ctx context.Context, tenantID string, opts ListOptions) ([]model.Scan, error)
	GetServiceResult(ctx context.Context, tenantID, scanID, serviceName, region string) (model.ServiceScanResult, error)
	ListResultsByScan(ctx context.Context, tenantID, scanID string) ([]model.ServiceScanResult, error)
	ListRegions(ctx context.Context) ([]model.RegionInfo, error)
	Close() error
}

type service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService opens (creating if needed) the SQLite database at dbPath
// and migrates the schema.
func NewService(dbPath string, logger *zap.Logger) (Service, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaV1); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	if _, err := db.Exec(seedRegions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to seed regions: %w", err)
	}

	return &service{db: db, logger: logger}, nil
}

// CreateScan inserts a new scan row in RUNNING state and returns it with
// its generated id and timestamps filled in.
func (s *service) CreateScan(ctx context.Context, scan model.Scan) (model.Scan, error) {
	if scan.TenantID == "" {
		return model.Scan{}, errors.New("tenant id is required")
	}
	if scan.ID == "" {
		scan.ID = uuid.NewString()
	}
	if scan.Name == "" {
		scan.Name = fmt.Sprintf("scan-%s", scan.ID[:8])
	}
	if scan.CloudProvider == "" {
		scan.CloudProvider = model.ProviderAWS
	}
	scan.Status = model.StatusRunning
	now := time.Now().UTC().Truncate(time.Second)
	scan.CreatedAt = now
	scan.UpdatedAt = now

	metadata, err := json.Marshal(scan.Metadata)
	if err != nil {
		return model.Scan{}, fmt.Errorf("failed to encode scan metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scans (id, tenant_id, name, cloud_provider, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, scan.ID, scan.TenantID, scan.Name, scan.CloudProvider, string(scan.Status), string(metadata),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return model.Scan{}, err
	}
	return scan, nil
}

// SaveResults writes every region's service bundles inside a single
// transaction: either the whole scan's inventory lands or none of it
// does. A failed region is persisted as one diagnostic row so the scan
// record still explains what happened there.
func (s *service) SaveResults(ctx context.Context, scanID, tenantID string, results []model.RegionResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, result := range results {
		if result.Failed() {
			payload, merr := json.Marshal(map[string]string{"error": result.Err})
			if merr != nil {
				err = merr
				return err
			}
			if err = s.saveResultTx(ctx, tx, scanID, tenantID, model.ServiceRegionError, result.Region, payload, now); err != nil {
				return err
			}
			continue
		}
		for serviceName, bundle := range result.Services {
			payload, merr := json.Marshal(bundle)
			if merr != nil {
				err = merr
				return err
			}
			if err = s.saveResultTx(ctx, tx, scanID, tenantID, serviceName, result.Region, payload, now); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

func (s *service) saveResultTx(ctx context.Context, tx *sql.Tx, scanID, tenantID, serviceName, region string, data []byte, now string) error {
	metadata, err := json.Marshal(model.ResultMetadata{Timestamp: now, ServiceType: serviceName})
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scan_results (id, scan_id, tenant_id, service_name, region, data, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, service_name, region) DO UPDATE SET
			data=excluded.data,
			metadata=excluded.metadata,
			updated_at=excluded.updated_at
	`, uuid.NewString(), scanID, tenantID, serviceName, region, string(data), string(metadata), now, now)
	return err
}

// SaveServiceResult writes one standalone result row, upserting on the
// (scan, service, region) key.
func (s *service) SaveServiceResult(ctx context.Context, result model.ServiceScanResult) (model.ServiceScanResult, error) {
	if result.ScanID == "" || result.TenantID == "" || result.ServiceName == "" {
		return model.ServiceScanResult{}, errors.New("scan id, tenant id and service name are required")
	}
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if len(result.Data) == 0 {
		result.Data = json.RawMessage("{}")
	}
	now := time.Now().UTC().Truncate(time.Second)
	result.CreatedAt = now
	result.UpdatedAt = now
	if result.Metadata.Timestamp == "" {
		result.Metadata.Timestamp = now.Format(time.RFC3339)
	}
	if result.Metadata.ServiceType == "" {
		result.Metadata.ServiceType = result.ServiceName
	}

	metadata, err := json.Marshal(result.Metadata)
	if err != nil {
		return model.ServiceScanResult{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_results (id, scan_id, tenant_id, service_name, region, data, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, service_name, region) DO UPDATE SET
			data=excluded.data,
			metadata=excluded.metadata,
			updated_at=excluded.updated_at
	`, result.ID, result.ScanID, result.TenantID, result.ServiceName, result.Region,
		string(result.Data), string(metadata), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return model.ServiceScanResult{}, err
	}
	return result, nil
}

// MarkCompleted transitions a RUNNING scan to COMPLETED. A scan that is
// missing or already terminal is left untouched.
func (s *service) MarkCompleted(ctx context.Context, scanID string, metadata model.ScanMetadata) error {
	return s.markTerminal(ctx, scanID, model.StatusCompleted, metadata)
}

// MarkFailed transitions a RUNNING scan to FAILED. A scan that is
// missing or already terminal is left untouched.
func (s *service) MarkFailed(ctx context.Context, scanID string, metadata model.ScanMetadata) error {
	return s.markTerminal(ctx, scanID, model.StatusFailed, metadata)
}

func (s *service) markTerminal(ctx context.Context, scanID string, status model.ScanStatus, metadata model.ScanMetadata) error {
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode scan metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE scans SET status=?, metadata=?, updated_at=?
		WHERE id=? AND status=?
	`, string(status), string(encoded), time.Now().UTC().Format(time.RFC3339),
		scanID, string(model.StatusRunning))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM scans WHERE id=?`, scanID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			s.logger.Warn("status update for unknown scan",
				zap.String("scan_id", scanID), zap.String("status", string(status)))
		case err != nil:
			return err
		default:
			s.logger.Warn("status update on terminal scan ignored",
				zap.String("scan_id", scanID),
				zap.String("current", current),
				zap.String("requested", string(status)))
		}
	}
	return nil
}

// GetScan returns one scan scoped to the tenant.
func (s *service) GetScan(ctx context.Context, tenantID, scanID string) (model.Scan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, cloud_provider, status, metadata, created_at, updated_at
		FROM scans WHERE id=? AND tenant_id=?
	`, scanID, tenantID)
	scan, err := scanScanRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Scan{}, ErrNotFound
	}
	return scan, err
}

// ListScans returns a tenant's scans newest first.
func (s *service) ListScans(ctx context.Context, tenantID string, opts ListOptions) ([]model.Scan, error) {
	query := `
		SELECT id, tenant_id, name, cloud_provider, status, metadata, created_at, updated_at
		FROM scans WHERE tenant_id=?
	`
	args := []any{tenantID}
	if opts.Status != "" {
		query += " AND status=?"
		args = append(args, string(opts.Status))
	}
	if opts.Provider != "" {
		query += " AND cloud_provider=?"
		args = append(args, opts.Provider)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans := []model.Scan{}
	for rows.Next() {
		scan, err := scanScanRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	return scans, rows.Err()
}

// GetServiceResult returns one result row. An empty region selects the
// service's global row: a row stored without a region, or the home-region
// row, which is where account-global services land. Rows stored without
// a region win over the home-region row.
func (s *service) GetServiceResult(ctx context.Context, tenantID, scanID, serviceName, region string) (model.ServiceScanResult, error) {
	query := `
		SELECT id, scan_id, tenant_id, service_name, region, data, metadata, created_at, updated_at
		FROM scan_results WHERE scan_id=? AND tenant_id=? AND service_name=?
	`
	args := []any{scanID, tenantID, serviceName}
	if region == "" {
		query += " AND region IN ('', ?)"
		args = append(args, awsclient.HomeRegion)
	} else {
		query += " AND region=?"
		args = append(args, region)
	}
	query += " ORDER BY region ASC LIMIT 1"

	row := s.db.QueryRowContext(ctx, query, args...)
	result, err := scanResultRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ServiceScanResult{}, ErrNotFound
	}
	return result, err
}

// ListResultsByScan returns every result row of one scan.
func (s *service) ListResultsByScan(ctx context.Context, tenantID, scanID string) ([]model.ServiceScanResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scan_id, tenant_id, service_name, region, data, metadata, created_at, updated_at
		FROM scan_results WHERE scan_id=? AND tenant_id=?
		ORDER BY region ASC, service_name ASC
	`, scanID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.ServiceScanResult{}
	for rows.Next() {
		result, err := scanResultRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// ListRegions returns the region catalog.
func (s *service) ListRegions(ctx context.Context) ([]model.RegionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cloud_provider FROM regions ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regions := []model.RegionInfo{}
	for rows.Next() {
		var region model.RegionInfo
		if err := rows.Scan(&region.ID, &region.Name, &region.CloudProvider); err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	return regions, rows.Err()
}

func (s *service) Close() error {
	return s.db.Close()
}

func scanScanRow(scan func(dest ...any) error) (model.Scan, error) {
	var (
		out                  model.Scan
		status               string
		metadata             string
		createdAt, updatedAt string
	)
	if err := scan(&out.ID, &out.TenantID, &out.Name, &out.CloudProvider, &status, &metadata, &createdAt, &updatedAt); err != nil {
		return model.Scan{}, err
	}
	out.Status = model.ScanStatus(status)
	if err := json.Unmarshal([]byte(metadata), &out.Metadata); err != nil {
		return model.Scan{}, fmt.Errorf("failed to decode scan metadata: %w", err)
	}
	var err error
	if out.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return model.Scan{}, err
	}
	if out.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return model.Scan{}, err
	}
	return out, nil
}

func scanResultRow(scan func(dest ...any) error) (model.ServiceScanResult, error) {
	var (
		out                  model.ServiceScanResult
		data, metadata       string
		createdAt, updatedAt string
	)
	if err := scan(&out.ID, &out.ScanID, &out.TenantID, &out.ServiceName, &out.Region, &data, &metadata, &createdAt, &updatedAt); err != nil {
		return model.ServiceScanResult{}, err
	}
	out.Data = json.RawMessage(data)
	if err := json.Unmarshal([]byte(metadata), &out.Metadata); err != nil {
		return model.ServiceScanResult{}, fmt.Errorf("failed to decode result metadata: %w", err)
	}
	var err error
	if out.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return model.ServiceScanResult{}, err
	}
	if out.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return model.ServiceScanResult{}, err
	}
	return out, nil
}
