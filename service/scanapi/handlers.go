package scanapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/thirukguru/perimeter-api/model"
	"github.com/thirukguru/perimeter-api/service/awsclient"
	"github.com/thirukguru/perimeter-api/service/dashboard"
	"github.com/thirukguru/perimeter-api/service/scanner"
	"github.com/thirukguru/perimeter-api/service/scanstore"
)

// Scan result labels recorded in scan metadata.
const (
	resultSuccess = "success"
	resultPartial = "partial_success"
	resultFailed  = "failed"
)

type startScanRequest struct {
	Name            string   `json:"name"`
	AccessKey       string   `json:"encrypted_access_key"`
	SecretKey       string   `json:"encrypted_secret_key"`
	SessionToken    string   `json:"encrypted_session_token"`
	BudgetSeconds   int      `json:"scan_options"`
	ExcludedRegions []string `json:"excluded_regions"`
}

type startScanResponse struct {
	ScanID string           `json:"scan_id"`
	Status model.ScanStatus `json:"status"`
	JobID  string           `json:"job_id"`
}

// handleStartScan decrypts the submitted credentials, creates the scan
// row and hands the scan itself to the background runner. The response
// returns as soon as the row exists.
func (r *Router) handleStartScan(w http.ResponseWriter, req *http.Request) error {
	tenantID := TenantID(req.Context())

	var body startScanRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}
	if body.AccessKey == "" || body.SecretKey == "" {
		return badRequest("encrypted_access_key and encrypted_secret_key are required")
	}

	decrypted, err := r.crypto.DecryptCredentials(body.AccessKey, body.SecretKey, body.SessionToken)
	if err != nil {
		return err
	}

	budget := body.BudgetSeconds
	if budget <= 0 {
		budget = scanner.DefaultBudgetSeconds
	}
	metadata := model.ScanMetadata{
		BudgetSeconds:   budget,
		ExcludedRegions: body.ExcludedRegions,
		StartTimestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	scan, err := r.store.CreateScan(req.Context(), model.Scan{
		TenantID: tenantID,
		Name:     body.Name,
		Metadata: metadata,
	})
	if err != nil {
		return err
	}

	creds := awsclient.Credentials{
		AccessKeyID:     decrypted.AccessKeyID,
		SecretAccessKey: decrypted.SecretAccessKey,
		SessionToken:    decrypted.SessionToken,
	}
	opts := scanner.Options{BudgetSeconds: budget, ExcludedRegions: body.ExcludedRegions}

	jobID, err := r.jobs.Enqueue("aws-cloud-scan", r.runScan(scan.ID, tenantID, creds, opts, metadata))
	if err != nil {
		metadata.ScanResult = resultFailed
		metadata.ErrorMessage = err.Error()
		metadata.CompletionTimestamp = time.Now().UTC().Format(time.RFC3339)
		if markErr := r.store.MarkFailed(req.Context(), scan.ID, metadata); markErr != nil {
			r.logger.Error("failed to mark unqueued scan",
				zap.String("scan_id", scan.ID), zap.Error(markErr))
		}
		return err
	}

	writeJSON(w, http.StatusAccepted, startScanResponse{
		ScanID: scan.ID,
		Status: scan.Status,
		JobID:  jobID,
	})
	return nil
}

// runScan is the background job for one scan. It persists the outcome
// and always leaves the scan row in a terminal state.
func (r *Router) runScan(scanID, tenantID string, creds awsclient.Credentials, opts scanner.Options, metadata model.ScanMetadata) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		outcome, err := r.scanner.Scan(ctx, creds, opts)
		if err != nil {
			metadata.ScanResult = resultFailed
			metadata.ErrorMessage = err.Error()
			metadata.CompletionTimestamp = time.Now().UTC().Format(time.RFC3339)
			if markErr := r.store.MarkFailed(ctx, scanID, metadata); markErr != nil {
				r.logger.Error("failed to mark failed scan",
					zap.String("scan_id", scanID), zap.Error(markErr))
			}
			return err
		}

		metadata.RegionsScanned = outcome.RegionsScanned
		metadata.TotalRegions = outcome.TotalRegions
		metadata.TimedOut = outcome.TimedOut
		metadata.CompletionTimestamp = outcome.FinishedAt.UTC().Format(time.RFC3339)

		if err := r.store.SaveResults(ctx, scanID, tenantID, outcome.Results); err != nil {
			metadata.ScanResult = resultFailed
			metadata.ErrorMessage = fmt.Sprintf("failed to persist results: %v", err)
			if markErr := r.store.MarkFailed(ctx, scanID, metadata); markErr != nil {
				r.logger.Error("failed to mark failed scan",
					zap.String("scan_id", scanID), zap.Error(markErr))
			}
			return err
		}

		metadata.ScanResult = resultSuccess
		if outcome.TimedOut {
			metadata.ScanResult = resultPartial
		}
		return r.store.MarkCompleted(ctx, scanID, metadata)
	}
}

// handleScanStatus returns the compact status view of one scan.
func (r *Router) handleScanStatus(w http.ResponseWriter, req *http.Request) error {
	scan, err := r.store.GetScan(req.Context(), TenantID(req.Context()), chi.URLParam(req, "scanID"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id":  scan.ID,
		"status":   scan.Status,
		"metadata": scan.Metadata,
	})
	return nil
}

// handleGetScan returns one scan with all its persisted results.
func (r *Router) handleGetScan(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	tenantID := TenantID(ctx)
	scanID := chi.URLParam(req, "scanID")

	scan, err := r.store.GetScan(ctx, tenantID, scanID)
	if err != nil {
		return err
	}
	results, err := r.store.ListResultsByScan(ctx, tenantID, scanID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan":    scan,
		"results": results,
	})
	return nil
}

type createScanRequest struct {
	Name          string             `json:"name"`
	CloudProvider string             `json:"cloud_provider"`
	Metadata      model.ScanMetadata `json:"metadata"`
}

// handleCreateScan creates a scan row without starting a scan. Used by
// external runners that report their results through the result
// endpoint.
func (r *Router) handleCreateScan(w http.ResponseWriter, req *http.Request) error {
	var body createScanRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}

	scan, err := r.store.CreateScan(req.Context(), model.Scan{
		TenantID:      TenantID(req.Context()),
		Name:          body.Name,
		CloudProvider: body.CloudProvider,
		Metadata:      body.Metadata,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, scan)
	return nil
}

// handleListScans lists the tenant's scans newest first.
func (r *Router) handleListScans(w http.ResponseWriter, req *http.Request) error {
	query := req.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	scans, err := r.store.ListScans(req.Context(), TenantID(req.Context()), scanstore.ListOptions{
		Status:   model.ScanStatus(query.Get("status")),
		Provider: query.Get("cloud_provider"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
	return nil
}

type saveResultRequest struct {
	ScanID      string               `json:"scan_id"`
	ServiceName string               `json:"service_name"`
	Region      string               `json:"region"`
	Data        json.RawMessage      `json:"service_scan_data"`
	Metadata    model.ResultMetadata `json:"scan_result_metadata"`
}

// handleSaveServiceResult stores one result row. The tenant always comes
// from the authenticated context; any tenant field in the body is
// ignored.
func (r *Router) handleSaveServiceResult(w http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	tenantID := TenantID(ctx)

	var body saveResultRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid request body")
	}
	if body.ScanID == "" || body.ServiceName == "" {
		return badRequest("scan_id and service_name are required")
	}

	// The scan must exist and belong to this tenant.
	if _, err := r.store.GetScan(ctx, tenantID, body.ScanID); err != nil {
		return err
	}

	saved, err := r.store.SaveServiceResult(ctx, model.ServiceScanResult{
		ScanID:      body.ScanID,
		TenantID:    tenantID,
		ServiceName: body.ServiceName,
		Region:      body.Region,
		Data:        body.Data,
		Metadata:    body.Metadata,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, saved)
	return nil
}

// handleGetServiceResult returns one result row. Region is optional for
// account-global services.
func (r *Router) handleGetServiceResult(w http.ResponseWriter, req *http.Request) error {
	result, err := r.store.GetServiceResult(req.Context(),
		TenantID(req.Context()),
		chi.URLParam(req, "scanID"),
		chi.URLParam(req, "serviceName"),
		req.URL.Query().Get("region"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

type dashboardRequest struct {
	ScanID string `json:"scan_id"`
	Days   int    `json:"days"`
}

// handleDashboardMetrics builds the tenant dashboard. The body is
// optional: a scan id pins the view to that scan, days bounds the trend
// window.
func (r *Router) handleDashboardMetrics(w http.ResponseWriter, req *http.Request) error {
	var body dashboardRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid request body")
	}

	metrics, err := r.dashboard.Metrics(req.Context(), TenantID(req.Context()), dashboard.Query{
		ScanID: body.ScanID,
		Days:   body.Days,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, metrics)
	return nil
}

// handleListRegions returns the region catalog.
func (r *Router) handleListRegions(w http.ResponseWriter, req *http.Request) error {
	regions, err := r.store.ListRegions(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"regions": regions})
	return nil
}
