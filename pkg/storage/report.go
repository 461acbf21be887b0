package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// RunReport is the persisted record of a single iteration run.
type RunReport struct {
	RunID         string    `json:"run_id"`
	Source        string    `json:"source,omitempty"` // e.g. stream/consumer that produced the batch
	Items         int       `json:"items"`
	MaxConcurrent int       `json:"max_concurrent"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
	Outcome       string    `json:"outcome"` // "completed", "faulted" or "cancelled"
	Fault         string    `json:"fault,omitempty"`
}

// NewRunReport builds a report from a finished run's terminal error.
func NewRunReport(runID, source string, items, maxConcurrent int, startedAt time.Time, err error) *RunReport {
	r := &RunReport{
		RunID:         runID,
		Source:        source,
		Items:         items,
		MaxConcurrent: maxConcurrent,
		StartedAt:     startedAt.UTC(),
		DurationMs:    time.Since(startedAt).Milliseconds(),
	}
	switch {
	case err == nil:
		r.Outcome = "completed"
	case apperrors.IsCancellation(err):
		r.Outcome = "cancelled"
	default:
		r.Outcome = "faulted"
		r.Fault = err.Error()
	}
	return r
}

// ReportFile is the shared report document for one source: run ID to report.
type ReportFile map[string]*RunReport

// ReportWriter appends run reports to a shared JSON document in blob
// storage.
type ReportWriter struct {
	blobClient BlobClient
	logger     *zap.Logger
	mu         sync.Mutex // report files are read-modify-write
}

// NewReportWriter creates a report writer on top of a blob client.
func NewReportWriter(blobClient BlobClient, logger *zap.Logger) *ReportWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWriter{
		blobClient: blobClient,
		logger:     logger,
	}
}

// ReportPath returns the standard blob path for a source's report file.
func ReportPath(source string) string {
	if source == "" {
		source = "default"
	}
	return fmt.Sprintf("reports/%s/runs.json", source)
}

// Append adds or updates a run's report in the source's report file.
func (w *ReportWriter) Append(ctx context.Context, report *RunReport) (string, error) {
	if w.blobClient == nil {
		return "", fmt.Errorf("blob client not initialized")
	}
	if report == nil || report.RunID == "" {
		return "", fmt.Errorf("report with run ID is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	blobPath := ReportPath(report.Source)

	var file ReportFile
	existing, err := w.blobClient.Download(ctx, blobPath)
	if err != nil {
		// No report file yet for this source.
		file = make(ReportFile)
	} else if err := json.Unmarshal(existing, &file); err != nil {
		w.logger.Error("Failed to parse existing report file, starting fresh",
			zap.String("blob_path", blobPath),
			zap.Error(err))
		file = make(ReportFile)
	}

	file[report.RunID] = report

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report file: %w", err)
	}

	url, err := w.blobClient.Upload(ctx, blobPath, data, map[string]string{
		"source":    report.Source,
		"run_count": fmt.Sprintf("%d", len(file)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report file: %w", err)
	}

	w.logger.Debug("Appended run report",
		zap.String("run_id", report.RunID),
		zap.String("outcome", report.Outcome),
		zap.String("blob_path", blobPath))

	return url, nil
}

// Load fetches and parses a source's report file.
func (w *ReportWriter) Load(ctx context.Context, source string) (ReportFile, error) {
	if w.blobClient == nil {
		return nil, fmt.Errorf("blob client not initialized")
	}

	data, err := w.blobClient.Download(ctx, ReportPath(source))
	if err != nil {
		return nil, err
	}

	var file ReportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse report file: %w", err)
	}
	return file, nil
}
