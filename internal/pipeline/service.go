// Package pipeline turns a validated CSV upload into a completed or failed
// forecast job: blob upload, job record creation, forecast service call with
// bounded retry, and a single atomic terminal update.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forecastify/api/internal/blobstore"
	"github.com/forecastify/api/internal/cache"
	"github.com/forecastify/api/internal/forecast"
	"github.com/forecastify/api/internal/retry"
	"github.com/forecastify/api/internal/store"
	"github.com/forecastify/api/pkg/models"
)

// Sentinel errors surfaced to the caller before any processing starts.
var (
	ErrInvalidFile = errors.New("file must have a .csv extension")
	ErrNoSession   = errors.New("no authenticated session")
)

const jobStatusTTL = 30 * time.Minute

// SubmitInput carries one file submission.
type SubmitInput struct {
	UserID   uuid.UUID
	FileName string
	Content  []byte
}

// Service orchestrates the upload pipeline.
type Service struct {
	store    store.Store
	blobs    blobstore.Store
	forecast forecast.Client
	cache    cache.Cache

	maxAttempts int
	retryDelay  time.Duration
	timeout     time.Duration

	inflight sync.WaitGroup
}

// NewService creates a pipeline Service. maxAttempts and retryDelay bound the
// forecast-service retry loop; timeout bounds one whole background processing run.
func NewService(st store.Store, blobs blobstore.Store, fc forecast.Client, ca cache.Cache, maxAttempts int, retryDelay, timeout time.Duration) *Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Service{
		store:       st,
		blobs:       blobs,
		forecast:    fc,
		cache:       ca,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		timeout:     timeout,
	}
}

// Submit validates the file, uploads it to the object store, creates the job
// record with status processing, and dispatches the forecast call in a
// background goroutine. It returns the created record immediately; callers
// poll for the terminal state.
//
// Failure ordering matters: a validation or storage failure must leave no job
// record behind, and a record is only ever created after its bytes are stored.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.ForecastJob, error) {
	if in.UserID == uuid.Nil {
		return nil, ErrNoSession
	}
	if !strings.EqualFold(path.Ext(in.FileName), ".csv") {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidFile, in.FileName)
	}

	key := StorageKey(in.FileName, time.Now().UTC())
	err := retry.Do(ctx, s.maxAttempts, s.retryDelay, blobstore.Retryable, func() error {
		_, err := s.blobs.Upload(ctx, key, bytes.NewReader(in.Content), "text/csv")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}

	now := time.Now().UTC()
	userID := in.UserID
	job := &models.ForecastJob{
		ID:            uuid.New(),
		UserID:        &userID,
		InputFilePath: key,
		Status:        models.StatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateForecastJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	_ = s.cache.SetJobStatus(ctx, job.ID, models.StatusProcessing, jobStatusTTL)
	_ = s.cache.Set(ctx, cache.LatestJobKey(in.UserID), []byte(job.ID.String()), jobStatusTTL)

	s.inflight.Add(1)
	go s.process(job, string(in.Content))

	return job, nil
}

// Wait blocks until all in-flight background runs have finished. Used on
// shutdown and in tests.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// process calls the forecast service and records the terminal outcome. It
// recovers from panics so a job never stays processing with no writer left.
func (s *Service) process(job *models.ForecastJob, fileContent string) {
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in forecast processing", "error", r, "job_id", job.ID)
			s.finish(job, models.StatusError, models.ErrorResults(fmt.Errorf("panic: %v", r)))
		}
	}()

	results, err := retry.DoValue(ctx, s.maxAttempts, s.retryDelay, forecast.Retryable, func() (*models.JobResults, error) {
		return s.forecast.Process(ctx, fileContent)
	})
	if err != nil {
		slog.Error("forecast processing failed", "job_id", job.ID, "file", job.InputFilePath, "error", err)
		s.finish(job, models.StatusError, models.ErrorResults(err))
		return
	}

	s.finish(job, models.StatusCompleted, results)
	slog.Info("forecast processing completed", "job_id", job.ID, "file", job.InputFilePath)
}

// finish performs the single terminal write, results and status together.
// The write is best-effort: if it fails the failure is logged, never allowed
// to mask the outcome already decided.
func (s *Service) finish(job *models.ForecastJob, status models.JobStatus, results *models.JobResults) {
	// Fresh context: the processing context may already be expired, and a job
	// stuck in processing is worse than a late update.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.FinishForecastJob(ctx, job.InputFilePath, status, results); err != nil {
		slog.Error("recording terminal job status failed",
			"job_id", job.ID, "file", job.InputFilePath, "status", status, "error", err)
		return
	}
	_ = s.cache.SetJobStatus(ctx, job.ID, status, jobStatusTTL)

	// Terminal rows are immutable, so the full record can be cached for poll
	// reads. The updated_at here trails the database's by the write latency,
	// which the TTL papers over.
	job.Status = status
	job.Results = results
	job.UpdatedAt = time.Now().UTC()
	if payload, err := json.Marshal(job); err == nil {
		_ = s.cache.Set(ctx, cache.JobRecordKey(job.ID), payload, jobStatusTTL)
	}
}

// StorageKey derives a collision-free object key for an uploaded file:
// a millisecond timestamp prefix plus the sanitized original name.
func StorageKey(fileName string, now time.Time) string {
	return fmt.Sprintf("inputs/%d-%s", now.UnixMilli(), SanitizeFileName(fileName))
}

// SanitizeFileName strips everything outside [A-Za-z0-9._-] so the original
// name survives as a storage key segment. Non-ASCII runes are dropped.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "upload.csv"
	}
	return b.String()
}
