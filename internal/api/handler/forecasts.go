package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forecastify/api/internal/api/middleware"
	"github.com/forecastify/api/internal/api/response"
	"github.com/forecastify/api/internal/cache"
	"github.com/forecastify/api/internal/store"
	"github.com/forecastify/api/pkg/models"
)

// cachedRecordTTL bounds the backfilled terminal-record entries written by
// the read path. Matches the pipeline's job-status TTL.
const cachedRecordTTL = 30 * time.Minute

// ForecastReader is the store subset the poll handlers depend on.
type ForecastReader interface {
	GetForecastJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.ForecastJob, error)
	LatestForecastJob(ctx context.Context, userID uuid.UUID) (*models.ForecastJob, error)
}

// JobCache is the cache subset the poll handlers depend on. cache.Cache
// satisfies it.
type JobCache interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (models.JobStatus, bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NewLatestForecastHandler returns an http.HandlerFunc for
// GET /api/v1/forecasts/latest, the fixed poll target: the caller's most
// recently created job, or 404 NO_FORECASTS when none exists yet.
// Terminal jobs are served from cache when possible so polling after
// completion stays off postgres.
func NewLatestForecastHandler(st ForecastReader, ca JobCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing session", nil)
			return
		}

		if jobID, ok := cachedLatestJobID(r.Context(), ca, userID); ok {
			if job, ok := cachedTerminalJob(r.Context(), ca, jobID, userID); ok {
				response.JSON(w, job)
				return
			}
		}

		job, err := st.LatestForecastJob(r.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NO_FORECASTS",
				"No forecasts have been submitted yet", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		backfillTerminalJob(r.Context(), ca, job)
		response.JSON(w, job)
	}
}

// NewGetForecastHandler returns an http.HandlerFunc for
// GET /api/v1/forecasts/{jobID}. Lookup is owner-scoped; a job belonging to
// another user is indistinguishable from a missing one.
func NewGetForecastHandler(st ForecastReader, ca JobCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing session", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		if job, ok := cachedTerminalJob(r.Context(), ca, jobID, userID); ok {
			response.JSON(w, job)
			return
		}

		job, err := st.GetForecastJob(r.Context(), jobID, userID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Forecast job not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		backfillTerminalJob(r.Context(), ca, job)
		response.JSON(w, job)
	}
}

// cachedLatestJobID resolves the user's most recent job ID from cache.
func cachedLatestJobID(ctx context.Context, ca JobCache, userID uuid.UUID) (uuid.UUID, bool) {
	data, found, err := ca.Get(ctx, cache.LatestJobKey(userID))
	if err != nil || !found {
		return uuid.Nil, false
	}
	jobID, err := uuid.Parse(string(data))
	if err != nil {
		_ = ca.Delete(ctx, cache.LatestJobKey(userID))
		return uuid.Nil, false
	}
	return jobID, true
}

// cachedTerminalJob serves a job from cache only once its cached status is
// terminal. Terminal rows are immutable, so a hit can never be stale; while
// the status is still processing the database stays authoritative.
func cachedTerminalJob(ctx context.Context, ca JobCache, jobID, userID uuid.UUID) (*models.ForecastJob, bool) {
	status, found, err := ca.GetJobStatus(ctx, jobID)
	if err != nil || !found || !status.Terminal() {
		return nil, false
	}

	data, found, err := ca.Get(ctx, cache.JobRecordKey(jobID))
	if err != nil || !found {
		return nil, false
	}

	var job models.ForecastJob
	if err := json.Unmarshal(data, &job); err != nil {
		_ = ca.Delete(ctx, cache.JobRecordKey(jobID))
		return nil, false
	}
	// Ownership check: the cache is keyed by job ID alone.
	if job.UserID == nil || *job.UserID != userID {
		return nil, false
	}
	return &job, true
}

// backfillTerminalJob caches a terminal row read from postgres so the next
// poll is a cache hit.
func backfillTerminalJob(ctx context.Context, ca JobCache, job *models.ForecastJob) {
	if !job.Status.Terminal() {
		return
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return
	}
	_ = ca.Set(ctx, cache.JobRecordKey(job.ID), payload, cachedRecordTTL)
}
