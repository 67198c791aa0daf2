package handler

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forecastify/api/internal/api/middleware"
	"github.com/forecastify/api/internal/api/response"
	"github.com/forecastify/api/internal/blobstore"
	"github.com/forecastify/api/internal/store"
	"github.com/forecastify/api/pkg/models"
)

// NewExportHandler returns an http.HandlerFunc for
// POST /api/v1/forecasts/{jobID}/export. It renders a completed job's results
// to CSV, uploads the file to the object store under exports/, and returns a
// public download URL.
func NewExportHandler(st ForecastReader, blobs blobstore.Store) http.HandlerFunc {
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

		if job.Status != models.StatusCompleted || !job.Results.HasForecast() {
			response.Error(w, http.StatusConflict, "NOT_READY",
				"Forecast results are not available for this job", nil)
			return
		}

		content, err := renderCSV(job.Results)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Rendering results failed", nil)
			return
		}

		// Scope the key to the job so concurrent exports cannot collide and
		// one user's export path cannot be derived from another's.
		key := fmt.Sprintf("exports/%s_%d.csv", job.ID, time.Now().UnixMilli())
		if _, err := blobs.Upload(r.Context(), key, bytes.NewReader(content), "text/csv"); err != nil {
			response.Error(w, http.StatusBadGateway, "STORAGE_ERROR",
				"Storing the export failed", nil)
			return
		}

		response.JSON(w, map[string]string{
			"download_url": blobs.PublicURL(key),
		})
	}
}

// renderCSV writes the overview block followed by the 7-day prediction table.
func renderCSV(results *models.JobResults) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	o := results.Overview
	rows := [][]string{
		{"min_date", o.MinDate},
		{"max_date", o.MaxDate},
		{"data_coverage_days", strconv.Itoa(o.DataCoverageDays)},
		{"total_rows", strconv.Itoa(o.TotalRows)},
		{"partners", strings.Join(o.Partners, ";")},
		{},
		{"date", "predicted"},
	}
	for _, day := range results.Forecast.NextSevenDays {
		rows = append(rows, []string{day.Date, strconv.FormatFloat(day.Predicted, 'f', -1, 64)})
	}

	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
