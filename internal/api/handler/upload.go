package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/forecastify/api/internal/api/middleware"
	"github.com/forecastify/api/internal/api/response"
	"github.com/forecastify/api/internal/blobstore"
	"github.com/forecastify/api/internal/pipeline"
	"github.com/forecastify/api/internal/store"
	"github.com/forecastify/api/pkg/models"
)

// maxUploadBytes bounds one CSV upload (20 MiB).
const maxUploadBytes = 20 << 20

// Submitter is the pipeline interface the upload handler depends on.
type Submitter interface {
	Submit(ctx context.Context, in pipeline.SubmitInput) (*models.ForecastJob, error)
}

// NewUploadHandler returns an http.HandlerFunc for POST /api/v1/forecasts.
// It accepts a multipart form with a single "file" part and responds 202 with
// the created job; the client polls for the terminal state.
func NewUploadHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing session", nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				`Multipart form must carry a "file" part`, nil)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read uploaded file", nil)
			return
		}
		if len(content) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_FILE", "Uploaded file is empty", nil)
			return
		}

		job, err := svc.Submit(r.Context(), pipeline.SubmitInput{
			UserID:   userID,
			FileName: header.Filename,
			Content:  content,
		})
		if err != nil {
			switch {
			case errors.Is(err, pipeline.ErrInvalidFile):
				response.Error(w, http.StatusBadRequest, "INVALID_FILE",
					"Only .csv files are accepted", nil)
			case errors.Is(err, pipeline.ErrNoSession):
				response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing session", nil)
			case errors.Is(err, blobstore.ErrUnreachable), errors.Is(err, blobstore.ErrTimeout),
				errors.Is(err, blobstore.ErrRejected):
				response.Error(w, http.StatusBadGateway, "STORAGE_ERROR",
					"Storing the uploaded file failed", nil)
			case errors.Is(err, store.ErrDuplicateKey):
				response.Error(w, http.StatusConflict, "DUPLICATE_SUBMISSION",
					"A job already exists for this file", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.Accepted(w, job)
	}
}
