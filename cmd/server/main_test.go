package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecastify/api/internal/cache"
	"github.com/forecastify/api/internal/store"
	"github.com/forecastify/api/pkg/models"
)

type pingStore struct {
	store.Store

	err error
}

func (s *pingStore) Ping(context.Context) error { return s.err }

type pingCache struct {
	cache.Cache

	err error
}

func (c *pingCache) Ping(context.Context) error { return c.err }

func (c *pingCache) SetJobStatus(context.Context, uuid.UUID, models.JobStatus, time.Duration) error {
	return nil
}

type pingForecast struct {
	err error
}

func (f *pingForecast) Process(context.Context, string) (*models.JobResults, error) {
	return nil, errors.New("not used")
}

func (f *pingForecast) Health(context.Context) error { return f.err }

func TestHealthHandler_AllHealthy(t *testing.T) {
	h := healthHandler(&pingStore{}, &pingCache{}, &pingForecast{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Data struct {
			Status   string            `json:"status"`
			Services map[string]string `json:"services"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "ok", env.Data.Status)
	assert.Equal(t, "ok", env.Data.Services["forecast"])
}

func TestHealthHandler_Degraded(t *testing.T) {
	tests := []struct {
		name     string
		store    error
		cache    error
		forecast error
		degraded string
	}{
		{"database down", errors.New("conn refused"), nil, nil, "database"},
		{"cache down", nil, errors.New("conn refused"), nil, "cache"},
		{"forecast down", nil, nil, errors.New("timeout"), "forecast"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := healthHandler(&pingStore{err: tt.store}, &pingCache{err: tt.cache}, &pingForecast{err: tt.forecast})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			rec := httptest.NewRecorder()
			h(rec, req)

			require.Equal(t, http.StatusServiceUnavailable, rec.Code)

			var env struct {
				Error struct {
					Code    string            `json:"code"`
					Details map[string]string `json:"details"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, "DEGRADED", env.Error.Code)
			assert.Equal(t, "degraded", env.Error.Details[tt.degraded])
		})
	}
}
