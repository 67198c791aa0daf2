package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/forecastify/api/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrJobFinished is returned when a terminal update targets a job that is
// already completed or errored. Terminal states absorb; the first writer wins.
var ErrJobFinished = errors.New("job already finished")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultUser(ctx context.Context) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateForecastJob(ctx context.Context, job *models.ForecastJob) error
	GetForecastJob(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.ForecastJob, error)
	LatestForecastJob(ctx context.Context, userID uuid.UUID) (*models.ForecastJob, error)
	FinishForecastJob(ctx context.Context, inputFilePath string, status models.JobStatus, results *models.JobResults) error
}
