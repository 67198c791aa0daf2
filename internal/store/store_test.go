package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/forecastify/api/internal/store"
	"github.com/forecastify/api/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("forecastify_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// defaultUserID returns the UUID of the seeded default user.
func defaultUserID(t *testing.T, s store.Store) uuid.UUID {
	t.Helper()
	user, err := s.GetDefaultUser(context.Background())
	require.NoError(t, err)
	return user.ID
}

func newJob(userID uuid.UUID, inputFilePath string) *models.ForecastJob {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.ForecastJob{
		ID:            uuid.New(),
		UserID:        &userID,
		InputFilePath: inputFilePath,
		Status:        models.StatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func completedResults() *models.JobResults {
	days := make([]models.ForecastDay, 7)
	for i := range days {
		days[i] = models.ForecastDay{
			Date:      time.Date(2024, 4, i+1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			Predicted: float64(100 + i),
		}
	}
	return &models.JobResults{
		Overview: &models.Overview{MinDate: "2024-01-01", MaxDate: "2024-03-31", DataCoverageDays: 90, TotalRows: 4210, Partners: []string{"acme"}},
		Forecast: &models.Forecast{NextSevenDays: days},
	}
}

// --- User Tests ---

func TestGetDefaultUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	user, err := s.GetDefaultUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default@forecastify.local", user.Email)
	assert.NotEqual(t, uuid.Nil, user.ID)
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "test-key",
		KeyHash:   "bcrypt-hash-here",
		KeyPrefix: "fc_abcd1",
		Scopes:    []string{"upload", "read"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "fc_abcd1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, "test-key", keys[0].Name)
	assert.Equal(t, []string{"upload", "read"}, keys[0].Scopes)
}

func TestAPIKey_Revoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	now := time.Now().UTC().Truncate(time.Microsecond)
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "doomed",
		KeyHash:   "hash",
		KeyPrefix: "fc_dead1",
		Scopes:    []string{"read"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID, userID))

	// Revoked keys fall out of prefix lookup.
	keys, err := s.GetAPIKeyByPrefix(ctx, "fc_dead1")
	require.NoError(t, err)
	assert.Empty(t, keys)

	// Revoking twice is a not-found.
	assert.ErrorIs(t, s.RevokeAPIKey(ctx, key.ID, userID), store.ErrNotFound)
}

// --- Forecast Job Tests ---

func TestForecastJob_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	job := newJob(userID, "inputs/1700000000000-sales.csv")
	require.NoError(t, s.CreateForecastJob(ctx, job))

	// Poll while processing.
	got, err := s.GetForecastJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Nil(t, got.Results)

	// Terminal write lands status and results together.
	results := completedResults()
	require.NoError(t, s.FinishForecastJob(ctx, job.InputFilePath, models.StatusCompleted, results))

	got, err = s.GetForecastJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.Results)
	assert.Len(t, got.Results.Forecast.NextSevenDays, 7)
	assert.Equal(t, 4210, got.Results.Overview.TotalRows)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestForecastJob_FinishIsFirstWriterWins(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	job := newJob(userID, "inputs/1700000000001-sales.csv")
	require.NoError(t, s.CreateForecastJob(ctx, job))

	require.NoError(t, s.FinishForecastJob(ctx, job.InputFilePath, models.StatusError,
		&models.JobResults{Error: "forecast service unavailable"}))

	// A late completion must not overwrite the terminal state.
	err := s.FinishForecastJob(ctx, job.InputFilePath, models.StatusCompleted, completedResults())
	assert.ErrorIs(t, err, store.ErrJobFinished)

	got, err := s.GetForecastJob(ctx, job.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, "forecast service unavailable", got.Results.Error)
}

func TestForecastJob_FinishUnknownPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.FinishForecastJob(context.Background(), "inputs/never-created.csv",
		models.StatusCompleted, completedResults())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestForecastJob_FinishRejectsNonTerminalStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	err := s.FinishForecastJob(context.Background(), "inputs/whatever.csv",
		models.StatusProcessing, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transition")
}

func TestForecastJob_DuplicateInputPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	job := newJob(userID, "inputs/1700000000002-sales.csv")
	require.NoError(t, s.CreateForecastJob(ctx, job))

	dup := newJob(userID, job.InputFilePath)
	assert.ErrorIs(t, s.CreateForecastJob(ctx, dup), store.ErrDuplicateKey)
}

func TestForecastJob_Latest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := defaultUserID(t, s)

	_, err := s.LatestForecastJob(ctx, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	older := newJob(userID, "inputs/1700000000003-a.csv")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	older.UpdatedAt = older.CreatedAt
	require.NoError(t, s.CreateForecastJob(ctx, older))

	newer := newJob(userID, "inputs/1700000000004-b.csv")
	require.NoError(t, s.CreateForecastJob(ctx, newer))

	got, err := s.LatestForecastJob(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	// Jobs are owner-scoped.
	_, err = s.LatestForecastJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
