package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a forecast job. It is a closed set:
// processing is the only initial state, completed and error are terminal.
type JobStatus string

const (
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Valid reports whether s is one of the three known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransitionTo reports whether the s -> next transition is allowed.
// The only legal transitions are processing -> completed and processing -> error.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	return s == StatusProcessing && next.Terminal()
}

// ForecastJob tracks one CSV submission's lifecycle and outcome. The client
// uploads a file via POST /api/v1/forecasts and polls GET /api/v1/forecasts/latest
// until Status is terminal. Results is nil while Status is processing.
type ForecastJob struct {
	ID            uuid.UUID   `db:"id"              json:"id"`
	UserID        *uuid.UUID  `db:"user_id"         json:"user_id,omitempty"`
	InputFilePath string      `db:"input_file_path" json:"input_file_path"`
	Status        JobStatus   `db:"status"          json:"status"`
	Results       *JobResults `db:"results"         json:"results,omitempty"`
	CreatedAt     time.Time   `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"      json:"updated_at"`
}

// JobResults is the results column payload. On success Overview and Forecast
// are set; on failure Error carries the failure description instead.
type JobResults struct {
	Overview *Overview `json:"overview,omitempty"`
	Forecast *Forecast `json:"forecast,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// ErrorResults builds the payload stored when a job ends in the error state.
func ErrorResults(err error) *JobResults {
	return &JobResults{Error: err.Error()}
}

// HasForecast reports whether the payload carries a fully shaped forecast.
// Callers must treat a completed job without one as "no results yet" rather
// than dereferencing nested fields.
func (r *JobResults) HasForecast() bool {
	return r != nil && r.Overview != nil && r.Forecast != nil && len(r.Forecast.NextSevenDays) > 0
}

// Validate checks the full success shape. Error payloads are exempt.
func (r *JobResults) Validate() error {
	if r == nil {
		return fmt.Errorf("results payload is empty")
	}
	if r.Error != "" {
		return nil
	}
	if r.Overview == nil {
		return fmt.Errorf("results missing overview")
	}
	if err := r.Overview.Validate(); err != nil {
		return err
	}
	if r.Forecast == nil {
		return fmt.Errorf("results missing forecast")
	}
	return r.Forecast.Validate()
}
