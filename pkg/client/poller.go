package client

import (
	"context"
	"errors"
	"time"

	"github.com/forecastify/api/pkg/models"
)

// DefaultPollInterval is how often the poller re-reads while a job is processing.
const DefaultPollInterval = 5 * time.Second

// ViewState is what a display should render for the current poll snapshot.
type ViewState int

const (
	// StateLoading: nothing fetched successfully yet.
	StateLoading ViewState = iota
	// StateEmpty: no job has ever been submitted.
	StateEmpty
	// StateProcessing: a job exists but has no usable results yet.
	StateProcessing
	// StateCompleted: the job finished and carries a full forecast.
	StateCompleted
	// StateError: the job finished with an error payload.
	StateError
)

func (s ViewState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateEmpty:
		return "empty"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Snapshot is one observation of the latest job.
type Snapshot struct {
	State ViewState
	Job   *models.ForecastJob
	Err   error
}

// JobReader fetches the most recently created job. *Client satisfies it.
type JobReader interface {
	Latest(ctx context.Context) (*models.ForecastJob, error)
}

// Poller re-reads the latest job at a fixed interval until it observes a
// terminal status, then stops on its own. Cancelling the context stops it
// early; either way the snapshot channel is closed and the timer released.
type Poller struct {
	reader   JobReader
	interval time.Duration
}

// NewPoller creates a Poller. A non-positive interval falls back to
// DefaultPollInterval.
func NewPoller(r JobReader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{reader: r, interval: interval}
}

// Watch reads immediately, then on every tick, emitting one Snapshot per
// read. It returns a channel that is closed after the first terminal
// observation or when ctx is cancelled. No reads happen after a terminal
// snapshot.
func (p *Poller) Watch(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			snap := p.read(ctx)
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
			if snap.Job != nil && snap.Job.Status.Terminal() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

// Wait consumes Watch until the job is terminal and returns it.
func (p *Poller) Wait(ctx context.Context) (*models.ForecastJob, error) {
	var last Snapshot
	for snap := range p.Watch(ctx) {
		last = snap
	}
	if last.Job != nil && last.Job.Status.Terminal() {
		return last.Job, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, last.Err
}

func (p *Poller) read(ctx context.Context) Snapshot {
	job, err := p.reader.Latest(ctx)
	return Snapshot{State: stateOf(job, err), Job: job, Err: err}
}

// stateOf maps an observation to a display state. The mapping is defensive:
// a completed job whose results are missing or partially shaped renders as
// "processing" (no results yet) rather than crashing on nested fields.
func stateOf(job *models.ForecastJob, err error) ViewState {
	if errors.Is(err, ErrNoForecasts) {
		return StateEmpty
	}
	if err != nil || job == nil {
		return StateLoading
	}

	switch job.Status {
	case models.StatusProcessing:
		return StateProcessing
	case models.StatusError:
		return StateError
	case models.StatusCompleted:
		if !job.Results.HasForecast() {
			return StateProcessing
		}
		return StateCompleted
	}
	return StateLoading
}
