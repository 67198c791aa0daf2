package models

import (
	"fmt"
	"time"
)

const forecastHorizonDays = 7

// dateLayout is the wire format for all forecast dates (YYYY-MM-DD).
const dateLayout = "2006-01-02"

// Overview summarizes the uploaded dataset as computed by the forecast service.
type Overview struct {
	MinDate          string   `json:"minDate"`
	MaxDate          string   `json:"maxDate"`
	DataCoverageDays int      `json:"dataCoverageDays"`
	TotalRows        int      `json:"totalRows"`
	Partners         []string `json:"partners"`
}

// Validate checks field ranges and date formats.
func (o *Overview) Validate() error {
	if _, err := time.Parse(dateLayout, o.MinDate); err != nil {
		return fmt.Errorf("overview minDate %q: %w", o.MinDate, err)
	}
	if _, err := time.Parse(dateLayout, o.MaxDate); err != nil {
		return fmt.Errorf("overview maxDate %q: %w", o.MaxDate, err)
	}
	if o.DataCoverageDays < 0 {
		return fmt.Errorf("overview dataCoverageDays must be >= 0, got %d", o.DataCoverageDays)
	}
	if o.TotalRows < 0 {
		return fmt.Errorf("overview totalRows must be >= 0, got %d", o.TotalRows)
	}
	return nil
}

// ForecastDay is one predicted data point.
type ForecastDay struct {
	Date      string  `json:"date"`
	Predicted float64 `json:"predicted"`
}

// Forecast carries the 7-day prediction returned by the forecast service.
type Forecast struct {
	NextSevenDays []ForecastDay `json:"nextSevenDays"`
}

// Validate enforces the wire contract: exactly 7 entries in strictly
// ascending date order. Anything else is a malformed response.
func (f *Forecast) Validate() error {
	if len(f.NextSevenDays) != forecastHorizonDays {
		return fmt.Errorf("forecast must have exactly %d days, got %d", forecastHorizonDays, len(f.NextSevenDays))
	}
	var prev time.Time
	for i, day := range f.NextSevenDays {
		d, err := time.Parse(dateLayout, day.Date)
		if err != nil {
			return fmt.Errorf("forecast day %d date %q: %w", i, day.Date, err)
		}
		if i > 0 && !d.After(prev) {
			return fmt.Errorf("forecast dates not ascending at index %d (%s after %s)", i, day.Date, f.NextSevenDays[i-1].Date)
		}
		prev = d
	}
	return nil
}
