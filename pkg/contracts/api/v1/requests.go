// Package api contains the request and response contracts of the prediction API.
// Version v1 represents the current stable API version.
package api

import (
	"sehatmap/pkg/contracts/domain"
)

// RunRequest starts a pipeline run. Years overrides the configured horizon.
type RunRequest struct {
	Years int `json:"years,omitempty" validate:"omitempty,min=1,max=50"`
}

// ImportStats counts the rows written to the store by a run
type ImportStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// RunResponse reports a finished run
type RunResponse struct {
	TraceID     string           `json:"trace_id"`
	Rows        int              `json:"rows"`
	Historical  int              `json:"historical_rows"`
	Forecast    int              `json:"forecast_rows"`
	TargetYears []int            `json:"target_years"`
	ModelState  string           `json:"model_state"`
	HoldoutR2   *float64         `json:"holdout_r2,omitempty"`
	GeoMatched  int              `json:"geo_matched"`
	Unmatched   []domain.RowKey  `json:"geo_unmatched,omitempty"`
	Fallbacks   []string         `json:"fallbacks"`
	OutputPath  string           `json:"output_path"`
	Imported    *ImportStats     `json:"imported,omitempty"`
	DurationMS  int64            `json:"duration_ms"`
	StageTimes  map[string]int64 `json:"stage_ms,omitempty"`
}

// DatasetResponse reports an accepted upload and the run it triggered
type DatasetResponse struct {
	Dataset string       `json:"dataset"`
	Bytes   int64        `json:"bytes"`
	Run     *RunResponse `json:"run"`
}

// MetaResponse lists the values available for filtering predictions
type MetaResponse struct {
	Years  []int    `json:"years"`
	Routes []string `json:"routes"`
}
