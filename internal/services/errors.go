package services

import "errors"

// Prediction service errors
var (
	// ErrRunInProgress is returned when a run is requested while another is executing
	ErrRunInProgress = errors.New("forecast run already in progress")

	// ErrInvalidFileType is returned for uploads that are neither CSV nor spreadsheets
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrStoreDisabled is returned by queries when no prediction store is configured
	ErrStoreDisabled = errors.New("prediction store disabled")
)
