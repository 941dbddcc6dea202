package live

import (
	"hypocycle/domain/core"
	"hypocycle/domain/spec"
)

// MeasurementsPath is the instrument endpoint that accepts a batch.
const MeasurementsPath = "/v1/measurements"

// MeasurementRequest is the body POSTed to the lab automation system.
type MeasurementRequest struct {
	SchemaVersion string                     `json:"schema_version"`
	Samples       []spec.SampleSpecification `json:"samples"`
}

// MeasurementResponse carries one entry per sample, in Results or Errors.
type MeasurementResponse struct {
	Results map[core.SampleID]float64 `json:"results"`
	Errors  map[core.SampleID]string  `json:"errors,omitempty"`
}

// ErrorResponse is returned with non-2xx statuses.
type ErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Got      string `json:"got,omitempty"`
}
