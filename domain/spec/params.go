package spec

import (
	"fmt"
	"math"
	"sort"

	"hypocycle/domain/core"
)

// Field paths that a sweep may vary.
const (
	FieldCellDensity        = "biological_context.cell_density"
	FieldCultureAge         = "biological_context.culture_age"
	FieldPassageNumber      = "biological_context.passage_number"
	FieldCO2Percentage      = "culture_conditions.co2_percentage"
	FieldTemperatureCelsius = "culture_conditions.temperature_celsius"
	FieldFixationDuration   = "sample_preparation.fixation_duration"
)

type parameter struct {
	get     func(*SampleSpecification) float64
	set     func(*SampleSpecification, float64)
	integer bool
}

var parameters = map[string]parameter{
	FieldCellDensity: {
		get: func(s *SampleSpecification) float64 { return s.BiologicalContext.CellDensity },
		set: func(s *SampleSpecification, v float64) { s.BiologicalContext.CellDensity = v },
	},
	FieldCultureAge: {
		get: func(s *SampleSpecification) float64 { return s.BiologicalContext.CultureAge },
		set: func(s *SampleSpecification, v float64) { s.BiologicalContext.CultureAge = v },
	},
	FieldPassageNumber: {
		get:     func(s *SampleSpecification) float64 { return float64(s.BiologicalContext.PassageNumber) },
		set:     func(s *SampleSpecification, v float64) { s.BiologicalContext.PassageNumber = int(v) },
		integer: true,
	},
	FieldCO2Percentage: {
		get: func(s *SampleSpecification) float64 { return s.CultureConditions.CO2Percentage },
		set: func(s *SampleSpecification, v float64) { s.CultureConditions.CO2Percentage = v },
	},
	FieldTemperatureCelsius: {
		get: func(s *SampleSpecification) float64 { return s.CultureConditions.TemperatureCelsius },
		set: func(s *SampleSpecification, v float64) { s.CultureConditions.TemperatureCelsius = v },
	},
	FieldFixationDuration: {
		get:     func(s *SampleSpecification) float64 { return float64(s.SamplePreparation.FixationDuration) },
		set:     func(s *SampleSpecification, v float64) { s.SamplePreparation.FixationDuration = int(v) },
		integer: true,
	},
}

// SweepableFields returns the field paths a sweep plan may vary, sorted.
func SweepableFields() []string {
	fields := make([]string, 0, len(parameters))
	for f := range parameters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// IsSweepable reports whether field can be varied by a sweep plan.
func IsSweepable(field string) bool {
	_, ok := parameters[field]
	return ok
}

// Parameter reads a sweepable numeric field.
func (s SampleSpecification) Parameter(field string) (float64, error) {
	p, ok := parameters[field]
	if !ok {
		return 0, core.NewSchemaViolation(field, "one of the sweepable fields", "unknown field")
	}
	return p.get(&s), nil
}

// WithParameter builds a fresh spec from the receiver's fields with one field
// overridden. The receiver is never modified.
func (s SampleSpecification) WithParameter(field string, value float64) (SampleSpecification, error) {
	p, ok := parameters[field]
	if !ok {
		return SampleSpecification{}, core.NewSchemaViolation(field, "one of the sweepable fields", "unknown field")
	}
	if p.integer && value != math.Trunc(value) {
		return SampleSpecification{}, core.NewSchemaViolation(field, "integer value", fmt.Sprintf("%g", value))
	}
	out := s.Clone()
	p.set(&out, value)
	return out, nil
}

// VaryingFields returns the sweepable fields whose values differ across the
// batch, sorted.
func VaryingFields(batch []SampleSpecification) []string {
	if len(batch) < 2 {
		return nil
	}
	var varying []string
	for _, field := range SweepableFields() {
		p := parameters[field]
		first := p.get(&batch[0])
		for i := 1; i < len(batch); i++ {
			if p.get(&batch[i]) != first {
				varying = append(varying, field)
				break
			}
		}
	}
	return varying
}
