package spec

import "hypocycle/domain/core"

// SchemaVersion is the version every produced SampleSpecification declares.
const SchemaVersion = "1.0.0"

// SampleSpecification is a versioned, structured description of one
// experimental unit. Values are treated as immutable once produced; use
// Clone or WithParameter to derive a new spec.
type SampleSpecification struct {
	SchemaVersion     string            `json:"schema_version" yaml:"schema_version"`
	SampleID          core.SampleID     `json:"sample_id" yaml:"sample_id"`
	Ordinal           int               `json:"ordinal,omitempty" yaml:"ordinal,omitempty"`
	VaryingField      string            `json:"varying_field,omitempty" yaml:"varying_field,omitempty"`
	MeasurementScale  float64           `json:"measurement_scale,omitempty" yaml:"measurement_scale,omitempty"`
	BiologicalContext BiologicalContext `json:"biological_context" yaml:"biological_context"`
	CultureConditions CultureConditions `json:"culture_conditions" yaml:"culture_conditions"`
	Treatments        Treatments        `json:"treatments" yaml:"treatments"`
	SamplePreparation SamplePreparation `json:"sample_preparation" yaml:"sample_preparation"`
	StainingProtocol  StainingProtocol  `json:"staining_protocol" yaml:"staining_protocol"`
	ImagingParameters ImagingParameters `json:"imaging_parameters" yaml:"imaging_parameters"`
}

// BiologicalContext describes the cells under study.
type BiologicalContext struct {
	CellLine      string  `json:"cell_line" yaml:"cell_line"`
	PassageNumber int     `json:"passage_number" yaml:"passage_number"`
	CultureAge    float64 `json:"culture_age" yaml:"culture_age"`   // hours
	CellDensity   float64 `json:"cell_density" yaml:"cell_density"` // cells/cm²
}

type CultureConditions struct {
	MediaType          string   `json:"media_type" yaml:"media_type"`
	MediaSupplements   []string `json:"media_supplements" yaml:"media_supplements"`
	CO2Percentage      float64  `json:"co2_percentage" yaml:"co2_percentage"`
	TemperatureCelsius float64  `json:"temperature_celsius" yaml:"temperature_celsius"`
}

type Treatments struct {
	Compounds             []Compound             `json:"compounds" yaml:"compounds"`
	PhysicalPerturbations []PhysicalPerturbation `json:"physical_perturbations" yaml:"physical_perturbations"`
}

type Compound struct {
	Name            string  `json:"name" yaml:"name"`
	Concentration   float64 `json:"concentration" yaml:"concentration"`
	Unit            string  `json:"unit" yaml:"unit"`
	DurationMinutes int     `json:"duration_minutes" yaml:"duration_minutes"`
}

type PhysicalPerturbation struct {
	Kind      string  `json:"kind" yaml:"kind"`
	Magnitude float64 `json:"magnitude" yaml:"magnitude"`
	Unit      string  `json:"unit" yaml:"unit"`
}

type SamplePreparation struct {
	FixationMethod   string `json:"fixation_method" yaml:"fixation_method"`
	FixationDuration int    `json:"fixation_duration" yaml:"fixation_duration"` // minutes
	Permeabilization bool   `json:"permeabilization" yaml:"permeabilization"`
	BlockingAgent    string `json:"blocking_agent" yaml:"blocking_agent"`
}

type StainingProtocol struct {
	PrimaryAntibodies   []PrimaryAntibody   `json:"primary_antibodies" yaml:"primary_antibodies"`
	SecondaryAntibodies []SecondaryAntibody `json:"secondary_antibodies" yaml:"secondary_antibodies"`
	NuclearStain        string              `json:"nuclear_stain" yaml:"nuclear_stain"`
}

type PrimaryAntibody struct {
	Target         string  `json:"target" yaml:"target"`
	Clone          string  `json:"clone" yaml:"clone"`
	Concentration  float64 `json:"concentration" yaml:"concentration"`
	IncubationTime int     `json:"incubation_time" yaml:"incubation_time"`
	Temperature    float64 `json:"temperature" yaml:"temperature"`
}

type SecondaryAntibody struct {
	Fluorophore    string  `json:"fluorophore" yaml:"fluorophore"`
	Concentration  float64 `json:"concentration" yaml:"concentration"`
	IncubationTime int     `json:"incubation_time" yaml:"incubation_time"`
}

type ImagingParameters struct {
	MicroscopeType         string    `json:"microscope_type" yaml:"microscope_type"`
	ObjectiveMagnification int       `json:"objective_magnification" yaml:"objective_magnification"`
	Channels               []Channel `json:"channels" yaml:"channels"`
}

// Channel is one excitation/emission pair, in nanometres.
type Channel struct {
	Name       string  `json:"name" yaml:"name"`
	Excitation float64 `json:"excitation" yaml:"excitation"`
	Emission   float64 `json:"emission" yaml:"emission"`
}

// Clone returns a deep, independent copy. Mutating slices of the copy never
// affects the receiver.
func (s SampleSpecification) Clone() SampleSpecification {
	out := s
	out.CultureConditions.MediaSupplements = cloneSlice(s.CultureConditions.MediaSupplements)
	out.Treatments.Compounds = cloneSlice(s.Treatments.Compounds)
	out.Treatments.PhysicalPerturbations = cloneSlice(s.Treatments.PhysicalPerturbations)
	out.StainingProtocol.PrimaryAntibodies = cloneSlice(s.StainingProtocol.PrimaryAntibodies)
	out.StainingProtocol.SecondaryAntibodies = cloneSlice(s.StainingProtocol.SecondaryAntibodies)
	out.ImagingParameters.Channels = cloneSlice(s.ImagingParameters.Channels)
	return out
}

// cloneSlice copies a slice of value types. Empty (but non-nil) slices stay
// non-nil so JSON keeps emitting [] instead of null.
func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
