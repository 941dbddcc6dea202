package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"hypocycle/domain/core"
)

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// requiredKeys lists the keys every serialized spec must carry, per section.
// The empty section is the document root.
var requiredKeys = map[string][]string{
	"": {
		"schema_version", "sample_id", "biological_context", "culture_conditions",
		"treatments", "sample_preparation", "staining_protocol", "imaging_parameters",
	},
	"biological_context": {"cell_line", "passage_number", "culture_age", "cell_density"},
	"culture_conditions": {"media_type", "media_supplements", "co2_percentage", "temperature_celsius"},
	"treatments":         {"compounds", "physical_perturbations"},
	"sample_preparation": {"fixation_method", "fixation_duration", "permeabilization", "blocking_agent"},
	"staining_protocol":  {"primary_antibodies", "secondary_antibodies", "nuclear_stain"},
	"imaging_parameters": {"microscope_type", "objective_magnification", "channels"},
}

// CheckVersion rejects specs produced for a different schema version. A
// mismatch is a SchemaViolation, never a best-effort parse.
func CheckVersion(version string) error {
	if version == "" {
		return core.NewSchemaViolation("schema_version", "semantic version "+SchemaVersion, "missing")
	}
	if !semverPattern.MatchString(version) {
		return core.NewSchemaViolation("schema_version", "semantic version MAJOR.MINOR.PATCH", version)
	}
	if version != SchemaVersion {
		return core.NewSchemaViolation("schema_version", SchemaVersion, version)
	}
	return nil
}

// Validate performs the pure structural check. It returns the first
// violation found as a *core.SchemaViolationError.
func Validate(s SampleSpecification) error {
	if err := CheckVersion(s.SchemaVersion); err != nil {
		return err
	}
	if strings.TrimSpace(string(s.SampleID)) == "" {
		return core.NewSchemaViolation("sample_id", "non-empty string", "")
	}
	if s.Ordinal < 0 {
		return violation("ordinal", "integer >= 0", s.Ordinal)
	}
	if s.VaryingField != "" && !IsSweepable(s.VaryingField) {
		return violation("varying_field", "one of "+strings.Join(SweepableFields(), ", "), s.VaryingField)
	}
	if s.MeasurementScale < 0 || math.IsNaN(s.MeasurementScale) || math.IsInf(s.MeasurementScale, 0) {
		return violation("measurement_scale", "finite number >= 0", s.MeasurementScale)
	}

	checks := []func(SampleSpecification) error{
		validateBiologicalContext,
		validateCultureConditions,
		validateTreatments,
		validateSamplePreparation,
		validateStaining,
		validateImaging,
		validateConsistency,
	}
	for _, check := range checks {
		if err := check(s); err != nil {
			return err
		}
	}
	return nil
}

func validateBiologicalContext(s SampleSpecification) error {
	bc := s.BiologicalContext
	switch {
	case strings.TrimSpace(bc.CellLine) == "":
		return core.NewSchemaViolation("biological_context.cell_line", "non-empty string", "")
	case bc.PassageNumber < 0:
		return violation("biological_context.passage_number", "integer >= 0", bc.PassageNumber)
	case !positive(bc.CultureAge):
		return violation("biological_context.culture_age", "hours > 0", bc.CultureAge)
	case !positive(bc.CellDensity):
		return violation("biological_context.cell_density", "cells/cm² > 0", bc.CellDensity)
	}
	return nil
}

func validateCultureConditions(s SampleSpecification) error {
	cc := s.CultureConditions
	if strings.TrimSpace(cc.MediaType) == "" {
		return core.NewSchemaViolation("culture_conditions.media_type", "non-empty string", "")
	}
	if cc.MediaSupplements == nil {
		return core.NewSchemaViolation("culture_conditions.media_supplements", "list of strings", "null")
	}
	for i, supplement := range cc.MediaSupplements {
		if strings.TrimSpace(supplement) == "" {
			return core.NewSchemaViolation(fmt.Sprintf("culture_conditions.media_supplements[%d]", i), "non-empty string", "")
		}
	}
	if !(cc.CO2Percentage >= 0 && cc.CO2Percentage <= 100) {
		return violation("culture_conditions.co2_percentage", "percentage in [0, 100]", cc.CO2Percentage)
	}
	if !positive(cc.TemperatureCelsius) {
		return violation("culture_conditions.temperature_celsius", "degrees > 0", cc.TemperatureCelsius)
	}
	return nil
}

func validateTreatments(s SampleSpecification) error {
	t := s.Treatments
	if t.Compounds == nil {
		return core.NewSchemaViolation("treatments.compounds", "list of {name, concentration, unit}", "null")
	}
	if t.PhysicalPerturbations == nil {
		return core.NewSchemaViolation("treatments.physical_perturbations", "list of {kind, magnitude, unit}", "null")
	}
	for i, c := range t.Compounds {
		field := fmt.Sprintf("treatments.compounds[%d]", i)
		if strings.TrimSpace(c.Name) == "" {
			return core.NewSchemaViolation(field+".name", "non-empty string", "")
		}
		if !positive(c.Concentration) {
			return violation(field+".concentration", "number > 0", c.Concentration)
		}
	}
	for i, p := range t.PhysicalPerturbations {
		if strings.TrimSpace(p.Kind) == "" {
			return core.NewSchemaViolation(fmt.Sprintf("treatments.physical_perturbations[%d].kind", i), "non-empty string", "")
		}
	}
	return nil
}

func validateSamplePreparation(s SampleSpecification) error {
	sp := s.SamplePreparation
	if strings.TrimSpace(sp.FixationMethod) == "" {
		return core.NewSchemaViolation("sample_preparation.fixation_method", "non-empty string", "")
	}
	if sp.FixationDuration <= 0 {
		return violation("sample_preparation.fixation_duration", "minutes > 0", sp.FixationDuration)
	}
	return nil
}

func validateStaining(s SampleSpecification) error {
	sp := s.StainingProtocol
	if len(sp.PrimaryAntibodies) == 0 {
		return core.NewSchemaViolation("staining_protocol.primary_antibodies", "at least one {target, concentration}", "empty")
	}
	for i, ab := range sp.PrimaryAntibodies {
		field := fmt.Sprintf("staining_protocol.primary_antibodies[%d]", i)
		if strings.TrimSpace(ab.Target) == "" {
			return core.NewSchemaViolation(field+".target", "non-empty string", "")
		}
		if !positive(ab.Concentration) {
			return violation(field+".concentration", "number > 0", ab.Concentration)
		}
		if ab.IncubationTime < 0 {
			return violation(field+".incubation_time", "minutes >= 0", ab.IncubationTime)
		}
	}
	if sp.SecondaryAntibodies == nil {
		return core.NewSchemaViolation("staining_protocol.secondary_antibodies", "list of {fluorophore, concentration}", "null")
	}
	for i, ab := range sp.SecondaryAntibodies {
		field := fmt.Sprintf("staining_protocol.secondary_antibodies[%d]", i)
		if strings.TrimSpace(ab.Fluorophore) == "" {
			return core.NewSchemaViolation(field+".fluorophore", "non-empty string", "")
		}
		if !positive(ab.Concentration) {
			return violation(field+".concentration", "number > 0", ab.Concentration)
		}
	}
	if strings.TrimSpace(sp.NuclearStain) == "" {
		return core.NewSchemaViolation("staining_protocol.nuclear_stain", "non-empty string", "")
	}
	return nil
}

func validateImaging(s SampleSpecification) error {
	ip := s.ImagingParameters
	if strings.TrimSpace(ip.MicroscopeType) == "" {
		return core.NewSchemaViolation("imaging_parameters.microscope_type", "non-empty string", "")
	}
	if ip.ObjectiveMagnification <= 0 {
		return violation("imaging_parameters.objective_magnification", "integer > 0", ip.ObjectiveMagnification)
	}
	if len(ip.Channels) == 0 {
		return core.NewSchemaViolation("imaging_parameters.channels", "at least one {name, excitation, emission}", "empty")
	}
	for i, ch := range ip.Channels {
		field := fmt.Sprintf("imaging_parameters.channels[%d]", i)
		if strings.TrimSpace(ch.Name) == "" {
			return core.NewSchemaViolation(field+".name", "non-empty string", "")
		}
		if !positive(ch.Excitation) {
			return violation(field+".excitation", "wavelength nm > 0", ch.Excitation)
		}
		if !positive(ch.Emission) || ch.Emission <= ch.Excitation {
			return violation(field+".emission", fmt.Sprintf("wavelength nm > excitation (%g)", ch.Excitation), ch.Emission)
		}
	}
	return nil
}

// validateConsistency checks cross-section references: every dye applied to
// the sample must be imaged by some channel.
func validateConsistency(s SampleSpecification) error {
	channels := make(map[string]bool, len(s.ImagingParameters.Channels))
	for _, ch := range s.ImagingParameters.Channels {
		channels[strings.ToLower(ch.Name)] = true
	}
	for i, ab := range s.StainingProtocol.SecondaryAntibodies {
		if !channels[strings.ToLower(ab.Fluorophore)] {
			return core.NewSchemaViolation(
				fmt.Sprintf("staining_protocol.secondary_antibodies[%d].fluorophore", i),
				"fluorophore imaged by an imaging_parameters channel", ab.Fluorophore)
		}
	}
	if !channels[strings.ToLower(s.StainingProtocol.NuclearStain)] {
		return core.NewSchemaViolation("staining_protocol.nuclear_stain",
			"stain imaged by an imaging_parameters channel", s.StainingProtocol.NuclearStain)
	}
	return nil
}

// ValidateJSON checks a serialized candidate: required keys per section,
// value types, no unknown fields, then the structural rules of Validate.
func ValidateJSON(data []byte) (SampleSpecification, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return SampleSpecification{}, core.NewSchemaViolation("$", "JSON object", err.Error())
	}
	if err := checkRequiredKeys(root); err != nil {
		return SampleSpecification{}, err
	}

	var s SampleSpecification
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return SampleSpecification{}, core.NewSchemaViolation(typeErr.Field, typeErr.Type.String(), typeErr.Value)
		}
		return SampleSpecification{}, core.NewSchemaViolation("$", "known sample specification fields only", err.Error())
	}
	if err := Validate(s); err != nil {
		return SampleSpecification{}, err
	}
	return s, nil
}

func checkRequiredKeys(root map[string]json.RawMessage) error {
	for _, key := range requiredKeys[""] {
		if _, ok := root[key]; !ok {
			return core.NewSchemaViolation(key, "required key", "missing")
		}
	}
	for _, section := range requiredKeys[""][2:] {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(root[section], &nested); err != nil {
			return core.NewSchemaViolation(section, "object", string(root[section]))
		}
		for _, key := range requiredKeys[section] {
			if _, ok := nested[key]; !ok {
				return core.NewSchemaViolation(section+"."+key, "required key", "missing")
			}
		}
	}
	return nil
}

// positive rejects zero, negatives, NaN and infinities.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func violation(field, expected string, got any) error {
	return core.NewSchemaViolation(field, expected, fmt.Sprintf("%v", got))
}
