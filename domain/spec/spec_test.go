package spec

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"hypocycle/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpec() SampleSpecification {
	return SampleSpecification{
		SchemaVersion: SchemaVersion,
		SampleID:      "p53_density_exp_1",
		Ordinal:       1,
		BiologicalContext: BiologicalContext{
			CellLine:      "HeLa",
			PassageNumber: 12,
			CultureAge:    24,
			CellDensity:   25000,
		},
		CultureConditions: CultureConditions{
			MediaType:          "DMEM",
			MediaSupplements:   []string{"10% FBS", "1% Pen/Strep"},
			CO2Percentage:      5,
			TemperatureCelsius: 37,
		},
		Treatments: Treatments{
			Compounds:             []Compound{},
			PhysicalPerturbations: []PhysicalPerturbation{},
		},
		SamplePreparation: SamplePreparation{
			FixationMethod:   "paraformaldehyde",
			FixationDuration: 15,
			Permeabilization: true,
			BlockingAgent:    "5% goat_serum",
		},
		StainingProtocol: StainingProtocol{
			PrimaryAntibodies: []PrimaryAntibody{
				{Target: "p53", Clone: "DO-1", Concentration: 1, IncubationTime: 60, Temperature: 4},
			},
			SecondaryAntibodies: []SecondaryAntibody{
				{Fluorophore: "Alexa488", Concentration: 2, IncubationTime: 45},
			},
			NuclearStain: "DAPI",
		},
		ImagingParameters: ImagingParameters{
			MicroscopeType:         "confocal",
			ObjectiveMagnification: 63,
			Channels: []Channel{
				{Name: "DAPI", Excitation: 405, Emission: 450},
				{Name: "Alexa488", Excitation: 488, Emission: 519},
			},
		},
	}
}

func requireViolation(t *testing.T, err error, field string) {
	t.Helper()
	var sv *core.SchemaViolationError
	require.True(t, errors.As(err, &sv), "expected SchemaViolationError, got %v", err)
	assert.Equal(t, field, sv.Field)
	assert.NotEmpty(t, sv.Expected)
}

func TestValidate_AcceptsReferenceSpec(t *testing.T) {
	assert.NoError(t, Validate(validSpec()))
}

func TestValidate_AcceptsMeasurementFields(t *testing.T) {
	s := validSpec()
	s.VaryingField = FieldCultureAge
	s.MeasurementScale = 0.5
	assert.NoError(t, Validate(s))
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SampleSpecification)
		field  string
	}{
		{"missing version", func(s *SampleSpecification) { s.SchemaVersion = "" }, "schema_version"},
		{"wrong version", func(s *SampleSpecification) { s.SchemaVersion = "2.0.0" }, "schema_version"},
		{"non semver", func(s *SampleSpecification) { s.SchemaVersion = "v1" }, "schema_version"},
		{"missing sample id", func(s *SampleSpecification) { s.SampleID = " " }, "sample_id"},
		{"missing cell line", func(s *SampleSpecification) { s.BiologicalContext.CellLine = "" }, "biological_context.cell_line"},
		{"zero density", func(s *SampleSpecification) { s.BiologicalContext.CellDensity = 0 }, "biological_context.cell_density"},
		{"NaN density", func(s *SampleSpecification) { s.BiologicalContext.CellDensity = math.NaN() }, "biological_context.cell_density"},
		{"co2 out of range", func(s *SampleSpecification) { s.CultureConditions.CO2Percentage = 140 }, "culture_conditions.co2_percentage"},
		{"null compounds", func(s *SampleSpecification) { s.Treatments.Compounds = nil }, "treatments.compounds"},
		{"compound without concentration", func(s *SampleSpecification) {
			s.Treatments.Compounds = []Compound{{Name: "nutlin-3"}}
		}, "treatments.compounds[0].concentration"},
		{"no fixation", func(s *SampleSpecification) { s.SamplePreparation.FixationMethod = "" }, "sample_preparation.fixation_method"},
		{"antibody without target", func(s *SampleSpecification) {
			s.StainingProtocol.PrimaryAntibodies[0].Target = ""
		}, "staining_protocol.primary_antibodies[0].target"},
		{"antibody without concentration", func(s *SampleSpecification) {
			s.StainingProtocol.PrimaryAntibodies[0].Concentration = 0
		}, "staining_protocol.primary_antibodies[0].concentration"},
		{"no primary antibodies", func(s *SampleSpecification) {
			s.StainingProtocol.PrimaryAntibodies = nil
		}, "staining_protocol.primary_antibodies"},
		{"emission below excitation", func(s *SampleSpecification) {
			s.ImagingParameters.Channels[1].Emission = 400
		}, "imaging_parameters.channels[1].emission"},
		{"fluorophore not imaged", func(s *SampleSpecification) {
			s.StainingProtocol.SecondaryAntibodies[0].Fluorophore = "Cy5"
		}, "staining_protocol.secondary_antibodies[0].fluorophore"},
		{"nuclear stain not imaged", func(s *SampleSpecification) {
			s.StainingProtocol.NuclearStain = "Hoechst"
		}, "staining_protocol.nuclear_stain"},
		{"unknown varying field", func(s *SampleSpecification) { s.VaryingField = "moon_phase" }, "varying_field"},
		{"negative measurement scale", func(s *SampleSpecification) { s.MeasurementScale = -1 }, "measurement_scale"},
		{"NaN measurement scale", func(s *SampleSpecification) { s.MeasurementScale = math.NaN() }, "measurement_scale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.mutate(&s)
			requireViolation(t, Validate(s), tt.field)
		})
	}
}

func TestValidateJSON(t *testing.T) {
	data, err := json.Marshal(validSpec())
	require.NoError(t, err)

	parsed, err := ValidateJSON(data)
	require.NoError(t, err)
	assert.Equal(t, validSpec(), parsed)
}

func TestValidateJSON_MissingKeys(t *testing.T) {
	data, err := json.Marshal(validSpec())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	delete(doc["sample_preparation"].(map[string]any), "permeabilization")
	stripped, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = ValidateJSON(stripped)
	requireViolation(t, err, "sample_preparation.permeabilization")

	delete(doc, "imaging_parameters")
	stripped, err = json.Marshal(doc)
	require.NoError(t, err)

	_, err = ValidateJSON(stripped)
	requireViolation(t, err, "imaging_parameters")
}

func TestValidateJSON_WrongType(t *testing.T) {
	data, err := json.Marshal(validSpec())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["biological_context"].(map[string]any)["passage_number"] = "twelve"
	bad, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = ValidateJSON(bad)
	requireViolation(t, err, "biological_context.passage_number")
}

func TestValidateJSON_UnknownField(t *testing.T) {
	data, err := json.Marshal(validSpec())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["operator"] = "someone"
	bad, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = ValidateJSON(bad)
	assert.True(t, core.IsSchemaViolation(err))
}

func TestClone_IsDeep(t *testing.T) {
	original := validSpec()
	copied := original.Clone()

	copied.CultureConditions.MediaSupplements[0] = "20% FBS"
	copied.StainingProtocol.PrimaryAntibodies[0].Target = "MDM2"
	copied.ImagingParameters.Channels[0].Emission = 461

	assert.Equal(t, "10% FBS", original.CultureConditions.MediaSupplements[0])
	assert.Equal(t, "p53", original.StainingProtocol.PrimaryAntibodies[0].Target)
	assert.Equal(t, 450.0, original.ImagingParameters.Channels[0].Emission)
}

func TestWithParameter(t *testing.T) {
	template := validSpec()

	swept, err := template.WithParameter(FieldCellDensity, 75000)
	require.NoError(t, err)
	assert.Equal(t, 75000.0, swept.BiologicalContext.CellDensity)
	assert.Equal(t, 25000.0, template.BiologicalContext.CellDensity, "template must not change")

	got, err := swept.Parameter(FieldCellDensity)
	require.NoError(t, err)
	assert.Equal(t, 75000.0, got)

	_, err = template.WithParameter("biological_context.mood", 1)
	requireViolation(t, err, "biological_context.mood")

	_, err = template.WithParameter(FieldPassageNumber, 12.5)
	requireViolation(t, err, FieldPassageNumber)
}

func TestValidateBatch(t *testing.T) {
	var batch []SampleSpecification
	for i, density := range []float64{25000, 50000, 75000} {
		s, err := validSpec().WithParameter(FieldCellDensity, density)
		require.NoError(t, err)
		s.SampleID = core.NewSampleID("p53_density_exp", i+1)
		s.Ordinal = i + 1
		batch = append(batch, s)
	}
	require.NoError(t, ValidateBatch(batch, FieldCellDensity))
	assert.Equal(t, []string{FieldCellDensity}, VaryingFields(batch))

	dup := append([]SampleSpecification{}, batch...)
	dup[2].SampleID = dup[0].SampleID
	requireViolation(t, ValidateBatch(dup, FieldCellDensity), "[2].sample_id")

	drift := append([]SampleSpecification{}, batch...)
	drift[1] = drift[1].Clone()
	drift[1].CultureConditions.MediaType = "RPMI"
	requireViolation(t, ValidateBatch(drift, FieldCellDensity), "[1]")
}

func TestFingerprint_Deterministic(t *testing.T) {
	batch := []SampleSpecification{validSpec()}

	fp1, err := Fingerprint(batch)
	require.NoError(t, err)
	fp2, err := Fingerprint([]SampleSpecification{validSpec()})
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)

	other := validSpec()
	other.BiologicalContext.CellDensity = 50000
	fp3, err := Fingerprint([]SampleSpecification{other})
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)
}
