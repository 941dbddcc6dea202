package heuristic

import (
	"fmt"
	"os"
	"strings"

	"hypocycle/domain/plan"
	"hypocycle/domain/spec"

	"gopkg.in/yaml.v3"
)

// Pattern is one row of the lookup table: when every keyword occurs in the
// normalized hypothesis, the plan below is proposed.
type Pattern struct {
	Name         string                   `yaml:"name"`
	Keywords     []string                 `yaml:"keywords"`
	IDPrefix     string                   `yaml:"id_prefix"`
	VaryingField string                   `yaml:"varying_field"`
	Values       []float64                `yaml:"values"`
	Unit         string                   `yaml:"unit"`
	Measurement  plan.Measurement         `yaml:"measurement"`
	Template     spec.SampleSpecification `yaml:"template"`
}

// Matches reports whether every keyword occurs in the normalized text.
func (p Pattern) Matches(normalized string) bool {
	if len(p.Keywords) == 0 {
		return false
	}
	for _, kw := range p.Keywords {
		if !strings.Contains(normalized, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// Plan builds the sweep plan for this pattern. The returned plan owns its
// slices.
func (p Pattern) Plan() plan.SweepPlan {
	return plan.SweepPlan{
		Topic:        p.IDPrefix,
		VaryingField: p.VaryingField,
		Values:       append([]float64(nil), p.Values...),
		Unit:         p.Unit,
		Measurement:  p.Measurement,
		Template:     p.Template.Clone(),
	}
}

// Catalog is an ordered pattern table; the first match wins.
type Catalog struct {
	Patterns []Pattern `yaml:"patterns"`
}

// Match returns the first pattern matching the normalized hypothesis.
func (c *Catalog) Match(normalized string) (Pattern, bool) {
	for _, p := range c.Patterns {
		if p.Matches(normalized) {
			return p, true
		}
	}
	return Pattern{}, false
}

// LoadCatalog reads a YAML catalog from disk.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and checks a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Patterns) == 0 {
		return nil, fmt.Errorf("catalog has no patterns")
	}
	for i, p := range c.Patterns {
		if len(p.Keywords) == 0 {
			return nil, fmt.Errorf("pattern %d (%s): no keywords", i, p.Name)
		}
		if err := p.Plan().Validate(); err != nil {
			return nil, fmt.Errorf("pattern %d (%s): %w", i, p.Name, err)
		}
	}
	return &c, nil
}

// DefaultCatalog returns the built-in table: the p53 cell density sweep and
// its contact inhibition follow-up.
func DefaultCatalog() *Catalog {
	density := p53Template()

	contact := p53Template()
	contact.BiologicalContext.CellDensity = 100000

	return &Catalog{Patterns: []Pattern{
		{
			Name:         "p53-cell-density",
			Keywords:     []string{"p53", "cell density"},
			IDPrefix:     "p53_density_exp",
			VaryingField: spec.FieldCellDensity,
			Values:       []float64{25000, 50000, 75000, 100000},
			Unit:         "cells/cm²",
			Measurement:  plan.Measurement{Label: "nuclear p53 intensity", Unit: "a.u.", Scale: 0.001},
			Template:     density,
		},
		{
			Name:         "p53-contact-inhibition",
			Keywords:     []string{"p53", "contact inhibition"},
			IDPrefix:     "p53_contact_exp",
			VaryingField: spec.FieldCultureAge,
			Values:       []float64{24, 48, 72, 96},
			Unit:         "hours",
			Measurement:  plan.Measurement{Label: "nuclear p53 intensity", Unit: "a.u.", Scale: 0.5},
			Template:     contact,
		},
	}}
}

func p53Template() spec.SampleSpecification {
	return spec.SampleSpecification{
		SchemaVersion: spec.SchemaVersion,
		BiologicalContext: spec.BiologicalContext{
			CellLine:      "HeLa",
			PassageNumber: 12,
			CultureAge:    24,
			CellDensity:   50000,
		},
		CultureConditions: spec.CultureConditions{
			MediaType:          "DMEM",
			MediaSupplements:   []string{"10% FBS", "1% Pen/Strep"},
			CO2Percentage:      5,
			TemperatureCelsius: 37,
		},
		Treatments: spec.Treatments{
			Compounds:             []spec.Compound{},
			PhysicalPerturbations: []spec.PhysicalPerturbation{},
		},
		SamplePreparation: spec.SamplePreparation{
			FixationMethod:   "paraformaldehyde",
			FixationDuration: 15,
			Permeabilization: true,
			BlockingAgent:    "5% goat_serum",
		},
		StainingProtocol: spec.StainingProtocol{
			PrimaryAntibodies: []spec.PrimaryAntibody{
				{Target: "p53", Clone: "DO-1", Concentration: 1, IncubationTime: 60, Temperature: 4},
			},
			SecondaryAntibodies: []spec.SecondaryAntibody{
				{Fluorophore: "Alexa488", Concentration: 2, IncubationTime: 45},
			},
			NuclearStain: "DAPI",
		},
		ImagingParameters: spec.ImagingParameters{
			MicroscopeType:         "confocal",
			ObjectiveMagnification: 63,
			Channels: []spec.Channel{
				{Name: "DAPI", Excitation: 405, Emission: 450},
				{Name: "Alexa488", Excitation: 488, Emission: 519},
			},
		},
	}
}
