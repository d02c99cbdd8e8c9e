// Package platform loads the hardware description a WCET run targets:
// cache geometry and a pipeline description (spec §6 "Hardware
// description files"), expressed as YAML the same way
// sarchlab-zeonica's core.Program and the teacher's config surface both
// load declarative structure — unmarshal into a plain tagged struct,
// then validate.
package platform

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"wcet/internal/diag"
)

// ReplacementPolicy names a cache's line-replacement discipline.
type ReplacementPolicy string

const (
	PolicyLRU    ReplacementPolicy = "lru"
	PolicyFIFO   ReplacementPolicy = "fifo"
	PolicyPLRU   ReplacementPolicy = "plru"
	PolicyRandom ReplacementPolicy = "random"
)

// CacheGeometry describes one cache level (spec §4.7's Must/May/
// Persistence analyses are all parameterised by associativity and line
// size).
type CacheGeometry struct {
	Name        string            `yaml:"name"`
	LineSize    int               `yaml:"line_size"`
	Sets        int               `yaml:"sets"`
	Associativity int             `yaml:"associativity"`
	Policy      ReplacementPolicy `yaml:"policy"`
	MissPenalty uint64            `yaml:"miss_penalty"`
}

// PipelineStage describes one stage of the pipeline timing backend (spec
// §4.8 "Pipeline execution graph").
type PipelineStage struct {
	Name    string `yaml:"name"`
	Latency uint64 `yaml:"latency"`
}

// FunctionalUnitRule maps an instruction kind name to the functional unit
// name it occupies, for the pipeline backend's FU-contention edges.
type FunctionalUnitRule struct {
	Kind string `yaml:"kind"`
	Unit string `yaml:"unit"`
}

// Pipeline describes the target's pipeline for internal/timing.Pipeline.
type Pipeline struct {
	Stages         []PipelineStage      `yaml:"stages"`
	FunctionalUnits []FunctionalUnitRule `yaml:"functional_units"`
}

// InstructionCost gives a fixed per-instruction-kind cost for the Trivial
// timing backend.
type InstructionCost struct {
	Kind string `yaml:"kind"`
	Cost uint64 `yaml:"cost"`
}

// Description is the full hardware description document (spec §6).
type Description struct {
	Caches           []CacheGeometry   `yaml:"caches"`
	Pipeline         *Pipeline         `yaml:"pipeline"`
	InstructionCosts []InstructionCost `yaml:"instruction_costs"`
}

// Load parses a hardware description document from source, named path for
// diagnostics, and validates it.
func Load(path string, source []byte) (*Description, error) {
	var desc Description
	if err := yaml.Unmarshal(source, &desc); err != nil {
		return nil, diag.New(diag.ErrUnsupportedCacheGeometry,
			fmt.Sprintf("malformed hardware description: %s", err),
			diag.Location{File: path}).Build()
	}
	if err := desc.validate(path); err != nil {
		return nil, err
	}
	return &desc, nil
}

func (d *Description) validate(path string) error {
	for _, c := range d.Caches {
		if c.Associativity <= 0 || c.Sets <= 0 || c.LineSize <= 0 {
			return diag.New(diag.ErrUnsupportedCacheGeometry,
				fmt.Sprintf("cache %q has non-positive geometry (sets=%d, associativity=%d, line_size=%d)",
					c.Name, c.Sets, c.Associativity, c.LineSize),
				diag.Location{File: path}).Build()
		}
		switch c.Policy {
		case PolicyLRU:
		default:
			return diag.New(diag.ErrUnsupportedCacheGeometry,
				fmt.Sprintf("cache %q has unsupported replacement policy %q (Must/May analysis assumes LRU-like age ordering)", c.Name, c.Policy),
				diag.Location{File: path}).Build()
		}
	}
	return nil
}

// CacheByName returns the named cache geometry, if present.
func (d *Description) CacheByName(name string) (CacheGeometry, bool) {
	for _, c := range d.Caches {
		if c.Name == name {
			return c, true
		}
	}
	return CacheGeometry{}, false
}

// CostOf returns the configured fixed cost for an instruction kind name,
// or (0, false) if unconfigured.
func (d *Description) CostOf(kind string) (uint64, bool) {
	for _, ic := range d.InstructionCosts {
		if ic.Kind == kind {
			return ic.Cost, true
		}
	}
	return 0, false
}
