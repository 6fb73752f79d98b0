package config

import (
	"fmt"
	"os"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"gopkg.in/yaml.v3"
)

// Profile is a YAML region profile. Zero-valued fields leave the
// environment-derived settings untouched.
//
//	name: greece
//	bbox: {lat_min: 34, lat_max: 42, lon_min: 19, lon_max: 30}
//	variables: [t_2m, relhum_2m, u_10m, v_10m, pmsl, tot_prec, clct]
//	steps: {hourly_until: 48, coarse_hours: 3, max: 120}
type Profile struct {
	Name      string       `yaml:"name"`
	BBox      *domain.BBox `yaml:"bbox"`
	Variables []string     `yaml:"variables"`
	Cycles    []int        `yaml:"cycles"`
	Steps     struct {
		HourlyUntil int `yaml:"hourly_until"`
		CoarseHours int `yaml:"coarse_hours"`
		Max         int `yaml:"max"`
	} `yaml:"steps"`
}

// LoadProfile reads and decodes a region profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse region profile %s: %w", path, err)
	}
	return &p, nil
}

// Apply overlays the profile onto cfg.
func (p *Profile) Apply(cfg *Config) {
	if p.BBox != nil {
		cfg.Region = *p.BBox
	}
	if len(p.Variables) > 0 {
		cfg.Variables = p.Variables
	}
	if len(p.Cycles) > 0 {
		cfg.CycleHours = p.Cycles
	}
	if p.Steps.HourlyUntil > 0 {
		cfg.HourlyStepsUntil = p.Steps.HourlyUntil
	}
	if p.Steps.CoarseHours > 0 {
		cfg.CoarseStepHours = p.Steps.CoarseHours
	}
	if p.Steps.Max > 0 {
		cfg.MaxStep = p.Steps.Max
	}
}
