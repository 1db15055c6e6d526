// Package config loads and validates the lake definitions file.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v2"

	"github.com/lox/laketemp/internal/httputil"
	"github.com/lox/laketemp/internal/models"
)

const (
	DefaultScanInterval = 1800
	DefaultTimeoutHours = 24
	DefaultSourceType   = models.SourceGKDBayern
	DefaultUserAgent    = httputil.DefaultUserAgent
)

// File is the on-disk layout.
type File struct {
	Lakes []RawLake `yaml:"lakes"`
}

// RawLake is one lake as written in the file, before validation.
type RawLake struct {
	Name         string    `yaml:"name" validate:"required,min=1,max=100"`
	URL          string    `yaml:"url" validate:"omitempty,httpurl"`
	EntityID     string    `yaml:"entity_id" validate:"entityslug"`
	ScanInterval int       `yaml:"scan_interval" validate:"min=15,max=86400"`
	TimeoutHours int       `yaml:"timeout_hours" validate:"min=1,max=336"`
	UserAgent    string    `yaml:"user_agent" validate:"min=10"`
	Source       RawSource `yaml:"source"`
}

type RawSource struct {
	Type    string                 `yaml:"type"`
	Options map[string]interface{} `yaml:"options"`
}

// UnmarshalYAML applies defaults for omitted keys.
func (r *RawLake) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain RawLake
	p := plain{
		ScanInterval: DefaultScanInterval,
		TimeoutHours: DefaultTimeoutHours,
		UserAgent:    DefaultUserAgent,
		Source:       RawSource{Type: string(DefaultSourceType)},
	}
	if err := unmarshal(&p); err != nil {
		return err
	}
	if p.Source.Type == "" {
		p.Source.Type = string(DefaultSourceType)
	}
	*r = RawLake(p)
	return nil
}

type GKDOptions struct {
	StationID     string
	TableSelector string
}

type HydroOOEOptions struct {
	StationID string
	APIBase   string
	Parameter string
	Period    string
}

type SalzburgOGDOptions struct {
	LakeName string
}

// Source holds the type and the options of that type; options of other types
// stay zero.
type Source struct {
	Type     models.SourceType
	GKD      GKDOptions
	Hydro    HydroOOEOptions
	Salzburg SalzburgOGDOptions
}

// LakeConfig is a validated lake. It is not modified after Build.
type LakeConfig struct {
	Name         string
	URL          string
	EntityID     string
	ScanInterval int
	TimeoutHours int
	UserAgent    string
	Source       Source
}

func (c LakeConfig) ScanDuration() time.Duration {
	return time.Duration(c.ScanInterval) * time.Second
}

func (c LakeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutHours) * time.Hour
}

// LakeError reports why the lake at Index was rejected.
type LakeError struct {
	Index int
	Name  string
	Err   error
}

func (e *LakeError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("lakes[%d] (%s): %v", e.Index, e.Name, e.Err)
	}
	return fmt.Sprintf("lakes[%d]: %v", e.Index, e.Err)
}

func (e *LakeError) Unwrap() error { return e.Err }

// Result carries the accepted lakes and one error per rejected lake.
type Result struct {
	Lakes  []LakeConfig
	Errors []*LakeError
}

// Load reads and validates a lakes file.
func Load(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse validates every lake independently; one invalid lake does not reject
// the others. Only malformed YAML fails the whole file.
func Parse(data []byte) (*Result, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(f.Lakes) == 0 {
		return nil, fmt.Errorf("parse config: at least one lake must be configured")
	}

	res := &Result{}
	seen := map[string]int{}
	for i, raw := range f.Lakes {
		lake, err := Build(raw)
		if err == nil {
			if prev, dup := seen[lake.EntityID]; dup {
				err = fmt.Errorf("duplicate entity_id %q (also used by lakes[%d])", lake.EntityID, prev)
			}
		}
		if err != nil {
			res.Errors = append(res.Errors, &LakeError{Index: i, Name: raw.Name, Err: err})
			continue
		}
		seen[lake.EntityID] = i
		res.Lakes = append(res.Lakes, lake)
	}
	return res, nil
}
