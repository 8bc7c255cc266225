package catalog

import (
	"fmt"
	"os"

	yaml "go.yaml.in/yaml/v2"
)

// yamlCatalog is the on-disk shape of the catalog config file: a flat list
// of datasets, each with its dimensions, metrics, and optional RLS policy.
type yamlCatalog struct {
	Datasets []yamlDataset `yaml:"datasets"`
}

type yamlDataset struct {
	ID         string          `yaml:"id"`
	SourceID   string          `yaml:"source_id"`
	Table      string          `yaml:"table"`
	SQL        string          `yaml:"sql"`
	TimeHint   string          `yaml:"time_hint"`
	Dimensions []yamlDimension `yaml:"dimensions"`
	Metrics    []yamlMetric    `yaml:"metrics"`
	RLS        *yamlRLSPolicy  `yaml:"rls"`
}

type yamlDimension struct {
	Name  string `yaml:"name"`
	Expr  string `yaml:"expr"`
	Type  string `yaml:"type"`
	Label string `yaml:"label"`
}

type yamlMetric struct {
	Name   string `yaml:"name"`
	Expr   string `yaml:"expr"`
	Format string `yaml:"format"`
}

type yamlRLSPolicy struct {
	Mode  string `yaml:"mode"`
	Field string `yaml:"field"`
}

// LoadFile parses a catalog config file and builds a validated Snapshot at
// the given generation. Callers swap it into a Registry via Reload; this
// function does no I/O against the registry itself, matching spec.md §5's
// "never hold a lock across I/O" reload discipline.
func LoadFile(path string, generation uint64) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %s: %w", path, err)
	}
	return Load(raw, generation)
}

// Load parses catalog YAML bytes into a validated Snapshot.
func Load(raw []byte, generation uint64) (*Snapshot, error) {
	var doc yamlCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog yaml: %w", err)
	}

	datasets := make([]*Dataset, 0, len(doc.Datasets))
	for _, yd := range doc.Datasets {
		datasets = append(datasets, yd.toDataset())
	}

	return NewSnapshot(generation, datasets)
}

func (yd yamlDataset) toDataset() *Dataset {
	dims := make([]Dimension, 0, len(yd.Dimensions))
	for _, d := range yd.Dimensions {
		dims = append(dims, Dimension{
			Name:  d.Name,
			Expr:  exprOrName(d.Expr, d.Name),
			Type:  DimensionType(d.Type),
			Label: d.Label,
		})
	}

	metrics := make([]Metric, 0, len(yd.Metrics))
	for _, m := range yd.Metrics {
		metrics = append(metrics, Metric{Name: m.Name, Expr: m.Expr, Format: m.Format})
	}

	var rlsPolicy *RLSPolicy
	if yd.RLS != nil {
		mode := RLSMode(yd.RLS.Mode)
		if mode == "" {
			mode = RLSModeTenantColumn
		}
		rlsPolicy = &RLSPolicy{Mode: mode, Field: yd.RLS.Field}
	}

	return &Dataset{
		ID:         yd.ID,
		SourceID:   yd.SourceID,
		Table:      yd.Table,
		SQL:        yd.SQL,
		TimeHint:   yd.TimeHint,
		Dimensions: dims,
		Metrics:    metrics,
		RLS:        rlsPolicy,
	}
}

func exprOrName(expr, name string) string {
	if expr != "" {
		return expr
	}
	return name
}
