package ingest

// mapping.go defines the mapping definition: the per-connection contract
// describing how a flat field map projects into a metric value.
//
// The JSON encoding is the one persisted/transmitted shape this package
// owns. Stored definitions must continue to decode across releases, so the
// field names and mode strings here are frozen.

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MappingFormatVersion is the only mapping definition format this release
// understands.
const MappingFormatVersion = 1

// MappingTarget is the only projection target supported: flat, dated,
// single-value metric records.
const MappingTarget = "metric_values"

// Rule modes for occurred_on and source.
const (
	ModeToday = "today"
	ModeField = "field"
	ModeFixed = "fixed"
)

// OccurredOnRule resolves the calendar date of a record: either the
// current UTC date (ModeToday) or a date parsed from a named field
// (ModeField).
type OccurredOnRule struct {
	Mode  string `json:"mode"`
	Field string `json:"field,omitempty"`
}

// FieldRef names the raw field a value rule reads from.
type FieldRef struct {
	Field string `json:"field"`
}

// SourceRule resolves the optional source tag: a fixed literal (ModeFixed)
// or the stringified value of a named field (ModeField).
type SourceRule struct {
	Mode  string `json:"mode"`
	Value string `json:"value,omitempty"`
	Field string `json:"field,omitempty"`
}

// MappingDefinition declares how a connection's raw records become metric
// values. At most one definition exists per (organization, connection,
// target); it is read-only to the pipeline.
type MappingDefinition struct {
	Version    int            `json:"version"`
	Target     string         `json:"target"`
	MetricKey  string         `json:"metric_key"`
	OccurredOn OccurredOnRule `json:"occurred_on"`
	ValueNum   *FieldRef      `json:"value_num,omitempty"`
	ValueText  *FieldRef      `json:"value_text,omitempty"`
	Source     *SourceRule    `json:"source,omitempty"`
}

// ErrNoValueRule reports a mapping that declares neither a numeric nor a
// text value rule. Such a mapping can never produce a usable value.
var ErrNoValueRule = errors.New("mapping must declare a value_num or value_text rule")

// Validate checks the definition against the format contract. It runs both
// when an administrator saves a mapping and again at normalization time,
// so a definition that predates a rule change cannot slip through.
func (m MappingDefinition) Validate() error {
	if m.Version != MappingFormatVersion {
		return fmt.Errorf("unsupported mapping version %d (want %d)", m.Version, MappingFormatVersion)
	}
	if m.Target != MappingTarget {
		return fmt.Errorf("unsupported mapping target %q (want %q)", m.Target, MappingTarget)
	}
	if m.MetricKey == "" {
		return errors.New("mapping metric_key must not be empty")
	}

	switch m.OccurredOn.Mode {
	case ModeToday:
	case ModeField:
		if m.OccurredOn.Field == "" {
			return errors.New("occurred_on field mode requires a field name")
		}
	default:
		return fmt.Errorf("unknown occurred_on mode %q", m.OccurredOn.Mode)
	}

	if m.ValueNum == nil && m.ValueText == nil {
		return ErrNoValueRule
	}
	if m.ValueNum != nil && m.ValueNum.Field == "" {
		return errors.New("value_num rule requires a field name")
	}
	if m.ValueText != nil && m.ValueText.Field == "" {
		return errors.New("value_text rule requires a field name")
	}

	if m.Source != nil {
		switch m.Source.Mode {
		case ModeFixed:
			if m.Source.Value == "" {
				return errors.New("source fixed mode requires a value")
			}
		case ModeField:
			if m.Source.Field == "" {
				return errors.New("source field mode requires a field name")
			}
		default:
			return fmt.Errorf("unknown source mode %q", m.Source.Mode)
		}
	}

	return nil
}

// DecodeMappingDefinition parses and validates a stored or submitted
// definition.
func DecodeMappingDefinition(data []byte) (MappingDefinition, error) {
	var m MappingDefinition
	if err := json.Unmarshal(data, &m); err != nil {
		return MappingDefinition{}, fmt.Errorf("decode mapping definition: %w", err)
	}
	if err := m.Validate(); err != nil {
		return MappingDefinition{}, err
	}
	return m, nil
}
