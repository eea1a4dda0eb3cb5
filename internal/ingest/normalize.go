package ingest

// normalize.go applies a mapping definition to one raw record.

import "time"

// Normalize projects one raw record through a mapping definition, producing
// a metric value or signaling rejection. now supplies the current time for
// today-mode date resolution; its UTC calendar date is used.
//
// The record is accepted only if the occurred-on rule resolves AND at least
// one of the numeric or text values is present. Rejection is an expected
// outcome (dirty rows, unconfigured fields) and carries no error; callers
// count it and move on. Normalize has no side effects.
func Normalize(def MappingDefinition, payload RowPayload, now time.Time) (*MetricValue, bool) {
	if def.Validate() != nil || payload.Data == nil {
		return nil, false
	}

	occurredOn, ok := resolveOccurredOn(def.OccurredOn, payload.Data, now)
	if !ok {
		return nil, false
	}

	var valueNum *float64
	if def.ValueNum != nil {
		if n, ok := ToNumber(payload.Data[def.ValueNum.Field]); ok {
			valueNum = &n
		}
	}

	var valueText *string
	if def.ValueText != nil {
		if s, ok := ToText(payload.Data[def.ValueText.Field]); ok {
			valueText = &s
		}
	}

	if valueNum == nil && valueText == nil {
		return nil, false
	}

	return &MetricValue{
		MetricKey:  def.MetricKey,
		OccurredOn: occurredOn,
		ValueNum:   valueNum,
		ValueText:  valueText,
		Source:     resolveSource(def.Source, payload.Data),
	}, true
}

// resolveOccurredOn determines the calendar date for the record. Today mode
// always succeeds; field mode requires the named field to hold a parseable
// date.
func resolveOccurredOn(rule OccurredOnRule, data map[string]any, now time.Time) (time.Time, bool) {
	switch rule.Mode {
	case ModeToday:
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	case ModeField:
		raw, present := data[rule.Field]
		if !present {
			return time.Time{}, false
		}
		s, ok := ToText(raw)
		if !ok {
			return time.Time{}, false
		}
		return ParseDate(s)
	default:
		return time.Time{}, false
	}
}

// resolveSource yields the optional source tag; a nil rule yields nil.
func resolveSource(rule *SourceRule, data map[string]any) *string {
	if rule == nil {
		return nil
	}
	switch rule.Mode {
	case ModeFixed:
		v := rule.Value
		return &v
	case ModeField:
		if s, ok := ToText(data[rule.Field]); ok {
			return &s
		}
	}
	return nil
}
