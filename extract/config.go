package extract

import (
	"encoding/json"
	"regexp"
)

// Config is a fully parsed and validated extraction configuration: compiled
// selectors plus optional per-field normalization. Parsed once per run,
// immutable thereafter.
type Config struct {
	Selectors     map[string]*SelectorSpec
	Normalization map[string]*NormalizationSpec
}

// selectorJSON accepts the two serialized selector forms: the plain
// prefixed string, or an object carrying an attribute name.
type selectorJSON struct {
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
}

func (s *selectorJSON) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Selector)
	}
	type plain selectorJSON
	return json.Unmarshal(data, (*plain)(s))
}

// normalizationJSON is the stored form of a NormalizationSpec.
// Strip defaults to true when absent, hence the pointer.
type normalizationJSON struct {
	Type         string  `json:"type"`
	Transform    *string `json:"transform"`
	Strip        *bool   `json:"strip"`
	RegexPattern *string `json:"regex_pattern"`
	RegexGroup   int     `json:"regex_group"`
}

// ParseConfig parses and validates the persisted extraction configuration
// JSON. Every selector and regex is compiled here so a malformed config
// surfaces as a single CONFIG_INVALID error before any browser work, and is
// never retried.
func ParseConfig(raw []byte) (*Config, error) {
	var doc struct {
		Selectors     map[string]selectorJSON      `json:"selectors"`
		Normalization map[string]normalizationJSON `json:"normalization"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, configError("", "unparseable extraction config", err)
	}
	if len(doc.Selectors) == 0 {
		return nil, configError("", "config declares no selectors", nil)
	}

	cfg := &Config{
		Selectors:     make(map[string]*SelectorSpec, len(doc.Selectors)),
		Normalization: make(map[string]*NormalizationSpec, len(doc.Normalization)),
	}

	for name, sel := range doc.Selectors {
		spec, err := ParseSelector(name, sel.Selector, sel.Attribute)
		if err != nil {
			return nil, err
		}
		cfg.Selectors[name] = spec
	}

	for name, raw := range doc.Normalization {
		if _, ok := cfg.Selectors[name]; !ok {
			return nil, configError(name, "normalization references unknown selector", nil)
		}
		spec, err := parseNormalization(name, raw)
		if err != nil {
			return nil, err
		}
		cfg.Normalization[name] = spec
	}

	return cfg, nil
}

func parseNormalization(field string, raw normalizationJSON) (*NormalizationSpec, error) {
	spec := &NormalizationSpec{
		Type:       ValueType(raw.Type),
		Strip:      true,
		RegexGroup: raw.RegexGroup,
	}
	if raw.Type == "" {
		spec.Type = TypeText
	}

	switch spec.Type {
	case TypeText, TypeNumber, TypeBoolean, TypeDate:
	default:
		return nil, configError(field, "unknown normalization type "+raw.Type, nil)
	}

	if raw.Transform != nil {
		spec.Transform = Transform(*raw.Transform)
		switch spec.Transform {
		case TransformNone, TransformLowercase, TransformUppercase:
		default:
			return nil, configError(field, "unknown transform "+*raw.Transform, nil)
		}
	}

	if raw.Strip != nil {
		spec.Strip = *raw.Strip
	}

	if raw.RegexPattern != nil && *raw.RegexPattern != "" {
		re, err := regexp.Compile(*raw.RegexPattern)
		if err != nil {
			return nil, configError(field, "invalid regex pattern", err)
		}
		spec.RegexPattern = *raw.RegexPattern
		spec.re = re
	}
	if spec.RegexGroup < 0 {
		return nil, configError(field, "regex_group must not be negative", nil)
	}

	return spec, nil
}
