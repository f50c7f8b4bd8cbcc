package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// ValueType enumerates the type coercions a normalized field supports.
type ValueType string

const (
	TypeText    ValueType = "text"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	// TypeDate is a passthrough in this version: the raw string is kept
	// verbatim, no parsing is attempted.
	TypeDate ValueType = "date"
)

// Transform enumerates the case transforms.
type Transform string

const (
	TransformNone      Transform = ""
	TransformLowercase Transform = "lowercase"
	TransformUppercase Transform = "uppercase"
)

// truthyWords is the case-insensitive set that coerces to boolean true.
var truthyWords = map[string]struct{}{
	"true": {}, "1": {}, "yes": {}, "on": {}, "enabled": {}, "active": {},
}

// numberJunk strips every character that cannot appear in a numeric literal.
var numberJunk = regexp.MustCompile(`[^0-9.\-]`)

// NormalizationSpec is the per-field normalization pipeline configuration.
// The regex, if any, is compiled at config-parse time.
type NormalizationSpec struct {
	Type         ValueType
	Transform    Transform
	Strip        bool
	RegexPattern string
	RegexGroup   int

	re *regexp.Regexp
}

// Apply runs the pipeline on a raw extracted string and returns the
// normalized value: nil, string, int64, float64 or bool.
//
// Order: strip → regex extraction → case transform → type coercion.
// A regex that does not match yields nil, as does an unparseable number.
func (n *NormalizationSpec) Apply(raw string) any {
	v := raw
	if n.Strip {
		v = strings.TrimSpace(v)
	}

	if n.re != nil {
		m := n.re.FindStringSubmatch(v)
		if m == nil {
			return nil
		}
		group := n.RegexGroup
		if group < 0 || group >= len(m) {
			return nil
		}
		v = m[group]
	}

	switch n.Transform {
	case TransformLowercase:
		v = strings.ToLower(v)
	case TransformUppercase:
		v = strings.ToUpper(v)
	}

	switch n.Type {
	case TypeNumber:
		return coerceNumber(v)
	case TypeBoolean:
		// Coercion sees the value exactly as the earlier pipeline stages
		// left it: whitespace survives when strip is disabled.
		_, truthy := truthyWords[strings.ToLower(v)]
		return truthy
	default:
		// text and date both keep the string as-is.
		return v
	}
}

// coerceNumber strips everything but digits, '.' and '-', then parses an
// integer when no decimal point remains, a float otherwise. Unparseable
// input yields nil.
func coerceNumber(s string) any {
	cleaned := numberJunk.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	if !strings.Contains(cleaned, ".") {
		i, err := strconv.ParseInt(cleaned, 10, 64)
		if err != nil {
			return nil
		}
		return i
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return f
}
