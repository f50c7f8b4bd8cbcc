package extract

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"github.com/use-agent/haunt/models"
)

// SelectorKind discriminates the two supported selector languages.
type SelectorKind int

const (
	KindCSS SelectorKind = iota
	KindXPath
)

func (k SelectorKind) String() string {
	if k == KindXPath {
		return "xpath"
	}
	return "css"
}

// SelectorSpec identifies a DOM element (and optionally one of its
// attributes) to extract a value from. Specs are parsed once per config load,
// compiled eagerly so bad expressions fail at parse time, and are immutable
// afterwards.
type SelectorSpec struct {
	Kind       SelectorKind
	Expression string

	// Attribute, when non-empty, names the DOM attribute to read instead of
	// the element's rendered text. XPath expressions can alternatively use
	// the native attribute axis ("//a/@href").
	Attribute string

	css cascadia.Selector
	xp  *xpath.Expr
}

// ParseSelector parses the serialized selector form: a "css:" or "xpath:"
// prefixed expression. A string without a recognized prefix is treated as
// CSS. attribute may be empty.
func ParseSelector(field, raw, attribute string) (*SelectorSpec, error) {
	spec := &SelectorSpec{Kind: KindCSS, Expression: raw, Attribute: attribute}
	switch {
	case strings.HasPrefix(raw, "css:"):
		spec.Expression = raw[len("css:"):]
	case strings.HasPrefix(raw, "xpath:"):
		spec.Kind = KindXPath
		spec.Expression = raw[len("xpath:"):]
	}

	if strings.TrimSpace(spec.Expression) == "" {
		return nil, configError(field, "empty selector expression", nil)
	}

	var err error
	switch spec.Kind {
	case KindXPath:
		spec.xp, err = xpath.Compile(spec.Expression)
		if err != nil {
			return nil, configError(field, "invalid XPath expression", err)
		}
	default:
		spec.css, err = cascadia.Compile(spec.Expression)
		if err != nil {
			return nil, configError(field, "invalid CSS selector", err)
		}
	}
	return spec, nil
}

// String re-serializes the spec into the single-string form; ParseSelector
// and String round-trip the kind and expression.
func (s *SelectorSpec) String() string {
	return s.Kind.String() + ":" + s.Expression
}

func configError(field, msg string, err error) *models.MonitorError {
	if field != "" {
		msg = msg + " for field " + field
	}
	return models.NewMonitorError(models.ErrCodeConfigInvalid, msg, err)
}
