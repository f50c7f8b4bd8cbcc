package extract

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/use-agent/haunt/models"
	"golang.org/x/net/html"
)

// Extract evaluates every configured selector against the rendered HTML and
// returns the normalized state map. A field whose element is missing, whose
// regex fails to match, or whose extraction errors in any way yields nil for
// that field only; one bad field never aborts the batch.
func Extract(renderedHTML string, cfg *Config) models.ExtractedState {
	state := make(models.ExtractedState, len(cfg.Selectors))

	root, err := html.Parse(strings.NewReader(renderedHTML))
	if err != nil {
		slog.Warn("extract: unparseable page HTML, all fields null", "error", err)
		for name := range cfg.Selectors {
			state[name] = nil
		}
		return state
	}
	doc := goquery.NewDocumentFromNode(root)

	for name, sel := range cfg.Selectors {
		state[name] = extractField(doc, root, name, sel, cfg.Normalization[name])
	}
	return state
}

// extractField resolves one field to its normalized value. Internally the
// raw lookup is an explicit (value, ok) result; absence and any panic are
// flattened to nil only here, at the boundary where the state map is built.
func extractField(doc *goquery.Document, root *html.Node, name string,
	sel *SelectorSpec, norm *NormalizationSpec) (value any) {

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("extract: field extraction panicked",
				"field", name, "selector", sel.String(), "panic", r)
			value = nil
		}
	}()

	raw, ok := resolveRaw(doc, root, sel)
	if !ok {
		return nil
	}
	if norm == nil {
		norm = defaultNormalization
	}
	return norm.Apply(raw)
}

// defaultNormalization applies to fields with no normalization entry:
// keep the text, trim surrounding whitespace.
var defaultNormalization = &NormalizationSpec{Type: TypeText, Strip: true}

// resolveRaw finds the first matching element and reads its text content or
// the named attribute. ok is false when nothing matches or the attribute is
// absent.
func resolveRaw(doc *goquery.Document, root *html.Node, sel *SelectorSpec) (string, bool) {
	switch sel.Kind {
	case KindXPath:
		node := htmlquery.QuerySelector(root, sel.xp)
		if node == nil {
			return "", false
		}
		if sel.Attribute != "" {
			return nodeAttr(node, sel.Attribute)
		}
		return htmlquery.InnerText(node), true

	default:
		s := doc.FindMatcher(sel.css).First()
		if s.Length() == 0 {
			return "", false
		}
		if sel.Attribute != "" {
			return s.Attr(sel.Attribute)
		}
		return s.Text(), true
	}
}

// nodeAttr reads an attribute off an element node, distinguishing "absent"
// from "empty".
func nodeAttr(n *html.Node, name string) (string, bool) {
	// An XPath attribute axis ("//a/@href") yields the attribute itself.
	if n.Type == html.ElementNode || n.Type == html.DocumentNode {
		for _, a := range n.Attr {
			if a.Key == name {
				return a.Val, true
			}
		}
		return "", false
	}
	return htmlquery.InnerText(n), true
}
