package extract

import (
	"testing"

	"github.com/use-agent/haunt/models"
)

func TestParseSelector_RoundTrip(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"css:.price > span", "css:.price > span"},
		{"xpath://div[@id='stock']/text()", "xpath://div[@id='stock']/text()"},
		{".plain-css", "css:.plain-css"}, // no prefix defaults to CSS
		{"css:#id .cls", "css:#id .cls"},
	}
	for _, tt := range tests {
		spec, err := ParseSelector("f", tt.raw, "")
		if err != nil {
			t.Errorf("ParseSelector(%q) failed: %v", tt.raw, err)
			continue
		}
		if got := spec.String(); got != tt.want {
			t.Errorf("ParseSelector(%q).String() = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseSelector_CompilesEagerly(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad css", "css:...:::!!"},
		{"bad xpath", "xpath://[unclosed"},
		{"empty", ""},
		{"prefix only", "css:"},
		{"whitespace expression", "xpath:   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSelector("price", tt.raw, "")
			if err == nil {
				t.Fatalf("ParseSelector(%q) succeeded, want error", tt.raw)
			}
			if kind := models.ErrorKind(err); kind != models.ErrCodeConfigInvalid {
				t.Errorf("error kind = %q, want %q", kind, models.ErrCodeConfigInvalid)
			}
		})
	}
}

func TestParseSelector_AttributeCarried(t *testing.T) {
	spec, err := ParseSelector("link", "css:a.buy", "href")
	if err != nil {
		t.Fatalf("ParseSelector failed: %v", err)
	}
	if spec.Attribute != "href" {
		t.Errorf("Attribute = %q, want %q", spec.Attribute, "href")
	}
	if spec.Kind != KindCSS {
		t.Errorf("Kind = %v, want KindCSS", spec.Kind)
	}
}

func TestParseSelector_XPathAttributeAxisSurvives(t *testing.T) {
	// The '@' in the expression belongs to XPath, not to our attribute form.
	spec, err := ParseSelector("link", "xpath://a[@class='buy']/@href", "")
	if err != nil {
		t.Fatalf("ParseSelector failed: %v", err)
	}
	if spec.Expression != "//a[@class='buy']/@href" {
		t.Errorf("Expression mangled: %q", spec.Expression)
	}
}
