package extract

import (
	"testing"

	"github.com/use-agent/haunt/detect"
	"github.com/use-agent/haunt/models"
)

const productPage = `<!DOCTYPE html>
<html>
<head><title>Widget 3000</title></head>
<body>
	<div class="product">
		<h1 class="name">  Widget 3000  </h1>
		<span class="price">$1,299.99</span>
		<div id="stock">  IN STOCK  </div>
		<a class="buy" href="/cart/add/widget-3000">Buy now</a>
		<p class="release">Release Date: March 15, 2026</p>
	</div>
</body>
</html>`

func mustConfig(t *testing.T, raw string) *Config {
	t.Helper()
	cfg, err := ParseConfig([]byte(raw))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	return cfg
}

func TestExtract_EndToEnd(t *testing.T) {
	cfg := mustConfig(t, `{
		"selectors": {
			"name": "css:h1.name",
			"price": "css:.price",
			"stock": "css:#stock",
			"link": {"selector": "css:a.buy", "attribute": "href"},
			"release": "css:p.release"
		},
		"normalization": {
			"price": {"type": "number"},
			"stock": {"type": "text", "transform": "lowercase"},
			"release": {"regex_pattern": "Release Date:\\s*(.+)", "regex_group": 1}
		}
	}`)

	state := Extract(productPage, cfg)

	if got := state["name"]; got != "Widget 3000" {
		t.Errorf("name = %v, want %q (default strip)", got, "Widget 3000")
	}
	if got := state["price"]; got != float64(1299.99) {
		t.Errorf("price = %v (%T), want 1299.99", got, got)
	}
	if got := state["stock"]; got != "in stock" {
		t.Errorf("stock = %v, want %q", got, "in stock")
	}
	if got := state["link"]; got != "/cart/add/widget-3000" {
		t.Errorf("link = %v, want the href value", got)
	}
	if got := state["release"]; got != "March 15, 2026" {
		t.Errorf("release = %v, want %q", got, "March 15, 2026")
	}
}

func TestExtract_XPathSelectors(t *testing.T) {
	cfg := mustConfig(t, `{
		"selectors": {
			"stock": "xpath://div[@id='stock']",
			"href": "xpath://a[@class='buy']/@href",
			"title": "xpath://head/title"
		}
	}`)

	state := Extract(productPage, cfg)

	if got := state["stock"]; got != "IN STOCK" {
		t.Errorf("stock = %v, want %q", got, "IN STOCK")
	}
	if got := state["href"]; got != "/cart/add/widget-3000" {
		t.Errorf("href = %v, want attribute value via XPath axis", got)
	}
	if got := state["title"]; got != "Widget 3000" {
		t.Errorf("title = %v, want %q", got, "Widget 3000")
	}
}

func TestExtract_MissingFieldIsNilOthersSurvive(t *testing.T) {
	cfg := mustConfig(t, `{
		"selectors": {
			"name": "css:h1.name",
			"rating": "css:.rating-that-does-not-exist",
			"badge": {"selector": "css:h1.name", "attribute": "data-badge"}
		}
	}`)

	state := Extract(productPage, cfg)

	if state["rating"] != nil {
		t.Errorf("rating = %v, want nil for missing element", state["rating"])
	}
	if state["badge"] != nil {
		t.Errorf("badge = %v, want nil for absent attribute", state["badge"])
	}
	if state["name"] != "Widget 3000" {
		t.Errorf("name = %v; one missing field must not poison the rest", state["name"])
	}
}

func TestExtract_EveryFieldPresentInState(t *testing.T) {
	cfg := mustConfig(t, `{
		"selectors": {
			"a": "css:.nope-a",
			"b": "css:.nope-b"
		}
	}`)

	state := Extract("<html><body></body></html>", cfg)

	for _, key := range []string{"a", "b"} {
		v, present := state[key]
		if !present {
			t.Errorf("field %q missing from state; want explicit nil entry", key)
		}
		if v != nil {
			t.Errorf("field %q = %v, want nil", key, v)
		}
	}
}

func TestExtract_NormalizedValueFeedsDiff(t *testing.T) {
	cfg := mustConfig(t, `{
		"selectors": {"status": "css:.s"},
		"normalization": {"status": {"transform": "lowercase"}}
	}`)

	state := Extract(`<html><body><div class="s">  OPEN  </div></body></html>`, cfg)
	if state["status"] != "open" {
		t.Fatalf("status = %v, want %q", state["status"], "open")
	}

	hasChanges, changes := detect.Diff(models.ExtractedState{"status": "closed"}, state)
	if !hasChanges {
		t.Fatal("status flip not detected")
	}
	ch := changes["status"]
	if ch.Old != "closed" || ch.New != "open" {
		t.Errorf("change = %+v, want closed -> open", ch)
	}
}

func TestExtract_FirstMatchWins(t *testing.T) {
	page := `<html><body>
		<span class="tag">first</span>
		<span class="tag">second</span>
	</body></html>`
	cfg := mustConfig(t, `{"selectors": {"tag": "css:.tag"}}`)

	if got := Extract(page, cfg)["tag"]; got != "first" {
		t.Errorf("tag = %v, want %q", got, "first")
	}
}
