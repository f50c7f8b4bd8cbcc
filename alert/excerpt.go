package alert

import (
	"log/slog"
	nurl "net/url"
	"strings"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	readability "github.com/go-shiori/go-readability"
)

// mdConverter is goroutine-safe and reused across excerpts. The base plugin
// strips script/style/head noise; commonmark renders standard Markdown.
var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Excerpt distills the rendered page into a Markdown snippet capped at
// roughly maxTokens, giving the evaluator context beyond bare field values.
// Any failure degrades to an empty excerpt; the evaluation proceeds without
// page context rather than failing the run.
func Excerpt(renderedHTML, pageURL string, maxTokens int) string {
	if maxTokens <= 0 || renderedHTML == "" {
		return ""
	}

	content := renderedHTML
	if parsed, err := nurl.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(renderedHTML), parsed); err == nil &&
			len(strings.TrimSpace(article.TextContent)) > 0 {
			content = article.Content
		}
	}

	md, err := mdConverter.ConvertString(content)
	if err != nil {
		slog.Debug("alert: markdown conversion failed, omitting excerpt", "error", err)
		return ""
	}
	return capTokens(strings.TrimSpace(md), maxTokens)
}

// capTokens truncates text to approximately maxTokens using the rune-count/3
// heuristic (a conservative middle ground between English and CJK token
// densities).
func capTokens(text string, maxTokens int) string {
	if estimateTokens(text) <= maxTokens {
		return text
	}
	maxRunes := maxTokens * 3
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}

func estimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 3
}
