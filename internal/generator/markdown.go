package generator

import (
	"bytes"
	"html/template"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// The converter is shared across page workers; goldmark keeps per-call
// state in Convert, so a single instance is safe for concurrent use.
var (
	textRendererInstance goldmark.Markdown
	textRendererOnce     sync.Once
)

func getTextRenderer() goldmark.Markdown {
	textRendererOnce.Do(func() {
		textRendererInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.DefinitionList,
			),
			// Raw HTML in object text is dropped, never passed through.
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return textRendererInstance
}

// RenderText converts requirement object text to HTML. DOORS object text is
// usually plain prose with the occasional list or table, which Markdown
// covers. On conversion failure the text is returned escaped.
func RenderText(text string) template.HTML {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := getTextRenderer().Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}
