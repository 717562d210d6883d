package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

func renderMarkdownString(t *testing.T, source string) string {
	t.Helper()
	var buf bytes.Buffer
	res, err := RenderMarkdown(&buf, &Payload{Format: diagram.FormatMarkdown, Data: []byte(source)})
	require.NoError(t, err)
	require.Equal(t, diagram.FormatMarkdown, res.Format)
	return buf.String()
}

func TestRenderMarkdown_BasicBlocks(t *testing.T) {
	out := renderMarkdownString(t, "# Title\n\nSome **bold** and *italic* and `code`.\n\n[link](https://example.com)\n")

	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<em>italic</em>")
	assert.Contains(t, out, "<code>code</code>")
	assert.Contains(t, out, `<a href="https://example.com">link</a>`)
	assert.Contains(t, out, `class="markdown-body"`)
}

func TestRenderMarkdown_MermaidFenceBecomesDiv(t *testing.T) {
	out := renderMarkdownString(t, "Before\n\n```mermaid\ngraph TD\nA-->B\n```\n\nAfter\n")

	assert.Contains(t, out, `<div class="mermaid">`)
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "A--&gt;B", "mermaid source is html-escaped for the hydrator")
	assert.NotContains(t, out, `<code class="language-mermaid">`)
}

func TestRenderMarkdown_OtherFencesStayCodeBlocks(t *testing.T) {
	out := renderMarkdownString(t, "```go\nfunc main() {}\n```\n")

	assert.Contains(t, out, "<pre><code")
	assert.Contains(t, out, "language-go")
	assert.NotContains(t, out, `class="mermaid"`)
}

func TestRenderMarkdown_MathAnnotated(t *testing.T) {
	out := renderMarkdownString(t, "Euler says $e^{i\\pi}+1=0$ and also\n\n$$\\int_0^1 x dx$$\n")

	assert.Contains(t, out, `<span class="math math-inline">`)
	assert.Contains(t, out, `<span class="math math-display">`)
}

func TestAnnotateMath(t *testing.T) {
	assert.Equal(t, "no dollars here", annotateMath("no dollars here"))

	out := annotateMath("inline $a+b$ only")
	assert.Contains(t, out, `<span class="math math-inline">$a+b$</span>`)

	out = annotateMath("display $$x^2$$ only")
	assert.Contains(t, out, `<span class="math math-display">$$x^2$$</span>`)
	assert.NotContains(t, out, "math-inline", "display runs must not double-wrap")

	out = annotateMath("$$first$$ then $second$")
	assert.Contains(t, out, `<span class="math math-display">$$first$$</span>`)
	assert.Contains(t, out, `<span class="math math-inline">$second$</span>`)
}

func TestRenderMarkdown_GFMTable(t *testing.T) {
	out := renderMarkdownString(t, "| a | b |\n|---|---|\n| 1 | 2 |\n")
	assert.Contains(t, out, "<table>")
}
