package render

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

// markdown is the shared converter. Fenced blocks tagged mermaid
// become div.mermaid placeholders the viewer page hydrates client
// side; everything else renders as GFM.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, &mermaidExtension{}),
)

// RenderMarkdown converts the payload to HTML and annotates TeX math
// delimiters so the page's typesetter can pick them up.
func RenderMarkdown(w io.Writer, p *Payload) (*Result, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(p.Data, &buf); err != nil {
		// Convert only fails on writer errors; show the raw text instead.
		return RenderText(w, p)
	}

	body := `<div class="markdown-body">` + annotateMath(buf.String()) + `</div>`
	if err := writeLayers(w, body); err != nil {
		return nil, err
	}
	return &Result{Format: diagram.FormatMarkdown}, nil
}

var (
	displayMathRe = regexp.MustCompile(`\$\$[^$]+\$\$`)
	inlineMathRe  = regexp.MustCompile(`\$[^$\n]+\$`)
)

// annotateMath wraps $...$ and $$...$$ runs in spans for the client
// typesetter. Display runs are lifted out first so the inline pattern
// cannot match inside them. Delimiters stay in place; the typesetter
// strips them itself.
func annotateMath(page string) string {
	if !strings.Contains(page, "$") {
		return page
	}

	var display []string
	page = displayMathRe.ReplaceAllStringFunc(page, func(m string) string {
		display = append(display, m)
		return fmt.Sprintf("\x00math%d\x00", len(display)-1)
	})

	page = inlineMathRe.ReplaceAllStringFunc(page, func(m string) string {
		return `<span class="math math-inline">` + m + `</span>`
	})

	for i, m := range display {
		page = strings.Replace(page, fmt.Sprintf("\x00math%d\x00", i),
			`<span class="math math-display">`+m+`</span>`, 1)
	}
	return page
}

const mermaidLanguage = "mermaid"

var mermaidKind = ast.NewNodeKind("MermaidBlock")

// mermaidBlock wraps a fenced code block so a renderer can be
// registered for mermaid fences without taking over all code blocks.
type mermaidBlock struct {
	ast.FencedCodeBlock
}

func (b *mermaidBlock) Kind() ast.NodeKind { return mermaidKind }

type mermaidExtension struct{}

func (e *mermaidExtension) Extend(md goldmark.Markdown) {
	md.Parser().AddOptions(parser.WithASTTransformers(
		util.Prioritized(&mermaidTransformer{}, 100),
	))
	md.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&mermaidNodeRenderer{}, 100),
	))
}

type mermaidTransformer struct{}

func (t *mermaidTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	var fences []*ast.FencedCodeBlock
	_ = ast.Walk(doc, func(node ast.Node, enter bool) (ast.WalkStatus, error) {
		if fb, ok := node.(*ast.FencedCodeBlock); ok && enter {
			fences = append(fences, fb)
		}
		return ast.WalkContinue, nil
	})

	for _, fb := range fences {
		lang := strings.ToLower(strings.TrimSpace(string(fb.Language(reader.Source()))))
		if lang != mermaidLanguage {
			continue
		}
		doc.ReplaceChild(fb.Parent(), fb, &mermaidBlock{FencedCodeBlock: *fb})
	}
}

type mermaidNodeRenderer struct{}

func (r *mermaidNodeRenderer) RegisterFuncs(registry renderer.NodeRendererFuncRegisterer) {
	registry.Register(mermaidKind, renderMermaidBlock)
}

func renderMermaidBlock(w util.BufWriter, src []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	fb := node.(*mermaidBlock)

	w.WriteString(`<div class="mermaid">`)
	lines := fb.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		w.Write(util.EscapeHTML(line.Value(src)))
	}
	w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}
