package kroki

import (
	"bytes"
	"context"

	"github.com/goccy/go-graphviz"

	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

// RenderLocal renders Graphviz sources in-process, skipping the
// network round-trip. The second return is false for anything the
// local engine cannot do, whether the type/format pair is uncovered
// or the render itself failed, so the caller can fall back to the web
// API. Failures also carry the error for logging.
func RenderLocal(ctx context.Context, typ diagram.Type, format diagram.Format, source string) ([]byte, bool, error) {
	if typ != diagram.TypeGraphviz {
		return nil, false, nil
	}

	var gvFormat graphviz.Format
	switch format {
	case diagram.FormatPNG:
		gvFormat = graphviz.PNG
	case diagram.FormatSVG:
		gvFormat = graphviz.SVG
	case diagram.FormatJPEG:
		gvFormat = graphviz.JPG
	default:
		// PDF output needs the web service.
		return nil, false, nil
	}

	graph, err := graphviz.ParseBytes([]byte(source))
	if err != nil {
		return nil, false, schema.NewErrorf(schema.ErrCodeRender, "parse graphviz source: %v", err).WithCause(err)
	}
	defer graph.Close()

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, false, schema.NewErrorf(schema.ErrCodeRender, "create graphviz: %v", err).WithCause(err)
	}
	defer gv.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, false, schema.NewErrorf(schema.ErrCodeRender, "render graphviz %s: %v", format, err).WithCause(err)
	}
	return buf.Bytes(), true, nil
}
