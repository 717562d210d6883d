package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nodecanvas/umlview/internal/kroki"
	"github.com/nodecanvas/umlview/pkg/diagram"
)

func runRender(ctx context.Context, args []string) error {
	f := pflag.NewFlagSet("render", pflag.ContinueOnError)
	typeName := f.StringP("type", "t", "", "diagram type, e.g. mermaid, plantuml, graphviz (required)")
	formatName := f.String("format", "svg", "output format: svg, png, jpeg, pdf, txt, base64")
	backend := f.String("backend", "web", "render backend (web or local)")
	krokiURL := f.String("kroki_url", "https://kroki.io", "Kroki service base URL")
	output := f.StringP("output", "o", "", "output file (default stdout)")
	if err := f.Parse(args); err != nil {
		return err
	}
	if *typeName == "" {
		return fmt.Errorf("--type is required")
	}

	typ, err := diagram.ParseType(*typeName)
	if err != nil {
		return err
	}
	format, ok := diagram.ParseFormat(*formatName)
	if !ok {
		return fmt.Errorf("unknown output format: %s", *formatName)
	}

	// Source comes from the file argument, or stdin with "-" or no
	// argument, or the type's example source when stdin is a terminal.
	var source string
	switch rest := f.Args(); {
	case len(rest) > 0 && rest[0] != "-":
		raw, err := os.ReadFile(rest[0])
		if err != nil {
			return err
		}
		source = string(raw)
	default:
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		source = string(raw)
	}
	if source == "" {
		source = kroki.DefaultSource(typ)
	}

	logger := newLogger("warn")
	svc := kroki.NewService(kroki.NewClient(*krokiURL, logger), kroki.ServiceOptions{
		Logger:  logger,
		Backend: *backend,
	})

	blob, _, err := svc.Render(ctx, kroki.RenderRequest{
		Type:   typ,
		Format: format,
		Source: source,
	})
	if err != nil {
		return err
	}

	if *output == "" {
		_, err := os.Stdout.Write(blob)
		return err
	}
	if err := os.WriteFile(*output, blob, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", *output, len(blob))
	if shareURL, urlErr := svc.ShareURL(kroki.RenderRequest{Type: typ, Format: format, Source: source}); urlErr == nil {
		fmt.Fprintln(os.Stderr, shareURL)
	}
	return nil
}
