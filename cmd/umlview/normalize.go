package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/nodecanvas/umlview/internal/normalize"
	"github.com/nodecanvas/umlview/pkg/schema"
)

func runNormalize(_ context.Context, args []string) error {
	f := pflag.NewFlagSet("normalize", pflag.ContinueOnError)
	output := f.StringP("output", "o", "", "output file (single input) or directory (multiple inputs); default rewrites in place")
	indent := f.Int("indent", 2, "indentation width, 0 for compact output")
	check := f.Bool("check", false, "report files that are not canonical without rewriting them; non-zero exit when any")
	if err := f.Parse(args); err != nil {
		return err
	}

	files, err := expandGlobs(f.Args())
	if err != nil {
		return err
	}

	// No inputs: filter stdin to stdout.
	if len(files) == 0 {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		out, rep, err := canonicalize(raw, *indent)
		if err != nil {
			return err
		}
		if *output != "" {
			if err := os.WriteFile(*output, out, 0o644); err != nil {
				return err
			}
		} else if _, err := os.Stdout.Write(out); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "normalized stdin (%d repairs)\n", len(rep.Repairs))
		return nil
	}

	outDir := ""
	if *output != "" && len(files) > 1 {
		outDir = *output
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
	}

	dirty := 0
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out, rep, err := canonicalize(raw, *indent)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if *check {
			if !bytes.Equal(out, raw) {
				fmt.Printf("would rewrite %s (%d repairs)\n", path, len(rep.Repairs))
				dirty++
			}
			continue
		}

		target := path
		switch {
		case outDir != "":
			target = filepath.Join(outDir, filepath.Base(path))
		case *output != "":
			target = *output
		}
		if target == path && bytes.Equal(out, raw) {
			continue
		}
		if err := os.WriteFile(target, out, 0o644); err != nil {
			return err
		}
		fmt.Printf("normalized %s (%d repairs)\n", target, len(rep.Repairs))
	}

	if *check && dirty > 0 {
		return fmt.Errorf("%d file(s) not in canonical form", dirty)
	}
	return nil
}

// canonicalize normalizes raw workflow JSON and encodes it at the
// requested indent, with a trailing newline to match editor output.
func canonicalize(raw []byte, indent int) ([]byte, *schema.RepairReport, error) {
	doc, rep, err := normalize.Normalize(raw)
	if err != nil {
		return nil, nil, err
	}
	var out []byte
	if indent <= 0 {
		out, err = json.Marshal(doc)
	} else {
		out, err = json.MarshalIndent(doc, "", strings.Repeat(" ", indent))
	}
	if err != nil {
		return nil, nil, err
	}
	return append(out, '\n'), rep, nil
}

// expandGlobs resolves glob patterns, passing plain paths through so a
// missing file is reported as a read error instead of silently skipped.
func expandGlobs(patterns []string) ([]string, error) {
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			files = append(files, p)
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}
