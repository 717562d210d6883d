package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nodecanvas/umlview/internal/normalize"
	"github.com/nodecanvas/umlview/internal/query"
)

func runInspect(ctx context.Context, args []string) error {
	f := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	doNormalize := f.BoolP("normalize", "n", false, "normalize the document before querying")
	raw := f.BoolP("raw", "r", false, "print string results without JSON quoting")
	if err := f.Parse(args); err != nil {
		return err
	}

	rest := f.Args()
	if len(rest) == 0 {
		return fmt.Errorf("usage: umlview inspect <expression> [file]")
	}
	expression := rest[0]

	var input []byte
	var err error
	if len(rest) > 1 && rest[1] != "-" {
		input, err = os.ReadFile(rest[1])
	} else {
		input, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	var doc any
	if *doNormalize {
		normalized, _, err := normalize.Normalize(input)
		if err != nil {
			return err
		}
		doc = normalized
	} else if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	results, err := query.NewRunner().QueryAll(ctx, expression, doc)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, result := range results {
		if s, ok := result.(string); ok && *raw {
			fmt.Println(s)
			continue
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}
