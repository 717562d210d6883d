package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx, args)
	case "normalize":
		err = runNormalize(ctx, args)
	case "render":
		err = runRender(ctx, args)
	case "inspect":
		err = runInspect(ctx, args)
	case "watch":
		err = runWatch(ctx, args)
	case "mcp":
		err = runMCP(ctx, args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "--help", "-h":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `umlview renders textual diagrams and keeps workflow documents canonical.

Usage:
  umlview <command> [flags]

Commands:
  serve       Start the HTTP server (viewer, render API, SSE events)
  normalize   Normalize workflow JSON files (stdin when no files given)
  render      Render a single diagram to a file or stdout
  inspect     Run a jq expression against a workflow document
  watch       Watch a directory and auto-normalize changed *.json files
  mcp         Serve the MCP tools over stdio
  version     Print the version

Run "umlview <command> --help" for command flags.
`)
}
