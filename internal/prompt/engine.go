// Package prompt builds LLM prompts for diagram generation and calls
// the configured provider. Prompt presets live in prompts/*.txt files:
// a template, a positive instruction and a negative instruction
// separated by "\n---\n" lines. Templates may reference {{expr}}
// expressions over the build variables.
package prompt

import (
	"embed"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"
)

//go:embed prompts/*.txt
var presetFS embed.FS

const presetSeparator = "\n---\n"

// Preset is one parsed prompt file.
type Preset struct {
	Template string
	Positive string
	Negative string
}

// Vars holds the variables available to {{expr}} expressions.
type Vars struct {
	Description string
	DiagramType string
	Format      string
	// Extra adds caller-defined variables, e.g. workflow metadata.
	Extra map[string]any
}

func (v Vars) env() map[string]any {
	env := map[string]any{
		"description":  v.Description,
		"diagram_type": v.DiagramType,
		"format":       v.Format,
	}
	for k, val := range v.Extra {
		env[k] = val
	}
	return env
}

// Engine expands prompt templates and resolves presets. Thread-safe:
// compiled expressions are cached and reused across goroutines.
type Engine struct {
	presetDir string

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewEngine creates a prompt engine. presetDir optionally points at a
// directory of user prompt files that shadow the embedded presets;
// empty means embedded only.
func NewEngine(presetDir string) *Engine {
	return &Engine{
		presetDir: presetDir,
		cache:     make(map[string]*vm.Program),
	}
}

// Presets lists the available preset file names, sorted, with user
// files merged over the embedded set.
func (e *Engine) Presets() []string {
	seen := make(map[string]bool)

	if entries, err := presetFS.ReadDir("prompts"); err == nil {
		for _, entry := range entries {
			seen[entry.Name()] = true
		}
	}
	if e.presetDir != "" {
		if entries, err := os.ReadDir(e.presetDir); err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".txt") {
					seen[entry.Name()] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset loads a preset by file name. User files take precedence over
// embedded ones. Names containing path separators are rejected.
func (e *Engine) Preset(name string) (Preset, bool) {
	if name == "" || name != path.Base(name) || strings.Contains(name, "\\") {
		return Preset{}, false
	}

	if e.presetDir != "" {
		if raw, err := os.ReadFile(e.presetDir + "/" + name); err == nil {
			return parsePreset(string(raw)), true
		}
	}
	raw, err := presetFS.ReadFile("prompts/" + name)
	if err != nil {
		return Preset{}, false
	}
	return parsePreset(string(raw)), true
}

func parsePreset(raw string) Preset {
	parts := strings.Split(raw, presetSeparator)
	var p Preset
	if len(parts) > 0 {
		p.Template = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		p.Positive = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		p.Negative = strings.TrimSpace(parts[2])
	}
	return p
}

// Expand substitutes {{expr}} tokens in text. Expressions evaluate
// against the build variables; a token that fails to compile,
// evaluate, or resolves to nil is left in place unchanged, so stray
// braces in prompt prose survive expansion.
func (e *Engine) Expand(text string, vars Vars) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	env := vars.env()

	var result strings.Builder
	result.Grow(len(text))

	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], "{{")
		if idx == -1 {
			result.WriteString(text[i:])
			break
		}
		result.WriteString(text[i : i+idx])
		start := i + idx + 2

		end := strings.Index(text[start:], "}}")
		if end == -1 {
			result.WriteString(text[i+idx:])
			break
		}
		end += start

		expression := strings.TrimSpace(text[start:end])
		val, err := e.eval(expression, env)
		if err != nil || val == nil {
			result.WriteString(text[i+idx : end+2])
		} else {
			result.WriteString(cast.ToString(val))
		}
		i = end + 2
	}

	return result.String()
}

func (e *Engine) eval(expression string, env map[string]any) (any, error) {
	if expression == "" {
		return nil, nil
	}
	prg, err := e.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}
	return vm.Run(prg, env)
}

func (e *Engine) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}
	e.cache[expression] = prg
	return prg, nil
}

// BuildInput collects everything that shapes one prompt.
type BuildInput struct {
	Template    string
	Description string
	Positive    string
	Negative    string
	// PresetFile names a prompts/*.txt file whose non-empty sections
	// replace the inline template and instructions.
	PresetFile  string
	DiagramType string
	Format      string
	Extra       map[string]any
}

// BuiltPrompt is the expanded prompt triple.
type BuiltPrompt struct {
	Prompt   string
	Positive string
	Negative string
}

// UserPrompt returns the message sent as the user turn: the expanded
// template plus the positive instruction when present.
func (b BuiltPrompt) UserPrompt() string {
	if b.Positive == "" {
		return b.Prompt
	}
	return b.Prompt + "\n\nInstructions: " + b.Positive
}

// Build resolves the preset, expands all three sections and returns
// them. Preset sections only replace inline values when non-empty, so
// a preset with no negative keeps the caller's negative.
func (e *Engine) Build(in BuildInput) BuiltPrompt {
	template := in.Template
	positive := in.Positive
	negative := in.Negative

	if name := strings.TrimSpace(in.PresetFile); name != "" {
		if p, ok := e.Preset(name); ok {
			if p.Template != "" {
				template = p.Template
			}
			if p.Positive != "" {
				positive = p.Positive
			}
			if p.Negative != "" {
				negative = p.Negative
			}
		}
	}

	vars := Vars{
		Description: strings.TrimSpace(in.Description),
		DiagramType: strings.TrimSpace(in.DiagramType),
		Format:      strings.TrimSpace(in.Format),
		Extra:       in.Extra,
	}
	return BuiltPrompt{
		Prompt:   e.Expand(strings.TrimSpace(template), vars),
		Positive: e.Expand(strings.TrimSpace(positive), vars),
		Negative: e.Expand(strings.TrimSpace(negative), vars),
	}
}

// StripCodeFence removes one wrapping markdown fence from LLM output.
// Models add ``` fences despite instructions; the diagram renderers
// need the bare source. Text without a complete fence pair is
// returned trimmed but otherwise unchanged.
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}

	nl := strings.IndexByte(t, '\n')
	if nl == -1 {
		inner := strings.TrimSuffix(strings.TrimPrefix(t, "```"), "```")
		return strings.TrimSpace(inner)
	}

	body := t[nl+1:]
	closing := strings.LastIndex(body, "```")
	if closing == -1 || strings.TrimSpace(body[closing+3:]) != "" {
		return t
	}
	return strings.TrimSpace(body[:closing])
}
