package diagram

import (
	"sort"
	"strings"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// Type identifies a diagram language understood by the Kroki service.
type Type string

const (
	TypeActDiag     Type = "actdiag"
	TypeBlockDiag   Type = "blockdiag"
	TypeBPMN        Type = "bpmn"
	TypeBytefield   Type = "bytefield"
	TypeC4PlantUML  Type = "c4plantuml"
	TypeD2          Type = "d2"
	TypeDBML        Type = "dbml"
	TypeDitaa       Type = "ditaa"
	TypeERD         Type = "erd"
	TypeExcalidraw  Type = "excalidraw"
	TypeGraphviz    Type = "graphviz"
	TypeMermaid     Type = "mermaid"
	TypeNomnoml     Type = "nomnoml"
	TypeNwDiag      Type = "nwdiag"
	TypePacketDiag  Type = "packetdiag"
	TypePikchr      Type = "pikchr"
	TypePlantUML    Type = "plantuml"
	TypeRackDiag    Type = "rackdiag"
	TypeSeqDiag     Type = "seqdiag"
	TypeStructurizr Type = "structurizr"
	TypeSvgbob      Type = "svgbob"
	TypeSymbolator  Type = "symbolator"
	TypeTikz        Type = "tikz"
	TypeUMLet       Type = "umlet"
	TypeVega        Type = "vega"
	TypeVegaLite    Type = "vegalite"
	TypeWaveDrom    Type = "wavedrom"
	TypeWireViz     Type = "wireviz"
)

// typeFormats lists the output formats Kroki supports per diagram type.
// Several text-based languages render to SVG only.
var typeFormats = map[Type][]Format{
	TypeActDiag:     {FormatPNG, FormatSVG, FormatPDF},
	TypeBlockDiag:   {FormatPNG, FormatSVG, FormatPDF},
	TypeBPMN:        {FormatSVG},
	TypeBytefield:   {FormatSVG},
	TypeC4PlantUML:  {FormatPNG, FormatSVG, FormatPDF, FormatTxt, FormatBase64},
	TypeD2:          {FormatPNG, FormatSVG},
	TypeDBML:        {FormatSVG},
	TypeDitaa:       {FormatPNG, FormatSVG},
	TypeERD:         {FormatPNG, FormatSVG, FormatJPEG, FormatPDF},
	TypeExcalidraw:  {FormatSVG},
	TypeGraphviz:    {FormatPNG, FormatSVG, FormatPDF, FormatJPEG},
	TypeMermaid:     {FormatSVG, FormatPNG, FormatBase64},
	TypeNomnoml:     {FormatSVG},
	TypeNwDiag:      {FormatPNG, FormatSVG, FormatPDF},
	TypePacketDiag:  {FormatPNG, FormatSVG, FormatPDF},
	TypePikchr:      {FormatSVG},
	TypePlantUML:    {FormatPNG, FormatSVG, FormatPDF, FormatTxt, FormatBase64},
	TypeRackDiag:    {FormatPNG, FormatSVG, FormatPDF},
	TypeSeqDiag:     {FormatPNG, FormatSVG, FormatPDF},
	TypeStructurizr: {FormatPNG, FormatSVG, FormatPDF, FormatTxt, FormatBase64},
	TypeSvgbob:      {FormatSVG},
	TypeSymbolator:  {FormatSVG},
	TypeTikz:        {FormatPNG, FormatSVG, FormatJPEG, FormatPDF},
	TypeUMLet:       {FormatPNG, FormatSVG, FormatJPEG},
	TypeVega:        {FormatPNG, FormatSVG, FormatPDF},
	TypeVegaLite:    {FormatPNG, FormatSVG, FormatPDF},
	TypeWaveDrom:    {FormatSVG},
	TypeWireViz:     {FormatPNG, FormatSVG},
}

// Types returns every supported diagram type in alphabetical order.
func Types() []Type {
	types := make([]Type, 0, len(typeFormats))
	for t := range typeFormats {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ParseType normalizes and validates a diagram type string.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := typeFormats[t]; !ok {
		return "", schema.NewErrorf(schema.ErrCodeUnsupported,
			"unsupported diagram type: %s. Supported: %s", s, joinTypes(Types())).
			WithDetails(map[string]any{"diagram_type": s})
	}
	return t, nil
}

// OutputFormats returns the render formats Kroki supports for t, nil
// for an unknown type.
func (t Type) OutputFormats() []Format {
	formats, ok := typeFormats[t]
	if !ok {
		return nil
	}
	out := make([]Format, len(formats))
	copy(out, formats)
	return out
}

// Supports reports whether t can be rendered to f.
func (t Type) Supports(f Format) bool {
	for _, allowed := range typeFormats[t] {
		if allowed == f {
			return true
		}
	}
	return false
}

// ValidateRender checks that the (type, format) pair is renderable by
// the Kroki service.
func ValidateRender(t Type, f Format) error {
	formats, ok := typeFormats[t]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeUnsupported,
			"unsupported diagram type: %s. Supported: %s", t, joinTypes(Types())).
			WithDetails(map[string]any{"diagram_type": string(t)})
	}
	if !t.Supports(f) {
		return schema.NewErrorf(schema.ErrCodeUnsupported,
			"format %q not supported for %s. Supported: %s", f, t, joinFormats(formats)).
			WithDetails(map[string]any{"diagram_type": string(t), "format": string(f)})
	}
	return nil
}

func joinTypes(types []Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func joinFormats(formats []Format) string {
	parts := make([]string, len(formats))
	for i, f := range formats {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
