package kroki

import (
	"embed"
	"strings"

	"github.com/nodecanvas/umlview/pkg/diagram"
)

//go:embed defaults/*.txt
var defaultsFS embed.FS

// SourcePlaceholder is returned when no example ships for a type.
const SourcePlaceholder = "// Enter your diagram source here"

// DefaultSource returns example diagram source for the given type,
// aligned with the Kroki examples page, or a generic placeholder.
func DefaultSource(t diagram.Type) string {
	data, err := defaultsFS.ReadFile("defaults/" + string(t) + ".txt")
	if err != nil {
		return SourcePlaceholder
	}
	source := strings.TrimSpace(string(data))
	if source == "" {
		return SourcePlaceholder
	}
	return source
}
