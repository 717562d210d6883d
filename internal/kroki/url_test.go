package kroki

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodecanvas/umlview/pkg/diagram"
	"github.com/nodecanvas/umlview/pkg/schema"
)

func TestEncodeSource_RoundTrip(t *testing.T) {
	const source = "digraph G {\n  Hello -> World\n}"

	encoded := EncodeSource(source)
	require.NotEmpty(t, encoded)
	assert.NotContains(t, encoded, "+", "must be url-safe")
	assert.NotContains(t, encoded, "/", "must be url-safe")

	decoded, err := DecodeSource(encoded)
	require.NoError(t, err)
	assert.Equal(t, source, decoded)
}

func TestEncodeSource_EmptyInput(t *testing.T) {
	assert.Equal(t, "", EncodeSource(""))

	decoded, err := DecodeSource("")
	require.NoError(t, err)
	assert.Equal(t, "", decoded)
}

func TestDecodeSource_RejectsGarbage(t *testing.T) {
	_, err := DecodeSource("!!!not-base64!!!")
	require.Error(t, err)

	var uerr *schema.UMLError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, schema.ErrCodeDecode, uerr.Code)
}

func TestShareURL_Shape(t *testing.T) {
	u, err := ShareURL("", diagram.TypeGraphviz, diagram.FormatSVG, "digraph G { a -> b }", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "https://kroki.io/graphviz/svg/"), "got %s", u)
	assert.NotContains(t, u, "?")
}

func TestShareURL_AppendsOptions(t *testing.T) {
	u, err := ShareURL("https://kroki.example.com/", diagram.TypeMermaid, diagram.FormatSVG,
		"graph TD\nA-->B", Options{"theme": "forest", "no-links": true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "https://kroki.example.com/mermaid/svg/"), "got %s", u)
	assert.Contains(t, u, "theme=forest")
	assert.Contains(t, u, "no-links=", "flag options carry an empty value")
}

func TestShareURL_ValidatesPair(t *testing.T) {
	_, err := ShareURL("", diagram.TypeSvgbob, diagram.FormatPNG, "art", nil)
	require.Error(t, err)
}
