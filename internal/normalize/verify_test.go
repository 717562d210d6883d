package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_NormalizedDocumentPasses(t *testing.T) {
	v, err := NewVerifier()
	require.NoError(t, err)

	doc, _ := mustNormalize(t, `{
		"nodes": [
			{"id": 1, "class_type": "UMLDiagram", "pos": [0, 0], "size": [100, 80], "outputs": [{"links": [3]}]},
			{"id": 2, "class_type": "SvgPreview", "inputs": [{"link": 3}]}
		],
		"links": null,
		"groups": [{"title": "Main", "nodes": [1, 2]}]
	}`)

	result := v.Verify(doc)
	assert.True(t, result.Valid(), "unexpected errors: %+v", result.Errors)
}

func TestVerifier_BytesMissingContainersFail(t *testing.T) {
	v, err := NewVerifier()
	require.NoError(t, err)

	result := v.VerifyBytes([]byte(`{"nodes": []}`))
	assert.False(t, result.Valid())
}

func TestVerifier_DuplicateNodeIDsRejected(t *testing.T) {
	v, err := NewVerifier()
	require.NoError(t, err)

	doc, _ := mustNormalize(t, `{"nodes": [{"id": 1}, {"id": 1}]}`)

	result := v.Verify(doc)
	assert.False(t, result.Valid())
}

func TestVerifier_DanglingLinkEndpointWarns(t *testing.T) {
	v, err := NewVerifier()
	require.NoError(t, err)

	doc, _ := mustNormalize(t, `{
		"nodes": [{"id": 1}],
		"links": [{"id": 2, "origin_id": 1, "origin_slot": 0, "target_id": 99, "target_slot": 0, "type": "STRING"}],
		"lastLinkId": 2
	}`)

	result := v.Verify(doc)
	assert.True(t, result.Valid(), "dangling endpoints warn, they do not fail")
	assert.NotEmpty(t, result.Warnings)
}

func TestVerifier_UnderCountingCounterFails(t *testing.T) {
	v, err := NewVerifier()
	require.NoError(t, err)

	doc, _ := mustNormalize(t, `{"nodes": [{"id": 5}]}`)
	doc.LastNodeID = 2

	result := v.Verify(doc)
	assert.False(t, result.Valid())
}
