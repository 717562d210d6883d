package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// documentSchemaJSON is the JSON Schema for the canonical document shape.
// Embedded as a constant to avoid filesystem dependencies. Unknown keys are
// allowed everywhere: the normalizer preserves them and so must verification.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://umlview.dev/schemas/document.json",
  "type": "object",
  "required": ["nodes", "links", "groups", "lastNodeId", "lastLinkId", "config", "extra", "version"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "links": {
      "type": "array",
      "items": { "$ref": "#/$defs/link" }
    },
    "groups": {
      "type": "array",
      "items": { "$ref": "#/$defs/group" }
    },
    "lastNodeId": { "type": "integer", "minimum": 0 },
    "lastLinkId": { "type": "integer", "minimum": 0 },
    "config": { "type": "object" },
    "extra": { "type": "object" },
    "version": { "type": "number" }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["inputs", "outputs"],
      "properties": {
        "id": { "type": "integer" },
        "type": { "type": "string" },
        "class_type": { "type": "string" },
        "pos": {
          "type": "array",
          "items": { "type": "number" }
        },
        "size": {
          "type": "array",
          "items": { "type": "number" }
        },
        "inputs": { "type": "array" },
        "outputs": { "type": "array" }
      }
    },
    "link": {
      "type": "object",
      "required": ["id", "origin_id", "origin_slot", "target_id", "target_slot", "type"],
      "properties": {
        "id": { "type": "integer" },
        "origin_id": { "type": "integer" },
        "origin_slot": { "type": "integer" },
        "target_id": { "type": "integer" },
        "target_slot": { "type": "integer" },
        "type": { "type": "string" }
      }
    },
    "group": {
      "type": "object",
      "required": ["bound", "nodes"],
      "properties": {
        "title": { "type": "string" },
        "bound": {
          "type": "array",
          "minItems": 4,
          "items": { "type": "number" }
        },
        "nodes": {
          "type": "array",
          "items": { "type": "integer" }
        }
      }
    }
  }
}`

// Verifier checks documents against the canonical shape using JSON Schema
// Draft 2020-12, plus the structural rules the schema cannot express.
// It is safe for concurrent use.
type Verifier struct {
	documentSchema *jsonschema.Schema
}

// NewVerifier creates a Verifier with the document schema pre-compiled.
func NewVerifier() (*Verifier, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource("https://umlview.dev/schemas/document.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}
	compiled, err := c.Compile("https://umlview.dev/schemas/document.json")
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &Verifier{documentSchema: compiled}, nil
}

// Verify checks a typed document. Violations are reported, never thrown;
// the caller decides whether warnings or errors block anything.
func (v *Verifier) Verify(doc *schema.Document) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if doc == nil {
		result.AddError("/", schema.ErrCodeValidation, "document is nil")
		return result
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "document cannot be serialized: "+err.Error())
		return result
	}
	v.verifySchema(raw, result)
	v.verifyStructure(doc, result)
	return result
}

// VerifyBytes checks raw document JSON without normalizing it first, for
// inspecting files as they are on disk.
func (v *Verifier) VerifyBytes(raw []byte) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	v.verifySchema(raw, result)

	var doc schema.Document
	if err := json.Unmarshal(raw, &doc); err == nil {
		v.verifyStructure(&doc, result)
	}
	return result
}

func (v *Verifier) verifySchema(raw []byte, result *schema.ValidationResult) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		result.AddError("/", schema.ErrCodeParse, "document is not valid JSON: "+err.Error())
		return
	}
	if err := v.documentSchema.Validate(doc); err != nil {
		for _, violation := range collectViolations(err) {
			result.AddError(violation.path, schema.ErrCodeValidation, violation.message)
		}
	}
}

// verifyStructure applies the rules JSON Schema cannot express: unique ids,
// counters covering the ids in use, and referential integrity of link
// endpoints and group members. Dangling references are warnings; the host
// tolerates them, but they usually mean an upstream export bug.
func (v *Verifier) verifyStructure(doc *schema.Document, result *schema.ValidationResult) {
	nodeIDs := make(map[int64]struct{}, len(doc.Nodes))
	for i, n := range doc.Nodes {
		if n == nil {
			continue
		}
		if _, dup := nodeIDs[n.ID]; dup {
			result.AddError(fmt.Sprintf("nodes[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %d", n.ID))
			continue
		}
		nodeIDs[n.ID] = struct{}{}
	}

	linkIDs := make(map[int64]struct{}, len(doc.Links))
	for i, l := range doc.Links {
		if l == nil {
			continue
		}
		path := fmt.Sprintf("links[%d]", i)
		if _, dup := linkIDs[l.ID]; dup {
			result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("duplicate link id %d", l.ID))
		}
		linkIDs[l.ID] = struct{}{}
		if _, ok := nodeIDs[l.OriginID]; !ok {
			result.AddWarning(path+".origin_id", schema.ErrCodeValidation,
				fmt.Sprintf("origin node %d does not exist", l.OriginID))
		}
		if _, ok := nodeIDs[l.TargetID]; !ok {
			result.AddWarning(path+".target_id", schema.ErrCodeValidation,
				fmt.Sprintf("target node %d does not exist", l.TargetID))
		}
	}

	for i, g := range doc.Groups {
		if g == nil {
			continue
		}
		for _, id := range g.NodeIDs {
			if _, ok := nodeIDs[id]; !ok {
				result.AddWarning(fmt.Sprintf("groups[%d].nodes", i), schema.ErrCodeValidation,
					fmt.Sprintf("member node %d does not exist", id))
			}
		}
	}

	if max := doc.MaxNodeID(); doc.LastNodeID < max {
		result.AddError("lastNodeId", schema.ErrCodeValidation,
			fmt.Sprintf("counter %d under-counts maximum node id %d", doc.LastNodeID, max))
	}
	if max := doc.MaxLinkID(); doc.LastLinkID < max {
		result.AddError("lastLinkId", schema.ErrCodeValidation,
			fmt.Sprintf("counter %d under-counts maximum link id %d", doc.LastLinkID, max))
	}
}

type violation struct {
	path    string
	message string
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(err error) []violation {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []violation{{path: "/", message: err.Error()}}
	}
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{path: loc, message: verr.Error()}}
	}
	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
