package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// PatchPrompt compensates for host compiler defects on a compiled prompt:
// every node must carry a non-empty type tag and must not have its inputs
// collapsed to a sentinel placeholder. Missing data is backfilled by
// cross-referencing the graph document by node id. The prompt is patched in
// place; the report records what was reconstructed.
func PatchPrompt(prompt map[string]*schema.PromptNode, doc *schema.Document) *schema.RepairReport {
	rep := &schema.RepairReport{}

	keys := make([]string, 0, len(prompt))
	for k := range prompt {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pn := prompt[key]
		if pn == nil {
			continue
		}

		var node *schema.Node
		if doc != nil {
			if id, err := strconv.ParseInt(key, 10, 64); err == nil {
				node = doc.Node(id)
			}
		}

		if pn.ClassType == "" {
			ct := classTypeFor(node)
			pn.ClassType = ct
			rep.Addf(key, schema.RepairPromptType, "class_type backfilled to %q", ct)
		}

		if inputsSuspect(pn.Inputs) {
			if rebuilt, ok := rebuiltInputs(node); ok {
				pn.Inputs = rebuilt
				rep.Addf(key+".inputs", schema.RepairPromptInputs,
					"rebuilt %d inputs from node widget values", len(rebuilt))
			} else if pn.Inputs == nil {
				pn.Inputs = map[string]any{}
			}
		}
	}
	return rep
}

// classTypeFor resolves a type tag from the graph node, its display
// metadata, or the Unknown sentinel.
func classTypeFor(node *schema.Node) string {
	if node == nil {
		return "Unknown"
	}
	if node.Type != "" {
		return node.Type
	}
	if node.ClassType != "" {
		return node.ClassType
	}
	if name, ok := node.Meta("properties", "Node name for S&R"); ok && name != "" {
		return name
	}
	return "Unknown"
}

// inputsSuspect reports whether the compiler emitted the invalid collapsed
// shape: absent inputs, or a single placeholder entry with an empty key or
// a null value. An empty map is a legitimate zero-input node.
func inputsSuspect(inputs map[string]any) bool {
	if inputs == nil {
		return true
	}
	if len(inputs) != 1 {
		return false
	}
	for k, v := range inputs {
		if k == "" || v == nil {
			return true
		}
	}
	return false
}

// rebuiltInputs derives an inputs map from the node's serialized widget
// values. Named widget maps are used directly; positional lists get ordinal
// keys, which at least preserves the values for inspection.
func rebuiltInputs(node *schema.Node) (map[string]any, bool) {
	if node == nil {
		return nil, false
	}
	switch wv := node.WidgetValues().(type) {
	case map[string]any:
		if len(wv) == 0 {
			return nil, false
		}
		out := make(map[string]any, len(wv))
		for k, v := range wv {
			out[k] = v
		}
		return out, true
	case []any:
		if len(wv) == 0 {
			return nil, false
		}
		out := make(map[string]any, len(wv))
		for i, v := range wv {
			out[fmt.Sprintf("value_%d", i)] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// ParsePrompt decodes a compiled prompt JSON object keyed by node id.
func ParsePrompt(raw []byte) (map[string]*schema.PromptNode, error) {
	var prompt map[string]*schema.PromptNode
	if err := json.Unmarshal(raw, &prompt); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "compiled prompt is not a JSON object").WithCause(err)
	}
	return prompt, nil
}
