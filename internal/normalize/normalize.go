// Package normalize repairs loosely-specified graph documents into the
// canonical shape a visual-editor host can load. Repairs are best effort and
// never destructive beyond what is reported: every reconstruction is recorded
// in a RepairReport so callers can observe what changed.
package normalize

import (
	"encoding/json"
	"strconv"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// Normalize parses raw document JSON and repairs it. It returns an error
// only when the input cannot be parsed as a JSON object at all; the caller
// decides whether to pass the original through or fall back (see Repair).
func Normalize(raw []byte) (*schema.Document, *schema.RepairReport, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, nil, err
	}
	doc, rep := normalizeMap(m)
	return doc, rep, nil
}

// NormalizeMap repairs an already-decoded document. The input map is not
// mutated.
func NormalizeMap(m map[string]any) (*schema.Document, *schema.RepairReport) {
	return normalizeMap(deepCopy(m))
}

// decodeObject parses raw bytes into a top-level JSON object. A top-level
// JSON string is unwrapped once: some host load paths double-serialize the
// document.
func decodeObject(raw []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "document is not valid JSON").WithCause(err)
	}
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, schema.NewError(schema.ErrCodeParse, "string-wrapped document is not valid JSON").WithCause(err)
		}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeParse, "document is not a JSON object")
	}
	return m, nil
}

// normalizeMap runs the repair steps in order, mutating m, then projects the
// result into the typed document.
func normalizeMap(m map[string]any) (*schema.Document, *schema.RepairReport) {
	rep := &schema.RepairReport{}

	nodes := ensureNodes(m, rep)
	ensureLinks(m, nodes, rep)
	canonicalizeCounters(m, nodes, rep)
	ensureGroups(m, nodes, rep)
	ensureContainers(m, rep)

	return schema.DocumentFromMap(m), rep
}

// ensureNodes defaults the nodes container, drops degenerate members,
// defaults missing port containers per node, and migrates the legacy type
// tag to class_type.
func ensureNodes(m map[string]any, rep *schema.RepairReport) []map[string]any {
	v, present := m["nodes"]
	list, isList := v.([]any)
	if !isList {
		if present && v != nil {
			rep.Add("nodes", schema.RepairContainerDefault, "nodes was not a list, replaced with empty list")
		} else {
			rep.Add("nodes", schema.RepairContainerDefault, "nodes container created")
		}
		m["nodes"] = []any{}
		return nil
	}

	kept := make([]any, 0, len(list))
	nodes := make([]map[string]any, 0, len(list))
	for i, e := range list {
		nm, ok := e.(map[string]any)
		if !ok {
			rep.Addf(nodePath(i), schema.RepairMemberDropped, "node entry is not an object")
			continue
		}
		kept = append(kept, e)
		nodes = append(nodes, nm)

		var defaulted []string
		if _, ok := nm["inputs"].([]any); !ok {
			nm["inputs"] = []any{}
			defaulted = append(defaulted, "inputs")
		}
		if _, ok := nm["outputs"].([]any); !ok {
			nm["outputs"] = []any{}
			defaulted = append(defaulted, "outputs")
		}
		if len(defaulted) > 0 {
			rep.Addf(nodePath(i), schema.RepairPortsDefaulted, "defaulted %v to empty lists", defaulted)
		}

		typ, _ := nm["type"].(string)
		classType, _ := nm["class_type"].(string)
		if typ != "" && classType == "" {
			nm["class_type"] = typ
			rep.Addf(nodePath(i)+".class_type", schema.RepairTypeTagMigrated, "copied legacy type tag %q", typ)
		}
	}
	m["nodes"] = kept
	return nodes
}

func nodePath(i int) string {
	return "nodes[" + strconv.Itoa(i) + "]"
}

// ensureContainers defaults config, extra and version.
func ensureContainers(m map[string]any, rep *schema.RepairReport) {
	for _, key := range []string{"config", "extra"} {
		if _, ok := m[key].(map[string]any); !ok {
			if v, present := m[key]; present && v != nil {
				rep.Addf(key, schema.RepairContainerDefault, "%s was not an object, replaced with empty object", key)
			} else {
				rep.Addf(key, schema.RepairContainerDefault, "%s container created", key)
			}
			m[key] = map[string]any{}
		}
	}
	if _, ok := toFloat(m["version"]); !ok {
		m["version"] = schema.DefaultVersion
		rep.Addf("version", schema.RepairContainerDefault, "version defaulted to %v", schema.DefaultVersion)
	}
}

// deepCopy round-trips a decoded JSON value so repairs never alias the
// caller's data.
func deepCopy(m map[string]any) map[string]any {
	b, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func toSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

// toInt64 coerces a decoded JSON value to an integer. Numeric strings are
// accepted for counter fields that drifted through bad serializers; floats
// truncate.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
