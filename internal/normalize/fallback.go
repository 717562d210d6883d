package normalize

import (
	"encoding/json"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// Strategy is one stage of the repair fallback chain. Stages are tried in
// order until one yields a document; the last stage cannot fail.
type Strategy struct {
	Name  string
	Apply func(raw []byte) (*schema.Document, *schema.RepairReport, error)
}

// Strategies returns the ordered fallback chain: full normalization, the
// same document with groups forcibly emptied, then a fixed minimal valid
// document. The host must never receive a value it cannot ingest.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "normalize", Apply: Normalize},
		{Name: "normalize-without-groups", Apply: NormalizeWithoutGroups},
		{Name: "minimal-document", Apply: minimalDocument},
	}
}

// Repair runs the fallback chain and always yields loadable document bytes.
func Repair(raw []byte) ([]byte, *schema.RepairReport) {
	for _, s := range Strategies() {
		doc, rep, err := s.Apply(raw)
		if err != nil {
			continue
		}
		b, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		return b, rep
	}
	// Unreachable: the minimal-document stage never fails.
	doc, rep, _ := minimalDocument(nil)
	b, _ := json.Marshal(doc)
	return b, rep
}

// NormalizeWithoutGroups normalizes with the groups container forcibly
// emptied, the retry the host loader gets after rejecting a document on a
// structural group error.
func NormalizeWithoutGroups(raw []byte) (*schema.Document, *schema.RepairReport, error) {
	m, err := decodeObject(raw)
	if err != nil {
		return nil, nil, err
	}
	m["groups"] = []any{}
	doc, rep := normalizeMap(m)
	rep.Add("groups", schema.RepairGroupsStripped, "groups forcibly emptied")
	return doc, rep, nil
}

func minimalDocument(_ []byte) (*schema.Document, *schema.RepairReport, error) {
	doc := schema.DocumentFromMap(map[string]any{})
	rep := &schema.RepairReport{}
	rep.Add("/", schema.RepairDocumentReplaced, "input unusable, replaced with minimal empty document")
	return doc, rep, nil
}
