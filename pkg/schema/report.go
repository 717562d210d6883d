package schema

import "fmt"

// RepairKind classifies one repair performed by the normalizer.
type RepairKind string

const (
	RepairLinksRebuilt      RepairKind = "links_rebuilt"
	RepairLinkDropped       RepairKind = "link_dropped"
	RepairMemberDropped     RepairKind = "member_dropped"
	RepairPortsDefaulted    RepairKind = "ports_defaulted"
	RepairTypeTagMigrated   RepairKind = "type_tag_migrated"
	RepairCounterCanonical  RepairKind = "counter_canonicalized"
	RepairCounterRecomputed RepairKind = "counter_recomputed"
	RepairGroupBound        RepairKind = "group_bound_synthesized"
	RepairGroupBoundDefault RepairKind = "group_bound_defaulted"
	RepairContainerDefault  RepairKind = "container_defaulted"
	RepairGroupsStripped    RepairKind = "groups_stripped"
	RepairDocumentReplaced  RepairKind = "document_replaced"
	RepairPromptType        RepairKind = "prompt_type_backfilled"
	RepairPromptInputs      RepairKind = "prompt_inputs_rebuilt"
)

// Repair records a single reconstruction with location context.
type Repair struct {
	Path    string     `json:"path"`
	Kind    RepairKind `json:"kind"`
	Message string     `json:"message"`
}

// RepairReport enumerates everything a normalization pass reconstructed.
// An empty report means the input was already canonical.
type RepairReport struct {
	Repairs []Repair `json:"repairs,omitempty"`
}

// Empty returns true if no repairs were performed.
func (r *RepairReport) Empty() bool {
	return len(r.Repairs) == 0
}

// Add appends one repair.
func (r *RepairReport) Add(path string, kind RepairKind, message string) {
	r.Repairs = append(r.Repairs, Repair{Path: path, Kind: kind, Message: message})
}

// Addf appends one repair with a formatted message.
func (r *RepairReport) Addf(path string, kind RepairKind, format string, args ...any) {
	r.Add(path, kind, fmt.Sprintf(format, args...))
}

// Has returns true if any repair of the given kind was recorded.
func (r *RepairReport) Has(kind RepairKind) bool {
	for _, rep := range r.Repairs {
		if rep.Kind == kind {
			return true
		}
	}
	return false
}

// Count returns the number of repairs of the given kind.
func (r *RepairReport) Count(kind RepairKind) int {
	n := 0
	for _, rep := range r.Repairs {
		if rep.Kind == kind {
			n++
		}
	}
	return n
}

// Merge combines another report into this one.
func (r *RepairReport) Merge(other *RepairReport) {
	if other == nil {
		return
	}
	r.Repairs = append(r.Repairs, other.Repairs...)
}
