package normalize

import "github.com/nodecanvas/umlview/pkg/schema"

// canonicalizeCounters resolves lastNodeId and lastLinkId: camelCase is
// preferred over the legacy snake_case key, the snake_case key is removed,
// and a counter that under-counts what is actually present is raised to the
// maximum used id. The host allocates new ids from these counters, so an
// under-count would produce colliding ids.
func canonicalizeCounters(m map[string]any, nodes []map[string]any, rep *schema.RepairReport) {
	maxLink := int64(0)
	for _, e := range toSlice(m["links"]) {
		if lm, ok := e.(map[string]any); ok {
			if id, ok := toInt64(lm["id"]); ok && id > maxLink {
				maxLink = id
			}
		}
	}
	canonicalizeCounter(m, "lastLinkId", "last_link_id", maxLink, rep)

	maxNode := int64(0)
	for _, nm := range nodes {
		if id, ok := toInt64(nm["id"]); ok && id > maxNode {
			maxNode = id
		}
	}
	canonicalizeCounter(m, "lastNodeId", "last_node_id", maxNode, rep)
}

func canonicalizeCounter(m map[string]any, camel, snake string, maxUsed int64, rep *schema.RepairReport) {
	var val int64
	hasVal := false
	migrated := false

	if v, ok := m[camel]; ok && v != nil {
		val, hasVal = toInt64(v)
	}
	if !hasVal {
		if v, ok := m[snake]; ok && v != nil {
			if val, hasVal = toInt64(v); hasVal {
				migrated = true
				rep.Addf(camel, schema.RepairCounterCanonical, "migrated from legacy %s", snake)
			}
		}
	}
	if _, ok := m[snake]; ok {
		delete(m, snake)
		if !migrated {
			rep.Addf(camel, schema.RepairCounterCanonical, "removed legacy %s", snake)
		}
	}

	switch {
	case !hasVal && maxUsed > 0:
		val = maxUsed
		rep.Addf(camel, schema.RepairCounterRecomputed, "recomputed to %d", maxUsed)
	case !hasVal:
		val = 0
		rep.Addf(camel, schema.RepairContainerDefault, "%s defaulted to 0", camel)
	case val < maxUsed:
		val = maxUsed
		rep.Addf(camel, schema.RepairCounterRecomputed, "raised under-counting value to %d", maxUsed)
	}
	m[camel] = val
}
