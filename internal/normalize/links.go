package normalize

import (
	"sort"

	"github.com/nodecanvas/umlview/pkg/schema"
)

var requiredLinkKeys = []string{"id", "origin_id", "origin_slot", "target_id", "target_slot", "type"}

// ensureLinks classifies the links container and rebuilds it from node port
// data when corrupted. An empty list is valid; a missing container is
// created, reconstructing whatever the ports still describe.
func ensureLinks(m map[string]any, nodes []map[string]any, rep *schema.RepairReport) {
	v, present := m["links"]
	if present && v != nil && !linksCorrupted(v) {
		return
	}

	rebuilt := rebuildLinks(nodes, rep)
	m["links"] = rebuilt

	if !present || v == nil {
		rep.Add("links", schema.RepairContainerDefault, "links container created")
	}
	if (present && v != nil) || len(rebuilt) > 0 {
		rep.Addf("links", schema.RepairLinksRebuilt, "rebuilt %d links from node ports", len(rebuilt))
	}
}

// linksCorrupted reports whether the links value must be rebuilt: not a
// list, array-style elements, an element missing a required key, or an
// element whose endpoints are both null.
func linksCorrupted(v any) bool {
	list, ok := v.([]any)
	if !ok {
		return true
	}
	if len(list) == 0 {
		return false
	}
	switch list[0].(type) {
	case []any:
		return true
	case map[string]any:
		for _, e := range list {
			lm, ok := e.(map[string]any)
			if !ok {
				return true
			}
			for _, k := range requiredLinkKeys {
				if _, ok := lm[k]; !ok {
					return true
				}
			}
			if lm["origin_id"] == nil && lm["target_id"] == nil {
				return true
			}
		}
		return false
	default:
		return true
	}
}

type linkOrigin struct {
	node int64
	slot int
	typ  string
}

type linkTarget struct {
	node int64
	slot int
}

// rebuildLinks reconstructs the links list from node output and input ports.
// A link id present on only one side cannot be executed and is dropped.
// Links are emitted in ascending id order.
func rebuildLinks(nodes []map[string]any, rep *schema.RepairReport) []any {
	origins := make(map[int64]linkOrigin)
	targets := make(map[int64]linkTarget)

	for _, nm := range nodes {
		nid, ok := toInt64(nm["id"])
		if !ok {
			continue
		}
		for _, e := range toSlice(nm["outputs"]) {
			om, ok := e.(map[string]any)
			if !ok {
				continue
			}
			slot := 0
			if i, ok := toInt64(om["slot_index"]); ok {
				slot = int(i)
			}
			typ, _ := om["type"].(string)
			if typ == "" {
				typ = "STRING"
			}
			switch lv := om["links"].(type) {
			case []any:
				for _, le := range lv {
					if id, ok := toInt64(le); ok {
						origins[id] = linkOrigin{node: nid, slot: slot, typ: typ}
					}
				}
			default:
				if id, ok := toInt64(lv); ok {
					origins[id] = linkOrigin{node: nid, slot: slot, typ: typ}
				}
			}
		}
		for _, e := range toSlice(nm["inputs"]) {
			im, ok := e.(map[string]any)
			if !ok {
				continue
			}
			slot := 0
			if i, ok := toInt64(im["slot_index"]); ok {
				slot = int(i)
			}
			if id, ok := toInt64(im["link"]); ok {
				targets[id] = linkTarget{node: nid, slot: slot}
			}
		}
	}

	ids := make([]int64, 0, len(origins)+len(targets))
	seen := make(map[int64]struct{}, len(origins)+len(targets))
	for id := range origins {
		ids = append(ids, id)
		seen[id] = struct{}{}
	}
	for id := range targets {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	links := make([]any, 0, len(ids))
	for _, id := range ids {
		origin, hasOrigin := origins[id]
		target, hasTarget := targets[id]
		if !hasOrigin {
			rep.Addf("links", schema.RepairLinkDropped, "link %d has no origin port, dropped", id)
			continue
		}
		if !hasTarget {
			rep.Addf("links", schema.RepairLinkDropped, "link %d has no target port, dropped", id)
			continue
		}
		links = append(links, map[string]any{
			"id":          id,
			"origin_id":   origin.node,
			"origin_slot": origin.slot,
			"target_id":   target.node,
			"target_slot": target.slot,
			"type":        origin.typ,
		})
	}
	return links
}
