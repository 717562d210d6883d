package normalize

import (
	"strconv"

	"github.com/nodecanvas/umlview/pkg/schema"
)

const groupPadding = 20

var defaultGroupBound = []any{float64(0), float64(0), float64(400), float64(300)}

// ensureGroups defaults the groups container and synthesizes a bound for
// every group missing a valid finite 4-tuple, from the union of its member
// node rectangles plus fixed padding.
func ensureGroups(m map[string]any, nodes []map[string]any, rep *schema.RepairReport) {
	v, present := m["groups"]
	list, isList := v.([]any)
	if !isList {
		if present && v != nil {
			rep.Add("groups", schema.RepairContainerDefault, "groups was not a list, replaced with empty list")
		} else {
			rep.Add("groups", schema.RepairContainerDefault, "groups container created")
		}
		m["groups"] = []any{}
		return
	}

	byID := make(map[int64]map[string]any, len(nodes))
	for _, nm := range nodes {
		if id, ok := toInt64(nm["id"]); ok {
			byID[id] = nm
		}
	}

	kept := make([]any, 0, len(list))
	for i, e := range list {
		gm, ok := e.(map[string]any)
		if !ok {
			rep.Addf(groupPath(i), schema.RepairMemberDropped, "group entry is not an object")
			continue
		}
		kept = append(kept, e)

		if boundValid(gm["bound"]) {
			continue
		}

		memberIDs, isList := gm["nodes"].([]any)
		if !isList {
			gm["bound"] = defaultGroupBound
			rep.Addf(groupPath(i)+".bound", schema.RepairGroupBoundDefault, "no member list, defaulted to [0 0 400 300]")
			continue
		}

		var rects [][4]float64
		for _, idv := range memberIDs {
			id, ok := toInt64(idv)
			if !ok {
				continue
			}
			nm, ok := byID[id]
			if !ok {
				continue
			}
			if r, ok := nodeRect(nm); ok {
				rects = append(rects, r)
			}
		}
		if len(rects) == 0 {
			gm["bound"] = defaultGroupBound
			rep.Addf(groupPath(i)+".bound", schema.RepairGroupBoundDefault, "no resolvable members, defaulted to [0 0 400 300]")
			continue
		}

		minX, minY := rects[0][0], rects[0][1]
		maxX, maxY := rects[0][0]+rects[0][2], rects[0][1]+rects[0][3]
		for _, r := range rects[1:] {
			minX = minF(minX, r[0])
			minY = minF(minY, r[1])
			maxX = maxF(maxX, r[0]+r[2])
			maxY = maxF(maxY, r[1]+r[3])
		}
		gm["bound"] = []any{
			maxF(0, minX-groupPadding),
			maxF(0, minY-groupPadding),
			maxX - minX + 2*groupPadding,
			maxY - minY + 2*groupPadding,
		}
		rep.Addf(groupPath(i)+".bound", schema.RepairGroupBound,
			"synthesized from %d member nodes", len(rects))
	}
	m["groups"] = kept
}

func groupPath(i int) string {
	return "groups[" + strconv.Itoa(i) + "]"
}

// boundValid reports whether a bound is a list of at least four numbers.
func boundValid(v any) bool {
	list, ok := v.([]any)
	if !ok || len(list) < 4 {
		return false
	}
	for _, e := range list[:4] {
		if _, ok := toFloat(e); !ok {
			return false
		}
	}
	return true
}

// nodeRect derives (x, y, w, h) from a node's pos and size.
func nodeRect(nm map[string]any) ([4]float64, bool) {
	pos := toSlice(nm["pos"])
	size := toSlice(nm["size"])
	if len(pos) < 2 || len(size) < 2 {
		return [4]float64{}, false
	}
	x, ok := toFloat(pos[0])
	if !ok {
		return [4]float64{}, false
	}
	y, ok := toFloat(pos[1])
	if !ok {
		return [4]float64{}, false
	}
	w, ok := toFloat(size[0])
	if !ok {
		return [4]float64{}, false
	}
	h, ok := toFloat(size[1])
	if !ok {
		return [4]float64{}, false
	}
	return [4]float64{x, y, w, h}, true
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
