package schema

import "encoding/json"

// DefaultVersion is written when a document carries no version marker.
const DefaultVersion = 0.4

// Document is the canonical serialized form of a visual-program graph.
// After normalization all four structural containers (nodes, links, groups,
// config/extra) and both id counters are present, and unknown top-level keys
// survive a decode/encode round-trip untouched.
type Document struct {
	Nodes      []*Node
	Links      []*Link
	Groups     []*Group
	LastNodeID int64
	LastLinkID int64
	Config     map[string]any
	Extra      map[string]any
	Version    float64

	rest map[string]any
}

// DocumentFromMap builds a Document from decoded JSON, projecting the known
// keys into typed fields and keeping everything else verbatim. Container
// members that are not JSON objects are dropped; the normalizer removes and
// reports them before projection.
func DocumentFromMap(m map[string]any) *Document {
	d := &Document{
		Nodes:  []*Node{},
		Links:  []*Link{},
		Groups: []*Group{},
		Config: map[string]any{},
		Extra:  map[string]any{},
	}
	d.rest = make(map[string]any)

	for k, v := range m {
		switch k {
		case "nodes":
			for _, e := range toSlice(v) {
				if em, ok := e.(map[string]any); ok {
					d.Nodes = append(d.Nodes, NodeFromMap(em))
				}
			}
		case "links":
			for _, e := range toSlice(v) {
				if em, ok := e.(map[string]any); ok {
					d.Links = append(d.Links, LinkFromMap(em))
				}
			}
		case "groups":
			for _, e := range toSlice(v) {
				if em, ok := e.(map[string]any); ok {
					d.Groups = append(d.Groups, GroupFromMap(em))
				}
			}
		case "lastNodeId":
			d.LastNodeID, _ = toInt64(v)
		case "lastLinkId":
			d.LastLinkID, _ = toInt64(v)
		case "config":
			if cm, ok := v.(map[string]any); ok {
				d.Config = cm
			}
		case "extra":
			if em, ok := v.(map[string]any); ok {
				d.Extra = em
			}
		case "version":
			if f, ok := toFloat(v); ok {
				d.Version = f
			} else {
				d.Version = DefaultVersion
			}
		default:
			d.rest[k] = v
		}
	}
	if _, ok := m["version"]; !ok {
		d.Version = DefaultVersion
	}
	return d
}

// MarshalJSON emits the canonical document shape: all containers and both
// counters present, preserved unknown keys merged back in.
func (d *Document) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.rest)+8)
	for k, v := range d.rest {
		m[k] = v
	}
	nodes := d.Nodes
	if nodes == nil {
		nodes = []*Node{}
	}
	links := d.Links
	if links == nil {
		links = []*Link{}
	}
	groups := d.Groups
	if groups == nil {
		groups = []*Group{}
	}
	config := d.Config
	if config == nil {
		config = map[string]any{}
	}
	extra := d.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	m["nodes"] = nodes
	m["links"] = links
	m["groups"] = groups
	m["lastNodeId"] = d.LastNodeID
	m["lastLinkId"] = d.LastLinkID
	m["config"] = config
	m["extra"] = extra
	m["version"] = d.Version
	return json.Marshal(m)
}

// UnmarshalJSON decodes a document that is already in canonical shape.
// Inputs of unknown shape should go through the normalizer instead.
func (d *Document) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*d = *DocumentFromMap(m)
	return nil
}

// Node returns the node with the given id, or nil.
func (d *Document) Node(id int64) *Node {
	for _, n := range d.Nodes {
		if n != nil && n.hasID && n.ID == id {
			return n
		}
	}
	return nil
}

// MaxNodeID returns the largest node id present, or 0.
func (d *Document) MaxNodeID() int64 {
	var max int64
	for _, n := range d.Nodes {
		if n != nil && n.hasID && n.ID > max {
			max = n.ID
		}
	}
	return max
}

// MaxLinkID returns the largest link id present, or 0.
func (d *Document) MaxLinkID() int64 {
	var max int64
	for _, l := range d.Links {
		if l != nil && l.ID > max {
			max = l.ID
		}
	}
	return max
}

// Node is one node record in a graph document. Only the keys the normalizer
// and prompt patcher act on are typed; the rest ride along untouched.
type Node struct {
	ID        int64
	Type      string
	ClassType string
	Pos       []float64
	Size      []float64
	Inputs    []Port
	Outputs   []Port

	hasID bool
	rest  map[string]any
}

// NodeFromMap builds a Node from decoded JSON. Keys that fail projection
// (a non-numeric id, a malformed pos) stay in the preserved remainder so
// nothing is lost on re-encode.
func NodeFromMap(m map[string]any) *Node {
	n := &Node{
		Inputs:  []Port{},
		Outputs: []Port{},
		rest:    make(map[string]any),
	}
	for k, v := range m {
		switch k {
		case "id":
			if id, ok := toInt64(v); ok {
				n.ID = id
				n.hasID = true
			} else {
				n.rest[k] = v
			}
		case "type":
			if s, ok := v.(string); ok {
				n.Type = s
			} else {
				n.rest[k] = v
			}
		case "class_type":
			if s, ok := v.(string); ok {
				n.ClassType = s
			} else {
				n.rest[k] = v
			}
		case "pos":
			if fs, ok := toFloats(v); ok {
				n.Pos = fs
			} else {
				n.rest[k] = v
			}
		case "size":
			if fs, ok := toFloats(v); ok {
				n.Size = fs
			} else {
				n.rest[k] = v
			}
		case "inputs":
			n.Inputs = toPorts(v)
		case "outputs":
			n.Outputs = toPorts(v)
		default:
			n.rest[k] = v
		}
	}
	return n
}

// MarshalJSON always emits inputs and outputs, even when empty; every node
// in a canonical document carries both port containers.
func (n *Node) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(n.rest)+7)
	for k, v := range n.rest {
		m[k] = v
	}
	if n.hasID {
		m["id"] = n.ID
	}
	if n.Type != "" {
		m["type"] = n.Type
	}
	if n.ClassType != "" {
		m["class_type"] = n.ClassType
	}
	if n.Pos != nil {
		m["pos"] = n.Pos
	}
	if n.Size != nil {
		m["size"] = n.Size
	}
	inputs := n.Inputs
	if inputs == nil {
		inputs = []Port{}
	}
	outputs := n.Outputs
	if outputs == nil {
		outputs = []Port{}
	}
	m["inputs"] = inputs
	m["outputs"] = outputs
	return json.Marshal(m)
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*n = *NodeFromMap(m)
	return nil
}

// Meta returns a string field from the node's preserved remainder, with one
// level of nesting ("properties.Node name for S&R" style lookups).
func (n *Node) Meta(keys ...string) (string, bool) {
	cur := any(n.rest)
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur, ok = m[k]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	return s, ok
}

// WidgetValues returns the node's serialized widget values, which may be a
// positional list or a named map depending on the producing host version.
func (n *Node) WidgetValues() any {
	return n.rest["widgets_values"]
}

// Port is one input or output port record. Ports are read, never rewritten,
// so they stay as loose key-value data.
type Port map[string]any

// LinkID returns the connected link id of an input port.
func (p Port) LinkID() (int64, bool) {
	return toInt64(p["link"])
}

// LinkIDs returns the connected link ids of an output port. The field may
// be a list or, in older documents, a bare scalar.
func (p Port) LinkIDs() []int64 {
	switch v := p["links"].(type) {
	case []any:
		ids := make([]int64, 0, len(v))
		for _, e := range v {
			if id, ok := toInt64(e); ok {
				ids = append(ids, id)
			}
		}
		return ids
	default:
		if id, ok := toInt64(v); ok {
			return []int64{id}
		}
		return nil
	}
}

// SlotIndex returns the port's slot index, defaulting to 0.
func (p Port) SlotIndex() int {
	if i, ok := toInt64(p["slot_index"]); ok {
		return int(i)
	}
	return 0
}

// DataType returns the port's declared payload type, or "" when absent.
func (p Port) DataType() string {
	s, _ := p["type"].(string)
	return s
}

func toPorts(v any) []Port {
	s := toSlice(v)
	ports := make([]Port, 0, len(s))
	for _, e := range s {
		if em, ok := e.(map[string]any); ok {
			ports = append(ports, Port(em))
		}
	}
	return ports
}

// Link is a directed edge from one node's output port to another node's
// input port.
type Link struct {
	ID         int64  `json:"id"`
	OriginID   int64  `json:"origin_id"`
	OriginSlot int    `json:"origin_slot"`
	TargetID   int64  `json:"target_id"`
	TargetSlot int    `json:"target_slot"`
	Type       string `json:"type"`

	rest map[string]any
}

// LinkFromMap builds a Link from decoded JSON; keys beyond the six
// canonical ones are preserved.
func LinkFromMap(m map[string]any) *Link {
	l := &Link{}
	l.ID, _ = toInt64(m["id"])
	l.OriginID, _ = toInt64(m["origin_id"])
	l.TargetID, _ = toInt64(m["target_id"])
	if i, ok := toInt64(m["origin_slot"]); ok {
		l.OriginSlot = int(i)
	}
	if i, ok := toInt64(m["target_slot"]); ok {
		l.TargetSlot = int(i)
	}
	l.Type, _ = m["type"].(string)
	for k, v := range m {
		switch k {
		case "id", "origin_id", "origin_slot", "target_id", "target_slot", "type":
		default:
			if l.rest == nil {
				l.rest = make(map[string]any)
			}
			l.rest[k] = v
		}
	}
	return l
}

// MarshalJSON always emits the six canonical link keys.
func (l *Link) MarshalJSON() ([]byte, error) {
	if len(l.rest) == 0 {
		type plain Link
		return json.Marshal((*plain)(l))
	}
	m := make(map[string]any, len(l.rest)+6)
	for k, v := range l.rest {
		m[k] = v
	}
	m["id"] = l.ID
	m["origin_id"] = l.OriginID
	m["origin_slot"] = l.OriginSlot
	m["target_id"] = l.TargetID
	m["target_slot"] = l.TargetSlot
	m["type"] = l.Type
	return json.Marshal(m)
}

func (l *Link) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*l = *LinkFromMap(m)
	return nil
}

// Group is a named rectangular region over a subset of nodes.
type Group struct {
	Title   string
	Bound   []float64
	NodeIDs []int64

	rest map[string]any
}

// GroupFromMap builds a Group from decoded JSON.
func GroupFromMap(m map[string]any) *Group {
	g := &Group{rest: make(map[string]any)}
	for k, v := range m {
		switch k {
		case "title":
			if s, ok := v.(string); ok {
				g.Title = s
			} else {
				g.rest[k] = v
			}
		case "bound":
			if fs, ok := toFloats(v); ok && len(fs) >= 4 {
				g.Bound = fs
			} else {
				g.rest[k] = v
			}
		case "nodes":
			for _, e := range toSlice(v) {
				if id, ok := toInt64(e); ok {
					g.NodeIDs = append(g.NodeIDs, id)
				}
			}
		default:
			g.rest[k] = v
		}
	}
	return g
}

func (g *Group) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(g.rest)+3)
	for k, v := range g.rest {
		m[k] = v
	}
	if g.Title != "" {
		m["title"] = g.Title
	}
	if g.Bound != nil {
		m["bound"] = g.Bound
	}
	ids := g.NodeIDs
	if ids == nil {
		ids = []int64{}
	}
	m["nodes"] = ids
	return json.Marshal(m)
}

func (g *Group) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*g = *GroupFromMap(m)
	return nil
}

// PromptNode is the execution-ready form of one node in a compiled prompt:
// resolved input values plus a type tag.
type PromptNode struct {
	ClassType string
	Inputs    map[string]any

	rest map[string]any
}

func PromptNodeFromMap(m map[string]any) *PromptNode {
	p := &PromptNode{rest: make(map[string]any)}
	for k, v := range m {
		switch k {
		case "class_type":
			p.ClassType, _ = v.(string)
		case "inputs":
			if im, ok := v.(map[string]any); ok {
				p.Inputs = im
			}
		default:
			p.rest[k] = v
		}
	}
	return p
}

func (p *PromptNode) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(p.rest)+2)
	for k, v := range p.rest {
		m[k] = v
	}
	inputs := p.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	m["class_type"] = p.ClassType
	m["inputs"] = inputs
	return json.Marshal(m)
}

func (p *PromptNode) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*p = *PromptNodeFromMap(m)
	return nil
}

func toSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
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
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// toFloats converts a JSON array whose elements are all numeric.
func toFloats(v any) ([]float64, bool) {
	s, ok := v.([]any)
	if !ok {
		return nil, false
	}
	fs := make([]float64, len(s))
	for i, e := range s {
		f, ok := toFloat(e)
		if !ok {
			return nil, false
		}
		fs[i] = f
	}
	return fs, true
}
