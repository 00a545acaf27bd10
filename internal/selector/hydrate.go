package selector

import (
	"fmt"
	"strings"

	"github.com/eleven-am/squall/internal/schema"
)

// Record is one hydrated entity. Loaded relations are nested under their
// relation name: a Record (or nil) for singular relations and a []Record for
// plural ones.
type Record map[string]interface{}

// shape describes the columns a node was parsed with.
type shape struct {
	role    string
	columns []string
	index   map[string]int
	pk      int
}

func newShape(record *schema.EntityRecord) *shape {
	s := &shape{role: record.Role, columns: record.ColumnNames(), index: make(map[string]int), pk: -1}
	for i, c := range s.columns {
		s.index[c] = i
	}
	if idx, ok := s.index[record.PrimaryKey]; ok {
		s.pk = idx
	}
	return s
}

type node struct {
	loader *loader
	shape  *shape
	data   []interface{}
	edges  map[*loader][]int
}

func (n *node) value(column string) (interface{}, bool) {
	idx, ok := n.shape.index[column]
	if !ok {
		return nil, false
	}
	return n.data[idx], true
}

// arena stores hydrated nodes. Identity is per loader path and role so the
// same row reached through different paths stays distinct and the graph
// remains acyclic.
type arena struct {
	nodes    []*node
	identity map[string]int
}

func newArena() *arena {
	return &arena{identity: make(map[string]int)}
}

func (a *arena) intern(l *loader, s *shape, identity string, data []interface{}) (int, bool) {
	key := l.alias + "/" + s.role + "/" + identity
	if idx, ok := a.identity[key]; ok {
		return idx, false
	}
	a.nodes = append(a.nodes, &node{loader: l, shape: s, data: data, edges: make(map[*loader][]int)})
	idx := len(a.nodes) - 1
	a.identity[key] = idx
	return idx, true
}

func (a *arena) attach(parent int, l *loader, child int) {
	p := a.nodes[parent]
	if !l.plural() && len(p.edges[l]) > 0 {
		return
	}
	p.edges[l] = append(p.edges[l], child)
}

func (a *arena) materialize(idx int) Record {
	n := a.nodes[idx]
	rec := make(Record, len(n.data)+len(n.loader.children))
	for i, c := range n.shape.columns {
		rec[c] = n.data[i]
	}
	for _, c := range n.loader.children {
		edges := n.edges[c]
		if c.plural() {
			list := make([]Record, 0, len(edges))
			for _, e := range edges {
				list = append(list, a.materialize(e))
			}
			rec[c.name] = list
			continue
		}
		if len(edges) == 0 {
			rec[c.name] = nil
			continue
		}
		rec[c.name] = a.materialize(edges[0])
	}
	return rec
}

// keyIndex aggregates the parent values a post-load loader queries by.
// Entries are grouped by discriminator for polymorphic lookups and keep
// first-seen order so generated statements are stable.
type keyIndex struct {
	groups []string
	order  map[string][]string
	raw    map[string]interface{}
	nodes  map[string][]int
}

func newKeyIndex() *keyIndex {
	return &keyIndex{
		order: make(map[string][]string),
		raw:   make(map[string]interface{}),
		nodes: make(map[string][]int),
	}
}

func (k *keyIndex) add(group string, value interface{}, node int) {
	key := group + "\x00" + referenceKey(value)
	if _, ok := k.order[group]; !ok {
		k.groups = append(k.groups, group)
	}
	if _, ok := k.raw[key]; !ok {
		k.order[group] = append(k.order[group], key)
		k.raw[key] = value
	}
	for _, n := range k.nodes[key] {
		if n == node {
			return
		}
	}
	k.nodes[key] = append(k.nodes[key], node)
}

func (k *keyIndex) values(group string) []interface{} {
	keys := k.order[group]
	out := make([]interface{}, len(keys))
	for i, key := range keys {
		out[i] = k.raw[key]
	}
	return out
}

func (k *keyIndex) lookup(group string, value interface{}) []int {
	return k.nodes[group+"\x00"+referenceKey(value)]
}

func (k *keyIndex) empty() bool {
	return len(k.raw) == 0
}

// referenceKey renders a key value so driver types compare equal across
// queries.
func referenceKey(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	}
	return fmt.Sprint(v)
}

func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func identityOf(s *shape, data []interface{}) string {
	if s.pk >= 0 {
		return referenceKey(data[s.pk])
	}
	parts := make([]string, len(data))
	for i, v := range data {
		parts[i] = referenceKey(v)
	}
	return strings.Join(parts, "\x1f")
}
