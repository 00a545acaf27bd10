package schema

import (
	"sort"
	"strings"
)

// Relation types.
const (
	BelongsTo        = "belongs_to"
	BelongsToMorphed = "belongs_to_morphed"
	HasOne           = "has_one"
	HasMany          = "has_many"
	ManyToMany       = "many_to_many"
	ManyToMorphed    = "many_to_morphed"
	ManyThrough      = "many_through"
)

// Definition option keys.
const (
	OptInverse         = "inverse"
	OptInnerKey        = "inner_key"
	OptOuterKey        = "outer_key"
	OptMorphKey        = "morph_key"
	OptNullable        = "nullable"
	OptPivotTable      = "pivot_table"
	OptPivotInnerKey   = "pivot_inner_key"
	OptPivotOuterKey   = "pivot_outer_key"
	OptThrough         = "through"
	OptThroughInnerKey = "through_inner_key"
	OptThroughOuterKey = "through_outer_key"
	OptCandidates      = "candidates"
)

// Definition is the raw declaration of one relation.
type Definition struct {
	Type    string
	Target  string
	Options map[string]string
}

// IsZero reports whether nothing was declared.
func (d Definition) IsZero() bool {
	return d.Type == "" && d.Target == "" && len(d.Options) == 0
}

// Option returns the named option or def when unset.
func (d Definition) Option(key, def string) string {
	if v, ok := d.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// With returns a copy of d with key set to value. An empty value removes the key.
func (d Definition) With(key, value string) Definition {
	out := d.clone()
	if value == "" {
		delete(out.Options, key)
	} else {
		out.Options[key] = value
	}
	return out
}

// WithType returns a copy of d with a different relation type.
func (d Definition) WithType(typ string) Definition {
	out := d.clone()
	out.Type = typ
	return out
}

// Equal compares type, target and options.
func (d Definition) Equal(other Definition) bool {
	if d.Type != other.Type || d.Target != other.Target || len(d.Options) != len(other.Options) {
		return false
	}
	for k, v := range d.Options {
		if ov, ok := other.Options[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (d Definition) clone() Definition {
	out := Definition{Type: d.Type, Target: d.Target, Options: make(map[string]string, len(d.Options))}
	for k, v := range d.Options {
		out.Options[k] = v
	}
	return out
}

// BackReference requests an inverse relation on the target entity.
type BackReference struct {
	Name string
	Type string // empty selects the default inverse type
}

// parseBackReference reads "name" or "type:name".
func parseBackReference(value string) (BackReference, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return BackReference{}, false
	}
	if idx := strings.Index(value, ":"); idx != -1 {
		return BackReference{
			Type: strings.TrimSpace(value[:idx]),
			Name: strings.TrimSpace(value[idx+1:]),
		}, true
	}
	return BackReference{Name: value}, true
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func joinList(values []string) string {
	sorted := distinct(values)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
