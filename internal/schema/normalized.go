package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

// Normalized is the runtime export keyed by entity class.
type Normalized map[string]*EntityRecord

// EntityRecord is one entity's runtime descriptor. Field order is the
// serialized key order.
type EntityRecord struct {
	Table      string            `json:"table" yaml:"table"`
	Database   string            `json:"database" yaml:"database"`
	PrimaryKey string            `json:"primaryKey" yaml:"primaryKey"`
	Columns    []ColumnRecord    `json:"columns" yaml:"columns"`
	Hidden     []string          `json:"hidden" yaml:"hidden"`
	Secured    []string          `json:"secured" yaml:"secured"`
	Fillable   []string          `json:"fillable" yaml:"fillable"`
	Mutators   MutatorMap        `json:"mutators" yaml:"mutators"`
	Validates  RuleMap           `json:"validates" yaml:"validates"`
	Messages   map[string]string `json:"messages" yaml:"messages"`
	Relations  RelationMap       `json:"relations" yaml:"relations"`
	Role       string            `json:"role" yaml:"role"`
}

// MutatorMap is kind -> field -> handler.
type MutatorMap map[string]map[string]string

// RuleMap is field -> validation rules.
type RuleMap map[string][]string

// RelationMap is relation name -> descriptor.
type RelationMap map[string]RelationRecord

// ColumnRecord describes one column.
type ColumnRecord struct {
	Name     string  `json:"name" yaml:"name"`
	Type     string  `json:"type" yaml:"type"`
	Nullable bool    `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Default  *string `json:"default,omitempty" yaml:"default,omitempty"`
}

// RelationRecord is the flat, type specific descriptor consumed by loaders.
type RelationRecord struct {
	Type       string            `json:"type" yaml:"type"`
	Target     string            `json:"target,omitempty" yaml:"target,omitempty"`
	Table      string            `json:"table,omitempty" yaml:"table,omitempty"`
	Database   string            `json:"database,omitempty" yaml:"database,omitempty"`
	InnerKey   string            `json:"innerKey" yaml:"innerKey"`
	OuterKey   string            `json:"outerKey" yaml:"outerKey"`
	MorphKey   string            `json:"morphKey,omitempty" yaml:"morphKey,omitempty"`
	Nullable   bool              `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Pivot      *PivotRecord      `json:"pivot,omitempty" yaml:"pivot,omitempty"`
	Through    *ThroughRecord    `json:"through,omitempty" yaml:"through,omitempty"`
	Candidates map[string]string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// PivotRecord describes a many-to-many pivot table.
type PivotRecord struct {
	Table    string `json:"table" yaml:"table"`
	Database string `json:"database" yaml:"database"`
	InnerKey string `json:"innerKey" yaml:"innerKey"`
	OuterKey string `json:"outerKey" yaml:"outerKey"`
}

// ThroughRecord describes the intermediate entity of a many-through relation.
type ThroughRecord struct {
	Class    string `json:"class" yaml:"class"`
	Table    string `json:"table" yaml:"table"`
	Database string `json:"database" yaml:"database"`
	InnerKey string `json:"innerKey" yaml:"innerKey"`
	OuterKey string `json:"outerKey" yaml:"outerKey"`
}

// Column returns the named column record.
func (r *EntityRecord) Column(name string) (ColumnRecord, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnRecord{}, false
}

// ColumnNames returns column names in declaration order.
func (r *EntityRecord) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

func (n Normalized) EncodeMsgpack(enc *msgpack.Encoder) error  { return encodeSorted(enc, n) }
func (m MutatorMap) EncodeMsgpack(enc *msgpack.Encoder) error  { return encodeSorted(enc, m) }
func (m RuleMap) EncodeMsgpack(enc *msgpack.Encoder) error     { return encodeSorted(enc, m) }
func (m RelationMap) EncodeMsgpack(enc *msgpack.Encoder) error { return encodeSorted(enc, m) }

// encodeSorted writes m with its keys in order. The msgpack encoder only sorts
// map[string]string and map[string]interface{} by itself.
func encodeSorted[M ~map[string]V, V any](enc *msgpack.Encoder, m M) error {
	if m == nil {
		return enc.EncodeNil()
	}
	if err := enc.EncodeMapLen(len(m)); err != nil {
		return err
	}
	for _, key := range slices.Sorted(maps.Keys(m)) {
		if err := enc.EncodeString(key); err != nil {
			return err
		}
		if err := enc.Encode(m[key]); err != nil {
			return err
		}
	}
	return nil
}

// Encode writes the export in the given format. Map keys are sorted in every
// format so repeated encodes are byte-identical.
func (n Normalized) Encode(w io.Writer, format string) error {
	switch format {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(n)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(n); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		enc.SetCustomStructTag("json")
		return enc.Encode(n)
	}
	return fmt.Errorf("unknown export format %q", format)
}

// DecodeNormalized reads an export written by Encode.
func DecodeNormalized(r io.Reader, format string) (Normalized, error) {
	var n Normalized
	var err error
	switch format {
	case "", FormatJSON:
		err = json.NewDecoder(r).Decode(&n)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&n)
	case FormatMsgpack:
		dec := msgpack.NewDecoder(r)
		dec.SetCustomStructTag("json")
		err = dec.Decode(&n)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s schema: %w", format, err)
	}
	return n, nil
}
