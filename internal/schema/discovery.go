package schema

import (
	"sort"

	"github.com/eleven-am/squall/internal/dbal"
)

// EntityMarker is the capability every entity class implements. Discovery is
// asked for the classes implementing it.
const EntityMarker = "squall.Entity"

// Discovery enumerates entity classes and their static declarations.
type Discovery interface {
	ClassesImplementing(marker string) (map[string]*ClassMetadata, error)
}

// DatabaseManager hands out table declarations per database.
type DatabaseManager interface {
	Database(name string) *dbal.Database
}

// ClassMetadata holds one class's static declarations as discovered.
type ClassMetadata struct {
	Name      string
	Parent    string
	Abstract  bool
	Passive   bool
	Table     string
	Database  string
	Role      string
	Columns   []ColumnMetadata
	Indexes   []IndexMetadata
	Relations []RelationMetadata
	Hidden    []string
	Secured   []string
	Fillable  []string
	Mutators  map[string]map[string]string // kind -> field -> handler
	Validates map[string][]string
	Messages  map[string]string
}

// ColumnMetadata declares one column.
type ColumnMetadata struct {
	Name     string
	Type     string
	Nullable bool
	Primary  bool
	Default  *string
}

// IndexMetadata declares one index.
type IndexMetadata struct {
	Columns []string
	Unique  bool
}

// RelationMetadata declares one named relation.
type RelationMetadata struct {
	Name       string
	Definition Definition
}

// StaticDiscovery serves a fixed set of classes. Every class is assumed to
// implement the marker.
type StaticDiscovery map[string]*ClassMetadata

// ClassesImplementing returns every class held.
func (d StaticDiscovery) ClassesImplementing(string) (map[string]*ClassMetadata, error) {
	out := make(map[string]*ClassMetadata, len(d))
	for name, meta := range d {
		out[name] = meta
	}
	return out, nil
}

// NewStaticDiscovery indexes classes by name.
func NewStaticDiscovery(classes ...*ClassMetadata) StaticDiscovery {
	d := make(StaticDiscovery, len(classes))
	for _, c := range classes {
		d[c.Name] = c
	}
	return d
}

func sortedClassNames(classes map[string]*ClassMetadata) []string {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
