package schema

import (
	"maps"
	"sort"

	"github.com/eleven-am/squall/internal/dbal"
)

// Column is one resolved column declaration
type Column struct {
	Name     string
	Type     dbal.ColumnType
	Nullable bool
	Default  *string
}

// EntitySchema is one entity class's declarations merged with its parent chain.
type EntitySchema struct {
	builder *Builder

	class      string
	parent     string
	ancestors  []string
	table      string
	database   string
	role       string
	primaryKey string
	abstract   bool
	passive    bool

	columns   []Column
	indexes   []IndexMetadata
	hidden    []string
	secured   []string
	fillable  []string
	mutators  map[string]map[string]string
	validates map[string][]string
	messages  map[string]string

	definitions []RelationMetadata
	relations   []RelationSchema
	casted      bool
	backRefs    bool
}

func newEntitySchema(b *Builder, class string, classes map[string]*ClassMetadata) (*EntitySchema, error) {
	meta := classes[class]
	chain, err := inheritanceChain(class, classes)
	if err != nil {
		return nil, err
	}

	e := &EntitySchema{
		builder:   b,
		class:     class,
		parent:    meta.Parent,
		abstract:  meta.Abstract,
		role:      meta.Role,
		mutators:  make(map[string]map[string]string),
		validates: make(map[string][]string),
		messages:  make(map[string]string),
	}
	if e.role == "" {
		e.role = defaultRole(class)
	}

	columnIndex := make(map[string]int)
	relationIndex := make(map[string]int)

	// chain runs from the root ancestor down to the class itself
	for i, m := range chain {
		if i < len(chain)-1 {
			e.ancestors = append([]string{m.Name}, e.ancestors...)
		}
		if m.Table != "" || (!m.Abstract && i < len(chain)-1) {
			e.table = m.Table
			if e.table == "" {
				e.table = defaultTable(m.Name)
			}
		}
		if m.Database != "" {
			e.database = m.Database
		}
		if m.Passive {
			e.passive = true
		}

		for _, c := range m.Columns {
			col, err := resolveColumn(class, c)
			if err != nil {
				return nil, err
			}
			if c.Primary || col.Type.IsPrimary() {
				e.primaryKey = col.Name
			}
			if idx, ok := columnIndex[col.Name]; ok {
				e.columns[idx] = col
				continue
			}
			columnIndex[col.Name] = len(e.columns)
			e.columns = append(e.columns, col)
		}

		e.indexes = append(e.indexes, m.Indexes...)

		for _, r := range m.Relations {
			if idx, ok := relationIndex[r.Name]; ok {
				e.definitions[idx] = r
				continue
			}
			relationIndex[r.Name] = len(e.definitions)
			e.definitions = append(e.definitions, r)
		}

		e.hidden = append(e.hidden, m.Hidden...)
		e.secured = append(e.secured, m.Secured...)
		e.fillable = append(e.fillable, m.Fillable...)

		for kind, fields := range m.Mutators {
			if e.mutators[kind] == nil {
				e.mutators[kind] = make(map[string]string)
			}
			for field, handler := range fields {
				e.mutators[kind][field] = handler
			}
		}
		for field, rules := range m.Validates {
			e.validates[field] = append([]string(nil), rules...)
		}
		for rule, msg := range m.Messages {
			e.messages[rule] = msg
		}
	}

	if e.table == "" {
		e.table = defaultTable(class)
	}
	if e.database == "" {
		e.database = b.config.DefaultDatabase
	}

	e.hidden = sortedSet(e.hidden)
	e.secured = sortedSet(e.secured)
	e.fillable = sortedSet(e.fillable)

	for kind := range e.mutators {
		switch kind {
		case MutatorGetter, MutatorSetter, MutatorAccessor:
		default:
			return nil, configError(class, "", "unknown mutator kind %q", kind)
		}
	}

	return e, nil
}

func inheritanceChain(class string, classes map[string]*ClassMetadata) ([]*ClassMetadata, error) {
	var chain []*ClassMetadata
	seen := make(map[string]bool)
	for name := class; name != ""; {
		if seen[name] {
			return nil, configError(class, "", "inheritance loop through %s", name)
		}
		seen[name] = true

		meta, ok := classes[name]
		if !ok {
			if name == EntityMarker {
				break
			}
			return nil, configError(class, "", "unknown parent class %s", name)
		}
		chain = append([]*ClassMetadata{meta}, chain...)
		name = meta.Parent
	}
	return chain, nil
}

func resolveColumn(class string, c ColumnMetadata) (Column, error) {
	typ, err := dbal.ParseColumnType(c.Type)
	if err != nil {
		return Column{}, configError(class, "", "column %s: %v", c.Name, err)
	}
	return Column{Name: c.Name, Type: typ, Nullable: c.Nullable, Default: c.Default}, nil
}

func sortedSet(values []string) []string {
	out := distinct(values)
	sort.Strings(out)
	return out
}

// Class returns the entity class name.
func (e *EntitySchema) Class() string { return e.class }

// Parent returns the parent class name, if any.
func (e *EntitySchema) Parent() string { return e.parent }

// Table returns the backing table name.
func (e *EntitySchema) Table() string { return e.table }

// Database returns the database identifier.
func (e *EntitySchema) Database() string { return e.database }

// TableKey is the database/table identity of the backing table.
func (e *EntitySchema) TableKey() string { return e.database + "/" + e.table }

// RoleName is the discriminator stored by polymorphic relations.
func (e *EntitySchema) RoleName() string { return e.role }

// PrimaryKey returns the primary key column name, or "" when none is declared.
func (e *EntitySchema) PrimaryKey() string { return e.primaryKey }

// IsAbstract reports whether the entity has no table of its own.
func (e *EntitySchema) IsAbstract() bool { return e.abstract }

// IsActiveSchema reports whether the entity's table may be altered.
func (e *EntitySchema) IsActiveSchema() bool { return !e.passive }

// Columns returns columns in declaration order, ancestors first.
func (e *EntitySchema) Columns() []Column { return append([]Column(nil), e.columns...) }

// Column returns the named column.
func (e *EntitySchema) Column(name string) (Column, bool) {
	for _, c := range e.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Hidden returns the fields left out of serialized records.
func (e *EntitySchema) Hidden() []string { return append([]string(nil), e.hidden...) }

// Secured returns the fields that are never mass assigned.
func (e *EntitySchema) Secured() []string { return append([]string(nil), e.secured...) }

// Fillable returns the fields open to mass assignment.
func (e *EntitySchema) Fillable() []string { return append([]string(nil), e.fillable...) }

// Validates returns validation rules per field.
func (e *EntitySchema) Validates() map[string][]string {
	out := make(map[string][]string, len(e.validates))
	for field, rules := range e.validates {
		out[field] = append([]string(nil), rules...)
	}
	return out
}

// Messages returns validation messages per rule.
func (e *EntitySchema) Messages() map[string]string { return maps.Clone(e.messages) }

// DescendsFrom reports whether class is one of the entity's ancestors.
func (e *EntitySchema) DescendsFrom(class string) bool {
	for _, a := range e.ancestors {
		if a == class {
			return true
		}
	}
	return false
}

// Mutators returns kind -> field -> handler. Entity declared handlers win over
// the builder's per-type configuration.
func (e *EntitySchema) Mutators() map[string]map[string]string {
	out := make(map[string]map[string]string)
	set := func(kind, field, handler string) {
		if out[kind] == nil {
			out[kind] = make(map[string]string)
		}
		out[kind][field] = handler
	}

	if e.builder != nil {
		for _, c := range e.columns {
			for _, m := range e.builder.Mutators(c.Type.Name) {
				set(m.Kind, c.Name, m.Handler)
			}
		}
	}
	for kind, fields := range e.mutators {
		for field, handler := range fields {
			set(kind, field, handler)
		}
	}
	return out
}

// CastRelations resolves declared relation definitions once.
func (e *EntitySchema) CastRelations() error {
	if e.casted {
		return nil
	}

	for _, def := range e.definitions {
		rel, err := e.builder.RelationSchema(e, def.Name, def.Definition)
		if err != nil {
			return err
		}
		if rel.HasBackReference() {
			e.backRefs = true
		}
		e.setRelation(rel)
	}

	e.casted = true
	return nil
}

// HasBackReferences reports whether any resolved relation requested an inverse.
func (e *EntitySchema) HasBackReferences() bool { return e.backRefs }

// Relations returns resolved relations in declaration order, inverses last.
func (e *EntitySchema) Relations() []RelationSchema {
	return append([]RelationSchema(nil), e.relations...)
}

// Relation returns the named relation or nil.
func (e *EntitySchema) Relation(name string) RelationSchema {
	for _, r := range e.relations {
		if r.Name() == name {
			return r
		}
	}
	return nil
}

func (e *EntitySchema) setRelation(rel RelationSchema) {
	for i, r := range e.relations {
		if r.Name() == rel.Name() {
			e.relations[i] = rel
			return
		}
	}
	e.relations = append(e.relations, rel)
}

// castTable claims the backing table. The first claimant declares the primary
// key, columns and indexes; later claimants only add missing columns.
func (e *EntitySchema) castTable() *dbal.TableSchema {
	tbl, first := e.builder.claimTable(e)

	for _, c := range e.columns {
		if !first && tbl.HasColumn(c.Name) {
			continue
		}
		col := tbl.Column(c.Name).SetColumnType(c.Type).Nullable(c.Nullable)
		if c.Default != nil {
			col.Default(*c.Default)
		}
	}

	if first {
		if e.primaryKey != "" {
			tbl.SetPrimaryKey(e.primaryKey)
		}
		for _, idx := range e.indexes {
			tbl.Index(idx.Columns...).Unique(idx.Unique)
		}
	}

	return tbl
}

// keyColumnType is the type a column referencing key must use.
func (e *EntitySchema) keyColumnType(key string) (dbal.ColumnType, bool) {
	c, ok := e.Column(key)
	if !ok {
		return dbal.ColumnType{}, false
	}
	return c.Type.ReferenceType(), true
}
