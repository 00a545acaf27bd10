package schema

import (
	"strconv"

	"github.com/eleven-am/squall/internal/dbal"
)

// RelationSchema is one resolved relation between entities.
type RelationSchema interface {
	Type() string
	Name() string
	Entity() *EntitySchema
	Definition() Definition
	// Target is the target entity class; empty for candidate-only morphed relations.
	Target() string
	HasBackReference() bool
	BackReference() BackReference
	// Inverses builds the definitions of the inverse relation to install on the
	// target entity, or on every candidate for morphed relations.
	Inverses(name, explicitType string) ([]Inverse, error)
	HasEquivalent() bool
	EquivalentDefinition() Definition
	// Declare adds the relation's columns, indexes, foreign keys and pivot
	// tables to the declared tables.
	Declare() error
	Normalize() RelationRecord
}

// Inverse is a relation definition destined for another entity.
type Inverse struct {
	Entity     string
	Name       string
	Definition Definition
}

type relationFactory func(b *Builder, owner *EntitySchema, name string, def Definition) (RelationSchema, error)

func defaultFactories() map[string]relationFactory {
	return map[string]relationFactory{
		BelongsTo:        newBelongsTo,
		BelongsToMorphed: newBelongsToMorphed,
		HasOne:           newHasOne,
		HasMany:          newHasMany,
		ManyToMany:       newManyToMany,
		ManyToMorphed:    newManyToMorphed,
		ManyThrough:      newManyThrough,
	}
}

// relation is embedded by every relation type.
type relation struct {
	builder *Builder
	typ     string
	name    string
	owner   *EntitySchema
	def     Definition
	target  *EntitySchema
	backRef BackReference
	hasBack bool
}

func newRelation(b *Builder, typ string, owner *EntitySchema, name string, def Definition, allowed ...string) (relation, error) {
	r := relation{builder: b, typ: typ, name: name, owner: owner, def: def}

	permitted := map[string]bool{OptInverse: true}
	for _, key := range allowed {
		permitted[key] = true
	}
	for key := range def.Options {
		if !permitted[key] {
			return r, r.errorf("option %q is not supported by %s", key, typ)
		}
	}

	if def.Target != "" {
		r.target = b.Entity(def.Target)
		if r.target == nil {
			return r, r.errorf("target %s is not an entity", def.Target)
		}
	}

	r.backRef, r.hasBack = parseBackReference(def.Options[OptInverse])
	return r, nil
}

func (r *relation) Type() string                     { return r.typ }
func (r *relation) Name() string                     { return r.name }
func (r *relation) Entity() *EntitySchema            { return r.owner }
func (r *relation) Definition() Definition           { return r.def }
func (r *relation) HasBackReference() bool           { return r.hasBack }
func (r *relation) BackReference() BackReference     { return r.backRef }
func (r *relation) HasEquivalent() bool              { return false }
func (r *relation) EquivalentDefinition() Definition { return Definition{} }

func (r *relation) Target() string {
	if r.target == nil {
		return ""
	}
	return r.target.Class()
}

func (r *relation) errorf(format string, args ...interface{}) error {
	class := ""
	if r.owner != nil {
		class = r.owner.Class()
	}
	return configError(class, r.name, format, args...)
}

func (r *relation) requireTarget() error {
	if r.target == nil {
		return r.errorf("%s requires a target", r.typ)
	}
	return nil
}

func (r *relation) requireConcreteTarget() error {
	if err := r.requireTarget(); err != nil {
		return err
	}
	if r.target.IsAbstract() {
		return r.errorf("target %s is abstract", r.target.Class())
	}
	return nil
}

func (r *relation) rejectMorphKey() error {
	if _, ok := r.def.Options[OptMorphKey]; ok {
		return r.errorf("%s does not support a morph key", r.typ)
	}
	return nil
}

func (r *relation) nullable(def bool) (bool, error) {
	raw, ok := r.def.Options[OptNullable]
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, r.errorf("nullable must be a boolean, got %q", raw)
	}
	return v, nil
}

// keyOf returns the named option or a default derived from an entity's
// primary key. An absent primary key is a configuration error.
func (r *relation) keyOf(option string, e *EntitySchema, prefix string) (string, error) {
	if v := r.def.Option(option, ""); v != "" {
		return v, nil
	}
	if e.PrimaryKey() == "" {
		return "", r.errorf("%s cannot be derived: %s has no primary key", option, e.Class())
	}
	if prefix == "" {
		return e.PrimaryKey(), nil
	}
	return keyName(prefix, e.PrimaryKey()), nil
}

func (r *relation) checkInverseType(explicit string, allowed ...string) (string, error) {
	if explicit == "" {
		return allowed[0], nil
	}
	for _, a := range allowed {
		if explicit == a {
			return explicit, nil
		}
	}
	return "", r.errorf("%s cannot be inverted as %s", r.typ, explicit)
}

func (r *relation) record() RelationRecord {
	rec := RelationRecord{Type: r.typ}
	if r.target != nil {
		rec.Target = r.target.Class()
		rec.Table = r.target.Table()
		rec.Database = r.target.Database()
	}
	return rec
}

// referenceType resolves the column type for a key column pointing at e.key.
func (r *relation) referenceType(e *EntitySchema, key string) (dbal.ColumnType, error) {
	t, ok := e.keyColumnType(key)
	if !ok {
		return dbal.ColumnType{}, r.errorf("%s has no column %s", e.Class(), key)
	}
	return t, nil
}

// declareKey adds a key column unless the table already typed it.
func declareKey(tbl *dbal.TableSchema, name string, typ dbal.ColumnType, nullable bool) {
	col := tbl.Column(name)
	if col.Declared() {
		return
	}
	col.SetColumnType(typ).Nullable(nullable)
}

func onDelete(nullable bool) string {
	if nullable {
		return dbal.SetNull
	}
	return dbal.Cascade
}
