package schema

import "github.com/eleven-am/squall/internal/dbal"

// belongsTo stores the target's key on the owner.
type belongsTo struct {
	relation
	innerKey string
	outerKey string
	isNull   bool
}

func newBelongsTo(b *Builder, owner *EntitySchema, name string, def Definition) (RelationSchema, error) {
	base, err := newRelation(b, BelongsTo, owner, name, def, OptInnerKey, OptOuterKey, OptNullable, OptMorphKey)
	if err != nil {
		return nil, err
	}
	r := &belongsTo{relation: base}
	if err := r.rejectMorphKey(); err != nil {
		return nil, err
	}
	if err := r.requireTarget(); err != nil {
		return nil, err
	}
	if r.HasEquivalent() {
		return r, nil
	}

	if r.outerKey, err = r.keyOf(OptOuterKey, r.target, ""); err != nil {
		return nil, err
	}
	if r.innerKey, err = r.keyOf(OptInnerKey, r.target, r.target.RoleName()); err != nil {
		return nil, err
	}
	if r.isNull, err = r.nullable(false); err != nil {
		return nil, err
	}
	return r, nil
}

// HasEquivalent is true when the target is abstract: the relation is polymorphic.
func (r *belongsTo) HasEquivalent() bool {
	return r.target != nil && r.target.IsAbstract()
}

func (r *belongsTo) EquivalentDefinition() Definition {
	return r.def.WithType(BelongsToMorphed)
}

func (r *belongsTo) Inverses(name, explicitType string) ([]Inverse, error) {
	typ, err := r.checkInverseType(explicitType, HasMany, HasOne)
	if err != nil {
		return nil, err
	}
	return []Inverse{{
		Entity: r.target.Class(),
		Name:   name,
		Definition: Definition{
			Type:   typ,
			Target: r.owner.Class(),
			Options: map[string]string{
				OptInnerKey: r.outerKey,
				OptOuterKey: r.innerKey,
				OptNullable: boolString(r.isNull),
			},
		},
	}}, nil
}

func (r *belongsTo) Declare() error {
	typ, err := r.referenceType(r.target, r.outerKey)
	if err != nil {
		return err
	}

	tbl := r.builder.DeclareTable(r.owner.Database(), r.owner.Table())
	declareKey(tbl, r.innerKey, typ, r.isNull)
	tbl.Index(r.innerKey)

	if r.owner.Database() == r.target.Database() {
		tbl.ForeignKey(r.innerKey).
			References(r.target.Table(), r.outerKey).
			OnDelete(onDelete(r.isNull)).
			OnUpdate(dbal.Cascade)
	}
	return nil
}

func (r *belongsTo) Normalize() RelationRecord {
	rec := r.record()
	rec.InnerKey = r.innerKey
	rec.OuterKey = r.outerKey
	rec.Nullable = r.isNull
	return rec
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
