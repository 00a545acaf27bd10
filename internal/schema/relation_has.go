package schema

import "github.com/eleven-am/squall/internal/dbal"

// hasRelation stores the owner's key on the target. has_one and has_many
// differ only in cardinality.
type hasRelation struct {
	relation
	innerKey string
	outerKey string
	morphKey string
	isNull   bool
}

func newHasOne(b *Builder, owner *EntitySchema, name string, def Definition) (RelationSchema, error) {
	return newHasRelation(b, HasOne, owner, name, def)
}

func newHasMany(b *Builder, owner *EntitySchema, name string, def Definition) (RelationSchema, error) {
	return newHasRelation(b, HasMany, owner, name, def)
}

func newHasRelation(b *Builder, typ string, owner *EntitySchema, name string, def Definition) (RelationSchema, error) {
	base, err := newRelation(b, typ, owner, name, def, OptInnerKey, OptOuterKey, OptMorphKey, OptNullable)
	if err != nil {
		return nil, err
	}
	r := &hasRelation{relation: base}
	if err := r.requireConcreteTarget(); err != nil {
		return nil, err
	}

	if r.innerKey, err = r.keyOf(OptInnerKey, owner, ""); err != nil {
		return nil, err
	}
	if r.outerKey, err = r.keyOf(OptOuterKey, owner, owner.RoleName()); err != nil {
		return nil, err
	}
	r.morphKey = def.Option(OptMorphKey, "")
	if r.isNull, err = r.nullable(false); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *hasRelation) Inverses(name, explicitType string) ([]Inverse, error) {
	if r.morphKey != "" {
		if _, err := r.checkInverseType(explicitType, BelongsToMorphed); err != nil {
			return nil, err
		}
		return []Inverse{{
			Entity: r.target.Class(),
			Name:   name,
			Definition: Definition{
				Type: BelongsToMorphed,
				Options: map[string]string{
					OptCandidates: r.owner.Class(),
					OptInnerKey:   r.outerKey,
					OptOuterKey:   r.innerKey,
					OptMorphKey:   r.morphKey,
					OptNullable:   boolString(r.isNull),
				},
			},
		}}, nil
	}

	if _, err := r.checkInverseType(explicitType, BelongsTo); err != nil {
		return nil, err
	}
	return []Inverse{{
		Entity: r.target.Class(),
		Name:   name,
		Definition: Definition{
			Type:   BelongsTo,
			Target: r.owner.Class(),
			Options: map[string]string{
				OptInnerKey: r.outerKey,
				OptOuterKey: r.innerKey,
				OptNullable: boolString(r.isNull),
			},
		},
	}}, nil
}

func (r *hasRelation) Declare() error {
	typ, err := r.referenceType(r.owner, r.innerKey)
	if err != nil {
		return err
	}

	tbl := r.builder.DeclareTable(r.target.Database(), r.target.Table())
	declareKey(tbl, r.outerKey, typ, r.isNull)

	if r.morphKey != "" {
		declareKey(tbl, r.morphKey, dbal.ColumnType{Name: dbal.TypeString, Size: 32}, r.isNull)
		tbl.Index(r.outerKey, r.morphKey)
		return nil
	}

	tbl.Index(r.outerKey)
	if r.owner.Database() == r.target.Database() {
		tbl.ForeignKey(r.outerKey).
			References(r.owner.Table(), r.innerKey).
			OnDelete(onDelete(r.isNull)).
			OnUpdate(dbal.Cascade)
	}
	return nil
}

func (r *hasRelation) Normalize() RelationRecord {
	rec := r.record()
	rec.InnerKey = r.innerKey
	rec.OuterKey = r.outerKey
	rec.MorphKey = r.morphKey
	rec.Nullable = r.isNull
	return rec
}
