package schema

import (
	"sort"

	"github.com/eleven-am/squall/internal/dbal"
)

// manyToMany links two entities through a pivot table.
type manyToMany struct {
	relation
	innerKey   string
	outerKey   string
	pivotTable string
	pivotInner string
	pivotOuter string
	morphKey   string
}

func newManyToMany(b *Builder, owner *EntitySchema, name string, def Definition) (RelationSchema, error) {
	base, err := newRelation(b, ManyToMany, owner, name, def,
		OptInnerKey, OptOuterKey, OptMorphKey, OptPivotTable, OptPivotInnerKey, OptPivotOuterKey)
	if err != nil {
		return nil, err
	}
	r := &manyToMany{relation: base}
	if err := r.requireTarget(); err != nil {
		return nil, err
	}
	if r.HasEquivalent() {
		return r, nil
	}

	if r.innerKey, err = r.keyOf(OptInnerKey, owner, ""); err != nil {
		return nil, err
	}
	if r.outerKey, err = r.keyOf(OptOuterKey, r.target, ""); err != nil {
		return nil, err
	}
	if r.pivotInner, err = r.keyOf(OptPivotInnerKey, owner, owner.RoleName()); err != nil {
		return nil, err
	}
	if r.pivotOuter, err = r.keyOf(OptPivotOuterKey, r.target, r.target.RoleName()); err != nil {
		return nil, err
	}
	if r.pivotInner == r.pivotOuter {
		return nil, r.errorf("pivot keys collide on %s", r.pivotInner)
	}

	roles := []string{owner.RoleName(), r.target.RoleName()}
	sort.Strings(roles)
	r.pivotTable = def.Option(OptPivotTable, keyName(roles[0], roles[1], "map"))
	r.morphKey = def.Option(OptMorphKey, "")
	return r, nil
}

// HasEquivalent is true when the target is abstract: the pivot is polymorphic.
func (r *manyToMany) HasEquivalent() bool {
	return r.target != nil && r.target.IsAbstract()
}

func (r *manyToMany) EquivalentDefinition() Definition {
	return r.def.WithType(ManyToMorphed)
}

func (r *manyToMany) Inverses(name, explicitType string) ([]Inverse, error) {
	if _, err := r.checkInverseType(explicitType, ManyToMany); err != nil {
		return nil, err
	}
	opts := map[string]string{
		OptInnerKey:      r.outerKey,
		OptOuterKey:      r.innerKey,
		OptPivotTable:    r.pivotTable,
		OptPivotInnerKey: r.pivotOuter,
		OptPivotOuterKey: r.pivotInner,
	}
	if r.morphKey != "" {
		opts[OptMorphKey] = r.morphKey
	}
	return []Inverse{{
		Entity:     r.target.Class(),
		Name:       name,
		Definition: Definition{Type: ManyToMany, Target: r.owner.Class(), Options: opts},
	}}, nil
}

func (r *manyToMany) Declare() error {
	innerType, err := r.referenceType(r.owner, r.innerKey)
	if err != nil {
		return err
	}
	outerType, err := r.referenceType(r.target, r.outerKey)
	if err != nil {
		return err
	}

	pivot := r.builder.DeclareTable(r.owner.Database(), r.pivotTable)
	declareKey(pivot, r.pivotInner, innerType, false)
	declareKey(pivot, r.pivotOuter, outerType, false)
	if r.morphKey != "" {
		declareKey(pivot, r.morphKey, morphColumnType(), false)
	}
	pivot.Index(pivotIndexColumns(r.pivotInner, r.pivotOuter, r.morphKey)...).Unique(true)

	// a morphed pivot's inner key points at several owner tables
	if r.morphKey == "" {
		pivot.ForeignKey(r.pivotInner).
			References(r.owner.Table(), r.innerKey).
			OnDelete(dbal.Cascade).
			OnUpdate(dbal.Cascade)
	}
	if r.target.Database() == r.owner.Database() {
		pivot.ForeignKey(r.pivotOuter).
			References(r.target.Table(), r.outerKey).
			OnDelete(dbal.Cascade).
			OnUpdate(dbal.Cascade)
	}
	return nil
}

func (r *manyToMany) Normalize() RelationRecord {
	rec := r.record()
	rec.InnerKey = r.innerKey
	rec.OuterKey = r.outerKey
	rec.MorphKey = r.morphKey
	rec.Pivot = &PivotRecord{
		Table:    r.pivotTable,
		Database: r.owner.Database(),
		InnerKey: r.pivotInner,
		OuterKey: r.pivotOuter,
	}
	return rec
}

// pivotIndexColumns orders the pivot keys so both sides of a relation pair
// declare the same unique index.
func pivotIndexColumns(inner, outer, morph string) []string {
	cols := []string{inner, outer}
	sort.Strings(cols)
	if morph != "" {
		cols = append(cols, morph)
	}
	return cols
}
