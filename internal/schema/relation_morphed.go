package schema

import "github.com/eleven-am/squall/internal/dbal"

// candidates resolves the concrete entities a polymorphic relation may point
// at: the explicit candidates option, or every concrete descendant of target.
func (r *relation) candidates() ([]*EntitySchema, error) {
	var out []*EntitySchema
	if names := splitList(r.def.Options[OptCandidates]); len(names) > 0 {
		for _, name := range distinct(names) {
			e := r.builder.Entity(name)
			if e == nil {
				return nil, r.errorf("candidate %s is not an entity", name)
			}
			if e.IsAbstract() {
				return nil, r.errorf("candidate %s is abstract", name)
			}
			out = append(out, e)
		}
	} else if r.target != nil {
		out = r.builder.concreteDescendants(r.target.Class())
	}

	if len(out) == 0 {
		return nil, r.errorf("%s has no candidate entities", r.typ)
	}
	return out, nil
}

// sharedKey is the primary key all candidates agree on.
func (r *relation) sharedKey(candidates []*EntitySchema, option string) (string, error) {
	if v := r.def.Option(option, ""); v != "" {
		return v, nil
	}
	key := candidates[0].PrimaryKey()
	for _, c := range candidates {
		if c.PrimaryKey() == "" || c.PrimaryKey() != key {
			return "", r.errorf("%s cannot be derived: candidates disagree on primary key", option)
		}
	}
	return key, nil
}

func candidateRecord(candidates []*EntitySchema) map[string]string {
	out := make(map[string]string, len(candidates))
	for _, c := range candidates {
		out[c.RoleName()] = c.Class()
	}
	return out
}

func morphColumnType() dbal.ColumnType {
	return dbal.ColumnType{Name: dbal.TypeString, Size: 32}
}

// belongsToMorphed stores a candidate's key and role on the owner.
type belongsToMorphed struct {
	relation
	candidateList []*EntitySchema
	innerKey      string
	outerKey      string
	morphKey      string
	isNull        bool
}

func newBelongsToMorphed(b *Builder, owner *EntitySchema, name string, def Definition) (RelationSchema, error) {
	base, err := newRelation(b, BelongsToMorphed, owner, name, def,
		OptInnerKey, OptOuterKey, OptMorphKey, OptNullable, OptCandidates)
	if err != nil {
		return nil, err
	}
	r := &belongsToMorphed{relation: base}

	if r.candidateList, err = r.candidates(); err != nil {
		return nil, err
	}
	if r.outerKey, err = r.sharedKey(r.candidateList, OptOuterKey); err != nil {
		return nil, err
	}
	r.innerKey = def.Option(OptInnerKey, keyName(name, r.outerKey))
	r.morphKey = def.Option(OptMorphKey, keyName(name, "type"))
	if r.isNull, err = r.nullable(false); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *belongsToMorphed) Inverses(name, explicitType string) ([]Inverse, error) {
	typ, err := r.checkInverseType(explicitType, HasMany, HasOne)
	if err != nil {
		return nil, err
	}

	out := make([]Inverse, 0, len(r.candidateList))
	for _, c := range r.candidateList {
		out = append(out, Inverse{
			Entity: c.Class(),
			Name:   name,
			Definition: Definition{
				Type:   typ,
				Target: r.owner.Class(),
				Options: map[string]string{
					OptInnerKey: r.outerKey,
					OptOuterKey: r.innerKey,
					OptMorphKey: r.morphKey,
					OptNullable: boolString(r.isNull),
				},
			},
		})
	}
	return out, nil
}

func (r *belongsToMorphed) Declare() error {
	typ, err := r.referenceType(r.candidateList[0], r.outerKey)
	if err != nil {
		return err
	}

	tbl := r.builder.DeclareTable(r.owner.Database(), r.owner.Table())
	declareKey(tbl, r.innerKey, typ, r.isNull)
	declareKey(tbl, r.morphKey, morphColumnType(), r.isNull)
	tbl.Index(r.innerKey, r.morphKey)
	return nil
}

func (r *belongsToMorphed) Normalize() RelationRecord {
	rec := RelationRecord{Type: r.typ, Target: r.Target()}
	rec.InnerKey = r.innerKey
	rec.OuterKey = r.outerKey
	rec.MorphKey = r.morphKey
	rec.Nullable = r.isNull
	rec.Candidates = candidateRecord(r.candidateList)
	return rec
}

// manyToMorphed links the owner to candidates through a pivot that stores
// the candidate role.
type manyToMorphed struct {
	relation
	candidateList []*EntitySchema
	innerKey      string
	outerKey      string
	pivotTable    string
	pivotInner    string
	pivotOuter    string
	morphKey      string
}

func newManyToMorphed(b *Builder, owner *EntitySchema, name string, def Definition) (RelationSchema, error) {
	base, err := newRelation(b, ManyToMorphed, owner, name, def,
		OptInnerKey, OptOuterKey, OptMorphKey, OptPivotTable, OptPivotInnerKey, OptPivotOuterKey, OptCandidates)
	if err != nil {
		return nil, err
	}
	r := &manyToMorphed{relation: base}
	if err := r.requireTarget(); err != nil {
		return nil, err
	}
	if r.candidateList, err = r.candidates(); err != nil {
		return nil, err
	}

	if r.innerKey, err = r.keyOf(OptInnerKey, owner, ""); err != nil {
		return nil, err
	}
	if r.outerKey, err = r.sharedKey(r.candidateList, OptOuterKey); err != nil {
		return nil, err
	}
	if r.pivotInner, err = r.keyOf(OptPivotInnerKey, owner, owner.RoleName()); err != nil {
		return nil, err
	}

	role := r.target.RoleName()
	r.pivotTable = def.Option(OptPivotTable, keyName(role, "map"))
	r.pivotOuter = def.Option(OptPivotOuterKey, keyName(role, r.outerKey))
	r.morphKey = def.Option(OptMorphKey, keyName(role, "type"))

	if r.pivotInner == r.pivotOuter {
		return nil, r.errorf("pivot keys collide on %s", r.pivotInner)
	}
	return r, nil
}

func (r *manyToMorphed) Inverses(name, explicitType string) ([]Inverse, error) {
	if _, err := r.checkInverseType(explicitType, ManyToMany); err != nil {
		return nil, err
	}

	out := make([]Inverse, 0, len(r.candidateList))
	for _, c := range r.candidateList {
		out = append(out, Inverse{
			Entity: c.Class(),
			Name:   name,
			Definition: Definition{
				Type:   ManyToMany,
				Target: r.owner.Class(),
				Options: map[string]string{
					OptInnerKey:      r.outerKey,
					OptOuterKey:      r.innerKey,
					OptPivotTable:    r.pivotTable,
					OptPivotInnerKey: r.pivotOuter,
					OptPivotOuterKey: r.pivotInner,
					OptMorphKey:      r.morphKey,
				},
			},
		})
	}
	return out, nil
}

func (r *manyToMorphed) Declare() error {
	innerType, err := r.referenceType(r.owner, r.innerKey)
	if err != nil {
		return err
	}
	outerType, err := r.referenceType(r.candidateList[0], r.outerKey)
	if err != nil {
		return err
	}

	pivot := r.builder.DeclareTable(r.owner.Database(), r.pivotTable)
	declareKey(pivot, r.pivotInner, innerType, false)
	declareKey(pivot, r.pivotOuter, outerType, false)
	declareKey(pivot, r.morphKey, morphColumnType(), false)
	pivot.Index(pivotIndexColumns(r.pivotInner, r.pivotOuter, r.morphKey)...).Unique(true)

	pivot.ForeignKey(r.pivotInner).
		References(r.owner.Table(), r.innerKey).
		OnDelete(dbal.Cascade).
		OnUpdate(dbal.Cascade)
	return nil
}

func (r *manyToMorphed) Normalize() RelationRecord {
	rec := RelationRecord{Type: r.typ, Target: r.Target()}
	rec.InnerKey = r.innerKey
	rec.OuterKey = r.outerKey
	rec.MorphKey = r.morphKey
	rec.Pivot = &PivotRecord{
		Table:    r.pivotTable,
		Database: r.owner.Database(),
		InnerKey: r.pivotInner,
		OuterKey: r.pivotOuter,
	}
	rec.Candidates = candidateRecord(r.candidateList)
	return rec
}
