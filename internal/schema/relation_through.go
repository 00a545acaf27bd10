package schema

// manyThrough reaches the target through an intermediate entity. Keys live on
// the intermediate and target tables, so nothing is declared.
type manyThrough struct {
	relation
	through      *EntitySchema
	innerKey     string
	outerKey     string
	throughInner string
	throughOuter string
}

func newManyThrough(b *Builder, owner *EntitySchema, name string, def Definition) (RelationSchema, error) {
	base, err := newRelation(b, ManyThrough, owner, name, def,
		OptInnerKey, OptOuterKey, OptMorphKey, OptThrough, OptThroughInnerKey, OptThroughOuterKey)
	if err != nil {
		return nil, err
	}
	r := &manyThrough{relation: base}
	if err := r.rejectMorphKey(); err != nil {
		return nil, err
	}
	if err := r.requireConcreteTarget(); err != nil {
		return nil, err
	}

	throughClass := def.Option(OptThrough, "")
	if throughClass == "" {
		return nil, r.errorf("many_through requires a through entity")
	}
	if r.through = b.Entity(throughClass); r.through == nil || r.through.IsAbstract() {
		return nil, r.errorf("through %s is not a concrete entity", throughClass)
	}

	if r.innerKey, err = r.keyOf(OptInnerKey, owner, ""); err != nil {
		return nil, err
	}
	if r.throughInner, err = r.keyOf(OptThroughInnerKey, owner, owner.RoleName()); err != nil {
		return nil, err
	}
	if r.throughOuter, err = r.keyOf(OptThroughOuterKey, r.through, ""); err != nil {
		return nil, err
	}
	if r.outerKey, err = r.keyOf(OptOuterKey, r.through, r.through.RoleName()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *manyThrough) Inverses(string, string) ([]Inverse, error) {
	return nil, r.errorf("many_through relations cannot be back-referenced")
}

func (r *manyThrough) Declare() error { return nil }

func (r *manyThrough) Normalize() RelationRecord {
	rec := r.record()
	rec.InnerKey = r.innerKey
	rec.OuterKey = r.outerKey
	rec.Through = &ThroughRecord{
		Class:    r.through.Class(),
		Table:    r.through.Table(),
		Database: r.through.Database(),
		InnerKey: r.throughInner,
		OuterKey: r.throughOuter,
	}
	return rec
}
