// Package schema builds entity and relation schemas from discovered class
// metadata, declares their tables and exports the normalized runtime schema.
package schema

import (
	"context"
	"sort"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/eleven-am/squall/internal/logger"
)

const maxEquivalentSteps = 5

// Builder owns every entity schema and declared table of one build session.
type Builder struct {
	config    Config
	discovery Discovery
	dbal      DatabaseManager
	mutators  map[string][]Mutator
	factories map[string]relationFactory

	entities map[string]*EntitySchema
	order    []*EntitySchema

	tables     map[string]*dbal.TableSchema
	tableOrder []*dbal.TableSchema
	claims     map[string][]*EntitySchema
}

// NewBuilder discovers entities, resolves relations and back-references and
// declares every table.
func NewBuilder(cfg Config, discovery Discovery, manager DatabaseManager) (*Builder, error) {
	if cfg.DefaultDatabase == "" {
		cfg.DefaultDatabase = "default"
	}

	mutators, err := parseMutatorConfig(cfg.Mutators)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		config:    cfg,
		discovery: discovery,
		dbal:      manager,
		mutators:  mutators,
		factories: defaultFactories(),
		entities:  make(map[string]*EntitySchema),
		tables:    make(map[string]*dbal.TableSchema),
		claims:    make(map[string][]*EntitySchema),
	}

	if err := b.discover(); err != nil {
		return nil, err
	}
	if err := b.castRelations(); err != nil {
		return nil, err
	}
	if err := b.declareTables(); err != nil {
		return nil, err
	}

	logger.Schema().Info("Schema built", "entities", len(b.order), "tables", len(b.tableOrder))
	return b, nil
}

func (b *Builder) discover() error {
	classes, err := b.discovery.ClassesImplementing(EntityMarker)
	if err != nil {
		return &Error{Op: "discover", Err: err}
	}

	for _, name := range sortedClassNames(classes) {
		if name == EntityMarker {
			continue
		}
		e, err := newEntitySchema(b, name, classes)
		if err != nil {
			return err
		}
		b.entities[name] = e
		b.order = append(b.order, e)
	}

	// ancestors claim shared tables before their descendants
	sort.SliceStable(b.order, func(i, j int) bool {
		return len(b.order[i].ancestors) < len(b.order[j].ancestors)
	})

	logger.Schema().Debug("Discovered entities", "count", len(b.order))
	return nil
}

func (b *Builder) castRelations() error {
	var forward []RelationSchema
	for _, e := range b.order {
		if e.IsAbstract() {
			continue
		}
		if err := e.CastRelations(); err != nil {
			return err
		}
		if !e.HasBackReferences() {
			continue
		}
		for _, rel := range e.Relations() {
			if rel.HasBackReference() {
				forward = append(forward, rel)
			}
		}
	}

	for _, rel := range forward {
		if err := b.revertRelation(rel); err != nil {
			return err
		}
	}
	return nil
}

// revertRelation installs the inverse of rel on its target entities.
func (b *Builder) revertRelation(rel RelationSchema) error {
	ref := rel.BackReference()
	inverses, err := rel.Inverses(ref.Name, ref.Type)
	if err != nil {
		return err
	}

	for _, inv := range inverses {
		target := b.entities[inv.Entity]
		if target == nil {
			return configError(rel.Entity().Class(), rel.Name(), "inverse target %s is not an entity", inv.Entity)
		}

		def := inv.Definition
		if existing := target.Relation(inv.Name); existing != nil {
			merged, ok := mergeInverse(existing.Definition(), def)
			if !ok {
				return configError(target.Class(), inv.Name, "relation already declared")
			}
			def = merged
		}

		inverse, err := b.RelationSchema(target, inv.Name, def)
		if err != nil {
			return err
		}
		target.setRelation(inverse)

		logger.Schema().Debug("Inverse relation",
			"entity", target.Class(), "relation", inv.Name, "type", inverse.Type(),
			"from", rel.Entity().Class()+"."+rel.Name())
	}
	return nil
}

// mergeInverse folds the owners of morphed inverses into one relation.
func mergeInverse(existing, incoming Definition) (Definition, bool) {
	if existing.Type != BelongsToMorphed || incoming.Type != BelongsToMorphed {
		return Definition{}, false
	}
	a := existing.With(OptCandidates, "")
	c := incoming.With(OptCandidates, "")
	if !a.Equal(c) {
		return Definition{}, false
	}
	candidates := append(splitList(existing.Options[OptCandidates]), splitList(incoming.Options[OptCandidates])...)
	return existing.With(OptCandidates, joinList(candidates)), true
}

func (b *Builder) declareTables() error {
	for _, e := range b.order {
		if !e.IsAbstract() {
			e.castTable()
		}
	}
	for _, e := range b.order {
		if e.IsAbstract() {
			continue
		}
		for _, rel := range e.Relations() {
			if err := rel.Declare(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Entity returns the named entity schema or nil. The marker class yields a
// fresh abstract schema every call.
func (b *Builder) Entity(class string) *EntitySchema {
	if class == EntityMarker {
		return &EntitySchema{
			builder:   b,
			class:     EntityMarker,
			abstract:  true,
			role:      "entity",
			database:  b.config.DefaultDatabase,
			mutators:  make(map[string]map[string]string),
			validates: make(map[string][]string),
			messages:  make(map[string]string),
		}
	}
	return b.entities[class]
}

// Entities returns every entity, ancestors before descendants then by class name.
func (b *Builder) Entities() []*EntitySchema {
	return append([]*EntitySchema(nil), b.order...)
}

func (b *Builder) concreteDescendants(class string) []*EntitySchema {
	var out []*EntitySchema
	for _, e := range b.order {
		if e.IsAbstract() {
			continue
		}
		if class == EntityMarker || e.Class() == class || e.DescendsFrom(class) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Class() < out[j].Class() })
	return out
}

// DeclareTable returns the declaration for database/table, creating it once.
func (b *Builder) DeclareTable(database, table string) *dbal.TableSchema {
	key := database + "/" + table
	if tbl, ok := b.tables[key]; ok {
		return tbl
	}

	tbl := b.dbal.Database(database).Table(table).Schema()
	b.tables[key] = tbl
	b.tableOrder = append(b.tableOrder, tbl)
	return tbl
}

func (b *Builder) claimTable(e *EntitySchema) (*dbal.TableSchema, bool) {
	tbl := b.DeclareTable(e.Database(), e.Table())
	key := tbl.Key()
	first := len(b.claims[key]) == 0
	b.claims[key] = append(b.claims[key], e)
	return tbl, first
}

// Mutators returns the configured mutators for an abstract column type.
func (b *Builder) Mutators(abstractType string) []Mutator {
	return append([]Mutator(nil), b.mutators[abstractType]...)
}

// RelationSchema resolves a definition into a relation owned by entity.
// Shorthand definitions are replaced by their equivalent, at most
// maxEquivalentSteps times.
func (b *Builder) RelationSchema(entity *EntitySchema, name string, def Definition) (RelationSchema, error) {
	if def.IsZero() {
		return nil, configError(entity.Class(), name, "relation definition is empty")
	}

	for step := 0; ; step++ {
		factory, ok := b.factories[def.Type]
		if !ok {
			return nil, configError(entity.Class(), name, "unknown relation type %q", def.Type)
		}

		rel, err := factory(b, entity, name, def)
		if err != nil {
			return nil, err
		}
		if !rel.HasEquivalent() {
			return rel, nil
		}
		if step >= maxEquivalentSteps {
			return nil, configError(entity.Class(), name, "definition did not settle after %d simplifications", maxEquivalentSteps)
		}

		next := rel.EquivalentDefinition()
		logger.Schema().Debug("Relation simplified", "entity", entity.Class(), "relation", name, "from", def.Type, "to", next.Type)
		def = next
	}
}

// ExecuteSchema saves every declared table in cascade order. The first
// failure stops the run; earlier saves stay applied.
func (b *Builder) ExecuteSchema(ctx context.Context) error {
	tables, err := b.DeclaredTables(true)
	if err != nil {
		return err
	}

	log := logger.Migration()
	for _, tbl := range tables {
		if !b.isActive(tbl) {
			log.Info("Skipping passive table", "table", tbl.Key())
			continue
		}
		if err := tbl.Save(ctx); err != nil {
			log.Error("Table save failed", "table", tbl.Key(), "error", err)
			return ddlError(tbl.Key(), err)
		}
		log.Debug("Table saved", "table", tbl.Key())
	}
	return nil
}

// PlanSchema returns the statements ExecuteSchema would run.
func (b *Builder) PlanSchema(ctx context.Context) ([]string, error) {
	tables, err := b.DeclaredTables(true)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, tbl := range tables {
		if !b.isActive(tbl) {
			continue
		}
		stmts, err := tbl.Plan(ctx)
		if err != nil {
			return nil, ddlError(tbl.Key(), err)
		}
		out = append(out, stmts...)
	}
	return out, nil
}

// isActive is false only when every entity claiming the table is passive.
func (b *Builder) isActive(tbl *dbal.TableSchema) bool {
	claims := b.claims[tbl.Key()]
	if len(claims) == 0 {
		return true
	}
	for _, e := range claims {
		if e.IsActiveSchema() {
			return true
		}
	}
	return false
}

// NormalizeSchema exports every concrete entity.
func (b *Builder) NormalizeSchema() Normalized {
	out := make(Normalized, len(b.order))
	for _, e := range b.order {
		if e.IsAbstract() {
			continue
		}
		out[e.Class()] = e.normalize()
	}
	return out
}

func (e *EntitySchema) normalize() *EntityRecord {
	rec := &EntityRecord{
		Table:      e.table,
		Database:   e.database,
		PrimaryKey: e.primaryKey,
		Columns:    make([]ColumnRecord, 0, len(e.columns)),
		Hidden:     e.Hidden(),
		Secured:    e.Secured(),
		Fillable:   e.Fillable(),
		Mutators:   e.Mutators(),
		Validates:  e.Validates(),
		Messages:   e.Messages(),
		Relations:  make(map[string]RelationRecord, len(e.relations)),
		Role:       e.role,
	}
	for _, c := range e.columns {
		rec.Columns = append(rec.Columns, ColumnRecord{
			Name:     c.Name,
			Type:     c.Type.String(),
			Nullable: c.Nullable,
			Default:  c.Default,
		})
	}
	for _, r := range e.relations {
		rec.Relations[r.Name()] = r.Normalize()
	}
	return rec
}
