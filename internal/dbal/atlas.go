package dbal

import (
	"context"
	"fmt"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"

	"github.com/eleven-am/squall/internal/logger"
)

// Atlas converts the declaration into an atlas table placed in schemaName.
func (t *TableSchema) Atlas(schemaName string) (*schema.Table, error) {
	s := &schema.Schema{Name: schemaName}
	tbl := &schema.Table{Name: t.name, Schema: s}
	s.Tables = append(s.Tables, tbl)

	for _, c := range t.columns {
		if !c.declared {
			return nil, fmt.Errorf("%w: column %s.%s has no type", ErrInvalidType, t.name, c.name)
		}
		col := &schema.Column{
			Name: c.name,
			Type: &schema.ColumnType{
				Type: c.typ.atlasType(fmt.Sprintf("%s_%s", t.name, c.name), s),
				Null: c.nullable,
			},
		}
		if expr, ok := c.DefaultValue(); ok {
			col.Default = &schema.RawExpr{X: expr}
		}
		tbl.Columns = append(tbl.Columns, col)
	}

	if len(t.primary) > 0 {
		pk := &schema.Index{Name: t.name + "_pkey", Unique: true, Table: tbl}
		parts, err := indexParts(tbl, t.primary)
		if err != nil {
			return nil, err
		}
		pk.Parts = parts
		tbl.PrimaryKey = pk
	}

	for _, idx := range t.indexes {
		parts, err := indexParts(tbl, idx.columns)
		if err != nil {
			return nil, err
		}
		tbl.Indexes = append(tbl.Indexes, &schema.Index{
			Name:   idx.name,
			Unique: idx.unique,
			Table:  tbl,
			Parts:  parts,
		})
	}

	for _, fk := range t.foreignKeys {
		col, ok := tbl.Column(fk.column)
		if !ok {
			return nil, fmt.Errorf("%w: foreign key %s on missing column %s", ErrUndefinedObject, fk.name, fk.column)
		}
		ref := tbl
		if fk.refTable != t.name {
			ref = &schema.Table{Name: fk.refTable, Schema: s}
		}
		refCol, ok := ref.Column(fk.refColumn)
		if !ok {
			refCol = &schema.Column{Name: fk.refColumn}
		}
		tbl.ForeignKeys = append(tbl.ForeignKeys, &schema.ForeignKey{
			Symbol:     fk.name,
			Table:      tbl,
			Columns:    []*schema.Column{col},
			RefTable:   ref,
			RefColumns: []*schema.Column{refCol},
			OnDelete:   schema.ReferenceOption(fk.onDelete),
			OnUpdate:   schema.ReferenceOption(fk.onUpdate),
		})
	}

	return tbl, nil
}

func indexParts(tbl *schema.Table, columns []string) ([]*schema.IndexPart, error) {
	parts := make([]*schema.IndexPart, 0, len(columns))
	for i, name := range columns {
		col, ok := tbl.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: index column %s.%s", ErrUndefinedObject, tbl.Name, name)
		}
		parts = append(parts, &schema.IndexPart{SeqNo: i + 1, C: col})
	}
	return parts, nil
}

// AtlasApplier reconciles tables against a postgres database using atlas diffing.
type AtlasApplier struct {
	driver migrate.Driver
	schema string
}

// NewAtlasApplier opens an atlas postgres driver over db.
func NewAtlasApplier(db schema.ExecQuerier, schemaName string) (*AtlasApplier, error) {
	driver, err := postgres.Open(db)
	if err != nil {
		return nil, fmt.Errorf("failed to open atlas driver: %w", err)
	}
	if schemaName == "" {
		schemaName = "public"
	}
	return &AtlasApplier{driver: driver, schema: schemaName}, nil
}

// Apply executes the changes needed to make the live table match the declaration.
func (a *AtlasApplier) Apply(ctx context.Context, table *TableSchema) error {
	changes, err := a.changes(ctx, table)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		logger.Migration().Debug("Table is up to date", "table", table.Key())
		return nil
	}

	logger.Migration().Info("Applying table changes", "table", table.Key(), "changes", len(changes))
	if err := a.driver.ApplyChanges(ctx, changes); err != nil {
		return fmt.Errorf("failed to apply changes: %w", err)
	}
	return nil
}

// Plan returns the SQL statements Apply would execute.
func (a *AtlasApplier) Plan(ctx context.Context, table *TableSchema) ([]string, error) {
	changes, err := a.changes(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return []string{}, nil
	}

	plan, err := a.driver.PlanChanges(ctx, "", changes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan: %w", err)
	}

	statements := make([]string, len(plan.Changes))
	for i, change := range plan.Changes {
		statements[i] = change.Cmd
		if change.Comment != "" {
			statements[i] = fmt.Sprintf("-- %s\n%s", change.Comment, change.Cmd)
		}
	}
	return statements, nil
}

func (a *AtlasApplier) changes(ctx context.Context, table *TableSchema) ([]schema.Change, error) {
	desired, err := table.Atlas(a.schema)
	if err != nil {
		return nil, err
	}

	current, err := a.driver.InspectSchema(ctx, a.schema, &schema.InspectOptions{Tables: []string{table.Name()}})
	if err != nil && !schema.IsNotExistError(err) {
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}

	if current != nil {
		if existing, ok := current.Table(table.Name()); ok {
			changes, err := a.driver.TableDiff(existing, desired)
			if err != nil {
				return nil, fmt.Errorf("failed to calculate diff: %w", err)
			}
			return changes, nil
		}
	}

	return []schema.Change{&schema.AddTable{T: desired}}, nil
}
