package dbal

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/eleven-am/squall/internal/logger"
)

// Foreign key actions.
const (
	Cascade  = "CASCADE"
	SetNull  = "SET NULL"
	NoAction = "NO ACTION"
	Restrict = "RESTRICT"
)

// Column is a declared table column
type Column struct {
	name     string
	typ      ColumnType
	declared bool
	nullable bool
	def      *string
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the parsed abstract type; zero when undeclared.
func (c *Column) Type() ColumnType { return c.typ }

// Declared reports whether a type was assigned.
func (c *Column) Declared() bool { return c.declared }

// SetType assigns an abstract type declaration such as "string(64)".
func (c *Column) SetType(decl string) error {
	t, err := ParseColumnType(decl)
	if err != nil {
		return fmt.Errorf("column %s: %w", c.name, err)
	}
	c.SetColumnType(t)
	return nil
}

// SetColumnType assigns an already parsed type.
func (c *Column) SetColumnType(t ColumnType) *Column {
	c.typ = t
	c.declared = true
	return c
}

// Nullable marks the column as accepting NULL.
func (c *Column) Nullable(nullable bool) *Column {
	c.nullable = nullable
	return c
}

// IsNullable reports whether the column accepts NULL.
func (c *Column) IsNullable() bool { return c.nullable }

// Default sets the default SQL expression.
func (c *Column) Default(expr string) *Column {
	c.def = &expr
	return c
}

// DefaultValue returns the default expression, if any.
func (c *Column) DefaultValue() (string, bool) {
	if c.def == nil {
		return "", false
	}
	return *c.def, true
}

// Index is a declared table index
type Index struct {
	name    string
	columns []string
	unique  bool
}

// Name returns the index name.
func (i *Index) Name() string { return i.name }

// Columns returns the indexed columns in order.
func (i *Index) Columns() []string { return append([]string(nil), i.columns...) }

// Unique marks the index as unique.
func (i *Index) Unique(unique bool) *Index {
	i.unique = unique
	return i
}

// IsUnique reports whether the index is unique.
func (i *Index) IsUnique() bool { return i.unique }

// ForeignKey is a declared foreign key constraint
type ForeignKey struct {
	name      string
	column    string
	refTable  string
	refColumn string
	onDelete  string
	onUpdate  string
}

// Name returns the constraint name.
func (f *ForeignKey) Name() string { return f.name }

// Column returns the local column.
func (f *ForeignKey) Column() string { return f.column }

// RefTable returns the referenced table.
func (f *ForeignKey) RefTable() string { return f.refTable }

// RefColumn returns the referenced column.
func (f *ForeignKey) RefColumn() string { return f.refColumn }

// References points the key at table.column.
func (f *ForeignKey) References(table, column string) *ForeignKey {
	f.refTable = table
	f.refColumn = column
	return f
}

// OnDelete sets the ON DELETE action.
func (f *ForeignKey) OnDelete(action string) *ForeignKey {
	f.onDelete = action
	return f
}

// OnUpdate sets the ON UPDATE action.
func (f *ForeignKey) OnUpdate(action string) *ForeignKey {
	f.onUpdate = action
	return f
}

// DeleteRule returns the ON DELETE action.
func (f *ForeignKey) DeleteRule() string { return f.onDelete }

// UpdateRule returns the ON UPDATE action.
func (f *ForeignKey) UpdateRule() string { return f.onUpdate }

// TableSchema is the mutable declaration of one table. Save applies it to the
// live database through the owning database's applier.
type TableSchema struct {
	database    *Database
	name        string
	columns     []*Column
	byName      map[string]*Column
	primary     []string
	indexes     []*Index
	foreignKeys []*ForeignKey
}

func newTableSchema(db *Database, name string) *TableSchema {
	return &TableSchema{
		database: db,
		name:     name,
		byName:   make(map[string]*Column),
	}
}

// Name returns the table name.
func (t *TableSchema) Name() string { return t.name }

// Database returns the database identifier.
func (t *TableSchema) Database() string {
	if t.database == nil {
		return ""
	}
	return t.database.name
}

// Key is the database/table identity used for deduplication.
func (t *TableSchema) Key() string { return t.Database() + "/" + t.name }

// Column returns the named column, declaring it when missing.
func (t *TableSchema) Column(name string) *Column {
	if c, ok := t.byName[name]; ok {
		return c
	}
	c := &Column{name: name}
	t.columns = append(t.columns, c)
	t.byName[name] = c
	return c
}

// HasColumn reports whether the column was declared.
func (t *TableSchema) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Columns returns columns in declaration order.
func (t *TableSchema) Columns() []*Column { return append([]*Column(nil), t.columns...) }

// SetPrimaryKey declares the primary key columns.
func (t *TableSchema) SetPrimaryKey(columns ...string) {
	t.primary = append([]string(nil), columns...)
}

// PrimaryKey returns the primary key columns.
func (t *TableSchema) PrimaryKey() []string { return append([]string(nil), t.primary...) }

// Index returns the index over columns, declaring it when missing.
func (t *TableSchema) Index(columns ...string) *Index {
	for _, idx := range t.indexes {
		if sameColumns(idx.columns, columns) {
			return idx
		}
	}
	idx := &Index{
		name:    fmt.Sprintf("%s_index_%s", t.name, strings.Join(columns, "_")),
		columns: append([]string(nil), columns...),
	}
	t.indexes = append(t.indexes, idx)
	return idx
}

// Indexes returns indexes in declaration order.
func (t *TableSchema) Indexes() []*Index { return append([]*Index(nil), t.indexes...) }

// ForeignKey returns the foreign key on column, declaring it when missing.
func (t *TableSchema) ForeignKey(column string) *ForeignKey {
	for _, fk := range t.foreignKeys {
		if fk.column == column {
			return fk
		}
	}
	fk := &ForeignKey{
		name:     fmt.Sprintf("%s_foreign_%s", t.name, column),
		column:   column,
		onDelete: NoAction,
		onUpdate: NoAction,
	}
	t.foreignKeys = append(t.foreignKeys, fk)
	return fk
}

// ForeignKeys returns foreign keys in declaration order.
func (t *TableSchema) ForeignKeys() []*ForeignKey { return append([]*ForeignKey(nil), t.foreignKeys...) }

// Dependencies returns the sorted, distinct tables this table references.
// Self references are excluded.
func (t *TableSchema) Dependencies() []string {
	seen := make(map[string]bool)
	deps := make([]string, 0, len(t.foreignKeys))
	for _, fk := range t.foreignKeys {
		if fk.refTable == "" || fk.refTable == t.name || seen[fk.refTable] {
			continue
		}
		seen[fk.refTable] = true
		deps = append(deps, fk.refTable)
	}
	sort.Strings(deps)
	return deps
}

// Save creates or alters the table in the live database.
func (t *TableSchema) Save(ctx context.Context) error {
	if t.database == nil || t.database.applier == nil {
		return &Error{Op: "save", Database: t.Database(), Table: t.name, Err: ErrNotConnected}
	}

	logger.Migration().Debug("Saving table", "table", t.Key())

	if err := t.database.applier.Apply(ctx, t); err != nil {
		return ParsePostgreSQLError(err, "save", t.Database(), t.name)
	}
	return nil
}

// Plan returns the statements Save would execute.
func (t *TableSchema) Plan(ctx context.Context) ([]string, error) {
	if t.database == nil || t.database.applier == nil {
		return nil, &Error{Op: "plan", Database: t.Database(), Table: t.name, Err: ErrNotConnected}
	}

	stmts, err := t.database.applier.Plan(ctx, t)
	if err != nil {
		return nil, ParsePostgreSQLError(err, "plan", t.Database(), t.name)
	}
	return stmts, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
