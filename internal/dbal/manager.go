// Package dbal declares table schemas and applies them to connected databases.
package dbal

import (
	"context"
	"sort"
)

// Applier reconciles one declared table with a live database.
type Applier interface {
	Apply(ctx context.Context, table *TableSchema) error
	Plan(ctx context.Context, table *TableSchema) ([]string, error)
}

// Manager hands out databases by identifier
type Manager struct {
	databases map[string]*Database
}

// NewManager creates a manager with no connected databases.
func NewManager() *Manager {
	return &Manager{databases: make(map[string]*Database)}
}

// Connect binds an applier to the named database.
func (m *Manager) Connect(name string, applier Applier) *Database {
	db := m.Database(name)
	db.applier = applier
	return db
}

// Database returns the named database, creating an unconnected handle when missing.
func (m *Manager) Database(name string) *Database {
	if db, ok := m.databases[name]; ok {
		return db
	}
	db := &Database{name: name}
	m.databases[name] = db
	return db
}

// Databases returns the known database identifiers, sorted.
func (m *Manager) Databases() []string {
	names := make([]string, 0, len(m.databases))
	for name := range m.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Database is one logical database.
type Database struct {
	name    string
	applier Applier
}

// Name returns the database identifier.
func (d *Database) Name() string { return d.name }

// Connected reports whether Save can reach a live database.
func (d *Database) Connected() bool { return d.applier != nil }

// Table returns a handle on the named table.
func (d *Database) Table(name string) *Table {
	return &Table{database: d, name: name}
}

// Table is a handle on a table within a database.
type Table struct {
	database *Database
	name     string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Schema returns a fresh, empty declaration for the table.
func (t *Table) Schema() *TableSchema {
	return newTableSchema(t.database, t.name)
}
