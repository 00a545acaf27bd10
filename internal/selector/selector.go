// Package selector loads entities and their relations from a normalized
// schema export. Relations are either joined into the parent statement
// (inload) or fetched by a follow-up IN query keyed by values aggregated from
// the parent rows (postload). Rows are hydrated into nested records.
//
// A Selector is not safe for concurrent use.
package selector

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/eleven-am/squall/internal/logger"
	"github.com/eleven-am/squall/internal/schema"
	"github.com/jmoiron/sqlx"
)

// Querier runs a query. *sqlx.DB and *sqlx.Tx satisfy it.
type Querier interface {
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

// Selector selects one entity with a tree of relation loaders.
type Selector struct {
	schema   schema.Normalized
	class    string
	root     *loader
	err      error
	queriers map[string]Querier

	where   []squirrel.Sqlizer
	orderBy []string
	limit   *uint64
	offset  *uint64
}

// New returns a selector for class.
func New(n schema.Normalized, class string) (*Selector, error) {
	record, ok := n[class]
	if !ok {
		return nil, &Error{Op: "select", Class: class, Err: ErrUnknownEntity}
	}
	return &Selector{
		schema:   n,
		class:    class,
		root:     newRootLoader(record, record.Table),
		queriers: make(map[string]Querier),
	}, nil
}

// Alias returns the alias of the selected table.
func (s *Selector) Alias() string {
	return s.root.alias
}

// With loads the relation at the dotted path. Missing intermediate loaders
// are created with their defaults and opts apply to the last segment.
func (s *Selector) With(path string, opts ...Option) *Selector {
	if s.err != nil {
		return s
	}
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	segments := strings.Split(path, ".")
	current := s.root
	for i, name := range segments {
		var segOpts loadOptions
		if i == len(segments)-1 {
			segOpts = o
		}
		next, err := current.child(name, s.schema, segOpts)
		if err != nil {
			s.err = &Error{Op: "with", Class: s.class, Relation: path, Err: err}
			return s
		}
		current = next
	}
	return s
}

// Where adds a condition to the primary statement.
func (s *Selector) Where(cond squirrel.Sqlizer) *Selector {
	if s.err != nil {
		return s
	}
	s.where = append(s.where, cond)
	return s
}

// OrderBy appends ORDER BY expressions to the primary statement as written.
func (s *Selector) OrderBy(expressions ...string) *Selector {
	if s.err != nil {
		return s
	}
	s.orderBy = append(s.orderBy, expressions...)
	return s
}

// Limit caps the rows of the primary statement. Inline joins count toward the
// cap, so a fanned-out has-many may return fewer root records.
func (s *Selector) Limit(limit uint64) *Selector {
	if s.err != nil {
		return s
	}
	s.limit = &limit
	return s
}

// Offset skips rows of the primary statement.
func (s *Selector) Offset(offset uint64) *Selector {
	if s.err != nil {
		return s
	}
	s.offset = &offset
	return s
}

// Using routes post-load queries for database to q.
func (s *Selector) Using(database string, q Querier) *Selector {
	s.queriers[database] = q
	return s
}

// Err returns the first error recorded while configuring the selector.
func (s *Selector) Err() error {
	return s.err
}

func (s *Selector) build() (squirrel.SelectBuilder, error) {
	if s.err != nil {
		return squirrel.SelectBuilder{}, s.err
	}

	from := s.root.record.Table
	if s.root.alias != from {
		from = fmt.Sprintf("%s AS %s", from, s.root.alias)
	}
	b := squirrel.Select().From(from).PlaceholderFormat(squirrel.Dollar)
	b, cols := s.root.layout(b, nil)
	b = b.Columns(cols...)

	for _, cond := range s.where {
		b = b.Where(cond)
	}
	for _, expr := range s.orderBy {
		b = b.OrderBy(expr)
	}
	if s.limit != nil {
		b = b.Limit(*s.limit)
	}
	if s.offset != nil {
		b = b.Offset(*s.offset)
	}
	return b, nil
}

// SQL returns the primary statement.
func (s *Selector) SQL() (string, []interface{}, error) {
	b, err := s.build()
	if err != nil {
		return "", nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return "", nil, &Error{Op: "build", Class: s.class, Err: err}
	}
	return query, args, nil
}

// Fetch runs the primary statement, then every post-load query depth first,
// and returns the hydrated records in primary row order.
func (s *Selector) Fetch(ctx context.Context, q Querier) ([]Record, error) {
	query, args, err := s.SQL()
	if err != nil {
		return nil, err
	}

	r := newRun(s, q)
	if err := r.primary(ctx, query, args); err != nil {
		return nil, err
	}
	if err := r.postload(ctx, s.root); err != nil {
		return nil, err
	}

	out := make([]Record, len(r.roots))
	for i, idx := range r.roots {
		out[i] = r.arena.materialize(idx)
	}
	return out, nil
}

// run holds the indexes of one Fetch.
type run struct {
	s      *Selector
	q      Querier
	arena  *arena
	roots  []int
	seen   map[*loader]map[string]bool
	keys   map[*loader]*keyIndex
	shapes map[*schema.EntityRecord]*shape
}

func newRun(s *Selector, q Querier) *run {
	return &run{
		s:      s,
		q:      q,
		arena:  newArena(),
		seen:   make(map[*loader]map[string]bool),
		keys:   make(map[*loader]*keyIndex),
		shapes: make(map[*schema.EntityRecord]*shape),
	}
}

func (r *run) shape(record *schema.EntityRecord) *shape {
	if s, ok := r.shapes[record]; ok {
		return s
	}
	s := newShape(record)
	r.shapes[record] = s
	return s
}

func (r *run) querier(database string) Querier {
	if q, ok := r.s.queriers[database]; ok {
		return q
	}
	return r.q
}

func (r *run) query(ctx context.Context, database, query string, args []interface{}, scan func([]interface{}) error) error {
	logger.SQL().Debug("Executing query", "class", r.s.class, "database", database, "sql", query, "args", len(args))

	rows, err := r.querier(database).QueryxContext(ctx, query, args...)
	if err != nil {
		return &Error{Op: "query", Class: r.s.class, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return &Error{Op: "scan", Class: r.s.class, Err: err}
		}
		if err := scan(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return &Error{Op: "query", Class: r.s.class, Err: err}
	}
	return nil
}

func (r *run) primary(ctx context.Context, query string, args []interface{}) error {
	root := r.s.root
	s := r.shape(root.record)
	return r.query(ctx, root.record.Database, query, args, func(row []interface{}) error {
		return r.parse(root, s, row, -1)
	})
}

// parse hydrates the loader's slice of row and recurses into inline
// children. Duplicates are attached once but still descend so nested
// relations accumulate across fan-out rows.
func (r *run) parse(l *loader, s *shape, row []interface{}, parent int) error {
	end := l.offset + len(s.columns)
	if len(row) < end {
		return &Error{Op: "parse", Class: r.s.class, Relation: l.path,
			Err: fmt.Errorf("%w: expected %d columns, got %d", ErrMalformedRow, end, len(row))}
	}

	data := make([]interface{}, len(s.columns))
	for i := range data {
		data[i] = normalizeValue(row[l.offset+i])
	}
	if ref, ok := referenceColumn(l, s); ok && data[ref] == nil {
		return nil
	}

	identity := identityOf(s, data)
	idx, created := r.arena.intern(l, s, identity, data)
	if created {
		r.register(l, idx)
	}

	if parent < 0 {
		if created {
			r.roots = append(r.roots, idx)
		}
	} else if r.markSeen(l, s, parent, identity) {
		r.arena.attach(parent, l, idx)
	}

	if l.record == nil {
		return nil
	}
	for _, c := range l.children {
		if !c.inline() {
			continue
		}
		if err := r.parse(c, r.shape(c.record), row, idx); err != nil {
			return err
		}
	}
	return nil
}

// referenceColumn is the column whose null value means the join matched
// nothing.
func referenceColumn(l *loader, s *shape) (int, bool) {
	if l.isRoot() {
		return s.pk, s.pk >= 0
	}
	key := l.relation.OuterKey
	if key == "" {
		return s.pk, s.pk >= 0
	}
	idx, ok := s.index[key]
	return idx, ok
}

// markSeen reports the first sighting of a child under parent. Polymorphic
// children share a loader, so the role is part of the key.
func (r *run) markSeen(l *loader, s *shape, parent int, identity string) bool {
	seen, ok := r.seen[l]
	if !ok {
		seen = make(map[string]bool)
		r.seen[l] = seen
	}
	key := fmt.Sprintf("%d/%s/%s", parent, s.role, identity)
	if seen[key] {
		return false
	}
	seen[key] = true
	return true
}

// register records the node's keys for every post-load child.
func (r *run) register(l *loader, idx int) {
	n := r.arena.nodes[idx]
	for _, c := range l.children {
		if c.inline() {
			continue
		}
		value, ok := n.value(c.relation.InnerKey)
		if !ok || value == nil {
			continue
		}
		group := ""
		if c.relation.Type == schema.BelongsToMorphed {
			morph, _ := n.value(c.relation.MorphKey)
			group = referenceKey(morph)
			if group == "" {
				continue
			}
		}
		keys, ok := r.keys[c]
		if !ok {
			keys = newKeyIndex()
			r.keys[c] = keys
		}
		keys.add(group, value, idx)
	}
}

// postload executes post-load children depth first. Inline children are
// descended into so their own post-load children run too.
func (r *run) postload(ctx context.Context, l *loader) error {
	for _, c := range l.children {
		if !c.inline() {
			if err := r.execute(ctx, c); err != nil {
				return err
			}
		}
		if err := r.postload(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) execute(ctx context.Context, l *loader) error {
	keys, ok := r.keys[l]
	if !ok || keys.empty() {
		return nil
	}

	switch l.relation.Type {
	case schema.BelongsToMorphed:
		for _, role := range keys.groups {
			class, ok := l.relation.Candidates[role]
			if !ok {
				logger.Selector().Warn("Skipping unknown morph type", "relation", l.path, "type", role)
				continue
			}
			target, ok := r.s.schema[class]
			if !ok {
				return &Error{Op: "postload", Class: class, Relation: l.path, Err: ErrUnknownEntity}
			}
			if err := r.fetch(ctx, l, target, keys, role, role); err != nil {
				return err
			}
		}
		return nil
	case schema.ManyToMorphed:
		for _, role := range l.candidates() {
			class := l.relation.Candidates[role]
			target, ok := r.s.schema[class]
			if !ok {
				return &Error{Op: "postload", Class: class, Relation: l.path, Err: ErrUnknownEntity}
			}
			if err := r.fetch(ctx, l, target, keys, role, ""); err != nil {
				return err
			}
		}
		return nil
	}
	return r.fetch(ctx, l, l.record, keys, "", "")
}

func (r *run) fetch(ctx context.Context, l *loader, target *schema.EntityRecord, keys *keyIndex, role, group string) error {
	query, args, err := l.postloadQuery(target, keys.values(group), role).ToSql()
	if err != nil {
		return &Error{Op: "build", Class: r.s.class, Relation: l.path, Err: err}
	}

	s := r.shape(target)
	return r.query(ctx, target.Database, query, args, func(row []interface{}) error {
		if len(row) == 0 {
			return &Error{Op: "parse", Class: r.s.class, Relation: l.path, Err: ErrMalformedRow}
		}
		for _, parent := range keys.lookup(group, row[0]) {
			if err := r.parse(l, s, row, parent); err != nil {
				return err
			}
		}
		return nil
	})
}
