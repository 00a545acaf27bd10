package selector

import (
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"
	"github.com/eleven-am/squall/internal/schema"
)

// loader is one node of the relation tree. The root loader stands for the
// selected entity itself.
type loader struct {
	name     string
	path     string
	relation schema.RelationRecord
	parent   *loader
	record   *schema.EntityRecord // nil for polymorphic targets
	alias    string
	method   Method
	children []*loader
	byName   map[string]*loader

	// column offset of this loader inside the statement being parsed
	offset int
}

func newRootLoader(record *schema.EntityRecord, alias string) *loader {
	return &loader{
		record: record,
		alias:  alias,
		method: MethodInload,
		byName: make(map[string]*loader),
	}
}

func (l *loader) isRoot() bool {
	return l.parent == nil
}

func (l *loader) morphed() bool {
	switch l.relation.Type {
	case schema.BelongsToMorphed, schema.ManyToMorphed:
		return true
	}
	return false
}

func (l *loader) plural() bool {
	switch l.relation.Type {
	case schema.HasMany, schema.ManyToMany, schema.ManyToMorphed, schema.ManyThrough:
		return true
	}
	return false
}

func (l *loader) inline() bool {
	return l.method == MethodInload
}

// child returns the named child, creating it from the relation record.
func (l *loader) child(name string, n schema.Normalized, opts loadOptions) (*loader, error) {
	if c, ok := l.byName[name]; ok {
		c.apply(opts)
		return c, nil
	}
	if l.record == nil {
		return nil, fmt.Errorf("%w: %s cannot be nested under a polymorphic relation", ErrUnknownRelation, name)
	}
	rel, ok := l.record.Relations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRelation, name)
	}

	c := &loader{
		name:     name,
		path:     joinPath(l.path, name),
		relation: rel,
		parent:   l,
		alias:    l.alias + "_" + name,
		byName:   make(map[string]*loader),
	}
	if !c.morphed() {
		target, ok := n[rel.Target]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, rel.Target)
		}
		c.record = target
	}
	c.apply(opts)

	l.children = append(l.children, c)
	l.byName[name] = c
	return c, nil
}

func (l *loader) apply(opts loadOptions) {
	if opts.alias != "" {
		l.alias = opts.alias
	}
	method := opts.method
	if method == MethodDefault {
		method = l.method
	}
	if method == MethodDefault {
		method = defaultMethod(l.relation.Type)
	}
	if l.forcePostload() {
		method = MethodPostload
	}
	l.method = method
}

func defaultMethod(relationType string) Method {
	if relationType == schema.HasOne {
		return MethodInload
	}
	return MethodPostload
}

// forcePostload reports relations that cannot be joined into the parent
// statement.
func (l *loader) forcePostload() bool {
	if l.morphed() {
		return true
	}
	return l.parent != nil && l.parent.record != nil && l.relation.Database != l.parent.record.Database
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// columns lists the loader's selected expressions.
func columns(alias string, record *schema.EntityRecord) []string {
	cols := make([]string, len(record.Columns))
	for i, c := range record.Columns {
		cols[i] = alias + "." + c.Name
	}
	return cols
}

// morphFilter returns the discriminator filter applied on behalf of the parent.
func (l *loader) morphFilter() (string, string, bool) {
	if l.relation.MorphKey == "" || l.parent == nil || l.parent.record == nil {
		return "", "", false
	}
	switch l.relation.Type {
	case schema.HasOne, schema.HasMany:
		return l.alias + "." + l.relation.MorphKey, l.parent.record.Role, true
	case schema.ManyToMany:
		return l.pivotAlias() + "." + l.relation.MorphKey, l.parent.record.Role, true
	}
	return "", "", false
}

func (l *loader) pivotAlias() string {
	return l.alias + "_pivot"
}

func (l *loader) throughAlias() string {
	return l.alias + "_through"
}

// join adds the LEFT JOIN that brings an inline loader into its parent's
// statement.
func (l *loader) join(b squirrel.SelectBuilder) squirrel.SelectBuilder {
	rel := l.relation
	parentKey := l.parent.alias + "." + rel.InnerKey

	switch rel.Type {
	case schema.ManyToMany:
		on := fmt.Sprintf("%s AS %s ON %s.%s = %s", rel.Pivot.Table, l.pivotAlias(), l.pivotAlias(), rel.Pivot.InnerKey, parentKey)
		var args []interface{}
		if column, role, ok := l.morphFilter(); ok {
			on += fmt.Sprintf(" AND %s = ?", column)
			args = append(args, role)
		}
		b = b.LeftJoin(on, args...)
		return b.LeftJoin(fmt.Sprintf("%s AS %s ON %s.%s = %s.%s", rel.Table, l.alias, l.alias, rel.OuterKey, l.pivotAlias(), rel.Pivot.OuterKey))
	case schema.ManyThrough:
		b = b.LeftJoin(fmt.Sprintf("%s AS %s ON %s.%s = %s", rel.Through.Table, l.throughAlias(), l.throughAlias(), rel.Through.InnerKey, parentKey))
		return b.LeftJoin(fmt.Sprintf("%s AS %s ON %s.%s = %s.%s", rel.Table, l.alias, l.alias, rel.OuterKey, l.throughAlias(), rel.Through.OuterKey))
	}

	on := fmt.Sprintf("%s AS %s ON %s.%s = %s", rel.Table, l.alias, l.alias, rel.OuterKey, parentKey)
	var args []interface{}
	if column, role, ok := l.morphFilter(); ok {
		on += fmt.Sprintf(" AND %s = ?", column)
		args = append(args, role)
	}
	return b.LeftJoin(on, args...)
}

// layout appends the loader's columns and those of its inline descendants,
// recording the offset of each.
func (l *loader) layout(b squirrel.SelectBuilder, cols []string) (squirrel.SelectBuilder, []string) {
	l.offset = len(cols)
	cols = append(cols, columns(l.alias, l.record)...)
	for _, c := range l.children {
		if !c.inline() {
			continue
		}
		b = c.join(b)
		b, cols = c.layout(b, cols)
	}
	return b, cols
}

// postloadQuery builds the follow-up statement for a post-load loader. The
// first selected column is the value matched against the parent key index.
func (l *loader) postloadQuery(target *schema.EntityRecord, values []interface{}, role string) squirrel.SelectBuilder {
	rel := l.relation
	table := target.Table
	outer := rel.OuterKey
	if outer == "" {
		outer = target.PrimaryKey
	}

	var match string
	b := squirrel.Select().PlaceholderFormat(squirrel.Dollar)
	switch rel.Type {
	case schema.ManyToMany, schema.ManyToMorphed:
		match = l.pivotAlias() + "." + rel.Pivot.InnerKey
		b = b.From(fmt.Sprintf("%s AS %s", table, l.alias)).
			InnerJoin(fmt.Sprintf("%s AS %s ON %s.%s = %s.%s", rel.Pivot.Table, l.pivotAlias(), l.pivotAlias(), rel.Pivot.OuterKey, l.alias, outer))
	case schema.ManyThrough:
		match = l.throughAlias() + "." + rel.Through.InnerKey
		b = b.From(fmt.Sprintf("%s AS %s", table, l.alias)).
			InnerJoin(fmt.Sprintf("%s AS %s ON %s.%s = %s.%s", rel.Through.Table, l.throughAlias(), l.throughAlias(), rel.Through.OuterKey, l.alias, outer))
	default:
		match = l.alias + "." + outer
		b = b.From(fmt.Sprintf("%s AS %s", table, l.alias))
	}

	cols := []string{match}
	if target == l.record {
		b, cols = l.layout(b, cols)
	} else {
		l.offset = len(cols)
		cols = append(cols, columns(l.alias, target)...)
	}
	b = b.Columns(cols...).Where(squirrel.Eq{match: values})

	switch rel.Type {
	case schema.ManyToMorphed:
		b = b.Where(squirrel.Eq{l.pivotAlias() + "." + rel.MorphKey: role})
	default:
		if column, parentRole, ok := l.morphFilter(); ok {
			b = b.Where(squirrel.Eq{column: parentRole})
		}
	}
	return b
}

// candidates returns the polymorphic targets in role order.
func (l *loader) candidates() []string {
	roles := make([]string, 0, len(l.relation.Candidates))
	for role := range l.relation.Candidates {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
