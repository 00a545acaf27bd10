package schema

import (
	"context"
	"fmt"
	"testing"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/stretchr/testify/require"
)

func col(name, typ string) ColumnMetadata {
	return ColumnMetadata{Name: name, Type: typ}
}

// rel builds a relation declaration; opts alternate key and value.
func rel(name, typ, target string, opts ...string) RelationMetadata {
	def := Definition{Type: typ, Target: target, Options: map[string]string{}}
	for i := 0; i+1 < len(opts); i += 2 {
		def.Options[opts[i]] = opts[i+1]
	}
	return RelationMetadata{Name: name, Definition: def}
}

func blogClasses() []*ClassMetadata {
	return []*ClassMetadata{
		{
			Name:     "User",
			Columns:  []ColumnMetadata{col("id", "primary"), col("name", "string(64)"), col("email", "string"), col("password", "string")},
			Hidden:   []string{"password"},
			Fillable: []string{"name", "email"},
			Mutators: map[string]map[string]string{MutatorSetter: {"email": "lowercase"}},
			Validates: map[string][]string{
				"email": {"required", "email"},
			},
			Messages: map[string]string{"required": "field is required"},
			Relations: []RelationMetadata{
				rel("profile", HasOne, "Profile", OptInverse, "owner"),
				rel("posts", HasMany, "Post", OptInverse, "author"),
			},
		},
		{
			Name:    "Profile",
			Columns: []ColumnMetadata{col("id", "primary"), col("bio", "text")},
		},
		{
			Name:    "Post",
			Columns: []ColumnMetadata{col("id", "primary"), col("title", "string")},
			Relations: []RelationMetadata{
				rel("tags", ManyToMany, "Tag", OptInverse, "posts"),
			},
		},
		{
			Name:    "Tag",
			Columns: []ColumnMetadata{col("id", "primary"), col("name", "string(32)")},
		},
		{
			Name:    "Comment",
			Columns: []ColumnMetadata{col("id", "bigPrimary"), col("body", "text")},
			Relations: []RelationMetadata{
				rel("post", BelongsTo, "Post", OptInverse, "comments"),
			},
		},
	}
}

func newTestBuilder(t *testing.T, cfg Config, classes ...*ClassMetadata) (*Builder, *dbal.Manager) {
	t.Helper()
	m := dbal.NewManager()
	b, err := NewBuilder(cfg, NewStaticDiscovery(classes...), m)
	require.NoError(t, err)
	return b, m
}

type recordingApplier struct {
	saved  []string
	failOn string
}

func (a *recordingApplier) Apply(_ context.Context, table *dbal.TableSchema) error {
	if table.Name() == a.failOn {
		return fmt.Errorf("relation %q could not be created", table.Name())
	}
	a.saved = append(a.saved, table.Name())
	return nil
}

func (a *recordingApplier) Plan(_ context.Context, table *dbal.TableSchema) ([]string, error) {
	return []string{"CREATE TABLE " + table.Name()}, nil
}

func tableNames(tables []*dbal.TableSchema) []string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name()
	}
	return names
}
