package dbal

import (
	"context"
	"errors"
	"testing"

	"ariga.io/atlas/sql/schema"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	applied []string
	err     error
	plan    []string
}

func (f *fakeApplier) Apply(_ context.Context, table *TableSchema) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, table.Key())
	return nil
}

func (f *fakeApplier) Plan(_ context.Context, table *TableSchema) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.plan, nil
}

func postsTable(db *Database) *TableSchema {
	tbl := db.Table("posts").Schema()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(tbl.Column("id").SetType("primary"))
	must(tbl.Column("title").SetType("string(120)"))
	must(tbl.Column("user_id").SetType("integer"))
	must(tbl.Column("parent_id").SetType("integer"))
	tbl.Column("parent_id").Nullable(true)
	tbl.SetPrimaryKey("id")
	tbl.Index("user_id")
	tbl.ForeignKey("user_id").References("users", "id").OnDelete(Cascade)
	tbl.ForeignKey("parent_id").References("posts", "id").OnDelete(SetNull)
	return tbl
}

func TestTableSchema_Declarations(t *testing.T) {
	m := NewManager()
	tbl := postsTable(m.Database("default"))

	assert.Equal(t, "posts", tbl.Name())
	assert.Equal(t, "default", tbl.Database())
	assert.Equal(t, "default/posts", tbl.Key())
	assert.Equal(t, []string{"id"}, tbl.PrimaryKey())
	assert.True(t, tbl.HasColumn("title"))
	assert.False(t, tbl.HasColumn("body"))
	assert.Len(t, tbl.Columns(), 4)

	t.Run("column lookup is get-or-create", func(t *testing.T) {
		assert.Same(t, tbl.Column("title"), tbl.Column("title"))
		assert.Equal(t, 120, tbl.Column("title").Type().Size)
		assert.True(t, tbl.Column("parent_id").IsNullable())
	})

	t.Run("index lookup is get-or-create", func(t *testing.T) {
		idx := tbl.Index("user_id")
		assert.Same(t, idx, tbl.Index("user_id"))
		assert.Len(t, tbl.Indexes(), 1)
		assert.Equal(t, "posts_index_user_id", idx.Name())
		assert.False(t, idx.IsUnique())
	})

	t.Run("foreign key defaults", func(t *testing.T) {
		fk := tbl.ForeignKey("user_id")
		assert.Equal(t, "users", fk.RefTable())
		assert.Equal(t, "id", fk.RefColumn())
		assert.Equal(t, Cascade, fk.DeleteRule())
		assert.Equal(t, NoAction, fk.UpdateRule())
		assert.Equal(t, "posts_foreign_user_id", fk.Name())
	})

	t.Run("invalid type", func(t *testing.T) {
		err := tbl.Column("body").SetType("blob")
		assert.True(t, errors.Is(err, ErrInvalidType))
		assert.False(t, tbl.Column("body").Declared())
	})
}

func TestTableSchema_Dependencies(t *testing.T) {
	tbl := NewManager().Database("default").Table("comments").Schema()
	tbl.ForeignKey("post_id").References("posts", "id")
	tbl.ForeignKey("author_id").References("users", "id")
	tbl.ForeignKey("editor_id").References("users", "id")
	tbl.ForeignKey("reply_to").References("comments", "id")

	assert.Equal(t, []string{"posts", "users"}, tbl.Dependencies())
}

func TestTableSchema_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("not connected", func(t *testing.T) {
		tbl := NewManager().Database("default").Table("users").Schema()
		err := tbl.Save(ctx)
		assert.True(t, errors.Is(err, ErrNotConnected))

		_, err = tbl.Plan(ctx)
		assert.True(t, errors.Is(err, ErrNotConnected))
	})

	t.Run("applies through connected database", func(t *testing.T) {
		m := NewManager()
		applier := &fakeApplier{plan: []string{"CREATE TABLE posts"}}
		m.Connect("default", applier)

		tbl := postsTable(m.Database("default"))
		require.NoError(t, tbl.Save(ctx))
		assert.Equal(t, []string{"default/posts"}, applier.applied)

		stmts, err := tbl.Plan(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"CREATE TABLE posts"}, stmts)
	})

	t.Run("driver errors are classified", func(t *testing.T) {
		m := NewManager()
		m.Connect("default", &fakeApplier{err: &pq.Error{Code: "42P07", Message: "relation exists"}})

		err := postsTable(m.Database("default")).Save(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDuplicateObject))

		var dbalErr *Error
		require.True(t, errors.As(err, &dbalErr))
		assert.Equal(t, "save", dbalErr.Op)
		assert.Equal(t, "posts", dbalErr.Table)
		assert.Equal(t, "42P07", dbalErr.Code)
	})
}

func TestTableSchema_Atlas(t *testing.T) {
	tbl := postsTable(NewManager().Database("default"))
	tbl.Column("title").Default("'untitled'")
	tbl.Index("title", "user_id").Unique(true)

	at, err := tbl.Atlas("public")
	require.NoError(t, err)

	assert.Equal(t, "posts", at.Name)
	assert.Equal(t, "public", at.Schema.Name)
	require.Len(t, at.Columns, 4)
	assert.True(t, at.Columns[3].Type.Null)
	assert.Equal(t, &schema.RawExpr{X: "'untitled'"}, at.Columns[1].Default)

	require.NotNil(t, at.PrimaryKey)
	require.Len(t, at.PrimaryKey.Parts, 1)
	assert.Equal(t, "id", at.PrimaryKey.Parts[0].C.Name)

	require.Len(t, at.Indexes, 2)
	assert.False(t, at.Indexes[0].Unique)
	assert.True(t, at.Indexes[1].Unique)
	assert.Len(t, at.Indexes[1].Parts, 2)

	require.Len(t, at.ForeignKeys, 2)
	assert.Equal(t, "users", at.ForeignKeys[0].RefTable.Name)
	assert.Equal(t, schema.Cascade, at.ForeignKeys[0].OnDelete)
	assert.Same(t, at, at.ForeignKeys[1].RefTable)
	assert.Equal(t, schema.SetNull, at.ForeignKeys[1].OnDelete)

	t.Run("undeclared column type", func(t *testing.T) {
		broken := NewManager().Database("default").Table("broken").Schema()
		broken.Column("x")
		_, err := broken.Atlas("public")
		assert.True(t, errors.Is(err, ErrInvalidType))
	})

	t.Run("index on missing column", func(t *testing.T) {
		broken := NewManager().Database("default").Table("broken").Schema()
		broken.Index("missing")
		_, err := broken.Atlas("public")
		assert.True(t, errors.Is(err, ErrUndefinedObject))
	})
}

func TestManager(t *testing.T) {
	m := NewManager()
	assert.Same(t, m.Database("a"), m.Database("a"))
	assert.False(t, m.Database("a").Connected())

	m.Connect("b", &fakeApplier{})
	assert.True(t, m.Database("b").Connected())
	assert.Equal(t, []string{"a", "b"}, m.Databases())

	first := m.Database("a").Table("users").Schema()
	first.Column("id")
	second := m.Database("a").Table("users").Schema()
	assert.False(t, second.HasColumn("id"))
}
