package schema

import (
	"testing"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitySchema_CastRelations(t *testing.T) {
	b, _ := newTestBuilder(t, Config{}, blogClasses()...)
	user := b.Entity("User")

	before := user.Relations()
	require.NoError(t, user.CastRelations())
	after := user.Relations()
	require.Len(t, after, len(before), "second cast is a no-op")
	for i := range before {
		assert.Same(t, before[i], after[i])
	}
	assert.True(t, user.HasBackReferences())
	assert.False(t, b.Entity("Profile").HasBackReferences())

	names := make([]string, 0)
	for _, r := range b.Entity("Post").Relations() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"tags", "comments", "author"}, names, "declared relations first, inverses after")
}

func TestEntitySchema_Inheritance(t *testing.T) {
	classes := []*ClassMetadata{
		{
			Name:     "Base",
			Abstract: true,
			Columns:  []ColumnMetadata{col("id", "primary"), col("created_at", "datetime")},
			Hidden:   []string{"created_at"},
			Relations: []RelationMetadata{
				rel("creator", BelongsTo, "Person"),
			},
		},
		{
			Name:     "Note",
			Parent:   "Base",
			Columns:  []ColumnMetadata{col("body", "text"), col("created_at", "timestamp")},
			Hidden:   []string{"body", "created_at"},
			Database: "notes",
		},
		{Name: "Person", Columns: []ColumnMetadata{col("id", "primary")}, Passive: true},
	}
	b, _ := newTestBuilder(t, Config{}, classes...)

	note := b.Entity("Note")
	require.NotNil(t, note)
	assert.Equal(t, "notes", note.Table())
	assert.Equal(t, "notes", note.Database())
	assert.Equal(t, "Base", note.Parent())
	assert.Equal(t, "id", note.PrimaryKey())
	assert.Equal(t, []string{"body", "created_at"}, note.Hidden())

	createdAt, ok := note.Column("created_at")
	require.True(t, ok)
	assert.Equal(t, dbal.TypeTimestamp, createdAt.Type.Name, "child declaration overrides the parent")
	assert.Len(t, note.Columns(), 3)

	require.NotNil(t, note.Relation("creator"), "relations are inherited")
	assert.Nil(t, b.Entity("Base").Relation("creator"), "abstract entities are never cast")
	assert.False(t, b.Entity("Person").IsActiveSchema())

	t.Run("inheritance loop", func(t *testing.T) {
		_, err := NewBuilder(Config{}, NewStaticDiscovery(
			&ClassMetadata{Name: "A", Parent: "B"},
			&ClassMetadata{Name: "B", Parent: "A"},
		), dbal.NewManager())
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("unknown parent", func(t *testing.T) {
		_, err := NewBuilder(Config{}, NewStaticDiscovery(&ClassMetadata{Name: "A", Parent: "Missing"}), dbal.NewManager())
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("invalid column type", func(t *testing.T) {
		_, err := NewBuilder(Config{}, NewStaticDiscovery(&ClassMetadata{Name: "A", Columns: []ColumnMetadata{col("x", "varchar")}}), dbal.NewManager())
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("marker parent", func(t *testing.T) {
		b, _ := newTestBuilder(t, Config{}, &ClassMetadata{Name: "Item", Parent: EntityMarker, Columns: []ColumnMetadata{col("id", "primary")}})
		assert.Equal(t, "items", b.Entity("Item").Table())
	})
}
