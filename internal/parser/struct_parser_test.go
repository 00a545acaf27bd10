package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/eleven-am/squall/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogModels = `
package models

import (
	"time"

	"github.com/eleven-am/squall/pkg/squall"
)

type User struct {
	squall.Entity ` + "`" + `squall:"table:users;message:required=field is required"` + "`" + `

	ID        int       ` + "`" + `squall:"primary"` + "`" + `
	Name      string    ` + "`" + `squall:"type:string(64);fillable"` + "`" + `
	Email     string    ` + "`" + `squall:"fillable;unique;setter:lowercase;validate:required,email"` + "`" + `
	Password  string    ` + "`" + `squall:"hidden;secured"` + "`" + `
	Bio       *string   ` + "`" + `squall:"type:text"` + "`" + `
	CreatedAt time.Time
	internal  string

	Posts   []*Post  ` + "`" + `squall:"relation:has_many;inverse:author"` + "`" + `
	Profile *Profile ` + "`" + `squall:"relation:has_one;inverse:owner"` + "`" + `
}

type Profile struct {
	squall.Entity

	ID      int64  ` + "`" + `squall:"primary"` + "`" + `
	Website string ` + "`" + `squall:"column:site_url;nullable"` + "`" + `
}

type Record struct {
	squall.Entity ` + "`" + `squall:"abstract"` + "`" + `

	ID int ` + "`" + `squall:"primary"` + "`" + `
}

type Post struct {
	Record ` + "`" + `squall:"database:content"` + "`" + `

	Title string ` + "`" + `squall:"type:string(128)"` + "`" + `
	Skip  string ` + "`" + `squall:"-"` + "`" + `
}

// Not an entity
type Options struct {
	Verbose bool
}
`

func writeModels(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestToSnakeCase(t *testing.T) {
	parser := NewStructParser()

	tests := []struct {
		input    string
		expected string
	}{
		{"ID", "id"},
		{"UserID", "user_id"},
		{"APIKey", "api_key"},
		{"HTTPRequest", "http_request"},
		{"CreatedAt", "created_at"},
		{"TeamID42", "team_id42"},
		{"lowercase", "lowercase"},
		{"APIKeyID", "api_key_id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parser.toSnakeCase(tt.input))
		})
	}
}

func TestStructParser_ParseFile(t *testing.T) {
	dir := writeModels(t, map[string]string{"models.go": blogModels})

	structs, err := NewStructParser().ParseFile(filepath.Join(dir, "models.go"))
	require.NoError(t, err)
	require.Len(t, structs, 5)

	user := structs[0]
	assert.Equal(t, "User", user.Name)
	assert.True(t, user.IsMarked)
	assert.Equal(t, "users", user.Entity["table"])

	names := make([]string, 0)
	for _, f := range user.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"ID", "Name", "Email", "Password", "Bio", "CreatedAt", "Posts", "Profile"}, names, "unexported fields are skipped")

	posts := user.Fields[6]
	assert.Equal(t, "Post", posts.Type)
	assert.True(t, posts.IsArray)
	assert.True(t, posts.IsPointer)

	post := structs[3]
	require.Len(t, post.Embeds, 1)
	assert.Equal(t, "Record", post.Embeds[0].Type)
	assert.Len(t, post.Fields, 1, "fields tagged - are skipped")
}

func TestDiscovery_ClassesImplementing(t *testing.T) {
	dir := writeModels(t, map[string]string{
		"models.go":      blogModels,
		"models_test.go": "package models\n\ntype Ignored struct{ squall.Entity }\n",
	})

	classes, err := NewDiscovery(dir).ClassesImplementing(schema.EntityMarker)
	require.NoError(t, err)
	require.Len(t, classes, 4)
	assert.NotContains(t, classes, "Options")
	assert.NotContains(t, classes, "Ignored")

	user := classes["User"]
	assert.Equal(t, schema.EntityMarker, user.Parent)
	assert.Equal(t, "users", user.Table)
	assert.Equal(t, []string{"name", "email"}, user.Fillable)
	assert.Equal(t, []string{"password"}, user.Hidden)
	assert.Equal(t, []string{"password"}, user.Secured)
	assert.Equal(t, []string{"required", "email"}, user.Validates["email"])
	assert.Equal(t, "lowercase", user.Mutators[schema.MutatorSetter]["email"])
	assert.Equal(t, "field is required", user.Messages["required"])
	assert.Equal(t, []schema.IndexMetadata{{Columns: []string{"email"}, Unique: true}}, user.Indexes)

	columns := make(map[string]schema.ColumnMetadata)
	for _, c := range user.Columns {
		columns[c.Name] = c
	}
	assert.Equal(t, dbal.TypePrimary, columns["id"].Type)
	assert.True(t, columns["id"].Primary)
	assert.Equal(t, "string(64)", columns["name"].Type)
	assert.Equal(t, dbal.TypeString, columns["email"].Type)
	assert.True(t, columns["bio"].Nullable, "pointer fields are nullable")
	assert.Equal(t, dbal.TypeDatetime, columns["created_at"].Type)

	require.Len(t, user.Relations, 2)
	assert.Equal(t, "posts", user.Relations[0].Name)
	assert.Equal(t, schema.HasMany, user.Relations[0].Definition.Type)
	assert.Equal(t, "Post", user.Relations[0].Definition.Target)
	assert.Equal(t, "author", user.Relations[0].Definition.Option(schema.OptInverse, ""))

	profile := classes["Profile"]
	require.Len(t, profile.Columns, 2)
	assert.Equal(t, dbal.TypeBigPrimary, profile.Columns[0].Type)
	assert.Equal(t, "site_url", profile.Columns[1].Name)

	assert.True(t, classes["Record"].Abstract)
	post := classes["Post"]
	assert.Equal(t, "Record", post.Parent)
	assert.Equal(t, "content", post.Database)
}

func TestDiscovery_Errors(t *testing.T) {
	t.Run("unknown attribute", func(t *testing.T) {
		dir := writeModels(t, map[string]string{"a.go": "package a\n\ntype A struct {\n\tsquall.Entity\n\tName string `squall:\"size:10\"`\n}\n"})
		_, err := NewDiscovery(dir).ClassesImplementing(schema.EntityMarker)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entity A")
	})

	t.Run("uninferable type", func(t *testing.T) {
		dir := writeModels(t, map[string]string{"a.go": "package a\n\ntype A struct {\n\tsquall.Entity\n\tCh chan int\n}\n"})
		_, err := NewDiscovery(dir).ClassesImplementing(schema.EntityMarker)
		require.Error(t, err)
	})

	t.Run("syntax error", func(t *testing.T) {
		dir := writeModels(t, map[string]string{"a.go": "package a\n\ntype A struct {"})
		_, err := NewDiscovery(dir).ClassesImplementing(schema.EntityMarker)
		require.Error(t, err)
	})

	t.Run("duplicate struct", func(t *testing.T) {
		dir := writeModels(t, map[string]string{
			"a.go": "package a\n\ntype A struct{ squall.Entity }\n",
			"b.go": "package a\n\ntype A struct{ squall.Entity }\n",
		})
		_, err := NewDiscovery(dir).ClassesImplementing(schema.EntityMarker)
		require.Error(t, err)
	})
}

func TestDiscovery_RelationTarget(t *testing.T) {
	src := "package a\n\n" +
		"type Image struct {\n" +
		"\tsquall.Entity\n" +
		"\tID        int           `squall:\"primary\"`\n" +
		"\tImageable squall.Entity `squall:\"relation:belongs_to_morphed;candidates:Post\"`\n" +
		"\tPost      *Post         `squall:\"relation:belongs_to\"`\n" +
		"\tCover     *Image        `squall:\"relation:has_one;target:Poster\"`\n" +
		"}\n\n" +
		"type Post struct {\n" +
		"\tsquall.Entity\n" +
		"\tID int `squall:\"primary\"`\n" +
		"}\n"
	dir := writeModels(t, map[string]string{"a.go": src})

	classes, err := NewDiscovery(dir).ClassesImplementing(schema.EntityMarker)
	require.NoError(t, err)

	targets := make(map[string]string)
	for _, rel := range classes["Image"].Relations {
		targets[rel.Name] = rel.Definition.Target
	}
	assert.Equal(t, map[string]string{"imageable": "", "post": "Post", "cover": "Poster"}, targets)
}

func TestDiscovery_BuildsSchema(t *testing.T) {
	dir := writeModels(t, map[string]string{"models.go": blogModels})

	b, err := schema.NewBuilder(schema.Config{}, NewDiscovery(dir), dbal.NewManager())
	require.NoError(t, err)

	profile := b.Entity("Profile")
	require.NotNil(t, profile)
	owner := profile.Relation("owner")
	require.NotNil(t, owner, "has_one declares its inverse on the target")
	assert.Equal(t, schema.BelongsTo, owner.Type())

	post := b.Entity("Post")
	assert.Equal(t, "posts", post.Table())
	assert.Equal(t, "content", post.Database())
	require.NotNil(t, post.Relation("author"))
}
