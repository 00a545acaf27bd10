package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eleven-am/squall/internal/schema"
	"github.com/eleven-am/squall/internal/selector"
	"github.com/eleven-am/squall/pkg/squall"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const models = "package models\n\n" +
	"type User struct {\n" +
	"\tsquall.Entity\n" +
	"\tID    int    `squall:\"primary\"`\n" +
	"\tName  string `squall:\"type:string(64)\"`\n" +
	"\tPosts []*Post `squall:\"relation:has_many;inverse:author\"`\n" +
	"}\n\n" +
	"type Post struct {\n" +
	"\tsquall.Entity\n" +
	"\tID    int    `squall:\"primary\"`\n" +
	"\tTitle string\n" +
	"}\n"

// project writes a model package and a config pointing at it.
func project(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	modelDir := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(modelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "models.go"), []byte(models), 0o644))

	cfg := "models:\n  directories: [" + modelDir + "]\nlogging:\n  level: silent\n" + extra
	path := filepath.Join(dir, "squall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "squall", cmd.Use)
	assert.Equal(t, squall.Version, cmd.Version)

	for _, name := range []string{"init", "schema", "select", "version"} {
		found, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
	for _, name := range []string{"export", "tables", "migrate"} {
		found, _, err := cmd.Find([]string{"schema", name})
		require.NoError(t, err, name)
		assert.Equal(t, name, found.Name())
	}
	for _, flag := range []string{"config", "url", "debug", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Squall "+squall.Version+" (go"), out)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "squall.yaml")

	out, err := run(t, "--config", path, "init", "--project", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Created "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "project: demo")

	_, err = run(t, "--config", path, "init")
	assert.Error(t, err, "existing config is kept")

	_, err = run(t, "--config", path, "init", "--force")
	assert.NoError(t, err)
}

func TestSchemaExport(t *testing.T) {
	path := project(t, "")

	out, err := run(t, "--config", path, "schema", "export")
	require.NoError(t, err)

	n, err := schema.DecodeNormalized(strings.NewReader(out), schema.FormatJSON)
	require.NoError(t, err)
	require.Contains(t, n, "User")
	assert.Equal(t, "users", n["User"].Table)
	assert.Equal(t, schema.BelongsTo, n["Post"].Relations["author"].Type)

	file := filepath.Join(t.TempDir(), "schema.yaml")
	_, err = run(t, "--config", path, "schema", "export", "--format", "yaml", "-o", file)
	require.NoError(t, err)

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	n, err = schema.DecodeNormalized(f, schema.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "posts", n["Post"].Table)

	_, err = run(t, "--config", path, "schema", "export", "--format", "xml")
	assert.Error(t, err)
}

func TestSchemaTables(t *testing.T) {
	path := project(t, "")

	out, err := run(t, "--config", path, "schema", "tables")
	require.NoError(t, err)
	assert.Equal(t, "default/users\ndefault/posts -> users\n", out)

	out, err = run(t, "--config", path, "schema", "tables", "--cascade=false")
	require.NoError(t, err)
	assert.Equal(t, "default/posts -> users\ndefault/users\n", out)
}

func TestSchemaMigrate_NoDatabase(t *testing.T) {
	path := project(t, "")

	_, err := run(t, "--config", path, "schema", "migrate", "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database configured")
}

type fakeRunner struct {
	stmts    []string
	err      error
	executed bool
}

func (f *fakeRunner) ExecuteSchema(context.Context) error {
	f.executed = true
	return f.err
}

func (f *fakeRunner) PlanSchema(context.Context) ([]string, error) {
	return f.stmts, f.err
}

func TestMigrate(t *testing.T) {
	newCmd := func() (*cobra.Command, *bytes.Buffer) {
		var out bytes.Buffer
		cmd := &cobra.Command{}
		cmd.SetOut(&out)
		return cmd, &out
	}
	t.Cleanup(func() { dryRun = false })

	t.Run("dry run prints the plan", func(t *testing.T) {
		dryRun = true
		cmd, out := newCmd()
		runner := &fakeRunner{stmts: []string{`CREATE TABLE "users" ("id" serial NOT NULL);`}}
		require.NoError(t, migrate(context.Background(), cmd, runner))
		assert.Equal(t, "CREATE TABLE \"users\" (\"id\" serial NOT NULL);\n", out.String())
		assert.False(t, runner.executed)
	})

	t.Run("dry run with nothing to do", func(t *testing.T) {
		dryRun = true
		cmd, out := newCmd()
		require.NoError(t, migrate(context.Background(), cmd, &fakeRunner{}))
		assert.Contains(t, out.String(), "up to date")
	})

	t.Run("apply", func(t *testing.T) {
		dryRun = false
		cmd, out := newCmd()
		runner := &fakeRunner{}
		require.NoError(t, migrate(context.Background(), cmd, runner))
		assert.True(t, runner.executed)
		assert.Contains(t, out.String(), "Schema applied")
	})

	t.Run("failure", func(t *testing.T) {
		dryRun = false
		cmd, _ := newCmd()
		boom := errors.New("boom")
		err := migrate(context.Background(), cmd, &fakeRunner{err: boom})
		assert.True(t, errors.Is(err, boom))
	})
}

func TestSelectCommand(t *testing.T) {
	path := project(t, "")

	out, err := run(t, "--config", path, "select", "User", "--inload", "posts", "--sql")
	require.NoError(t, err)
	assert.Contains(t, out, "FROM users LEFT JOIN posts AS users_posts ON users_posts.user_id = users.id")

	_, err = run(t, "--config", path, "select", "Nobody", "--sql")
	assert.True(t, errors.Is(err, selector.ErrUnknownEntity))

	_, err = run(t, "--config", path, "select", "User", "--with", "friends", "--sql")
	assert.True(t, errors.Is(err, selector.ErrUnknownRelation))

	_, err = run(t, "--config", path, "select", "User")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database configured")
}
