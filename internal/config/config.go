// Package config loads squall.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/eleven-am/squall/internal/dbal"
	"github.com/eleven-am/squall/internal/schema"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config path.
const EnvConfigPath = "SQUALL_CONFIG"

var locations = []string{"squall.yaml", "squall.yml", ".squall.yaml", ".squall.yml"}

// Config represents the squall.yaml configuration structure
type Config struct {
	Version string `yaml:"version"`
	Project string `yaml:"project"`

	DefaultDatabase string               `yaml:"default_database"`
	Databases       map[string]*Database `yaml:"databases"`

	Models struct {
		Package     string   `yaml:"package"`
		Directories []string `yaml:"directories,omitempty"`
	} `yaml:"models"`

	// Mutators maps an abstract column type to kind:handler ids.
	Mutators map[string][]string `yaml:"mutators,omitempty"`

	Export struct {
		Format string `yaml:"format"`
		Output string `yaml:"output,omitempty"`
	} `yaml:"export"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Database holds connection settings for one named database.
type Database struct {
	Driver           string        `yaml:"driver"`
	URL              string        `yaml:"url"`
	Schema           string        `yaml:"schema"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DefaultDatabase == "" {
		c.DefaultDatabase = "default"
	}
	if c.Databases == nil {
		c.Databases = make(map[string]*Database)
	}
	for name, db := range c.Databases {
		if db == nil {
			db = &Database{}
			c.Databases[name] = db
		}
		db.applyDefaults()
	}
	if c.Models.Package == "" {
		c.Models.Package = "./models"
	}
	if c.Export.Format == "" {
		c.Export.Format = schema.FormatJSON
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// NewDatabase returns a database entry for url with the defaults applied.
func NewDatabase(url string) *Database {
	db := &Database{URL: url}
	db.applyDefaults()
	return db
}

func (d *Database) applyDefaults() {
	defaults := dbal.NewDBConfig(d.URL)
	if d.Driver == "" {
		d.Driver = "postgres"
	}
	if d.Schema == "" {
		d.Schema = defaults.Schema
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = defaults.MaxOpenConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaults.MaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if d.StatementTimeout == 0 {
		d.StatementTimeout = defaults.StatementTimeout
	}
}

// Load reads the configuration at path, or the discovered one when path is
// empty. A missing discovered file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Path returns SQUALL_CONFIG or the first config file found in the working
// directory.
func Path() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Save writes the configuration as YAML.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = locations[0]
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values the loaders depend on.
func (c *Config) Validate() error {
	for _, name := range c.DatabaseNames() {
		if driver := c.Databases[name].Driver; driver != "postgres" {
			return fmt.Errorf("database %s: unsupported driver %q", name, driver)
		}
	}
	for typ, ids := range c.Mutators {
		for _, id := range ids {
			if _, err := schema.ParseMutator(id); err != nil {
				return fmt.Errorf("mutators for %s: %w", typ, err)
			}
		}
	}
	switch c.Export.Format {
	case schema.FormatJSON, schema.FormatYAML, schema.FormatMsgpack:
	default:
		return fmt.Errorf("unknown export format %q", c.Export.Format)
	}
	return nil
}

// DatabaseNames returns the configured database names in sorted order.
func (c *Config) DatabaseNames() []string {
	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaConfig returns the builder configuration.
func (c *Config) SchemaConfig() schema.Config {
	return schema.Config{DefaultDatabase: c.DefaultDatabase, Mutators: c.Mutators}
}

// ModelDirectories returns the directories scanned for entities.
func (c *Config) ModelDirectories() []string {
	if len(c.Models.Directories) > 0 {
		return c.Models.Directories
	}
	return []string{c.Models.Package}
}

// DBConfigs returns connection settings for every database with a URL. When
// url is set it overrides the default database's URL.
func (c *Config) DBConfigs(url string) map[string]*dbal.DBConfig {
	out := make(map[string]*dbal.DBConfig)
	for name, db := range c.Databases {
		if db.URL == "" {
			continue
		}
		out[name] = db.DBConfig()
	}
	if url != "" {
		db, ok := c.Databases[c.DefaultDatabase]
		if !ok {
			db = &Database{}
			db.applyDefaults()
		}
		cfg := db.DBConfig()
		cfg.URL = url
		out[c.DefaultDatabase] = cfg
	}
	return out
}

// DBConfig converts the settings into a dbal connection config.
func (d *Database) DBConfig() *dbal.DBConfig {
	return &dbal.DBConfig{
		URL:              d.URL,
		Schema:           d.Schema,
		ConnMaxLifetime:  d.ConnMaxLifetime,
		MaxOpenConns:     d.MaxOpenConns,
		MaxIdleConns:     d.MaxIdleConns,
		StatementTimeout: d.StatementTimeout,
	}
}
