package dbal

import (
	"context"
	"fmt"
	"time"

	"github.com/eleven-am/squall/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DBConfig holds connection settings for one database.
type DBConfig struct {
	URL              string
	Schema           string
	ConnMaxLifetime  time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
	StatementTimeout time.Duration
}

func NewDBConfig(url string) *DBConfig {
	return &DBConfig{
		URL:              url,
		Schema:           "public",
		ConnMaxLifetime:  10 * time.Minute,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		StatementTimeout: 300 * time.Second,
	}
}

func (cfg *DBConfig) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, ParsePostgreSQLError(err, "connect", "", "")
	}

	if cfg.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET statement_timeout = '%ds'", int(cfg.StatementTimeout.Seconds()))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set statement timeout: %w", err)
		}
	}

	return db, nil
}

// ConnectAll opens every configured database and binds an atlas applier for
// each into m. The returned closer releases all connections.
func ConnectAll(ctx context.Context, m *Manager, configs map[string]*DBConfig) (map[string]*sqlx.DB, func(), error) {
	opened := make(map[string]*sqlx.DB, len(configs))
	closeAll := func() {
		for name, db := range opened {
			if err := db.Close(); err != nil {
				logger.DB().Warn("Failed to close connection", "database", name, "error", err)
			}
		}
	}

	for name, cfg := range configs {
		db, err := cfg.Connect(ctx)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("database %s: %w", name, err)
		}
		opened[name] = db
		logger.DB().Debug("Connected", "database", name, "schema", cfg.Schema, "max_open", cfg.MaxOpenConns)

		applier, err := NewAtlasApplier(db.DB, cfg.Schema)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("database %s: %w", name, err)
		}
		m.Connect(name, applier)
	}

	return opened, closeAll, nil
}
