// Package snowflake reads cycle inputs from the marketing warehouse in
// Snowflake. It mirrors the Postgres reader table for table.
package snowflake

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/ignite/perf-brain/internal/config"
)

// Config holds the warehouse coordinates.
type Config struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
}

// FromAppConfig resolves the connection settings. A connection string, when
// set, supplies the fields it carries; explicit settings fill the rest.
func FromAppConfig(c config.SnowflakeConfig) Config {
	cfg := Config{}
	if c.ConnectionString != "" {
		cfg = ParseConnectionString(c.ConnectionString)
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&cfg.Account, c.Account)
	fill(&cfg.User, c.User)
	fill(&cfg.Password, c.Password)
	fill(&cfg.Database, c.Database)
	fill(&cfg.Schema, c.Schema)
	fill(&cfg.Warehouse, c.Warehouse)
	return cfg
}

// ParseConnectionString extracts components from a connection string of
// the form ACCOUNT=xxx;USER=zzz;PASSWORD=www;DB=database.schema;WAREHOUSE=w
func ParseConnectionString(connStr string) Config {
	parts := make(map[string]string)
	for _, kv := range strings.Split(connStr, ";") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		parts[strings.ToUpper(key)] = value
	}
	database, schema, _ := strings.Cut(parts["DB"], ".")
	return Config{
		Account:   parts["ACCOUNT"],
		User:      parts["USER"],
		Password:  parts["PASSWORD"],
		Database:  database,
		Schema:    schema,
		Warehouse: parts["WAREHOUSE"],
	}
}

// DSN renders cfg as a gosnowflake data source name:
// user:password@account/database/schema?warehouse=xxx
func (cfg Config) DSN() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", cfg.User, cfg.Password, cfg.Account, cfg.Database, cfg.Schema)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}
	return dsn
}

// Open opens a pooled connection to the warehouse.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("snowflake", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}
