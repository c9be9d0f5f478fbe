// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads the database settings of a record store from a YAML
// file, an optional .env file and the environment.
//
// A configuration file holds a single "store" section:
//
//	store:
//	  driver: mysql
//	  user: app
//	  password: secret
//	  database: app
//	  host: db.internal
//	  port: 3306
//	  max_connections: 1000
//
// Environment variables SQLRECORD_DRIVER, SQLRECORD_USER, SQLRECORD_PASSWORD,
// SQLRECORD_DATABASE, SQLRECORD_HOST, SQLRECORD_PORT and
// SQLRECORD_MAX_CONNECTIONS override the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrNotConfigured is returned when neither the configuration file nor the
// environment configure a store.
var ErrNotConfigured = errors.New("no valid store configuration")

// DefaultMaxConnections is the pool capacity used when none is configured.
const DefaultMaxConnections = 1000

const envPrefix = "SQLRECORD_"

// Config holds the settings needed to open a connection pool.
type Config struct {
	Driver         string   `yaml:"driver"`
	User           string   `yaml:"user"`
	Password       string   `yaml:"password"`
	Database       string   `yaml:"database"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	MaxConnections int      `yaml:"max_connections"`
	SSLMode        string   `yaml:"sslmode"`
	DataDir        string   `yaml:"data_dir"`
	Cluster        []string `yaml:"cluster"`
}

type configFile struct {
	Store *Config `yaml:"store"`
}

// Load reads the configuration file at path, then applies the variables of
// the .env file in the working directory, if any, and of the environment.
// A missing file is not an error as long as the environment configures a
// store.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env file: %s", err)
	}
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cannot read configuration: %s", err)
		}
	}
	return load(data, os.LookupEnv)
}

// Parse reads a configuration from YAML data, without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return load(data, func(string) (string, bool) { return "", false })
}

func load(data []byte, lookupEnv func(string) (string, bool)) (*Config, error) {
	var f configFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("cannot parse configuration: %s", err)
	}
	cfg, err := applyEnv(f.Store, lookupEnv)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides cfg with the environment. A nil cfg is created when
// at least one variable is set.
func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) (*Config, error) {
	strs := []struct {
		name  string
		field func(*Config) *string
	}{
		{"DRIVER", func(c *Config) *string { return &c.Driver }},
		{"USER", func(c *Config) *string { return &c.User }},
		{"PASSWORD", func(c *Config) *string { return &c.Password }},
		{"DATABASE", func(c *Config) *string { return &c.Database }},
		{"HOST", func(c *Config) *string { return &c.Host }},
		{"SSLMODE", func(c *Config) *string { return &c.SSLMode }},
		{"DATA_DIR", func(c *Config) *string { return &c.DataDir }},
	}
	ints := []struct {
		name  string
		field func(*Config) *int
	}{
		{"PORT", func(c *Config) *int { return &c.Port }},
		{"MAX_CONNECTIONS", func(c *Config) *int { return &c.MaxConnections }},
	}
	ensure := func() {
		if cfg == nil {
			cfg = &Config{}
		}
	}
	for _, s := range strs {
		if v, ok := lookupEnv(envPrefix + s.name); ok {
			ensure()
			*s.field(cfg) = v
		}
	}
	for _, i := range ints {
		if v, ok := lookupEnv(envPrefix + i.name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s%s: %s", envPrefix, i.name, err)
			}
			ensure()
			*i.field(cfg) = n
		}
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = "mysql"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	switch c.Driver {
	case "mysql":
		if c.Port == 0 {
			c.Port = 3306
		}
	case "postgres":
		if c.Port == 0 {
			c.Port = 5432
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	}
	if c.Host == "" && c.Driver != "sqlite3" {
		c.Host = "localhost"
	}
}

// MemoryDatabase is the SQLite database name of a private in-memory database.
const MemoryDatabase = ":memory:"

// PoolSize returns the number of connections the pool may open. Every
// connection to a SQLite ":memory:" database sees its own empty database, so
// such a pool holds a single connection.
func (c *Config) PoolSize() int {
	if c.Driver == "sqlite3" && c.Database == MemoryDatabase {
		return 1
	}
	if c.MaxConnections <= 0 {
		return DefaultMaxConnections
	}
	return c.MaxConnections
}

// Validate checks that the configuration has what its driver needs.
func (c *Config) Validate() error {
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid configuration: negative max_connections")
	}
	switch c.Driver {
	case "mysql", "postgres":
		if c.Database == "" {
			return fmt.Errorf("invalid configuration: %s needs a database", c.Driver)
		}
		if c.User == "" {
			return fmt.Errorf("invalid configuration: %s needs a user", c.Driver)
		}
	case "sqlite3":
		if c.Database == "" {
			return fmt.Errorf("invalid configuration: sqlite3 needs a database")
		}
	case "dqlite":
		if c.DataDir == "" || c.Database == "" {
			return fmt.Errorf("invalid configuration: dqlite needs a data_dir and a database")
		}
	default:
		return fmt.Errorf("invalid configuration: unknown driver %q", c.Driver)
	}
	return nil
}

// DataSource returns the driver name and the data source name to open the
// configured database with.
func (c *Config) DataSource() (driverName, dataSourceName string, err error) {
	if err := c.Validate(); err != nil {
		return "", "", err
	}
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	switch c.Driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = c.Database
		mc.ParseTime = true
		return c.Driver, mc.FormatDSN(), nil
	case "postgres":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     addr,
			Path:     "/" + c.Database,
			RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
		}
		return c.Driver, u.String(), nil
	case "sqlite3":
		path := c.Database
		if c.DataDir != "" && path != MemoryDatabase {
			path = filepath.Join(c.DataDir, path)
		}
		return c.Driver, path, nil
	case "dqlite":
		q := url.Values{}
		if c.Host != "" && c.Port != 0 {
			q.Set("address", addr)
		}
		if len(c.Cluster) > 0 {
			q.Set("cluster", strings.Join(c.Cluster, ","))
		}
		dsn := filepath.Join(c.DataDir, c.Database)
		if len(q) > 0 {
			dsn += "?" + q.Encode()
		}
		return c.Driver, dsn, nil
	}
	return "", "", fmt.Errorf("invalid configuration: unknown driver %q", c.Driver)
}
