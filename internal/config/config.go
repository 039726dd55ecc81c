// Package config loads server settings from .env files and the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Snapshot backends.
const (
	SnapshotsSQLite = "sqlite"
	SnapshotsBadger = "badger"
	SnapshotsOff    = "off"
)

// Config holds the kdserver settings.
type Config struct {
	DBPath    string
	Listen    string
	APIBase   string
	Table     string
	IndexKind string

	Snapshots string
	BadgerDir string
	Changelog bool

	RedisHost string
	RedisPort string
	RedisPass string
	RedisDB   int
	CacheTTL  time.Duration
}

// RedisEnabled reports whether a redis host is configured.
func (c *Config) RedisEnabled() bool { return c.RedisHost != "" }

// RedisAddr returns host:port of the redis server.
func (c *Config) RedisAddr() string { return c.RedisHost + ":" + c.RedisPort }

// Load reads .env (and data/env/.env) when present, then the environment.
// Existing environment variables win over .env values.
func Load() *Config {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	c := &Config{
		DBPath:    getenv("KD_DB_PATH", "kd.sqlite"),
		Listen:    getenv("KD_LISTEN", ":8080"),
		APIBase:   strings.TrimRight(getenv("KD_API_BASE", "/api"), "/"),
		Table:     getenv("KD_TABLE", "kd_points"),
		IndexKind: strings.ToLower(getenv("KD_INDEX", "kd")),
		Snapshots: strings.ToLower(getenv("KD_SNAPSHOTS", SnapshotsSQLite)),
		BadgerDir: getenv("KD_BADGER_DIR", filepath.Join("data", "badger")),
		Changelog: os.Getenv("KD_CHANGELOG") == "true",
		RedisHost: os.Getenv("REDIS_HOST"),
		RedisPort: getenv("REDIS_PORT", "6379"),
		RedisPass: os.Getenv("REDIS_PASS"),
		CacheTTL:  60 * time.Second,
	}
	switch c.Snapshots {
	case SnapshotsSQLite, SnapshotsBadger, SnapshotsOff:
	default:
		c.Snapshots = SnapshotsSQLite
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("KD_CACHE_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.CacheTTL = time.Duration(n) * time.Second
		}
	}
	return c
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
