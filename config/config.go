/*
config.go - Runtime configuration and logging

PURPOSE:
  Reads server settings from defaults, an optional .env file and the
  environment (viper), and builds the zap logger used across the service.

ENVIRONMENT:
  PORT             HTTP port (8080)
  STORE_BACKEND    memory | sqlite | redis (sqlite)
  DB_PATH          SQLite path, ":memory:" allowed (ledger.db)
  REDIS_ADDR       host:port (localhost:6379)
  REDIS_PASSWORD   ("")
  REDIS_DB         (0)
  REDIS_PREFIX     key namespace (ledger)
  DATE_ORDER       DMY | MDY for non-ISO dates (DMY)
  WEEK_START       weekday name (Monday)
  TIMEZONE         IANA zone for calendar windows (UTC)
  REPORT_SCHEDULE  cron spec for report snapshots, "" disables (0 1 * * *)
  LOG_LEVEL        debug | info | warn | error (info)
  CORS_ORIGINS     comma-separated origins
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/billing-ledger/ledger"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	Port         int
	StoreBackend string
	DBPath       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	DateOrder ledger.DateOrder
	WeekStart time.Weekday
	Location  *time.Location

	ReportSchedule string
	LogLevel       string
	CORSOrigins    []string
}

// envBindings maps config keys to their environment variable names.
var envBindings = []struct{ key, env string }{
	{"port", "PORT"},
	{"store.backend", "STORE_BACKEND"},
	{"store.db_path", "DB_PATH"},
	{"redis.addr", "REDIS_ADDR"},
	{"redis.password", "REDIS_PASSWORD"},
	{"redis.db", "REDIS_DB"},
	{"redis.prefix", "REDIS_PREFIX"},
	{"ledger.date_order", "DATE_ORDER"},
	{"ledger.week_start", "WEEK_START"},
	{"ledger.timezone", "TIMEZONE"},
	{"reports.schedule", "REPORT_SCHEDULE"},
	{"log.level", "LOG_LEVEL"},
	{"cors.origins", "CORS_ORIGINS"},
}

// NewViper returns a viper instance with defaults and env bindings set.
// An empty variable counts as set, so REPORT_SCHEDULE= disables snapshots.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AllowEmptyEnv(true)

	v.SetDefault("port", 8080)
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.db_path", "ledger.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ledger")
	v.SetDefault("ledger.date_order", string(ledger.OrderDMY))
	v.SetDefault("ledger.week_start", "Monday")
	v.SetDefault("ledger.timezone", "UTC")
	v.SetDefault("reports.schedule", "0 1 * * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("cors.origins", "http://localhost:5173,http://localhost:8080")

	for _, b := range envBindings {
		v.BindEnv(b.key, b.env)
	}

	return v
}

// ReadEnvFile loads a .env file. Its values replace the defaults; the real
// environment still takes precedence.
func ReadEnvFile(v *viper.Viper, path string) error {
	fv := viper.New()
	fv.SetConfigFile(path)
	fv.SetConfigType("env")
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for _, b := range envBindings {
		name := strings.ToLower(b.env)
		if fv.IsSet(name) {
			v.SetDefault(b.key, fv.Get(name))
		}
	}
	return nil
}

// Load resolves and validates the configuration.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:           v.GetInt("port"),
		StoreBackend:   strings.ToLower(strings.TrimSpace(v.GetString("store.backend"))),
		DBPath:         v.GetString("store.db_path"),
		RedisAddr:      v.GetString("redis.addr"),
		RedisPassword:  v.GetString("redis.password"),
		RedisDB:        v.GetInt("redis.db"),
		RedisPrefix:    v.GetString("redis.prefix"),
		ReportSchedule: strings.TrimSpace(v.GetString("reports.schedule")),
		LogLevel:       strings.ToLower(v.GetString("log.level")),
		CORSOrigins:    splitList(v.GetString("cors.origins")),
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch order := ledger.DateOrder(strings.ToUpper(v.GetString("ledger.date_order"))); order {
	case ledger.OrderDMY, ledger.OrderMDY:
		cfg.DateOrder = order
	default:
		return Config{}, fmt.Errorf("unknown DATE_ORDER %q", order)
	}

	wd, err := parseWeekday(v.GetString("ledger.week_start"))
	if err != nil {
		return Config{}, err
	}
	cfg.WeekStart = wd

	loc, err := time.LoadLocation(v.GetString("ledger.timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	return cfg, nil
}

// Normalizer reads dates the way this deployment is configured to.
func (c Config) Normalizer() ledger.Normalizer {
	return ledger.Normalizer{Order: c.DateOrder, Location: c.Location}
}

func (c Config) Reporter() ledger.Reporter {
	return ledger.Reporter{WeekStart: c.WeekStart, Location: c.Location}
}

// =============================================================================
// LOGGING
// =============================================================================

// NewLogger builds a production zap logger at the given level and installs
// it as the global logger.
func NewLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(s)
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown WEEK_START %q", s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
