// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DatabaseURL    string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnLifetime   time.Duration
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration

	ServerAddr string

	LoanPeriodDays        int
	FinePerDay            int
	SearchCaseInsensitive bool
}

// requiredKeys are reported by Validate when unset.
var requiredKeys = []string{"DB_HOST", "DB_USER", "DB_NAME"}

// Load reads the given env files (".env" when none are given) and then
// builds a Config from the process environment. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "library_management"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
	}

	var err error
	if cfg.DBPort, err = getInt("DB_PORT", 5432); err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 20); err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.ConnLifetime, err = getDuration("DB_CONN_MAX_LIFETIME", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = getDuration("DB_CONNECT_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.QueryTimeout, err = getDuration("QUERY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.LoanPeriodDays, err = getInt("LOAN_PERIOD_DAYS", 14); err != nil {
		return nil, err
	}
	if cfg.FinePerDay, err = getInt("FINE_PER_DAY", 2); err != nil {
		return nil, err
	}
	if cfg.SearchCaseInsensitive, err = getBool("SEARCH_CASE_INSENSITIVE", true); err != nil {
		return nil, err
	}
	if cfg.LoanPeriodDays <= 0 {
		return nil, fmt.Errorf("LOAN_PERIOD_DAYS must be positive, got %d", cfg.LoanPeriodDays)
	}
	if cfg.FinePerDay <= 0 {
		return nil, fmt.Errorf("FINE_PER_DAY must be positive, got %d", cfg.FinePerDay)
	}
	return cfg, nil
}

// Validate reports whether all required database keys were set explicitly.
// Missing keys only produce a warning; defaults are used in their place.
func (c *Config) Validate() bool {
	if c.DatabaseURL != "" {
		return true
	}
	var missing []string
	for _, key := range requiredKeys {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		log.Printf("[WARN] config: missing environment variables: %v", missing)
	}
	return len(missing) == 0
}

// DSN returns the postgres connection string, preferring DATABASE_URL.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.DBSSLMode)
	if secs := int(c.ConnectTimeout / time.Second); secs > 0 {
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
