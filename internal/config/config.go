package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Minio     MinioConfig     `yaml:"minio"`
	Provider  ProviderConfig  `yaml:"provider"`
	Tokenizer TokenizerConfig `yaml:"tokenizer"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	CORS      CORSConfig      `yaml:"cors"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslMode"`
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"accessKey"`
	SecretKey  string `yaml:"secretKey"`
	BucketName string `yaml:"bucketName"`
	Region     string `yaml:"region"`
	UseSSL     bool   `yaml:"useSSL"`
}

type ProviderConfig struct {
	APIKey    string        `yaml:"apiKey"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"baseURL"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"maxTokens"`
	// Offline uses the built-in rule-based analyzer instead of the API.
	// It is implied when no API key is configured.
	Offline bool `yaml:"offline"`
}

// UseOffline reports whether analyses stay on the host.
func (p ProviderConfig) UseOffline() bool {
	return p.Offline || p.APIKey == ""
}

// TokenizerConfig holds the master key every session key is derived from.
// An empty key gives each session a random key.
type TokenizerConfig struct {
	MasterKey string `yaml:"masterKey"`
}

type AnalysisConfig struct {
	LookbackDays          int `yaml:"lookbackDays"`
	MinFrequency          int `yaml:"minFrequency"`
	MaxConcurrentSessions int `yaml:"maxConcurrentSessions"`
}

func (a AnalysisConfig) Lookback() time.Duration {
	return time.Duration(a.LookbackDays) * 24 * time.Hour
}

// AuthConfig maps tenant -> API key.
type AuthConfig struct {
	APIKeys map[string]string `yaml:"apiKeys"`
}

type RateLimitConfig struct {
	Capacity        int `yaml:"capacity"`
	RefillPerSecond int `yaml:"refillPerSecond"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used for every unset field.
func Default() Config {
	return Config{
		Server:    ServerConfig{Port: 8080, ReadTimeout: 15 * time.Second, WriteTimeout: 60 * time.Second},
		Database:  DatabaseConfig{Driver: DriverNone, SSLMode: "disable"},
		Minio:     MinioConfig{BucketName: "safeguard-reports", Region: "us-east-1"},
		Provider:  ProviderConfig{Model: "gpt-4o-mini", Timeout: 30 * time.Second, MaxTokens: 2048},
		Analysis:  AnalysisConfig{LookbackDays: 30, MinFrequency: 2, MaxConcurrentSessions: 4},
		RateLimit: RateLimitConfig{Capacity: 60, RefillPerSecond: 1},
		CORS:      CORSConfig{AllowedOrigins: []string{"*"}},
		Log:       LogConfig{Level: "info"},
	}
}

// Load baca file config, isi default, lalu override dari env
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults, applies env overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Provider.APIKey, "OPENAI_API_KEY")
	override(&c.Provider.BaseURL, "OPENAI_BASE_URL")
	override(&c.Tokenizer.MasterKey, "SAFEGUARD_TOKEN_KEY")
	override(&c.Database.Password, "SAFEGUARD_DB_PASSWORD")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server timeouts must be positive"))
	}
	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database.host and database.name are required"))
		}
	case DriverNone, "":
		c.Database.Driver = DriverNone
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be mysql, postgres or none", c.Database.Driver))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("provider.timeout must be positive"))
	}
	if c.Analysis.LookbackDays <= 0 || c.Analysis.MinFrequency <= 0 || c.Analysis.MaxConcurrentSessions <= 0 {
		errs = append(errs, errors.New("analysis values must be positive"))
	}
	if c.RateLimit.Capacity <= 0 || c.RateLimit.RefillPerSecond <= 0 {
		errs = append(errs, errors.New("rateLimit values must be positive"))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	m := mysql.NewConfig()
	m.User = c.Database.User
	m.Passwd = c.Database.Password
	m.Net = "tcp"
	m.Addr = fmt.Sprintf("%s:%d", c.Database.Host, c.dbPort(3306))
	m.DBName = c.Database.Name
	m.ParseTime = true
	m.Loc = time.UTC
	m.Params = map[string]string{"charset": "utf8mb4"}
	return m.FormatDSN()
}

// PostgresDSN builds a lib/pq keyword/value connection string.
func (c *Config) PostgresDSN() string {
	kv := []struct{ k, v string }{
		{"host", c.Database.Host},
		{"port", fmt.Sprint(c.dbPort(5432))},
		{"user", c.Database.User},
		{"password", c.Database.Password},
		{"dbname", c.Database.Name},
		{"sslmode", c.Database.SSLMode},
	}
	parts := make([]string, 0, len(kv))
	for _, p := range kv {
		if p.v == "" {
			continue
		}
		parts = append(parts, p.k+"="+quoteDSN(p.v))
	}
	return strings.Join(parts, " ")
}

func (c *Config) dbPort(def int) int {
	if c.Database.Port > 0 {
		return c.Database.Port
	}
	return def
}

func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
