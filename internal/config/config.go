// Package config centralizes how FormSink reads its YAML file and environment
// variables and exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service. Every field can be
// set from the YAML file and most can be overridden from the environment.
type Config struct {
	Address     string `yaml:"address"`
	BaseURL     string `yaml:"base_url"`
	MaxBodySize int64  `yaml:"max_body_bytes"`
	LogLevel    string `yaml:"log_level"`
	LogDev      bool   `yaml:"log_development"`

	DatabaseURL string `yaml:"database_url"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Region    string `yaml:"s3_region"`
	S3UseSSL    bool   `yaml:"s3_use_ssl"`
	S3PublicURL string `yaml:"s3_public_url"`
	Bucket      string `yaml:"bucket"`

	SigningSecret []byte        `yaml:"-"`
	LinkTTL       time.Duration `yaml:"link_ttl"`

	SMTPHost      string `yaml:"smtp_host"`
	SMTPPort      int    `yaml:"smtp_port"`
	SMTPUser      string `yaml:"smtp_user"`
	SMTPPassword  string `yaml:"smtp_password"`
	MailFrom      string `yaml:"mail_from"`
	DailyQuota    int    `yaml:"daily_mail_quota"`
	OperatorEmail string `yaml:"operator_email"`
	AlertWorkers  int    `yaml:"alert_workers"`

	Spam SpamConfig `yaml:"spam"`
}

// SpamConfig tunes the spam gate.
type SpamConfig struct {
	HourlyLimit    int            `yaml:"hourly_limit"`
	TableLimits    map[string]int `yaml:"table_limits"`
	MaxURLs        int            `yaml:"max_urls"`
	Blocklist      []string       `yaml:"blocklist"`
	BlockedScripts []string       `yaml:"blocked_scripts"`
}

const (
	defaultAddress     = ":8080"
	defaultMaxBodySize = 25 << 20 // 25 MiB of encoded attachments
	defaultLinkTTL     = 7 * 24 * time.Hour
	defaultBucket      = "formsink"
	defaultSMTPPort    = 587
	defaultDailyQuota  = 100
	defaultHourlyLimit = 20
	defaultMaxURLs     = 2
	defaultAlertPool   = 1
	defaultLogLevel    = "info"
)

// DefaultBlocklist holds the keywords rejected when no list is configured.
var DefaultBlocklist = []string{
	"viagra", "cialis", "levitra", "online pharmacy", "casino", "poker",
	"sports betting", "jackpot", "bitcoin", "crypto investment", "forex",
	"payday loan", "seo service", "seo agency", "backlinks", "first page of google",
	"porn", "xxx",
}

// DefaultBlockedScripts holds the Unicode scripts unusual for the expected
// locale.
var DefaultBlockedScripts = []string{
	"Cyrillic", "Han", "Hiragana", "Katakana", "Hangul", "Arabic", "Thai",
}

// Default returns configuration with every default applied.
func Default() *Config {
	return &Config{
		Address:      defaultAddress,
		MaxBodySize:  defaultMaxBodySize,
		LogLevel:     defaultLogLevel,
		Bucket:       defaultBucket,
		LinkTTL:      defaultLinkTTL,
		SMTPPort:     defaultSMTPPort,
		DailyQuota:   defaultDailyQuota,
		AlertWorkers: defaultAlertPool,
		Spam: SpamConfig{
			HourlyLimit:    defaultHourlyLimit,
			MaxURLs:        defaultMaxURLs,
			Blocklist:      DefaultBlocklist,
			BlockedScripts: DefaultBlockedScripts,
		},
	}
}

// Load reads configuration from FORMSINK_CONFIG (when set) and then applies
// environment variables on top.
func Load() (*Config, error) {
	cfg := Default()
	if path := readEnv("FORMSINK_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if cfg.SigningSecret == nil {
		// Links signed with a random secret stop validating after a restart.
		cfg.SigningSecret = randomSecret()
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var file struct {
		Config        `yaml:",inline"`
		SigningSecret string `yaml:"signing_secret"`
	}
	file.Config = *c
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	*c = file.Config
	if file.SigningSecret != "" {
		c.SigningSecret = []byte(file.SigningSecret)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Address = readEnv("FORMSINK_ADDRESS", c.Address)
	c.BaseURL = readEnv("FORMSINK_BASE_URL", c.BaseURL)
	c.MaxBodySize = parseInt64("FORMSINK_MAX_BODY_BYTES", c.MaxBodySize)
	c.LogLevel = readEnv("FORMSINK_LOG_LEVEL", c.LogLevel)
	c.LogDev = parseBool("FORMSINK_LOG_DEV", c.LogDev)
	c.DatabaseURL = readEnv("FORMSINK_DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = readEnv("FORMSINK_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = readEnv("FORMSINK_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = parseInt("FORMSINK_REDIS_DB", c.RedisDB)
	c.S3Endpoint = readEnv("FORMSINK_S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = readEnv("FORMSINK_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = readEnv("FORMSINK_S3_SECRET_KEY", c.S3SecretKey)
	c.S3Region = readEnv("FORMSINK_S3_REGION", c.S3Region)
	c.S3UseSSL = parseBool("FORMSINK_S3_USE_SSL", c.S3UseSSL)
	c.S3PublicURL = readEnv("FORMSINK_S3_PUBLIC_URL", c.S3PublicURL)
	c.Bucket = readEnv("FORMSINK_BUCKET", c.Bucket)
	c.LinkTTL = parseDuration("FORMSINK_LINK_TTL", c.LinkTTL)
	if secret := parseSecret("FORMSINK_SIGNING_SECRET"); secret != nil {
		c.SigningSecret = secret
	}
	c.SMTPHost = readEnv("FORMSINK_SMTP_HOST", c.SMTPHost)
	c.SMTPPort = parseInt("FORMSINK_SMTP_PORT", c.SMTPPort)
	c.SMTPUser = readEnv("FORMSINK_SMTP_USER", c.SMTPUser)
	c.SMTPPassword = readEnv("FORMSINK_SMTP_PASSWORD", c.SMTPPassword)
	c.MailFrom = readEnv("FORMSINK_MAIL_FROM", c.MailFrom)
	c.DailyQuota = parseInt("FORMSINK_DAILY_MAIL_QUOTA", c.DailyQuota)
	c.OperatorEmail = readEnv("FORMSINK_OPERATOR_EMAIL", c.OperatorEmail)
	c.AlertWorkers = parseInt("FORMSINK_ALERT_WORKERS", c.AlertWorkers)
	c.Spam.HourlyLimit = parseInt("FORMSINK_HOURLY_LIMIT", c.Spam.HourlyLimit)
	if v := readEnv("FORMSINK_BLOCKLIST", ""); v != "" {
		c.Spam.Blocklist = parseList(v)
	}
}

func (c *Config) normalize() {
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	if c.LinkTTL <= 0 {
		c.LinkTTL = defaultLinkTTL
	}
	if c.AlertWorkers <= 0 {
		c.AlertWorkers = defaultAlertPool
	}
	if c.Spam.HourlyLimit <= 0 {
		c.Spam.HourlyLimit = defaultHourlyLimit
	}
	if c.Spam.MaxURLs <= 0 {
		c.Spam.MaxURLs = defaultMaxURLs
	}
	if c.Bucket == "" {
		c.Bucket = defaultBucket
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// HourlyLimitFor returns the per-hour cap for table.
func (s SpamConfig) HourlyLimitFor(table string) int {
	if n, ok := s.TableLimits[table]; ok && n > 0 {
		return n
	}
	return s.HourlyLimit
}

// UsePostgres reports whether a database is configured.
func (c *Config) UsePostgres() bool { return c.DatabaseURL != "" }

// UseRedis reports whether Redis is configured.
func (c *Config) UseRedis() bool { return c.RedisAddr != "" }

// UseS3 reports whether object storage is configured.
func (c *Config) UseS3() bool { return c.S3Endpoint != "" }

// UseSMTP reports whether a mail relay is configured.
func (c *Config) UseSMTP() bool { return c.SMTPHost != "" }

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(val string) []string {
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "168h".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
