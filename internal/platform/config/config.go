// Package config loads settings for the assent binaries. Environment
// variables are the base layer; assentctl overlays an optional TOML profile
// and its command-line flags on top.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"assent/pkg/consent"
	"assent/pkg/consent/store"
	auditstore "assent/pkg/platform/audit/store"
)

// Config carries everything the binaries read from the process environment.
type Config struct {
	Addr       string `env:"ASSENT_ADDR"        envDefault:":8080"`
	AdminToken string `env:"ASSENT_ADMIN_TOKEN"`

	Mode       string `env:"ASSENT_MODE"`
	StorageKey string `env:"ASSENT_STORAGE_KEY"`

	StorageDriver string `env:"ASSENT_STORAGE_DRIVER" envDefault:"memory"`
	StoragePath   string `env:"ASSENT_STORAGE_PATH"`
	StorageDSN    string `env:"ASSENT_STORAGE_DSN"`
	RedisAddr     string `env:"ASSENT_REDIS_ADDR"`
	RedisPassword string `env:"ASSENT_REDIS_PASSWORD"`
	RedisDB       int    `env:"ASSENT_REDIS_DB"`

	ConsentTTL    time.Duration `env:"ASSENT_CONSENT_TTL"`
	SweepSchedule string        `env:"ASSENT_SWEEP_SCHEDULE"`

	ReceiptSigningKey string `env:"ASSENT_RECEIPT_SIGNING_KEY"`
	ReceiptIssuer     string `env:"ASSENT_RECEIPT_ISSUER"`
	PseudonymKey      string `env:"ASSENT_PSEUDONYM_KEY"`

	// AuditDriver selects the audit sink: memory, jsonl, postgres, or
	// kafka. Empty keeps the historical shape: jsonl when AuditPath is
	// set, otherwise the in-memory ring.
	AuditDriver  string   `env:"ASSENT_AUDIT_DRIVER"`
	AuditPath    string   `env:"ASSENT_AUDIT_PATH"`
	AuditDSN     string   `env:"ASSENT_AUDIT_DSN"`
	AuditBrokers []string `env:"ASSENT_AUDIT_BROKERS"`
	AuditTopic   string   `env:"ASSENT_AUDIT_TOPIC"`

	LogLevel  string `env:"ASSENT_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"ASSENT_LOG_FORMAT" envDefault:"text"`
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ConsentOptions maps the configuration onto SDK options. Callbacks, audit
// trail, metrics, and logger are attached by the caller.
func (c Config) ConsentOptions() consent.Options {
	opts := consent.Options{
		Mode: c.Mode,
		Storage: store.Config{
			Driver:        c.StorageDriver,
			Path:          c.StoragePath,
			DSN:           c.StorageDSN,
			RedisAddr:     c.RedisAddr,
			RedisPassword: c.RedisPassword,
			RedisDB:       c.RedisDB,
		},
		StorageKey:        c.StorageKey,
		DefaultTTL:        c.ConsentTTL,
		ReceiptSigningKey: c.ReceiptSigningKey,
		ReceiptIssuer:     c.ReceiptIssuer,
		SweepSchedule:     c.SweepSchedule,
	}
	if c.PseudonymKey != "" {
		opts.PseudonymKey = []byte(c.PseudonymKey)
	}
	return opts
}

// AuditConfig maps the configuration onto the audit sink selector.
func (c Config) AuditConfig() auditstore.Config {
	return auditstore.Config{
		Driver:  c.AuditDriver,
		Path:    c.AuditPath,
		DSN:     c.AuditDSN,
		Brokers: c.AuditBrokers,
		Topic:   c.AuditTopic,
	}
}

// Profile is a TOML overlay so assentctl can keep per-environment settings
// out of flags. Zero-valued fields leave the underlying Config untouched.
type Profile struct {
	Mode       string `toml:"mode"`
	StorageKey string `toml:"storage_key"`

	StorageDriver string `toml:"storage_driver"`
	StoragePath   string `toml:"storage_path"`
	StorageDSN    string `toml:"storage_dsn"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	// ConsentTTL is a Go duration string, for example "8760h".
	ConsentTTL    string `toml:"consent_ttl"`
	SweepSchedule string `toml:"sweep_schedule"`

	ReceiptSigningKey string `toml:"receipt_signing_key"`
	ReceiptIssuer     string `toml:"receipt_issuer"`
	PseudonymKey      string `toml:"pseudonym_key"`

	AuditDriver  string   `toml:"audit_driver"`
	AuditPath    string   `toml:"audit_path"`
	AuditDSN     string   `toml:"audit_dsn"`
	AuditBrokers []string `toml:"audit_brokers"`
	AuditTopic   string   `toml:"audit_topic"`

	Subject string `toml:"subject"`
}

// LoadProfile reads a TOML profile from path.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", path, err)
	}
	return p, nil
}

// Apply overlays the profile's set fields onto cfg.
func (p Profile) Apply(cfg *Config) error {
	if p.Mode != "" {
		cfg.Mode = p.Mode
	}
	if p.StorageKey != "" {
		cfg.StorageKey = p.StorageKey
	}
	if p.StorageDriver != "" {
		cfg.StorageDriver = p.StorageDriver
	}
	if p.StoragePath != "" {
		cfg.StoragePath = p.StoragePath
	}
	if p.StorageDSN != "" {
		cfg.StorageDSN = p.StorageDSN
	}
	if p.RedisAddr != "" {
		cfg.RedisAddr = p.RedisAddr
	}
	if p.RedisPassword != "" {
		cfg.RedisPassword = p.RedisPassword
	}
	if p.RedisDB != 0 {
		cfg.RedisDB = p.RedisDB
	}
	if p.ConsentTTL != "" {
		ttl, err := time.ParseDuration(p.ConsentTTL)
		if err != nil {
			return fmt.Errorf("profile consent_ttl: %w", err)
		}
		cfg.ConsentTTL = ttl
	}
	if p.SweepSchedule != "" {
		cfg.SweepSchedule = p.SweepSchedule
	}
	if p.ReceiptSigningKey != "" {
		cfg.ReceiptSigningKey = p.ReceiptSigningKey
	}
	if p.ReceiptIssuer != "" {
		cfg.ReceiptIssuer = p.ReceiptIssuer
	}
	if p.PseudonymKey != "" {
		cfg.PseudonymKey = p.PseudonymKey
	}
	if p.AuditDriver != "" {
		cfg.AuditDriver = p.AuditDriver
	}
	if p.AuditPath != "" {
		cfg.AuditPath = p.AuditPath
	}
	if p.AuditDSN != "" {
		cfg.AuditDSN = p.AuditDSN
	}
	if len(p.AuditBrokers) > 0 {
		cfg.AuditBrokers = p.AuditBrokers
	}
	if p.AuditTopic != "" {
		cfg.AuditTopic = p.AuditTopic
	}
	return nil
}
