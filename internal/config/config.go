// Package config reads the service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"

	"github.com/sakif/artwall/internal/period"
)

// Blob drivers.
const (
	BlobGCS    = "gcs"
	BlobS3     = "s3"
	BlobMemory = "memory"
)

type Config struct {
	Port     int
	LogLevel slog.Level

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BlobDriver     string
	BlobBucket     string
	BlobPublicBase string
	AWSRegion      string
	S3Endpoint     string

	OffsetMinutes  int
	WeekConvention period.WeekConvention

	AdminSecret        string
	UploadTicketSecret string
	UploadTicketTTL    time.Duration

	ArchiveDBPath   string
	MaxUploadBytes  int64
	MetadataScanCap int

	// SecureCookies marks the voter cookie Secure; on behind TLS.
	SecureCookies bool
}

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("BLOB_DRIVER", BlobGCS)
	v.SetDefault("BLOB_BUCKET", "")
	v.SetDefault("BLOB_PUBLIC_BASE", "")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("TZ_OFFSET_MINUTES", period.DefaultOffsetMinutes)
	v.SetDefault("WEEK_CONVENTION", string(period.WeekSaturday))
	v.SetDefault("ADMIN_SECRET", "")
	v.SetDefault("UPLOAD_TICKET_SECRET", "")
	v.SetDefault("UPLOAD_TICKET_TTL", "15m")
	v.SetDefault("ARCHIVE_DB_PATH", "data/archive.db")
	v.SetDefault("MAX_UPLOAD_BYTES", 8<<20)
	v.SetDefault("METADATA_SCAN_CAP", 5000)
	v.SetDefault("SECURE_COOKIES", false)
}

// Load reads the process environment.
func Load() (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper
// instance.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:               v.GetInt("PORT"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		BlobDriver:         strings.ToLower(strings.TrimSpace(v.GetString("BLOB_DRIVER"))),
		BlobBucket:         v.GetString("BLOB_BUCKET"),
		BlobPublicBase:     v.GetString("BLOB_PUBLIC_BASE"),
		AWSRegion:          v.GetString("AWS_REGION"),
		S3Endpoint:         v.GetString("S3_ENDPOINT"),
		OffsetMinutes:      v.GetInt("TZ_OFFSET_MINUTES"),
		AdminSecret:        v.GetString("ADMIN_SECRET"),
		UploadTicketSecret: v.GetString("UPLOAD_TICKET_SECRET"),
		UploadTicketTTL:    v.GetDuration("UPLOAD_TICKET_TTL"),
		ArchiveDBPath:      v.GetString("ARCHIVE_DB_PATH"),
		MaxUploadBytes:     v.GetInt64("MAX_UPLOAD_BYTES"),
		MetadataScanCap:    v.GetInt("METADATA_SCAN_CAP"),
		SecureCookies:      v.GetBool("SECURE_COOKIES"),
	}

	// REDIS_URL wins over REDIS_ADDR; hosted providers hand out URLs.
	if u := strings.TrimSpace(v.GetString("REDIS_URL")); u != "" {
		opts, err := redis.ParseURL(u)
		if err != nil {
			return Config{}, fmt.Errorf("config: REDIS_URL: %w", err)
		}
		cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB = opts.Addr, opts.Password, opts.DB
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("config: PORT %d out of range", cfg.Port)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return Config{}, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	switch cfg.BlobDriver {
	case BlobGCS, BlobS3:
		if cfg.BlobBucket == "" {
			return Config{}, fmt.Errorf("config: BLOB_BUCKET is required for the %s driver", cfg.BlobDriver)
		}
	case BlobMemory:
	default:
		return Config{}, fmt.Errorf("config: unknown BLOB_DRIVER %q", cfg.BlobDriver)
	}

	wc, err := period.ParseWeekConvention(v.GetString("WEEK_CONVENTION"))
	if err != nil {
		return Config{}, fmt.Errorf("config: WEEK_CONVENTION: %w", err)
	}
	cfg.WeekConvention = wc
	if _, err := period.NewCalculator(cfg.OffsetMinutes, wc); err != nil {
		return Config{}, fmt.Errorf("config: TZ_OFFSET_MINUTES: %w", err)
	}

	if s := cfg.UploadTicketSecret; s != "" && len(s) < 16 {
		return Config{}, fmt.Errorf("config: UPLOAD_TICKET_SECRET must be at least 16 characters")
	}
	if cfg.UploadTicketTTL <= 0 {
		return Config{}, fmt.Errorf("config: UPLOAD_TICKET_TTL must be positive")
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.MetadataScanCap <= 0 {
		return Config{}, fmt.Errorf("config: METADATA_SCAN_CAP must be positive")
	}

	return cfg, nil
}

// Calculator builds the period calculator for this deployment.
func (c Config) Calculator() *period.Calculator {
	calc, err := period.NewCalculator(c.OffsetMinutes, c.WeekConvention)
	if err != nil {
		// FromViper already rejected bad offsets.
		return period.Default()
	}
	return calc
}
