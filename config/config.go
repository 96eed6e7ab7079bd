package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Address string `json:"address" env:"APP_ADDRESS" envDefault:":3000"`
	Prefork bool   `json:"prefork" env:"APP_PREFORK"`
	Metrics *bool  `json:"metrics" env:"APP_METRICS"`

	// BodyLimit caps request bodies; base64 inflates images by a third.
	BodyLimit int `json:"bodyLimit" env:"APP_BODY_LIMIT" envDefault:"31457280"`

	AllowedOrigins []string `json:"allowedOrigins" env:"APP_ALLOWED_ORIGINS"`

	CacheTTL         int   `json:"cacheTTL" env:"CACHE_TTL" envDefault:"1800"`
	CacheMaxCost     int64 `json:"cacheMaxCost" env:"CACHE_MAX_COST"`
	CacheNumCounters int64 `json:"cacheNumCounters" env:"CACHE_NUM_COUNTERS"`
	CacheBufferItems int64 `json:"cacheBufferItems" env:"CACHE_BUFFER_ITEMS"`
	HTTPCacheTTL     int   `json:"httpCacheTTL" env:"HTTP_CACHE_TTL" envDefault:"86400"`

	Crunch CrunchConfig `json:"crunch"`
	S3     S3Config     `json:"s3"`
}

type CrunchConfig struct {
	Quality          float64       `json:"quality" env:"CRUNCH_QUALITY" envDefault:"0.6"`
	MaxWidth         int           `json:"maxWidth" env:"CRUNCH_MAX_WIDTH" envDefault:"1920"`
	MaxHeight        int           `json:"maxHeight" env:"CRUNCH_MAX_HEIGHT" envDefault:"1080"`
	MaxInputMB       int           `json:"maxInputMB" env:"CRUNCH_MAX_INPUT_MB" envDefault:"20"`
	MaxSourcePixels  int64         `json:"maxSourcePixels" env:"CRUNCH_MAX_SOURCE_PIXELS" envDefault:"50000000"`
	MaxSurfacePixels int64         `json:"maxSurfacePixels" env:"CRUNCH_MAX_SURFACE_PIXELS" envDefault:"268435456"`
	DecodeTimeout    time.Duration `json:"decodeTimeout" env:"CRUNCH_DECODE_TIMEOUT"`
}

type S3Config struct {
	Enabled   bool   `json:"enabled" env:"S3_ENABLED"`
	Endpoint  string `json:"endpoint" env:"S3_ENDPOINT"`
	AccessKey string `json:"-" env:"S3_ACCESS_KEY"`
	SecretKey string `json:"-" env:"S3_SECRET_KEY"`
	Bucket    string `json:"bucket" env:"S3_BUCKET"`
	Prefix    string `json:"prefix" env:"S3_PREFIX" envDefault:"imgcruncher"`
	UseSSL    bool   `json:"useSSL" env:"S3_USE_SSL" envDefault:"true"`
}

// Load reads an optional .env file from the working directory and then parses
// the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}

	if cfg.Metrics == nil {
		metrics := true
		cfg.Metrics = &metrics
	}

	return cfg, nil
}
