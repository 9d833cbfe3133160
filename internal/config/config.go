package config

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

const (
	ProviderQuickEmail = "quickemailverification"
	ProviderOffline    = "offline"

	DecryptModeKMS      = "kms"
	DecryptModeEnvelope = "envelope"
)

type Config struct {
	AWSConfig              *aws.Config
	AppLogLevel            slog.Level
	AppVerifierProvider    string
	AppKmsKeyId            string
	AppKmsDecryptMode      string
	AppVerdictPolicyPath   string
	AppCacheDir            string
	AppCacheSweepSchedule  string
	AppHTTPAddr            string
	AppHTTPCorsOrigins     []string
	DebugMode              bool
	DebugDataPath          string
	QuickEmailApiHost      string
	QuickEmailApiKey       string
	QuickEmailApiKeyCipher string
	QuickEmailTimeout      time.Duration

	// Cache defaults, overridable per batch
	AddressCacheEnabled bool
	AddressCacheTTLDays int
	DomainCacheEnabled  bool
	DomainCacheTTLDays  int

	// Greylisting defaults, overridable per batch
	GreylistRetryEnabled bool
	GreylistRetryDelay   time.Duration
	GreylistMaxRetries   int
}

func New() (*Config, error) {
	cfg := Config{
		DebugMode:              os.Getenv("APP_DEBUG_MODE") == "true",
		DebugDataPath:          os.Getenv("APP_DEBUG_DATA_PATH"),
		AppLogLevel:            slog.LevelInfo,
		AppVerifierProvider:    os.Getenv("APP_VERIFIER_PROVIDER"),
		AppKmsKeyId:            os.Getenv("APP_KMS_KEY_ID"),
		AppKmsDecryptMode:      os.Getenv("APP_KMS_DECRYPT_MODE"),
		AppVerdictPolicyPath:   os.Getenv("APP_VERDICT_POLICY_PATH"),
		AppCacheDir:            os.Getenv("APP_CACHE_DIR"),
		AppCacheSweepSchedule:  os.Getenv("APP_CACHE_SWEEP_SCHEDULE"),
		AppHTTPAddr:            os.Getenv("APP_HTTP_ADDR"),
		AppHTTPCorsOrigins:     []string{},
		QuickEmailApiHost:      os.Getenv("APP_QEV_API_HOST"),
		QuickEmailApiKey:       os.Getenv("APP_QEV_API_KEY"),
		QuickEmailApiKeyCipher: os.Getenv("APP_QEV_API_KEY_CIPHERTEXT"),
		QuickEmailTimeout:      30 * time.Second,

		AddressCacheEnabled: os.Getenv("APP_ADDRESS_CACHE_ENABLED") != "false",
		AddressCacheTTLDays: 30,
		DomainCacheEnabled:  os.Getenv("APP_DOMAIN_CACHE_ENABLED") == "true",
		DomainCacheTTLDays:  30,

		GreylistRetryEnabled: os.Getenv("APP_GREYLIST_RETRY_ENABLED") == "true",
		GreylistRetryDelay:   90 * time.Second,
		GreylistMaxRetries:   1,
	}

	if levelStr := os.Getenv("APP_LOG_LEVEL"); levelStr != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelStr)); err == nil {
			cfg.AppLogLevel = level
		}
	}

	if cfg.AppVerifierProvider == "" || (cfg.AppVerifierProvider != ProviderQuickEmail && cfg.AppVerifierProvider != ProviderOffline) {
		if cfg.AppVerifierProvider != "" {
			slog.Warn("unknown verification provider, defaulting to quickemailverification", "provider", cfg.AppVerifierProvider)
		}
		cfg.AppVerifierProvider = ProviderQuickEmail
	}

	if cfg.AppKmsDecryptMode == "" {
		cfg.AppKmsDecryptMode = DecryptModeKMS
	}

	if cfg.QuickEmailApiHost == "" {
		cfg.QuickEmailApiHost = "https://api.quickemailverification.com"
	}

	if cfg.AppCacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		cfg.AppCacheDir = filepath.Join(home, ".email-verifier")
	}

	if cfg.AppCacheSweepSchedule == "" {
		cfg.AppCacheSweepSchedule = "@hourly"
	}

	if cfg.AppHTTPAddr == "" {
		cfg.AppHTTPAddr = ":8080"
	}

	if originsStr := strings.TrimSpace(os.Getenv("APP_HTTP_CORS_ORIGINS")); originsStr != "" {
		origins := strings.Split(originsStr, ",")
		for i, o := range origins {
			origins[i] = strings.TrimSpace(o)
		}
		cfg.AppHTTPCorsOrigins = origins
	}

	if s := os.Getenv("APP_QEV_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.QuickEmailTimeout = d
		} else {
			slog.Warn("invalid APP_QEV_TIMEOUT, using default", "value", s, "default", "30s")
		}
	}

	cfg.AddressCacheTTLDays = intFromEnv("APP_ADDRESS_CACHE_TTL_DAYS", cfg.AddressCacheTTLDays)
	cfg.DomainCacheTTLDays = intFromEnv("APP_DOMAIN_CACHE_TTL_DAYS", cfg.DomainCacheTTLDays)
	cfg.GreylistMaxRetries = intFromEnv("APP_GREYLIST_MAX_RETRIES", cfg.GreylistMaxRetries)

	if s := os.Getenv("APP_GREYLIST_RETRY_DELAY"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.GreylistRetryDelay = d
		} else if secs, err := strconv.Atoi(s); err == nil {
			cfg.GreylistRetryDelay = time.Duration(secs) * time.Second
		} else {
			slog.Warn("invalid APP_GREYLIST_RETRY_DELAY, using default", "value", s, "default", "90s")
		}
	}

	// deprecated
	if cfg.QuickEmailApiKey == "" && os.Getenv("APP_API_KEY") != "" {
		cfg.QuickEmailApiKey = os.Getenv("APP_API_KEY")
		slog.Warn("deprecated env var used", "old", "APP_API_KEY", "new", "APP_QEV_API_KEY")
	}

	// aws config is only needed to decrypt the api key
	if cfg.QuickEmailApiKeyCipher != "" && cfg.AppKmsKeyId != "" {
		awscfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, err
		}
		cfg.AWSConfig = &awscfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and valid
func (c *Config) Validate() error {
	if c.QuickEmailApiKeyCipher != "" && c.AppKmsKeyId == "" {
		return errors.New("APP_KMS_KEY_ID is required when APP_QEV_API_KEY_CIPHERTEXT is set")
	}

	if c.AppKmsDecryptMode != DecryptModeKMS && c.AppKmsDecryptMode != DecryptModeEnvelope {
		return errors.New("invalid APP_KMS_DECRYPT_MODE: " + c.AppKmsDecryptMode + " (must be 'kms' or 'envelope')")
	}

	if c.AddressCacheTTLDays <= 0 {
		return errors.New("APP_ADDRESS_CACHE_TTL_DAYS must be positive")
	}

	if c.DomainCacheTTLDays <= 0 {
		return errors.New("APP_DOMAIN_CACHE_TTL_DAYS must be positive")
	}

	if c.GreylistMaxRetries < 0 {
		return errors.New("APP_GREYLIST_MAX_RETRIES must not be negative")
	}

	if c.GreylistRetryDelay < 0 {
		return errors.New("APP_GREYLIST_RETRY_DELAY must not be negative")
	}

	if c.AppCacheDir == "" {
		return errors.New("APP_CACHE_DIR is required")
	}

	return nil
}

// Days converts a retention period in days to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func intFromEnv(key string, fallback int) int {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "key", key, "value", s, "default", fallback)
		return fallback
	}
	return n
}
