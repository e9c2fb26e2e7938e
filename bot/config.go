package bot

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/docker/go-units"

	"github.com/mediarelay/mediarelay/upload"
)

const (
	defaultAPIBaseURL     = "https://api.mediarelay.example"
	defaultDownloadDir    = "downloads"
	defaultMaxFileSize    = "2GB"
	defaultRequestTimeout = 1000 * time.Second
)

// Config is the bot's environment-driven configuration.
type Config struct {
	// Token authenticates both the message API and the part transfers.
	Token string
	// APIBaseURL is the platform endpoint root.
	APIBaseURL string
	// DownloadDir is the root of the per-user download directories.
	DownloadDir string
	// MaxFileSize caps downloaded media, in bytes.
	MaxFileSize int64
	// PremiumAccount selects the premium part-count limit.
	PremiumAccount bool
	// RequestTimeout bounds one download-and-relay request end to end,
	// including every part upload.
	RequestTimeout time.Duration
	// Verbose enables debug logging.
	Verbose bool
}

// LoadConfig reads the configuration from the environment.
func LoadConfig(envRepo env.Repository) (Config, error) {
	token := envRepo.Get("RELAY_BOT_TOKEN")
	if token == "" {
		return Config{}, fmt.Errorf("RELAY_BOT_TOKEN is not set")
	}

	baseURL := envRepo.Get("RELAY_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}

	downloadDir := envRepo.Get("DOWNLOAD_DIR")
	if downloadDir == "" {
		downloadDir = defaultDownloadDir
	}

	maxFileSizeValue := envRepo.Get("MAX_FILE_SIZE")
	if maxFileSizeValue == "" {
		maxFileSizeValue = defaultMaxFileSize
	}
	maxFileSize, err := units.RAMInBytes(maxFileSizeValue)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_FILE_SIZE %q: %w", maxFileSizeValue, err)
	}

	timeout := defaultRequestTimeout
	if timeoutValue := envRepo.Get("REQUEST_TIMEOUT_SECONDS"); timeoutValue != "" {
		seconds, err := strconv.Atoi(timeoutValue)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("parse REQUEST_TIMEOUT_SECONDS %q", timeoutValue)
		}
		timeout = time.Duration(seconds) * time.Second
	}

	return Config{
		Token:          token,
		APIBaseURL:     baseURL,
		DownloadDir:    downloadDir,
		MaxFileSize:    maxFileSize,
		PremiumAccount: envRepo.Get("PREMIUM_ACCOUNT") == "true",
		RequestTimeout: timeout,
		Verbose:        envRepo.Get("VERBOSE") == "true",
	}, nil
}

// Tier returns the account tier implied by the configuration.
func (c Config) Tier() upload.Tier {
	if c.PremiumAccount {
		return upload.TierPremium
	}
	return upload.TierRegular
}
