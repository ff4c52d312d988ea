package profile

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the console client.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// ServerURL is the base URL of the DivineSense backend
	ServerURL string
	// Token is the bearer token for the backend
	Token string
	// Timezone is the IANA timezone used for conversation grouping
	Timezone string
	// Data is the local data directory (cache database lives here)
	Data string
	// CacheDriver selects the local cache backend (sqlite)
	CacheDriver string
	// CacheDisabled turns the local conversation cache off entirely
	CacheDisabled bool
	// PageSize is how many conversations one list page requests
	PageSize int
	// SendRetries is the fixed retry count for stream sends
	SendRetries int
	// SendRetryDelay is the fixed delay between send retries
	SendRetryDelay time.Duration
	// ReconnectBackoff is the fixed delay between stream reconnects
	ReconnectBackoff time.Duration
	// Version is the current version of the console
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// CacheDSN returns the cache database path inside the data directory.
func (p *Profile) CacheDSN() string {
	return filepath.Join(p.Data, "console_cache.db")
}

// StreamURL returns the streaming endpoint derived from the server URL.
func (p *Profile) StreamURL() string {
	return strings.TrimRight(p.ServerURL, "/") + "/api/v1/stream"
}

// SendURL returns the outbound message endpoint derived from the server URL.
func (p *Profile) SendURL() string {
	return strings.TrimRight(p.ServerURL, "/") + "/api/v1/stream/send"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from DIVINESENSE_CONSOLE_* environment
// variables, keeping any value already set from flags.
func (p *Profile) FromEnv() {
	if p.ServerURL == "" {
		p.ServerURL = os.Getenv("DIVINESENSE_CONSOLE_SERVER_URL")
	}
	if p.Token == "" {
		p.Token = os.Getenv("DIVINESENSE_CONSOLE_TOKEN")
	}
	if p.Timezone == "" {
		p.Timezone = getEnvOrDefault("DIVINESENSE_CONSOLE_TIMEZONE", "UTC")
	}
	if p.Mode == "" {
		p.Mode = getEnvOrDefault("DIVINESENSE_CONSOLE_MODE", "dev")
	}
	if p.Data == "" {
		p.Data = os.Getenv("DIVINESENSE_CONSOLE_DATA")
	}
	if p.PageSize == 0 {
		p.PageSize, _ = strconv.Atoi(getEnvOrDefault("DIVINESENSE_CONSOLE_PAGE_SIZE", "50"))
	}
	if p.SendRetries == 0 {
		p.SendRetries, _ = strconv.Atoi(getEnvOrDefault("DIVINESENSE_CONSOLE_SEND_RETRIES", "3"))
	}
	if p.SendRetryDelay == 0 {
		p.SendRetryDelay = durationEnv("DIVINESENSE_CONSOLE_SEND_RETRY_DELAY", time.Second)
	}
	if p.ReconnectBackoff == 0 {
		p.ReconnectBackoff = durationEnv("DIVINESENSE_CONSOLE_RECONNECT_BACKOFF", 2*time.Second)
	}
}

func durationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}

// Validate normalizes the profile and rejects unusable configurations.
func (p *Profile) Validate() error {
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}

	if p.ServerURL == "" {
		return errors.New("server URL is required")
	}
	if _, err := url.Parse(p.ServerURL); err != nil {
		return errors.Wrapf(err, "invalid server URL %q", p.ServerURL)
	}

	if !p.CacheDisabled {
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return errors.Wrapf(err, "invalid data directory %q", p.Data)
		}
		p.Data = dataDir
	}

	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	return nil
}

func checkDataDir(dataDir string) (string, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "resolve home directory")
		}
		dataDir = filepath.Join(home, ".divinesense-console")
	}

	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create data directory %q", dataDir)
	}
	return dataDir, nil
}
