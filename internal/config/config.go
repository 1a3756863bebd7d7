package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all client configuration.
type Config struct {
	APIBaseURL  string
	HTTPTimeout time.Duration
	LogLevel    string
	LogFormat   string

	// PollInterval is the timer poll cadence while the exam screen is active.
	PollInterval time.Duration
	// PauseDefault suppresses proctoring while the client itself steals focus.
	PauseDefault time.Duration
	// PausePrint is used when a question paper window/file is being produced.
	PausePrint         time.Duration
	ViolationThreshold int
	ViolationLogSize   int

	// BridgeAddr is where the kiosk signal bridge listens. Empty disables it.
	BridgeAddr string
	// AllowedOrigins controls HTTP CORS and WebSocket origin validation.
	// Empty slice means all origins are permitted (dev default).
	AllowedOrigins []string

	// RedisURL enables the violation fan-out when set.
	RedisURL string
	// JournalPath enables the local SQLite proctoring journal when set.
	JournalPath string
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	return &Config{
		APIBaseURL:         "http://localhost:8000/api",
		HTTPTimeout:        60 * time.Second,
		LogLevel:           "info",
		LogFormat:          "",
		PollInterval:       time.Second,
		PauseDefault:       15 * time.Second,
		PausePrint:         20 * time.Second,
		ViolationThreshold: 4,
		ViolationLogSize:   5,
		BridgeAddr:         "127.0.0.1:8765",
	}
}

// Load reads configuration from .env, EXSTEM_* environment variables, an
// optional examctl config file and the given flag set (may be nil), in
// increasing order of precedence.
func Load(flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	d := Defaults()
	v.SetDefault("api-base-url", d.APIBaseURL)
	v.SetDefault("http-timeout", d.HTTPTimeout)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("log-format", d.LogFormat)
	v.SetDefault("poll-interval", d.PollInterval)
	v.SetDefault("pause-default", d.PauseDefault)
	v.SetDefault("pause-print", d.PausePrint)
	v.SetDefault("violation-threshold", d.ViolationThreshold)
	v.SetDefault("violation-log-size", d.ViolationLogSize)
	v.SetDefault("bridge-addr", d.BridgeAddr)
	v.SetDefault("allowed-origins", "")
	v.SetDefault("redis-url", "")
	v.SetDefault("journal-path", "")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix("EXSTEM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examctl")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examctl")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return &Config{
		APIBaseURL:         strings.TrimRight(v.GetString("api-base-url"), "/"),
		HTTPTimeout:        v.GetDuration("http-timeout"),
		LogLevel:           v.GetString("log-level"),
		LogFormat:          v.GetString("log-format"),
		PollInterval:       positiveDuration(v.GetDuration("poll-interval"), d.PollInterval),
		PauseDefault:       positiveDuration(v.GetDuration("pause-default"), d.PauseDefault),
		PausePrint:         positiveDuration(v.GetDuration("pause-print"), d.PausePrint),
		ViolationThreshold: positiveInt(v.GetInt("violation-threshold"), d.ViolationThreshold),
		ViolationLogSize:   positiveInt(v.GetInt("violation-log-size"), d.ViolationLogSize),
		BridgeAddr:         v.GetString("bridge-addr"),
		AllowedOrigins:     parseOrigins(v.GetString("allowed-origins")),
		RedisURL:           v.GetString("redis-url"),
		JournalPath:        v.GetString("journal-path"),
	}, nil
}

func positiveDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func positiveInt(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}

// parseOrigins splits a comma-separated origins string into a trimmed slice.
// Returns nil (allow-all) if the input is empty.
func parseOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
