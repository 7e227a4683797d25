// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Platform credentials are checked separately by Validate.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chat-scribe/summary"
)

// Supported platforms.
const (
	PlatformDiscord = "discord"
	PlatformTwitch  = "twitch"
)

// Default role allow-lists per platform. Twitch roles come from chat badges.
var (
	DefaultDiscordRoles = []string{"社群管理員", "團長", "管理員"}
	DefaultTwitchRoles  = []string{"broadcaster", "moderator"}
)

type Config struct {
	Platform string

	// Discord
	DiscordToken   string
	DiscordGuildID string

	// Twitch
	TwitchChannels    []string
	TwitchBotUsername string
	TwitchOAuthToken  string
	TwitchOutboxDir   string
	// Optional Helix app credentials for channel display names.
	TwitchClientID     string
	TwitchClientSecret string

	// Capture
	IdleTimeout   time.Duration
	SweepSchedule string
	MaxLookback   time.Duration
	MaxMessages   int
	Location      *time.Location
	AllowedRoles  []string

	// Summary
	Summary              summary.Credentials
	ProvidersFile        string
	SummaryTimeout       time.Duration
	SummaryMaxConcurrent int

	// Storage
	DataDir string
	DBDsn   string

	// HTTP
	HTTPAddr      string
	AdminToken    string
	AdminUsername string
	AdminPassword string
}

// Load reads environment variables and applies defaults. Malformed values are errors; missing
// credentials are not (see Validate).
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Platform = strings.ToLower(envOr("PLATFORM", PlatformDiscord))
	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.DiscordGuildID = os.Getenv("DISCORD_GUILD_ID")

	channels := os.Getenv("TWITCH_CHANNELS")
	if channels == "" {
		// single-channel variable kept for older deployments
		channels = os.Getenv("TWITCH_CHANNEL")
	}
	cfg.TwitchChannels = splitList(channels)
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchOutboxDir = envOr("TWITCH_OUTBOX_DIR", "outbox")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")

	if cfg.IdleTimeout, err = durationEnv("CAPTURE_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	cfg.SweepSchedule = envOr("CAPTURE_SWEEP_SCHEDULE", "@every 1m")
	if cfg.MaxLookback, err = durationEnv("CAPTURE_MAX_LOOKBACK", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.MaxMessages, err = intEnv("CAPTURE_MAX_MESSAGES", 100); err != nil {
		return nil, err
	}
	if cfg.Location, err = ParseOffset(envOr("CAPTURE_TZ_OFFSET", "+08:00")); err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_TZ_OFFSET: %w", err)
	}
	cfg.AllowedRoles = splitList(os.Getenv("ALLOWED_ROLES"))
	if len(cfg.AllowedRoles) == 0 {
		cfg.AllowedRoles = DefaultDiscordRoles
		if cfg.Platform == PlatformTwitch {
			cfg.AllowedRoles = DefaultTwitchRoles
		}
	}

	cfg.Summary = summary.Credentials{
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OllamaHost:      os.Getenv("OLLAMA_HOST"),
	}
	cfg.ProvidersFile = os.Getenv("SUMMARY_PROVIDERS_FILE")
	if cfg.SummaryTimeout, err = durationEnv("SUMMARY_TIMEOUT", summary.DefaultTimeout); err != nil {
		return nil, err
	}
	if cfg.SummaryMaxConcurrent, err = intEnv("SUMMARY_MAX_CONCURRENT", 2); err != nil {
		return nil, err
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.AdminUsername = os.Getenv("ADMIN_USERNAME")
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	return cfg, nil
}

// Validate checks the credentials required by the selected platform.
func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformDiscord:
		if c.DiscordToken == "" {
			return fmt.Errorf("missing discord env: require DISCORD_TOKEN")
		}
	case PlatformTwitch:
		if len(c.TwitchChannels) == 0 || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
			return fmt.Errorf("missing twitch env: require TWITCH_CHANNELS, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
		}
	default:
		return fmt.Errorf("unknown PLATFORM %q (want %s or %s)", c.Platform, PlatformDiscord, PlatformTwitch)
	}
	if c.MaxMessages <= 0 {
		return fmt.Errorf("CAPTURE_MAX_MESSAGES must be positive")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("CAPTURE_IDLE_TIMEOUT must be positive")
	}
	return nil
}

// ParseOffset turns "+08:00" / "-05:30" / "Z" into a fixed zone.
func ParseOffset(v string) (*time.Location, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "Z") || strings.EqualFold(v, "UTC") {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", v)
	if err != nil {
		return nil, fmt.Errorf("expected +HH:MM, got %q", v)
	}
	_, secs := t.Zone()
	return time.FixedZone("UTC"+v, secs), nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
