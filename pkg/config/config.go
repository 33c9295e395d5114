// Package config loads the server configuration: HTTP listen address,
// storage path, vendor wiring for the speech and language providers, and the
// conversation cadence settings.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/intervox/intervox/pkg/orchestrator"
	"github.com/intervox/intervox/pkg/timing"
)

type Config struct {
	Server      ServerConfig  `mapstructure:"server"`
	Storage     StorageConfig `mapstructure:"storage"`
	Vendors     VendorsConfig `mapstructure:"vendors"`
	Session     SessionConfig `mapstructure:"session"`
	Timing      TimingConfig  `mapstructure:"timing"`
	Environment string        `mapstructure:"environment"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

// SessionConfig carries the conversation cadence knobs.
type SessionConfig struct {
	SilenceS         float64 `mapstructure:"silence_s"`
	PollIntervalMS   int     `mapstructure:"poll_interval_ms"`
	PostWindowGraceS float64 `mapstructure:"post_window_grace_s"`
	ReadingGraceS    float64 `mapstructure:"reading_grace_s"`
	TimeoutMarginS   int     `mapstructure:"timeout_margin_s"`
	CloseDelayS      int     `mapstructure:"close_delay_s"`
	SpeechDelayMS    int     `mapstructure:"speech_delay_ms"`
	// AllowedDurations are the accepted interview lengths in minutes.
	AllowedDurations []int `mapstructure:"allowed_durations"`
}

// TimingConfig carries the speaking-time estimation and escalation bands.
type TimingConfig struct {
	PerCharMS    int     `mapstructure:"per_char_ms"`
	MinReadingS  float64 `mapstructure:"min_reading_s"`
	MaxReadingS  float64 `mapstructure:"max_reading_s"`
	HardStopS    int     `mapstructure:"hard_stop_s"`
	ConcludeS    int     `mapstructure:"conclude_s"`
	ShortenLowS  int     `mapstructure:"shorten_low_s"`
	ShortenHighS int     `mapstructure:"shorten_high_s"`
}

func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", "data/intervox.db")
	v.SetDefault("session.silence_s", 3.0)
	v.SetDefault("session.poll_interval_ms", 500)
	v.SetDefault("session.post_window_grace_s", 1.0)
	v.SetDefault("session.reading_grace_s", 1.0)
	v.SetDefault("session.timeout_margin_s", 5)
	v.SetDefault("session.close_delay_s", 2)
	v.SetDefault("session.speech_delay_ms", 500)
	v.SetDefault("session.allowed_durations", []int{5, 10, 15})
	v.SetDefault("timing.per_char_ms", 40)
	v.SetDefault("timing.min_reading_s", 2.5)
	v.SetDefault("timing.max_reading_s", 8.0)
	v.SetDefault("timing.hard_stop_s", 10)
	v.SetDefault("timing.conclude_s", 15)
	v.SetDefault("timing.shorten_low_s", 20)
	v.SetDefault("timing.shorten_high_s", 40)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if len(c.Session.AllowedDurations) == 0 {
		return fmt.Errorf("session.allowed_durations must not be empty")
	}
	return nil
}

// Policy builds the speaking-time policy from the timing section.
func (c *Config) Policy() timing.Policy {
	return timing.Policy{
		PerCharRate: time.Duration(c.Timing.PerCharMS) * time.Millisecond,
		MinDuration: secondsToDuration(c.Timing.MinReadingS),
		MaxDuration: secondsToDuration(c.Timing.MaxReadingS),
		HardStop:    time.Duration(c.Timing.HardStopS) * time.Second,
		Conclude:    time.Duration(c.Timing.ConcludeS) * time.Second,
		ShortenLow:  time.Duration(c.Timing.ShortenLowS) * time.Second,
		ShortenHigh: time.Duration(c.Timing.ShortenHighS) * time.Second,
	}
}

// OrchestratorConfig builds the per-conversation cadence settings. Prompts
// are filled in per interview by the caller.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		PollInterval:    time.Duration(c.Session.PollIntervalMS) * time.Millisecond,
		PostWindowGrace: secondsToDuration(c.Session.PostWindowGraceS),
		ReadingGrace:    secondsToDuration(c.Session.ReadingGraceS),
		TimeoutMargin:   time.Duration(c.Session.TimeoutMarginS) * time.Second,
		CloseDelay:      time.Duration(c.Session.CloseDelayS) * time.Second,
		SpeechDelay:     time.Duration(c.Session.SpeechDelayMS) * time.Millisecond,
	}
}

// SilenceThreshold returns the default end-of-turn silence threshold.
func (c *Config) SilenceThreshold() time.Duration {
	return secondsToDuration(c.Session.SilenceS)
}

// DurationAllowed reports whether an interview length (minutes) is accepted.
func (c *Config) DurationAllowed(minutes int) bool {
	return slices.Contains(c.Session.AllowedDurations, minutes)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func expandEnvStrings(cfg *Config) {
	cfg.Storage.DBPath = os.ExpandEnv(cfg.Storage.DBPath)
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		if s, ok := v.(string); ok {
			settings[k] = os.ExpandEnv(s)
		}
	}
	return settings
}
