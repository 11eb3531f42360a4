// Package config holds the application configuration: playback behaviour,
// synthesis, caching, learning sessions, audio output and UI preferences.
//
// Defaults live in the envDefault tags. Values are read from the config
// file and TTSAPP_* environment variables through viper.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"

	"github.com/kanada4310/tts-app/internal/audio"
	"github.com/kanada4310/tts-app/internal/cache"
	"github.com/kanada4310/tts-app/internal/orchestrator"
	"github.com/kanada4310/tts-app/internal/policy"
)

const megabyte = 1024 * 1024

// Audio devices.
const (
	DeviceOto  = "oto"
	DeviceMock = "mock"
)

// Voices accepted by the tone synthesizer.
var Voices = []string{"low", "mid", "high"}

// Config is the complete application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" env:"TTSAPP_LOG_LEVEL" envDefault:"info"`

	Playback Playback `yaml:"playback"`
	Synth    Synth    `yaml:"synth"`
	Cache    Cache    `yaml:"cache"`
	Session  Session  `yaml:"session"`
	Audio    Audio    `yaml:"audio"`
	UI       UI       `yaml:"ui"`
}

// Playback controls repeats, pauses and speed.
type Playback struct {
	RepeatCount int `yaml:"repeat_count" env:"TTSAPP_PLAYBACK_REPEAT_COUNT" envDefault:"1"`
	// PauseEnabled pauses after each sentence and resumes after
	// PauseDuration seconds.
	PauseEnabled  bool    `yaml:"pause_enabled" env:"TTSAPP_PLAYBACK_PAUSE_ENABLED" envDefault:"false"`
	PauseDuration float64 `yaml:"pause_duration" env:"TTSAPP_PLAYBACK_PAUSE_DURATION" envDefault:"1.0"`
	// AutoPause pauses after each sentence and waits for the user.
	AutoPause   bool    `yaml:"auto_pause_after_sentence" env:"TTSAPP_PLAYBACK_AUTO_PAUSE_AFTER_SENTENCE" envDefault:"false"`
	AutoAdvance bool    `yaml:"auto_advance" env:"TTSAPP_PLAYBACK_AUTO_ADVANCE" envDefault:"true"`
	Speed       float64 `yaml:"speed" env:"TTSAPP_PLAYBACK_SPEED" envDefault:"1.0"`
	AutoPlay    bool    `yaml:"auto_play" env:"TTSAPP_PLAYBACK_AUTO_PLAY" envDefault:"true"`
}

// Synth configures the offline synthesizer.
type Synth struct {
	Voice             string `yaml:"voice" env:"TTSAPP_SYNTH_VOICE" envDefault:"mid"`
	WordsPerMinute    int    `yaml:"words_per_minute" env:"TTSAPP_SYNTH_WORDS_PER_MINUTE" envDefault:"150"`
	RequestsPerMinute int    `yaml:"requests_per_minute" env:"TTSAPP_SYNTH_REQUESTS_PER_MINUTE" envDefault:"0"`
}

// Cache sizes the synthesized segment cache.
type Cache struct {
	Enabled          bool          `yaml:"enabled" env:"TTSAPP_CACHE_ENABLED" envDefault:"true"`
	Dir              string        `yaml:"dir" env:"TTSAPP_CACHE_DIR"`
	MemoryMB         int           `yaml:"memory_mb" env:"TTSAPP_CACHE_MEMORY_MB" envDefault:"64"`
	DiskMB           int           `yaml:"disk_mb" env:"TTSAPP_CACHE_DISK_MB" envDefault:"512"`
	TTL              time.Duration `yaml:"ttl" env:"TTSAPP_CACHE_TTL" envDefault:"168h"`
	CompressionLevel int           `yaml:"compression_level" env:"TTSAPP_CACHE_COMPRESSION_LEVEL" envDefault:"3"`
}

// Session configures learning-session tracking.
type Session struct {
	Enabled     bool          `yaml:"enabled" env:"TTSAPP_SESSION_ENABLED" envDefault:"true"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"TTSAPP_SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	HistoryFile string        `yaml:"history_file" env:"TTSAPP_SESSION_HISTORY_FILE"`
}

// Audio selects and configures the output device.
type Audio struct {
	Device     string `yaml:"device" env:"TTSAPP_AUDIO_DEVICE" envDefault:"oto"`
	SampleRate int    `yaml:"sample_rate" env:"TTSAPP_AUDIO_SAMPLE_RATE" envDefault:"44100"`
	Channels   int    `yaml:"channels" env:"TTSAPP_AUDIO_CHANNELS" envDefault:"1"`
	BufferSize int    `yaml:"buffer_size" env:"TTSAPP_AUDIO_BUFFER_SIZE" envDefault:"4096"`
}

// UI holds display preferences.
type UI struct {
	HighlightColor string `yaml:"highlight_color" env:"TTSAPP_UI_HIGHLIGHT_COLOR" envDefault:"212"`
	ShowProgress   bool   `yaml:"show_progress" env:"TTSAPP_UI_SHOW_PROGRESS" envDefault:"true"`
}

// DefaultConfig returns the configuration described by the envDefault
// tags, ignoring the process environment.
func DefaultConfig() Config {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: map[string]string{}})
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	p := c.Playback
	if !policy.IsValidRepeatCount(p.RepeatCount) {
		errs = append(errs, fmt.Errorf("playback.repeat_count must be one of %v, got %d", policy.ValidRepeatCounts, p.RepeatCount))
	}
	if p.PauseDuration < policy.MinPauseSeconds || p.PauseDuration > policy.MaxPauseSeconds {
		errs = append(errs, fmt.Errorf("playback.pause_duration must be between %.1f and %.1f, got %.2f",
			policy.MinPauseSeconds, policy.MaxPauseSeconds, p.PauseDuration))
	}
	if p.Speed < audio.MinSpeed || p.Speed > audio.MaxSpeed {
		errs = append(errs, fmt.Errorf("playback.speed must be between %.2f and %.2f, got %.2f",
			audio.MinSpeed, audio.MaxSpeed, p.Speed))
	}

	if !slices.Contains(Voices, c.Synth.Voice) {
		errs = append(errs, fmt.Errorf("synth.voice must be one of %v, got %q", Voices, c.Synth.Voice))
	}
	if c.Synth.WordsPerMinute < 50 || c.Synth.WordsPerMinute > 400 {
		errs = append(errs, fmt.Errorf("synth.words_per_minute must be between 50 and 400, got %d", c.Synth.WordsPerMinute))
	}
	if c.Synth.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("synth.requests_per_minute must not be negative"))
	}

	if c.Cache.MemoryMB < 0 || c.Cache.DiskMB < 0 {
		errs = append(errs, errors.New("cache sizes must not be negative"))
	}
	if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
		errs = append(errs, fmt.Errorf("cache.compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}

	if c.Session.IdleTimeout < time.Minute {
		errs = append(errs, fmt.Errorf("session.idle_timeout must be at least 1m, got %s", c.Session.IdleTimeout))
	}

	switch c.Audio.Device {
	case DeviceOto, DeviceMock:
	default:
		errs = append(errs, fmt.Errorf("audio.device must be %q or %q, got %q", DeviceOto, DeviceMock, c.Audio.Device))
	}
	if c.Audio.SampleRate != 44100 && c.Audio.SampleRate != 48000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be 44100 or 48000, got %d", c.Audio.SampleRate))
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels))
	}
	if c.Audio.BufferSize <= 0 {
		errs = append(errs, errors.New("audio.buffer_size must be positive"))
	}

	return errors.Join(errs...)
}

// ExpandPaths resolves a leading ~ in path settings.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Cache.Dir, &c.Session.HistoryFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("unable to expand %q: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}
	return nil
}

// Settings returns the orchestrator settings for the playback section.
func (c Config) Settings() orchestrator.Settings {
	cfg := policy.DefaultConfig()
	cfg.RepeatCount = c.Playback.RepeatCount
	cfg.AutoAdvance = c.Playback.AutoAdvance
	cfg = policy.PauseSettings{
		Enabled:         c.Playback.PauseEnabled,
		DurationSeconds: c.Playback.PauseDuration,
	}.Apply(cfg, c.Playback.AutoPause)

	return orchestrator.Settings{Config: cfg, Speed: c.Playback.Speed}
}

// CacheConfig returns the cache tier configuration. dir is used when no
// cache directory is configured.
func (c Config) CacheConfig(dir string) cache.Config {
	cfg := cache.DefaultConfig()
	cfg.MemoryCapacity = int64(c.Cache.MemoryMB) * megabyte
	cfg.DiskCapacity = int64(c.Cache.DiskMB) * megabyte
	cfg.CompressionLevel = c.Cache.CompressionLevel
	cfg.TTL = c.Cache.TTL
	cfg.DiskPath = c.Cache.Dir
	if cfg.DiskPath == "" {
		cfg.DiskPath = dir
	}
	return cfg
}

// PlayerConfig returns the device configuration.
func (c Config) PlayerConfig() audio.PlayerConfig {
	pc := audio.DefaultPlayerConfig()
	pc.SampleRate = c.Audio.SampleRate
	pc.Channels = c.Audio.Channels
	pc.BufferSize = c.Audio.BufferSize
	return pc
}
