package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadFromViper reads the configuration from v on top of the defaults and
// validates it.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	if v.IsSet("log_level") {
		cfg.LogLevel = v.GetString("log_level")
	}

	// Playback
	if v.IsSet("playback.repeat_count") {
		cfg.Playback.RepeatCount = v.GetInt("playback.repeat_count")
	}
	if v.IsSet("playback.pause_enabled") {
		cfg.Playback.PauseEnabled = v.GetBool("playback.pause_enabled")
	}
	if v.IsSet("playback.pause_duration") {
		cfg.Playback.PauseDuration = v.GetFloat64("playback.pause_duration")
	}
	if v.IsSet("playback.auto_pause_after_sentence") {
		cfg.Playback.AutoPause = v.GetBool("playback.auto_pause_after_sentence")
	}
	if v.IsSet("playback.auto_advance") {
		cfg.Playback.AutoAdvance = v.GetBool("playback.auto_advance")
	}
	if v.IsSet("playback.speed") {
		cfg.Playback.Speed = v.GetFloat64("playback.speed")
	}
	if v.IsSet("playback.auto_play") {
		cfg.Playback.AutoPlay = v.GetBool("playback.auto_play")
	}

	// Synthesis
	if v.IsSet("synth.voice") {
		cfg.Synth.Voice = v.GetString("synth.voice")
	}
	if v.IsSet("synth.words_per_minute") {
		cfg.Synth.WordsPerMinute = v.GetInt("synth.words_per_minute")
	}
	if v.IsSet("synth.requests_per_minute") {
		cfg.Synth.RequestsPerMinute = v.GetInt("synth.requests_per_minute")
	}

	// Cache
	if v.IsSet("cache.enabled") {
		cfg.Cache.Enabled = v.GetBool("cache.enabled")
	}
	if v.IsSet("cache.dir") {
		cfg.Cache.Dir = v.GetString("cache.dir")
	}
	if v.IsSet("cache.memory_mb") {
		cfg.Cache.MemoryMB = v.GetInt("cache.memory_mb")
	}
	if v.IsSet("cache.disk_mb") {
		cfg.Cache.DiskMB = v.GetInt("cache.disk_mb")
	}
	if v.IsSet("cache.ttl") {
		cfg.Cache.TTL = v.GetDuration("cache.ttl")
	}
	if v.IsSet("cache.compression_level") {
		cfg.Cache.CompressionLevel = v.GetInt("cache.compression_level")
	}

	// Sessions
	if v.IsSet("session.enabled") {
		cfg.Session.Enabled = v.GetBool("session.enabled")
	}
	if v.IsSet("session.idle_timeout") {
		cfg.Session.IdleTimeout = v.GetDuration("session.idle_timeout")
	}
	if v.IsSet("session.history_file") {
		cfg.Session.HistoryFile = v.GetString("session.history_file")
	}

	// Audio
	if v.IsSet("audio.device") {
		cfg.Audio.Device = v.GetString("audio.device")
	}
	if v.IsSet("audio.sample_rate") {
		cfg.Audio.SampleRate = v.GetInt("audio.sample_rate")
	}
	if v.IsSet("audio.channels") {
		cfg.Audio.Channels = v.GetInt("audio.channels")
	}
	if v.IsSet("audio.buffer_size") {
		cfg.Audio.BufferSize = v.GetInt("audio.buffer_size")
	}

	// UI
	if v.IsSet("ui.highlight_color") {
		cfg.UI.HighlightColor = v.GetString("ui.highlight_color")
	}
	if v.IsSet("ui.show_progress") {
		cfg.UI.ShowProgress = v.GetBool("ui.show_progress")
	}

	if err := cfg.ExpandPaths(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SetViperDefaults registers the defaults with v so that they show up in
// v.AllSettings and bound flags fall back to them.
func SetViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("playback.repeat_count", d.Playback.RepeatCount)
	v.SetDefault("playback.pause_enabled", d.Playback.PauseEnabled)
	v.SetDefault("playback.pause_duration", d.Playback.PauseDuration)
	v.SetDefault("playback.auto_pause_after_sentence", d.Playback.AutoPause)
	v.SetDefault("playback.auto_advance", d.Playback.AutoAdvance)
	v.SetDefault("playback.speed", d.Playback.Speed)
	v.SetDefault("playback.auto_play", d.Playback.AutoPlay)

	v.SetDefault("synth.voice", d.Synth.Voice)
	v.SetDefault("synth.words_per_minute", d.Synth.WordsPerMinute)
	v.SetDefault("synth.requests_per_minute", d.Synth.RequestsPerMinute)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", d.Cache.DiskMB)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)

	v.SetDefault("session.enabled", d.Session.Enabled)
	v.SetDefault("session.idle_timeout", d.Session.IdleTimeout)

	v.SetDefault("audio.device", d.Audio.Device)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.channels", d.Audio.Channels)
	v.SetDefault("audio.buffer_size", d.Audio.BufferSize)

	v.SetDefault("ui.highlight_color", d.UI.HighlightColor)
	v.SetDefault("ui.show_progress", d.UI.ShowProgress)
}
