package config

// DefaultFile is written on first run and opened by `ttsapp config`.
const DefaultFile = `# log level: debug, info, warn or error
log_level: info

playback:
  # times each sentence is played: 1, 3, 5 or -1 (until you move on)
  repeat_count: 1
  # pause after every sentence, then continue by itself
  pause_enabled: false
  # length of that pause in seconds (0 to 5)
  pause_duration: 1.0
  # pause after every sentence and wait for you to continue
  auto_pause_after_sentence: false
  # move to the next sentence when one finishes
  auto_advance: true
  # playback rate (0.25 to 2.0)
  speed: 1.0
  # start playing as soon as a file is loaded
  auto_play: true

synth:
  # tone voice: low, mid or high
  voice: mid
  words_per_minute: 150
  # limit synthesis requests per minute (0 disables the limit)
  requests_per_minute: 0

cache:
  enabled: true
  # defaults to the user cache directory
  # dir: ~/.cache/ttsapp/segments
  memory_mb: 64
  disk_mb: 512
  ttl: 168h
  # zstd level, 0 stores segments uncompressed
  compression_level: 3

session:
  enabled: true
  # a session ends after this long without activity
  idle_timeout: 30m
  # defaults to the user data directory
  # history_file: ~/.local/share/ttsapp/sessions.yml

audio:
  # oto plays through the sound card, mock plays silently
  device: oto
  sample_rate: 44100
  channels: 1
  buffer_size: 4096

ui:
  highlight_color: "212"
  show_progress: true
`
