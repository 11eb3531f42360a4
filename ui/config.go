package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Path is the file or segment directory being played.
	Path string

	HighlightColor string
	ShowProgress   bool

	GlamourStyle string `env:"GLAMOUR_STYLE" envDefault:"auto"`

	// For debugging the UI
	ShowState    bool `env:"TTSAPP_UI_SHOW_STATE" envDefault:"false"`
	ContextLines int  `env:"TTSAPP_UI_CONTEXT_LINES" envDefault:"0"`
}
