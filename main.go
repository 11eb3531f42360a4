// Package main provides the entry point for the ttsapp CLI application.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/kanada4310/tts-app/internal/config"
	"github.com/kanada4310/tts-app/internal/synth"
)

const appName = "ttsapp"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	headless   bool
	debug      bool

	// cfg is loaded in validateOptions, before any command runs.
	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "ttsapp [FILE|DIR]",
		Short: "Listen to a text one sentence at a time",
		Long: paragraph(
			fmt.Sprintf("\nListen to a text %s, with repeats and pauses for shadowing practice.", keyword("one sentence at a time")),
		),
		Example: paragraph("ttsapp lesson.md\nttsapp --repeat 3 --pause 1.5 lesson.txt\nttsapp path/to/segments/"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	loaded, err := config.LoadFromViper(viper.GetViper())
	if err != nil {
		return err
	}
	cfg = loaded
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		cfg.Cache.Enabled = false
	}

	if debug || viper.GetBool("debug") {
		cfg.LogLevel = "debug"
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log.SetLevel(level)

	// Without a terminal there is nothing to draw on.
	if !cmd.Flags().Changed("headless") && !term.IsTerminal(int(os.Stdout.Fd())) {
		headless = true
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}
	path, err = synth.Resolve(path)
	if err != nil {
		return fmt.Errorf("unable to open source: %w", err)
	}
	log.Debug("Playing", "path", path)

	a, err := newApp(cfg, path, log.Default())
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	ctx := cmd.Context()
	if headless {
		return a.runHeadless(ctx, cmd.OutOrStdout())
	}
	return a.runTUI(ctx)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug output to the log file")
	rootCmd.Flags().BoolVar(&headless, "headless", false, "print sentences instead of running the player UI")
	rootCmd.Flags().IntP("repeat", "r", 1, "play each sentence this many times (1, 3, 5 or -1 for endless)")
	rootCmd.Flags().Float64P("pause", "p", 1.0, "pause this many seconds after each sentence")
	rootCmd.Flags().Bool("pause-enabled", false, "pause after each sentence and resume automatically")
	rootCmd.Flags().Float64P("speed", "s", 1.0, "playback speed (0.25 to 2.0)")
	rootCmd.Flags().String("voice", "mid", "synthesizer voice (low, mid, high)")
	rootCmd.Flags().String("device", config.DeviceOto, "audio device (oto or mock)")
	rootCmd.Flags().Bool("no-cache", false, "synthesize without the segment cache")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("playback.repeat_count", rootCmd.Flags().Lookup("repeat"))
	_ = viper.BindPFlag("playback.pause_duration", rootCmd.Flags().Lookup("pause"))
	_ = viper.BindPFlag("playback.pause_enabled", rootCmd.Flags().Lookup("pause-enabled"))
	_ = viper.BindPFlag("playback.speed", rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag("synth.voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("audio.device", rootCmd.Flags().Lookup("device"))

	config.SetViperDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, sessionsCmd, bookmarksCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, appName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, appName)}, dirs...)
	}

	if c := os.Getenv("TTSAPP_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(appName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], appName+".yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
