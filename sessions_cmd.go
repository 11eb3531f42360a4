package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kanada4310/tts-app/internal/session"
)

var (
	sessionsLimit int
	sessionsClear bool

	sessionsCmd = &cobra.Command{
		Use:     "sessions",
		Short:   "List past learning sessions",
		Long:    paragraph(fmt.Sprintf("\n%s past learning sessions: what was practiced, for how long and how often each sentence was played.", keyword("List"))),
		Example: paragraph("ttsapp sessions\nttsapp sessions --limit 5\nttsapp sessions --clear"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openHistory(cfg)
			if err != nil {
				return err
			}

			if sessionsClear {
				if err := h.Clear(); err != nil {
					return fmt.Errorf("unable to clear sessions: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared session history", faint(h.Path()))
				return nil
			}

			sessions := h.Sessions()
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions yet.")
				return nil
			}
			if sessionsLimit > 0 && len(sessions) > sessionsLimit {
				sessions = sessions[:sessionsLimit]
			}
			for _, s := range sessions {
				fmt.Fprintln(cmd.OutOrStdout(), formatSession(s))
			}
			return nil
		},
	}
)

func formatSession(s session.Session) string {
	line := fmt.Sprintf("%s  %s\n    %s, %s, %s",
		keyword(humanize.Time(s.StartTime)),
		s.MaterialPreview,
		pluralize(s.SentenceCount, "sentence"),
		pluralize(s.PlayCount, "play"),
		pluralize(s.RepeatCount, "repeat"),
	)
	if s.EndTime != nil {
		line += ", " + s.TotalDuration.Round(time.Second).String()
	}
	if idx, n := mostPracticed(s); n > 1 {
		line += faint(fmt.Sprintf("  (sentence %d played %d times)", idx+1, n))
	}
	return line
}

// mostPracticed returns the sentence played most often, lowest index first
// on ties.
func mostPracticed(s session.Session) (index, count int) {
	index = -1
	for i, n := range s.SentencePracticeCounts {
		if n > count || (n == count && i < index) {
			index, count = i, n
		}
	}
	return index, count
}

func pluralize(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 10, "show at most this many sessions (0 for all)")
	sessionsCmd.Flags().BoolVar(&sessionsClear, "clear", false, "delete the session history")
}
