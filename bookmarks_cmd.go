package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kanada4310/tts-app/internal/session"
)

var (
	bookmarksClear bool

	bookmarksCmd = &cobra.Command{
		Use:     "bookmarks",
		Short:   "List bookmarked sentences",
		Long:    paragraph(fmt.Sprintf("\n%s the sentences bookmarked in the player with %s, with how often each was practiced.", keyword("List"), keyword("b"))),
		Example: paragraph("ttsapp bookmarks\nttsapp bookmarks --clear"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openBookmarks(cfg)
			if err != nil {
				return err
			}

			if bookmarksClear {
				if err := b.Clear(); err != nil {
					return fmt.Errorf("unable to clear bookmarks: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cleared bookmarks", faint(b.Path()))
				return nil
			}

			list := b.List()
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No bookmarks yet.")
				return nil
			}
			for _, bm := range list {
				fmt.Fprintln(cmd.OutOrStdout(), formatBookmark(bm))
			}
			return nil
		},
	}
)

func formatBookmark(bm session.Bookmark) string {
	level := min(max(bm.MasteryLevel, session.MasteryWeak), session.MasteryLearned)
	line := fmt.Sprintf("%s  %s\n    %s, mastery %s",
		keyword(humanize.Time(bm.AddedAt)),
		bm.SentenceText,
		pluralize(bm.PracticeCount, "practice"),
		strings.Repeat("●", level)+strings.Repeat("○", session.MasteryLearned-level),
	)
	if bm.LastPracticedAt != nil {
		line += ", last " + humanize.Time(*bm.LastPracticedAt)
	}
	if bm.Source != "" {
		line += faint(fmt.Sprintf("  (sentence %d of %s)", bm.SentenceIndex+1, bm.Source))
	}
	return line
}

func init() {
	bookmarksCmd.Flags().BoolVar(&bookmarksClear, "clear", false, "delete every bookmark")
}
