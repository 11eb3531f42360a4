package synth

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "simple",
			in:   "Hello world. How are you? I am fine!",
			want: []string{"Hello world.", "How are you?", "I am fine!"},
		},
		{
			name: "title abbreviation",
			in:   "Dr. Smith arrived. He sat down.",
			want: []string{"Dr. Smith arrived.", "He sat down."},
		},
		{
			name: "decimal",
			in:   "It costs 3.50 dollars. Cheap.",
			want: []string{"It costs 3.50 dollars.", "Cheap."},
		},
		{
			name: "ellipsis before capital",
			in:   "Wait... What happened?",
			want: []string{"Wait...", "What happened?"},
		},
		{
			name: "ellipsis mid sentence",
			in:   "Well... maybe not.",
			want: []string{"Well... maybe not."},
		},
		{
			name: "quote closes sentence",
			in:   `He said "Stop." Then he left.`,
			want: []string{`He said "Stop."`, "Then he left."},
		},
		{
			name: "dotted abbreviation",
			in:   "See e.g. this case. Next.",
			want: []string{"See e.g. this case.", "Next."},
		},
		{
			name: "url",
			in:   "Visit https://example.com today. Thanks.",
			want: []string{"Visit https://example.com today.", "Thanks."},
		},
		{
			name: "japanese",
			in:   "今日は晴れです。明日は雨です。",
			want: []string{"今日は晴れです。", "明日は雨です。"},
		},
		{
			name: "paragraphs without punctuation",
			in:   "First line\n\nSecond line",
			want: []string{"First line", "Second line"},
		},
		{
			name: "lines joined within a paragraph",
			in:   "A sentence that\nwraps. Another.",
			want: []string{"A sentence that wraps.", "Another."},
		},
		{
			name: "blank",
			in:   "  \n\n \t ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSentences(%q)\n got %q\nwant %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitSentencesLimitsLength(t *testing.T) {
	in := strings.Repeat("word ", 300)

	got := SplitSentences(in)
	if len(got) < 2 {
		t.Fatalf("expected the sentence to be cut, got %d pieces", len(got))
	}

	words := 0
	for _, s := range got {
		if n := len([]rune(s)); n > MaxSentenceLength {
			t.Errorf("piece has %d runes", n)
		}
		words += len(strings.Fields(s))
	}
	if words != 300 {
		t.Errorf("pieces hold %d words, want 300", words)
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "blocks",
			in:   "# Title\n\nSome *bold* text.\n\n```go\ncode()\n```\n\n- item one\n- item two\n",
			want: []string{"Title.", "Some bold text.", "item one.", "item two."},
		},
		{
			name: "link text",
			in:   "Read [the docs](http://example.com) now.",
			want: []string{"Read the docs now."},
		},
		{
			name: "inline code",
			in:   "Run `make` first.",
			want: []string{"Run make first."},
		},
		{
			name: "html dropped",
			in:   "<div>hidden</div>\n\nShown.",
			want: []string{"Shown."},
		},
		{
			name: "soft breaks",
			in:   "line one\nline two",
			want: []string{"line one line two."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(ExtractText(tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
