package synth

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaxSentenceLength caps one sentence in runes. Longer ones are cut at the
// last space before the limit.
const MaxSentenceLength = 1000

var (
	spaceRun     = regexp.MustCompile(`[ \t\r\f\v]+`)
	paragraphGap = regexp.MustCompile(`\n{2,}`)
)

// ExtractText turns markdown into speakable plain text. Code and HTML
// blocks are dropped, link targets are dropped in favour of link text, and
// block elements end with a sentence break.
func ExtractText(markdown string) string {
	reader := text.NewReader([]byte(markdown))
	doc := goldmark.New().Parser().Parse(reader)

	var buf strings.Builder
	walk(doc, reader.Source(), &buf)
	return strings.TrimSpace(buf.String())
}

func walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.Image:
		// Alt text only.
		walkChildren(n, source, buf)
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem:
		walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *ast.ThematicBreak:
		endSentence(buf)
		return
	}

	walkChildren(node, source, buf)
}

func walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walk(c, source, buf)
	}
}

// endSentence terminates the text written so far, adding a period unless
// it already ends with sentence punctuation.
func endSentence(buf *strings.Builder) {
	s := strings.TrimRightFunc(buf.String(), unicode.IsSpace)
	if s == "" {
		return
	}
	last := []rune(s)[len([]rune(s))-1]
	if !isTerminal(last) && last != ':' {
		buf.Reset()
		buf.WriteString(s)
		buf.WriteByte('.')
	}
	buf.WriteString("\n\n")
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// isCJKTerminal reports punctuation that ends a sentence without a
// following space.
func isCJKTerminal(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

// SplitSentences splits plain text into sentences. A sentence ends at
// terminal punctuation followed by whitespace and an upper-case letter or
// CJK character, at a paragraph break, or at the end of the text.
// Abbreviations, decimals and ellipses do not end sentences.
func SplitSentences(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")

	var out []string
	for _, para := range paragraphGap.Split(s, -1) {
		para = strings.TrimSpace(strings.ReplaceAll(para, "\n", " "))
		if para == "" {
			continue
		}
		for _, sentence := range splitParagraph([]rune(para)) {
			out = append(out, limitLength(sentence)...)
		}
	}
	return out
}

func splitParagraph(runes []rune) []string {
	var out []string
	start := 0
	for i := 0; i < len(runes); i++ {
		if !boundaryAt(runes, i) {
			continue
		}
		// Keep trailing closing punctuation with the sentence.
		end := i + 1
		for end < len(runes) && isCloser(runes[end]) {
			end++
		}
		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			out = append(out, sentence)
		}
		start = end
		i = end - 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func boundaryAt(runes []rune, i int) bool {
	r := runes[i]
	if isCJKTerminal(r) {
		return i+1 >= len(runes) || !isTerminal(runes[i+1])
	}
	if !isTerminal(r) && r != ':' {
		return false
	}

	// Runs of punctuation end at the last mark.
	if i+1 < len(runes) && (isTerminal(runes[i+1]) || runes[i+1] == ':') {
		return false
	}
	if r == '.' {
		if i > 0 && runes[i-1] == '.' {
			// Ellipsis: only a boundary before a capital.
			return nextStartsSentence(runes, i)
		}
		if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			return false
		}
		if word := wordBefore(runes, i); titleAbbreviations[word] {
			return false
		} else if abbreviations[word] {
			return nextStartsSentence(runes, i) && !isInitialism(runes, i)
		}
	}
	if r == ':' {
		// "https://", "Note: see" and "Items: one" are not boundaries.
		return i+1 < len(runes) && runes[i+1] == ' ' && nextStartsSentence(runes, i)
	}

	end := i + 1
	for end < len(runes) && isCloser(runes[end]) {
		end++
	}
	if end >= len(runes) {
		return true
	}
	if runes[end] != ' ' {
		return false
	}
	return nextStartsSentence(runes, end-1)
}

// nextStartsSentence reports whether the first non-space rune after i is an
// upper-case letter, a digit, an opening quote or a CJK character.
func nextStartsSentence(runes []rune, i int) bool {
	j := i + 1
	for j < len(runes) && (runes[j] == ' ' || isCloser(runes[j])) {
		j++
	}
	if j >= len(runes) {
		return true
	}
	r := runes[j]
	return unicode.IsUpper(r) || unicode.IsDigit(r) || r == '"' || r == '“' || r == '\'' || r == '(' ||
		unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’', '」', '』':
		return true
	}
	return false
}

// isInitialism reports a period inside a dotted abbreviation such as
// "e.g." where another letter-period pair follows directly.
func isInitialism(runes []rune, i int) bool {
	return i+2 < len(runes) && unicode.IsLetter(runes[i+1]) && runes[i+2] == '.'
}

func wordBefore(runes []rune, i int) string {
	start := i
	for start > 0 && !unicode.IsSpace(runes[start-1]) && runes[start-1] != '(' {
		start--
	}
	return strings.ToLower(string(runes[start:i]))
}

// limitLength cuts sentences longer than MaxSentenceLength runes.
func limitLength(s string) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > MaxSentenceLength {
		cut := MaxSentenceLength
		for j := cut; j > MaxSentenceLength/2; j-- {
			if runes[j] == ' ' {
				cut = j
				break
			}
		}
		out = append(out, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		out = append(out, rest)
	}
	return out
}

var titleAbbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true,
}

var abbreviations = map[string]bool{
	"etc": true, "vs": true, "e.g": true, "i.e": true, "e": true, "i": true,
	"inc": true, "ltd": true, "co": true, "corp": true, "no": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
	"nov": true, "dec": true, "approx": true, "fig": true,
}
