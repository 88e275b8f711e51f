// internal/util/util.go
package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// WrapAnswer wraps prose in text to width runes. Fenced code blocks and indented lines are
// left as they are so snippets in an answer stay copyable. Words longer than width are kept
// whole on their own line.
func WrapAnswer(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	inFence := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			out = append(out, line)
			continue
		}
		if inFence || trimmed == "" || line != strings.TrimLeft(line, " \t") {
			out = append(out, line)
			continue
		}
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	var lines []string
	var cur strings.Builder
	runeCount := 0
	for _, w := range strings.Fields(line) {
		wLen := utf8.RuneCountInString(w)
		if runeCount > 0 && runeCount+1+wLen > width {
			lines = append(lines, cur.String())
			cur.Reset()
			runeCount = 0
		}
		if runeCount > 0 {
			cur.WriteByte(' ')
			runeCount++
		}
		cur.WriteString(w)
		runeCount += wLen
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
