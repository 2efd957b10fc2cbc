package basic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var sourceLine = regexp.MustCompile(`^(\d+)\s*(.*)$`)

// ParseSource splits program text into numbered lines. Blank lines and lines
// starting with # or // are skipped. Source order is kept; Encode rejects
// programs whose numbers are not increasing.
func ParseSource(text string) ([]Line, error) {
	var lines []Line
	for i, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "//") {
			continue
		}
		m := sourceLine.FindStringSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("source line %d: %w: %q", i+1, ErrMissingLineNumber, raw)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n > MaxLineNumber {
			return nil, fmt.Errorf("source line %d: %w: %s", i+1, ErrLineNumberRange, m[1])
		}
		lines = append(lines, Line{Number: uint16(n), Text: m[2]})
	}
	return lines, nil
}

// EncodeSource parses and encodes program text in one step.
func EncodeSource(text string, base uint16) (*Image, error) {
	lines, err := ParseSource(text)
	if err != nil {
		return nil, err
	}
	return Encode(lines, base)
}
