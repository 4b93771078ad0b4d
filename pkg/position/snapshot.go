// Package position maps analyzer line/offset pairs onto absolute character ranges
// inside a text snapshot.
package position

import (
	"fmt"
	"os"
	"unicode/utf8"
)

// Terminator identifies how a line ends.
type Terminator uint8

const (
	None Terminator = iota
	LF
	CRLF
	CR
)

// Width is the number of characters the terminator occupies.
func (t Terminator) Width() int {
	switch t {
	case LF, CR:
		return 1
	case CRLF:
		return 2
	default:
		return 0
	}
}

func (t Terminator) String() string {
	switch t {
	case LF:
		return "LF"
	case CRLF:
		return "CRLF"
	case CR:
		return "CR"
	default:
		return "none"
	}
}

// Line is one line of a snapshot, content without its terminator.
type Line struct {
	Text       string
	Terminator Terminator
}

// Snapshot is an immutable view of a file's lines at the time of reconciliation.
type Snapshot struct {
	lines  []Line
	starts []int // absolute offset of each line start
}

// NewSnapshot builds a snapshot from already split lines.
func NewSnapshot(lines []Line) *Snapshot {
	s := &Snapshot{
		lines:  lines,
		starts: make([]int, len(lines)),
	}
	offset := 0
	for i, l := range lines {
		s.starts[i] = offset
		offset += charLen(l.Text) + l.Terminator.Width()
	}
	return s
}

// Parse splits content into lines, keeping the terminator of every line.
// A trailing terminator does not produce an extra empty line.
func Parse(content []byte) *Snapshot {
	var lines []Line
	start := 0
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case '\n':
			lines = append(lines, Line{Text: string(content[start:i]), Terminator: LF})
			start = i + 1
		case '\r':
			if i+1 < len(content) && content[i+1] == '\n' {
				lines = append(lines, Line{Text: string(content[start:i]), Terminator: CRLF})
				i++
			} else {
				lines = append(lines, Line{Text: string(content[start:i]), Terminator: CR})
			}
			start = i + 1
		}
	}
	if start < len(content) || len(lines) == 0 {
		lines = append(lines, Line{Text: string(content[start:]), Terminator: None})
	}
	return NewSnapshot(lines)
}

// Load reads a snapshot from disk. An unreadable file is the one fatal condition of
// reconciliation and is reported to the caller for that file only.
func Load(path string) (*Snapshot, error) {
	// #nosec G304 -- path is provided by the caller
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %q: %w", path, err)
	}
	return Parse(content), nil
}

// LineCount returns the number of lines in the snapshot.
func (s *Snapshot) LineCount() int {
	return len(s.lines)
}

// Line returns the 1-based line n.
func (s *Snapshot) Line(n int) (Line, bool) {
	if n < 1 || n > len(s.lines) {
		return Line{}, false
	}
	return s.lines[n-1], true
}

// LineText returns the content of the 1-based line n without its terminator.
func (s *Snapshot) LineText(n int) (string, bool) {
	l, ok := s.Line(n)
	return l.Text, ok
}

// LineStart returns the absolute offset of the first character of the 1-based line n.
func (s *Snapshot) LineStart(n int) (int, bool) {
	if n < 1 || n > len(s.lines) {
		return 0, false
	}
	return s.starts[n-1], true
}

// charLen counts characters the way the host editor does: UTF-16 code units.
func charLen(text string) int {
	n := 0
	for _, r := range text {
		if r >= 0x10000 && r <= utf8.MaxRune {
			n += 2
		} else {
			n++
		}
	}
	return n
}
