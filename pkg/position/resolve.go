package position

import (
	"errors"
	"fmt"
)

// ErrOutOfRange reports a line outside the snapshot. Callers treat it as
// "no precise position", never as a fatal error.
var ErrOutOfRange = errors.New("line out of range")

// OutOfRangeError carries the offending line and the snapshot size.
type OutOfRangeError struct {
	Line      int
	LineCount int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("line %d out of range, snapshot has %d lines", e.Line, e.LineCount)
}

func (e *OutOfRangeError) Unwrap() error {
	return ErrOutOfRange
}

// TextRange is a half-open [Start, End) range of absolute character offsets.
type TextRange struct {
	Start int `json:"start" msgpack:"start"`
	End   int `json:"end" msgpack:"end"`
}

func (r TextRange) Len() int {
	return r.End - r.Start
}

func (r TextRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Resolve maps a 1-based line and optional intra-line offsets onto an absolute range.
//
// A nil endLine defaults to startLine, a nil startOffset to the line start and a nil
// endOffset to the end of the end line's content, so a location without offsets covers
// the full line excluding its terminator.
func Resolve(s *Snapshot, startLine int, startOffset, endLine, endOffset *int) (TextRange, error) {
	lastLine := startLine
	if endLine != nil {
		lastLine = *endLine
	}
	if startLine < 1 || startLine > s.LineCount() {
		return TextRange{}, &OutOfRangeError{Line: startLine, LineCount: s.LineCount()}
	}
	if lastLine < startLine || lastLine > s.LineCount() {
		return TextRange{}, &OutOfRangeError{Line: lastLine, LineCount: s.LineCount()}
	}

	start := s.starts[startLine-1]
	if startOffset != nil && *startOffset > 0 {
		start += *startOffset
	}

	end := s.starts[lastLine-1]
	if endOffset != nil {
		if *endOffset > 0 {
			end += *endOffset
		}
	} else {
		end += charLen(s.lines[lastLine-1].Text)
	}
	if end < start {
		end = start
	}
	return TextRange{Start: start, End: end}, nil
}

// ResolveLine is Resolve for a whole line.
func ResolveLine(s *Snapshot, line int) (TextRange, error) {
	return Resolve(s, line, nil, nil, nil)
}
