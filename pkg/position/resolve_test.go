package position

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointSource = "package com.example.geometry;\n" +
	"\n" +
	"public class Point {\n" +
	"  Point(final int x){\n" +
	"    this.x = x;\n" +
	"  }\n" +
	"}\n"

func intPtr(v int) *int { return &v }

func TestParseKeepsTerminators(t *testing.T) {
	s := Parse([]byte("a\r\nbb\ncc\rd"))
	require.Equal(t, 4, s.LineCount())

	want := []Line{
		{Text: "a", Terminator: CRLF},
		{Text: "bb", Terminator: LF},
		{Text: "cc", Terminator: CR},
		{Text: "d", Terminator: None},
	}
	for i, w := range want {
		got, ok := s.Line(i + 1)
		require.True(t, ok)
		assert.Equal(t, w, got, "line %d", i+1)
	}
}

func TestParseTrailingTerminatorAddsNoLine(t *testing.T) {
	assert.Equal(t, 2, Parse([]byte("a\nb\n")).LineCount())
	assert.Equal(t, 1, Parse([]byte("")).LineCount())
}

func TestResolve(t *testing.T) {
	s := Parse([]byte(pointSource))

	tests := []struct {
		name        string
		startLine   int
		startOffset *int
		endLine     *int
		endOffset   *int
		want        TextRange
	}{
		{
			name:        "Offsets on one line",
			startLine:   5,
			startOffset: intPtr(4),
			endLine:     intPtr(5),
			endOffset:   intPtr(14),
			want:        TextRange{Start: 78, End: 88},
		},
		{
			name:      "No offsets spans the full line",
			startLine: 5,
			want:      TextRange{Start: 74, End: 89},
		},
		{
			name:        "End line defaults to start line",
			startLine:   3,
			startOffset: intPtr(7),
			endOffset:   intPtr(12),
			want:        TextRange{Start: 38, End: 43},
		},
		{
			name:        "Multi line without end offset runs to end of last line",
			startLine:   4,
			startOffset: intPtr(2),
			endLine:     intPtr(6),
			want:        TextRange{Start: 54, End: 93},
		},
		{
			name:      "Empty line",
			startLine: 2,
			want:      TextRange{Start: 30, End: 30},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(s, tt.startLine, tt.startOffset, tt.endLine, tt.endOffset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveOutOfRange(t *testing.T) {
	s := Parse([]byte(pointSource))

	for _, line := range []int{0, -1, 8, 100} {
		_, err := ResolveLine(s, line)
		require.Error(t, err, "line %d", line)
		assert.True(t, errors.Is(err, ErrOutOfRange))

		var oor *OutOfRangeError
		require.True(t, errors.As(err, &oor))
		assert.Equal(t, line, oor.Line)
		assert.Equal(t, 7, oor.LineCount)
	}

	_, err := Resolve(s, 5, nil, intPtr(9), nil)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestResolveIsDeterministic(t *testing.T) {
	s := Parse([]byte(pointSource))
	first, err := Resolve(s, 5, intPtr(4), nil, intPtr(14))
	require.NoError(t, err)
	second, err := Resolve(s, 5, intPtr(4), nil, intPtr(14))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveMixedTerminators(t *testing.T) {
	// "ab\r\n" = 4, "c\n" = 2, "def\r" = 4
	s := Parse([]byte("ab\r\nc\ndef\rgh"))

	got, err := Resolve(s, 4, intPtr(1), nil, intPtr(2))
	require.NoError(t, err)
	assert.Equal(t, TextRange{Start: 11, End: 12}, got)

	got, err = ResolveLine(s, 2)
	require.NoError(t, err)
	assert.Equal(t, TextRange{Start: 4, End: 5}, got)
}

func TestResolveAfterInsertedLines(t *testing.T) {
	shifted := Parse([]byte("\n\n" + pointSource))
	got, err := Resolve(shifted, 7, intPtr(4), intPtr(7), intPtr(14))
	require.NoError(t, err)
	assert.Equal(t, TextRange{Start: 80, End: 90}, got)

	crlf := Parse([]byte("\r\n\r\n" + pointSource))
	got, err = Resolve(crlf, 7, intPtr(4), intPtr(7), intPtr(14))
	require.NoError(t, err)
	assert.Equal(t, TextRange{Start: 82, End: 92}, got)
}

func TestResolveCountsUTF16Units(t *testing.T) {
	// U+1F600 takes two UTF-16 code units, é takes one.
	s := Parse([]byte("é\U0001F600\nx"))
	start, ok := s.LineStart(2)
	require.True(t, ok)
	assert.Equal(t, 4, start)
}
