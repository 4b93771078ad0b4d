package findings

import (
	"time"

	"github.com/scan-io-git/scanio-ide/pkg/position"
	"github.com/scan-io-git/scanio-ide/pkg/shared/errors"
)

// InputFile is the analysis-session handle of the file a flow step was reported against.
type InputFile interface {
	Path() string
}

// CodeFlowStep represents a single step in a data flow.
type CodeFlowStep struct {
	Message     string `json:"message"`
	StartLine   int    `json:"start_line"`
	StartOffset int    `json:"start_offset"`
	EndLine     int    `json:"end_line"`
	EndOffset   int    `json:"end_offset"`

	inputFile InputFile
}

// NewCodeFlowStep creates a step attached to the input file of the session that reported it.
func NewCodeFlowStep(file InputFile, message string, startLine, startOffset, endLine, endOffset int) CodeFlowStep {
	return CodeFlowStep{
		Message:     message,
		StartLine:   startLine,
		StartOffset: startOffset,
		EndLine:     endLine,
		EndOffset:   endOffset,
		inputFile:   file,
	}
}

// InputFile returns the file handle of an attached step. Detached steps, such as the ones
// rebuilt from an encoded flow, outlive the session that owned their handles and fail with
// errors.ErrUnsupportedOperation.
func (s CodeFlowStep) InputFile() (InputFile, error) {
	if s.inputFile == nil {
		return nil, errors.NewUnsupportedOperationError("InputFile", "flow step is detached from its analysis session")
	}
	return s.inputFile, nil
}

// Detached reports whether the step has no input file handle.
func (s CodeFlowStep) Detached() bool {
	return s.inputFile == nil
}

// Detach returns a copy of the step without its input file handle.
func (s CodeFlowStep) Detach() CodeFlowStep {
	s.inputFile = nil
	return s
}

// CodeFlow contains a sequence of steps describing a flow.
type CodeFlow struct {
	Steps []CodeFlowStep `json:"steps"`
}

// TextLocation is the primary location of a finding. StartLine is 1-based and mandatory,
// the other fields are optional.
type TextLocation struct {
	StartLine   int  `json:"start_line"`
	StartOffset *int `json:"start_offset,omitempty"`
	EndLine     *int `json:"end_line,omitempty"`
	EndOffset   *int `json:"end_offset,omitempty"`
}

// Finding is one analyzer-reported issue for a file, before reconciliation.
type Finding struct {
	RuleID   string        `json:"rule_id"`
	Severity string        `json:"severity"`
	Message  string        `json:"message"`
	Location *TextLocation `json:"location,omitempty"`
	Flows    []CodeFlow    `json:"flows,omitempty"`

	// ServerKey is a stable key assigned by a server, empty for local-only findings.
	ServerKey string `json:"server_key,omitempty"`

	// Impacts maps software quality to impact severity.
	Impacts            map[string]string `json:"impacts,omitempty"`
	CleanCodeAttribute string            `json:"clean_code_attribute,omitempty"`
}

// Line returns the primary line of the finding, 0 when it has no location.
func (f Finding) Line() int {
	if f.Location == nil {
		return 0
	}
	return f.Location.StartLine
}

// TrackedAnnotation is the identity-stable record of a finding across analysis runs.
type TrackedAnnotation struct {
	ID        string `json:"id" msgpack:"id"`
	ServerKey string `json:"server_key,omitempty" msgpack:"server_key,omitempty"`
	RuleID    string `json:"rule_id" msgpack:"rule_id"`
	Severity  string `json:"severity" msgpack:"severity"`
	Message   string `json:"message" msgpack:"message"`

	// Line is the primary line at resolution time, 0 when the finding had none.
	Line int `json:"line" msgpack:"line"`
	// Range is nil when position resolution failed. Checksum is only meaningful when
	// Range is set.
	Range    *position.TextRange `json:"range,omitempty" msgpack:"range,omitempty"`
	Checksum int                 `json:"checksum" msgpack:"checksum"`

	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`

	Flows              string `json:"flows,omitempty" msgpack:"flows,omitempty"`
	Impacts            string `json:"impacts,omitempty" msgpack:"impacts,omitempty"`
	CleanCodeAttribute string `json:"clean_code_attribute,omitempty" msgpack:"clean_code_attribute,omitempty"`

	Resource string `json:"resource" msgpack:"resource"`
}

// Resolved reports whether the annotation carries a precise position and checksum.
func (a TrackedAnnotation) Resolved() bool {
	return a.Range != nil
}
