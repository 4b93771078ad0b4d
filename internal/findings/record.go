package findings

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"fortio.org/safecast"

	"github.com/scan-io-git/scanio-ide/pkg/position"
)

// Attribute names of a persisted annotation record.
const (
	AttrCategory           = "category"
	AttrAnnotationID       = "annotationId"
	AttrServerKey          = "serverKey"
	AttrRuleKey            = "ruleKey"
	AttrSeverity           = "severity"
	AttrMessage            = "message"
	AttrLineNumber         = "lineNumber"
	AttrCharStart          = "charStart"
	AttrCharEnd            = "charEnd"
	AttrChecksum           = "checksum"
	AttrCreationDate       = "creationDate"
	AttrFlows              = "flows"
	AttrImpacts            = "impacts"
	AttrCleanCodeAttribute = "cleanCodeAttribute"
)

// Record is the host-facing form of a TrackedAnnotation: discrete scalar attributes only.
// Positional attributes are 32-bit because that is what the host marker model stores.
type Record struct {
	Resource           string `json:"resource"`
	Category           string `json:"category"`
	AnnotationID       string `json:"annotation_id"`
	ServerKey          string `json:"server_key,omitempty"`
	RuleKey            string `json:"rule_key"`
	Severity           string `json:"severity"`
	Message            string `json:"message"`
	LineNumber         *int32 `json:"line_number,omitempty"`
	CharStart          *int32 `json:"char_start,omitempty"`
	CharEnd            *int32 `json:"char_end,omitempty"`
	Checksum           int    `json:"checksum"`
	CreationDate       string `json:"creation_date"`
	Flows              string `json:"flows"`
	Impacts            string `json:"impacts,omitempty"`
	CleanCodeAttribute string `json:"clean_code_attribute,omitempty"`
}

// ToRecord converts an annotation into its persisted record. Positional values that do not
// fit the host's 32-bit attributes are omitted; the returned error lists them and the record
// stays usable.
func ToRecord(category string, a TrackedAnnotation) (Record, error) {
	rec := Record{
		Resource:           a.Resource,
		Category:           category,
		AnnotationID:       a.ID,
		ServerKey:          a.ServerKey,
		RuleKey:            a.RuleID,
		Severity:           a.Severity,
		Message:            a.Message,
		Checksum:           a.Checksum,
		CreationDate:       formatCreationDate(a.CreatedAt),
		Flows:              a.Flows,
		Impacts:            a.Impacts,
		CleanCodeAttribute: a.CleanCodeAttribute,
	}

	var errs []error
	if a.Line > 0 {
		rec.LineNumber = toInt32(AttrLineNumber, a.Line, &errs)
	}
	if a.Range != nil {
		rec.CharStart = toInt32(AttrCharStart, a.Range.Start, &errs)
		rec.CharEnd = toInt32(AttrCharEnd, a.Range.End, &errs)
		if rec.CharStart == nil || rec.CharEnd == nil {
			rec.CharStart, rec.CharEnd = nil, nil
		}
	}
	return rec, errors.Join(errs...)
}

func toInt32(name string, v int, errs *[]error) *int32 {
	out, err := safecast.Conv[int32](v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("attribute %s omitted: %w", name, err))
		return nil
	}
	return &out
}

// Annotation rebuilds the tracked annotation described by the record.
func (r Record) Annotation() TrackedAnnotation {
	a := TrackedAnnotation{
		ID:                 r.AnnotationID,
		ServerKey:          r.ServerKey,
		RuleID:             r.RuleKey,
		Severity:           r.Severity,
		Message:            r.Message,
		Checksum:           r.Checksum,
		CreatedAt:          parseCreationDate(r.CreationDate),
		Flows:              r.Flows,
		Impacts:            r.Impacts,
		CleanCodeAttribute: r.CleanCodeAttribute,
		Resource:           r.Resource,
	}
	if r.LineNumber != nil {
		a.Line = int(*r.LineNumber)
	}
	if r.CharStart != nil && r.CharEnd != nil {
		a.Range = &position.TextRange{Start: int(*r.CharStart), End: int(*r.CharEnd)}
	}
	return a
}

// Attributes flattens the record into the host's attribute map. Absent positional values are
// left out rather than written as zero.
func (r Record) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{
		AttrCategory:     r.Category,
		AttrAnnotationID: r.AnnotationID,
		AttrRuleKey:      r.RuleKey,
		AttrSeverity:     r.Severity,
		AttrMessage:      r.Message,
		AttrChecksum:     r.Checksum,
		AttrCreationDate: r.CreationDate,
		AttrFlows:        r.Flows,
	}
	if r.ServerKey != "" {
		attrs[AttrServerKey] = r.ServerKey
	}
	if r.Impacts != "" {
		attrs[AttrImpacts] = r.Impacts
	}
	if r.CleanCodeAttribute != "" {
		attrs[AttrCleanCodeAttribute] = r.CleanCodeAttribute
	}
	if r.LineNumber != nil {
		attrs[AttrLineNumber] = *r.LineNumber
	}
	if r.CharStart != nil && r.CharEnd != nil {
		attrs[AttrCharStart] = *r.CharStart
		attrs[AttrCharEnd] = *r.CharEnd
	}
	return attrs
}

// RecordFromAttributes is the inverse of Record.Attributes. Attributes of an unexpected
// type are ignored.
func RecordFromAttributes(resource string, attrs map[string]interface{}) Record {
	rec := Record{
		Resource:           resource,
		Category:           stringAttr(attrs, AttrCategory),
		AnnotationID:       stringAttr(attrs, AttrAnnotationID),
		ServerKey:          stringAttr(attrs, AttrServerKey),
		RuleKey:            stringAttr(attrs, AttrRuleKey),
		Severity:           stringAttr(attrs, AttrSeverity),
		Message:            stringAttr(attrs, AttrMessage),
		CreationDate:       stringAttr(attrs, AttrCreationDate),
		Flows:              stringAttr(attrs, AttrFlows),
		Impacts:            stringAttr(attrs, AttrImpacts),
		CleanCodeAttribute: stringAttr(attrs, AttrCleanCodeAttribute),
	}
	if v, ok := attrs[AttrChecksum].(int); ok {
		rec.Checksum = v
	}
	if v, ok := attrs[AttrLineNumber].(int32); ok {
		rec.LineNumber = &v
	}
	start, okStart := attrs[AttrCharStart].(int32)
	end, okEnd := attrs[AttrCharEnd].(int32)
	if okStart && okEnd {
		rec.CharStart, rec.CharEnd = &start, &end
	}
	return rec
}

// AnnotationID returns the annotation identity stored in a marker's attributes.
func AnnotationID(attrs map[string]interface{}) string {
	return stringAttr(attrs, AttrAnnotationID)
}

func stringAttr(attrs map[string]interface{}, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func formatCreationDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseCreationDate(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
