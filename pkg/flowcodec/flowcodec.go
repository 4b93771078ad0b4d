// Package flowcodec packs data-flow trails, and the impacts of a finding, into a single
// scalar string that the host can store as one attribute.
//
// The format joins fields with U+0013, points with U+0012 and trails with U+0011.
// Analyzer messages practically never contain these control characters, so no escaping
// is done; a message that does contain one will not survive a round trip.
package flowcodec

import (
	"sort"
	"strconv"
	"strings"

	"github.com/scan-io-git/scanio-ide/internal/findings"
)

const (
	FlowSeparator     = "\u0011"
	LocationSeparator = "\u0012"
	FieldSeparator    = "\u0013"

	fieldsPerLocation = 5
)

// Encode serializes trails in order. An empty list encodes to "".
func Encode(flows []findings.CodeFlow) string {
	var sb strings.Builder
	for i, flow := range flows {
		if i > 0 {
			sb.WriteString(FlowSeparator)
		}
		for j, step := range flow.Steps {
			if j > 0 {
				sb.WriteString(LocationSeparator)
			}
			writeStep(&sb, step)
		}
	}
	return sb.String()
}

func writeStep(sb *strings.Builder, step findings.CodeFlowStep) {
	sb.WriteString(step.Message)
	for _, n := range []int{step.StartLine, step.StartOffset, step.EndLine, step.EndOffset} {
		sb.WriteString(FieldSeparator)
		sb.WriteString(strconv.Itoa(n))
	}
}

// Decode rebuilds the trails of an encoded string. It never fails: text without any
// separator yields an empty list, and malformed points or trails left empty are dropped.
// Every decoded step is detached from an input file.
func Decode(encoded string) []findings.CodeFlow {
	flows := []findings.CodeFlow{}
	if !strings.ContainsAny(encoded, FlowSeparator+LocationSeparator+FieldSeparator) {
		return flows
	}

	for _, rawFlow := range strings.Split(encoded, FlowSeparator) {
		var steps []findings.CodeFlowStep
		for _, rawStep := range strings.Split(rawFlow, LocationSeparator) {
			step, ok := decodeStep(rawStep)
			if !ok {
				continue
			}
			steps = append(steps, step)
		}
		if len(steps) > 0 {
			flows = append(flows, findings.CodeFlow{Steps: steps})
		}
	}
	return flows
}

func decodeStep(raw string) (findings.CodeFlowStep, bool) {
	fields := strings.Split(raw, FieldSeparator)
	if len(fields) != fieldsPerLocation {
		return findings.CodeFlowStep{}, false
	}
	var nums [fieldsPerLocation - 1]int
	for i, f := range fields[1:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return findings.CodeFlowStep{}, false
		}
		nums[i] = n
	}
	return findings.CodeFlowStep{
		Message:     fields[0],
		StartLine:   nums[0],
		StartOffset: nums[1],
		EndLine:     nums[2],
		EndOffset:   nums[3],
	}, true
}

// EncodeImpacts serializes impacts as "quality U+0013 severity" entries joined by U+0012,
// sorted by quality.
func EncodeImpacts(impacts map[string]string) string {
	qualities := make([]string, 0, len(impacts))
	for q := range impacts {
		qualities = append(qualities, q)
	}
	sort.Strings(qualities)

	entries := make([]string, 0, len(qualities))
	for _, q := range qualities {
		entries = append(entries, q+FieldSeparator+impacts[q])
	}
	return strings.Join(entries, LocationSeparator)
}

// DecodeImpacts is the lenient inverse of EncodeImpacts. It returns nil for an empty string.
func DecodeImpacts(encoded string) map[string]string {
	if encoded == "" {
		return nil
	}
	impacts := make(map[string]string)
	for _, entry := range strings.Split(encoded, LocationSeparator) {
		quality, severity, ok := strings.Cut(entry, FieldSeparator)
		if !ok || quality == "" {
			continue
		}
		impacts[quality] = severity
	}
	if len(impacts) == 0 {
		return nil
	}
	return impacts
}
