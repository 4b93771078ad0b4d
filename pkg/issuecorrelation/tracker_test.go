package issuecorrelation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/scanio-ide/internal/findings"
	"github.com/scan-io-git/scanio-ide/pkg/flowcodec"
	"github.com/scan-io-git/scanio-ide/pkg/position"
)

const pointSource = "package com.example.geometry;\n" +
	"\n" +
	"public class Point {\n" +
	"  Point(final int x){\n" +
	"    this.x = x;\n" +
	"  }\n" +
	"}\n"

const resource = "src/main/java/com/example/geometry/Point.java"

func intPtr(v int) *int { return &v }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func fieldFinding(line int) findings.Finding {
	return findings.Finding{
		RuleID:   "java:S2325",
		Severity: "MINOR",
		Message:  "Make \"x\" a final field",
		Location: &findings.TextLocation{
			StartLine:   line,
			StartOffset: intPtr(4),
			EndLine:     intPtr(line),
			EndOffset:   intPtr(14),
		},
	}
}

func TestReconcileDriftTolerance(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	ids := sequentialIDs()

	first := NewTracker(WithClock(fixedClock(t1)), WithIDGenerator(ids)).
		Reconcile(nil, []findings.Finding{fieldFinding(5)}, position.Parse([]byte(pointSource)), resource)
	require.Len(t, first, 1)
	require.NotNil(t, first[0].Range)
	assert.Equal(t, position.TextRange{Start: 78, End: 88}, *first[0].Range)
	assert.Equal(t, LineChecksum("    this.x = x;"), first[0].Checksum)
	assert.Equal(t, t1, first[0].CreatedAt)
	assert.Equal(t, "id-1", first[0].ID)

	// two blank lines inserted at the top of the file
	edited := position.Parse([]byte("\n\n" + pointSource))
	second := NewTracker(WithClock(fixedClock(t2)), WithIDGenerator(ids)).
		Reconcile(first, []findings.Finding{fieldFinding(7)}, edited, resource)
	require.Len(t, second, 1)
	require.NotNil(t, second[0].Range)
	assert.Equal(t, position.TextRange{Start: 80, End: 90}, *second[0].Range)
	assert.Equal(t, "id-1", second[0].ID)
	assert.Equal(t, t1, second[0].CreatedAt)
	assert.Equal(t, 7, second[0].Line)
	assert.Equal(t, first[0].Checksum, second[0].Checksum)
}

func TestReconcileIsStable(t *testing.T) {
	snap := position.Parse([]byte(pointSource))
	found := []findings.Finding{
		fieldFinding(5),
		{RuleID: "java:S1186", Severity: "CRITICAL", Message: "Add a nested comment", Location: &findings.TextLocation{StartLine: 4}},
		{RuleID: "java:S1118", Severity: "MAJOR", Message: "Add a private constructor", Location: &findings.TextLocation{StartLine: 3}},
		{RuleID: "java:S1118", Severity: "MAJOR", Message: "Add a private constructor", Location: &findings.TextLocation{StartLine: 3}},
		{RuleID: "common:S1", Severity: "INFO", Message: "File level"},
	}

	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	first := NewTracker(WithClock(fixedClock(t1))).Reconcile(nil, found, snap, resource)
	require.Len(t, first, len(found))

	second := NewTracker(WithClock(fixedClock(t1.Add(time.Hour)))).Reconcile(first, found, snap, resource)
	require.Len(t, second, len(first))
	seen := make(map[string]bool)
	for i := range second {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, t1, second[i].CreatedAt)
		assert.False(t, seen[second[i].ID], "duplicate identity %s", second[i].ID)
		seen[second[i].ID] = true
	}
}

func TestReconcileServerKeyBeatsContent(t *testing.T) {
	snap := position.Parse([]byte(pointSource))
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	previous := []findings.TrackedAnnotation{
		{ID: "keyed", ServerKey: "AYx1", RuleID: "java:S100", Message: "old message", Line: 1, CreatedAt: t1},
		{ID: "content", RuleID: "java:S100", Message: "Rename", Line: 3, Checksum: LineChecksum("public class Point {"), Range: &position.TextRange{Start: 31, End: 51}, CreatedAt: t1},
	}
	found := []findings.Finding{
		{RuleID: "java:S100", Message: "Rename", ServerKey: "AYx1", Location: &findings.TextLocation{StartLine: 3}},
	}

	out := NewTracker().Reconcile(previous, found, snap, resource)
	require.Len(t, out, 1)
	assert.Equal(t, "keyed", out[0].ID)
	assert.Equal(t, "Rename", out[0].Message)
	assert.Equal(t, t1, out[0].CreatedAt)
}

func TestReconcileMessageFallbackAfterLineEdit(t *testing.T) {
	ids := sequentialIDs()
	tracker := NewTracker(WithIDGenerator(ids))
	first := tracker.Reconcile(nil, []findings.Finding{fieldFinding(5)}, position.Parse([]byte(pointSource)), resource)

	editedLine := "package com.example.geometry;\n\npublic class Point {\n  Point(final int x){\n    this.x  =  x ;\n  }\n}\n"
	second := tracker.Reconcile(first, []findings.Finding{fieldFinding(5)}, position.Parse([]byte(editedLine)), resource)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[0].Checksum, second[0].Checksum)
}

func TestReconcileCreatesAndDrops(t *testing.T) {
	snap := position.Parse([]byte(pointSource))
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)
	previous := []findings.TrackedAnnotation{
		{ID: "gone", RuleID: "java:S1481", Message: "Remove unused local", Line: 4, CreatedAt: t1},
	}

	out := NewTracker(WithClock(fixedClock(t2)), WithIDGenerator(sequentialIDs())).
		Reconcile(previous, []findings.Finding{fieldFinding(5)}, snap, resource)
	require.Len(t, out, 1)
	assert.Equal(t, "id-1", out[0].ID)
	assert.Equal(t, t2, out[0].CreatedAt)
	assert.Equal(t, resource, out[0].Resource)
}

func TestReconcileOutOfRangeKeepsFinding(t *testing.T) {
	snap := position.Parse([]byte(pointSource))
	out := NewTracker().Reconcile(nil, []findings.Finding{fieldFinding(42)}, snap, resource)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Range)
	assert.False(t, out[0].Resolved())
	assert.Equal(t, 42, out[0].Line)

	// without a snapshot nothing can be positioned either
	out = NewTracker().Reconcile(nil, []findings.Finding{fieldFinding(5)}, nil, resource)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Range)
}

func TestReconcileEncodesFlowsAndImpacts(t *testing.T) {
	snap := position.Parse([]byte(pointSource))
	f := fieldFinding(5)
	f.Flows = []findings.CodeFlow{{Steps: []findings.CodeFlowStep{
		{Message: "source", StartLine: 4, StartOffset: 2, EndLine: 4, EndOffset: 7},
		{Message: "sink", StartLine: 5, StartOffset: 4, EndLine: 5, EndOffset: 14},
	}}}
	f.Impacts = map[string]string{"MAINTAINABILITY": "LOW"}
	f.CleanCodeAttribute = "CONVENTIONAL"

	out := NewTracker().Reconcile(nil, []findings.Finding{f}, snap, resource)
	require.Len(t, out, 1)
	assert.Equal(t, f.Flows, flowcodec.Decode(out[0].Flows))
	assert.Equal(t, f.Impacts, flowcodec.DecodeImpacts(out[0].Impacts))
	assert.Equal(t, "CONVENTIONAL", out[0].CleanCodeAttribute)
}
