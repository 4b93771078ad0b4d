package issuecorrelation

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/scanio-ide/internal/findings"
	"github.com/scan-io-git/scanio-ide/pkg/flowcodec"
	"github.com/scan-io-git/scanio-ide/pkg/position"
)

// Tracker keeps the identity of findings stable across analysis runs of one file.
type Tracker struct {
	clock  func() time.Time
	newID  func() string
	logger hclog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the source of creation timestamps.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithIDGenerator overrides the source of fresh annotation identities.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// WithLogger sets the logger used for trace output.
func WithLogger(logger hclog.Logger) Option {
	return func(t *Tracker) { t.logger = logger.Named("tracker") }
}

// NewTracker creates a Tracker stamping new annotations with the current time and a random UUID.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clock:  time.Now,
		newID:  uuid.NewString,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// resolvedFinding is a finding positioned against the current snapshot.
type resolvedFinding struct {
	finding  findings.Finding
	rng      *position.TextRange
	checksum int
}

// Reconcile matches the findings of the latest run against the annotations tracked for
// resource so far and returns the new annotation set, in the order of found.
//
// Matched annotations keep their identity and creation time and take everything else from
// the finding. Unmatched findings become new annotations and unmatched previous annotations
// are dropped. Reconcile never fails; a finding that cannot be positioned against snap is
// kept without a range and can then only be matched by message.
func (t *Tracker) Reconcile(previous []findings.TrackedAnnotation, found []findings.Finding, snap *position.Snapshot, resource string) []findings.TrackedAnnotation {
	resolved := make([]resolvedFinding, len(found))
	newIssues := make([]IssueMetadata, len(found))
	for i, f := range found {
		resolved[i] = t.resolve(f, snap)
		newIssues[i] = IssueMetadata{
			ServerKey:   f.ServerKey,
			RuleID:      f.RuleID,
			Message:     f.Message,
			Line:        f.Line(),
			Checksum:    resolved[i].checksum,
			HasChecksum: resolved[i].rng != nil,
		}
	}

	knownIssues := make([]IssueMetadata, len(previous))
	for i, p := range previous {
		knownIssues[i] = IssueMetadata{
			IssueID:     p.ID,
			ServerKey:   p.ServerKey,
			RuleID:      p.RuleID,
			Message:     p.Message,
			Line:        p.Line,
			Checksum:    p.Checksum,
			HasChecksum: p.Resolved(),
		}
	}

	corr := NewCorrelator(newIssues, knownIssues)
	corr.Process()

	now := t.clock()
	out := make([]findings.TrackedAnnotation, 0, len(found))
	created := 0
	for i, rf := range resolved {
		var a findings.TrackedAnnotation
		if ki, stage, ok := corr.KnownFor(i); ok {
			a = previous[ki]
			t.logger.Trace("finding matched", "resource", resource, "rule", rf.finding.RuleID, "id", a.ID, "stage", stage.String())
		} else {
			a = findings.TrackedAnnotation{ID: t.newID(), CreatedAt: now}
			created++
		}
		out = append(out, apply(a, rf, resource))
	}

	t.logger.Debug("reconciled findings", "resource", resource,
		"findings", len(found),
		"matched", len(found)-created,
		"created", created,
		"dropped", len(corr.UnmatchedKnown()))
	return out
}

func (t *Tracker) resolve(f findings.Finding, snap *position.Snapshot) resolvedFinding {
	rf := resolvedFinding{finding: f}
	if f.Location == nil || snap == nil {
		return rf
	}
	loc := f.Location
	rng, err := position.Resolve(snap, loc.StartLine, loc.StartOffset, loc.EndLine, loc.EndOffset)
	if err != nil {
		t.logger.Debug("finding has no precise position", "rule", f.RuleID, "line", loc.StartLine, "error", err)
		return rf
	}
	text, _ := snap.LineText(loc.StartLine)
	rf.rng = &rng
	rf.checksum = LineChecksum(text)
	return rf
}

// apply copies the latest finding state onto a, keeping its identity and creation time.
func apply(a findings.TrackedAnnotation, rf resolvedFinding, resource string) findings.TrackedAnnotation {
	f := rf.finding
	if f.ServerKey != "" {
		a.ServerKey = f.ServerKey
	}
	a.RuleID = f.RuleID
	a.Severity = f.Severity
	a.Message = f.Message
	a.Line = f.Line()
	a.Range = rf.rng
	a.Checksum = rf.checksum
	a.Flows = flowcodec.Encode(f.Flows)
	a.Impacts = flowcodec.EncodeImpacts(f.Impacts)
	a.CleanCodeAttribute = f.CleanCodeAttribute
	a.Resource = resource
	return a
}
