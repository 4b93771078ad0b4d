package issuecorrelation

// IssueMetadata describes the minimal metadata required to correlate issues.
// Fields:
//   - IssueID: optional external identifier, not used by correlation logic.
//   - ServerKey: stable key assigned by a server, strongest evidence when present.
//   - RuleID, Message: what was reported.
//   - Line: primary 1-based line, 0 when unknown.
//   - Checksum, HasChecksum: fingerprint of the primary line content.
type IssueMetadata struct {
	IssueID     string
	ServerKey   string
	RuleID      string
	Message     string
	Line        int
	Checksum    int
	HasChecksum bool
}

// Stage identifies the correlation pass that produced a match.
type Stage int

const (
	StageServerKey Stage = iota + 1
	StageLineChecksum
	StageMessage
)

func (s Stage) String() string {
	switch s {
	case StageServerKey:
		return "server-key"
	case StageLineChecksum:
		return "line-checksum"
	case StageMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Match pairs one known issue with the new issue correlated to it.
type Match struct {
	Known      IssueMetadata
	New        IssueMetadata
	KnownIndex int
	NewIndex   int
	Stage      Stage
}

// Correlator accepts slices of new and known issues and computes a 1:1 correlation
// between them. Use NewCorrelator to create an instance and call Process() to
// compute matches. After processing, use Matches(), UnmatchedNew() and
// UnmatchedKnown() to inspect results.
type Correlator struct {
	NewIssues   []IssueMetadata
	KnownIssues []IssueMetadata

	// internal indexes populated by Process()
	knownToNew map[int]int // known index -> new index
	newToKnown map[int]int // new index -> known index
	stageOf    map[int]Stage

	processed bool
}

// NewCorrelator constructs a Correlator with the provided slices of new and
// known issues. The correlator is inert until Process() is called.
func NewCorrelator(newIssues, knownIssues []IssueMetadata) *Correlator {
	return &Correlator{
		NewIssues:   newIssues,
		KnownIssues: knownIssues,
	}
}

// Process correlates known and new issues in three ordered stages. An issue matched
// in an earlier stage is excluded from later stages:
// 1) server key, exact lookup
// 2) rule id + line checksum, closest line first
// 3) rule id + message, closest line first
// The second stage tolerates lines moved by unrelated edits, the third tolerates a
// slightly edited offending line. Process is idempotent.
func (c *Correlator) Process() {
	if c.processed {
		return
	}
	c.knownToNew = make(map[int]int)
	c.newToKnown = make(map[int]int)
	c.stageOf = make(map[int]Stage)

	c.matchServerKeys()
	c.matchClosest(StageLineChecksum, func(m IssueMetadata) (bucketKey, bool) {
		if !m.HasChecksum {
			return bucketKey{}, false
		}
		return bucketKey{rule: m.RuleID, checksum: m.Checksum}, true
	})
	c.matchClosest(StageMessage, func(m IssueMetadata) (bucketKey, bool) {
		return bucketKey{rule: m.RuleID, message: m.Message}, true
	})

	c.processed = true
}

type bucketKey struct {
	rule     string
	checksum int
	message  string
}

func (c *Correlator) link(ki, ni int, stage Stage) {
	c.knownToNew[ki] = ni
	c.newToKnown[ni] = ki
	c.stageOf[ni] = stage
}

func (c *Correlator) matchServerKeys() {
	byKey := make(map[string]int)
	for ki, k := range c.KnownIssues {
		if k.ServerKey == "" {
			continue
		}
		if _, dup := byKey[k.ServerKey]; !dup {
			byKey[k.ServerKey] = ki
		}
	}
	for ni, n := range c.NewIssues {
		if n.ServerKey == "" {
			continue
		}
		ki, ok := byKey[n.ServerKey]
		if !ok {
			continue
		}
		if _, taken := c.knownToNew[ki]; taken {
			continue
		}
		c.link(ki, ni, StageServerKey)
	}
}

// matchClosest buckets the still unmatched issues of both sides by key and, inside each
// bucket, pairs them by ascending line distance. Ties go to the earlier new issue, then
// to the earlier known issue.
func (c *Correlator) matchClosest(stage Stage, keyOf func(IssueMetadata) (bucketKey, bool)) {
	knownBuckets := make(map[bucketKey][]int)
	for ki, k := range c.KnownIssues {
		if _, matched := c.knownToNew[ki]; matched {
			continue
		}
		if key, ok := keyOf(k); ok {
			knownBuckets[key] = append(knownBuckets[key], ki)
		}
	}
	if len(knownBuckets) == 0 {
		return
	}

	newBuckets := make(map[bucketKey][]int)
	var order []bucketKey
	for ni, n := range c.NewIssues {
		if _, matched := c.newToKnown[ni]; matched {
			continue
		}
		key, ok := keyOf(n)
		if !ok {
			continue
		}
		if _, seen := newBuckets[key]; !seen {
			order = append(order, key)
		}
		newBuckets[key] = append(newBuckets[key], ni)
	}

	for _, key := range order {
		known := knownBuckets[key]
		if len(known) == 0 {
			continue
		}
		for _, m := range pairClosest(c.lineSlots(newBuckets[key], known)) {
			c.link(m.ki, m.ni, stage)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// KnownFor returns the index of the known issue correlated to the new issue at ni.
func (c *Correlator) KnownFor(ni int) (int, Stage, bool) {
	if !c.processed {
		c.Process()
	}
	ki, ok := c.newToKnown[ni]
	return ki, c.stageOf[ni], ok
}

// UnmatchedNew returns the subset of new issues that were not correlated to
// any known issue after Process() has been executed. If Process() has not
// yet been run it will be invoked.
func (c *Correlator) UnmatchedNew() []IssueMetadata {
	if !c.processed {
		c.Process()
	}

	var out []IssueMetadata
	for ni, n := range c.NewIssues {
		if _, ok := c.newToKnown[ni]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// UnmatchedKnown returns the subset of known issues that were not correlated
// to any new issue after Process() has been executed. If Process() has not
// yet been run it will be invoked.
func (c *Correlator) UnmatchedKnown() []IssueMetadata {
	if !c.processed {
		c.Process()
	}

	var out []IssueMetadata
	for ki, k := range c.KnownIssues {
		if _, ok := c.knownToNew[ki]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Matches returns every correlated pair ordered by the position of the new issue.
// If Process() has not been run it will be invoked.
func (c *Correlator) Matches() []Match {
	if !c.processed {
		c.Process()
	}

	out := make([]Match, 0, len(c.newToKnown))
	for ni := range c.NewIssues {
		ki, ok := c.newToKnown[ni]
		if !ok {
			continue
		}
		out = append(out, Match{
			Known:      c.KnownIssues[ki],
			New:        c.NewIssues[ni],
			KnownIndex: ki,
			NewIndex:   ni,
			Stage:      c.stageOf[ni],
		})
	}
	return out
}
