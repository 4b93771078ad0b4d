package issuecorrelation

import (
	"hash/fnv"
)

// LineChecksum fingerprints the exact content of one line, terminator excluded.
// It is a matching heuristic only: unrelated lines with identical content share a checksum.
func LineChecksum(line string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(line))
	return int(h.Sum32())
}
