package issuecorrelation

import "testing"

func TestLineChecksum(t *testing.T) {
	if LineChecksum("this.x=x") != LineChecksum("this.x=x") {
		t.Fatalf("checksum must be stable for identical content")
	}
	if LineChecksum("this.x=x") == LineChecksum("this.y=y") {
		t.Fatalf("expected different checksums for different content")
	}
	if LineChecksum("this.x=x") == LineChecksum(" this.x=x") {
		t.Fatalf("leading whitespace is part of the line content")
	}
	if got := LineChecksum(""); got < 0 {
		t.Fatalf("checksum must be non-negative, got %d", got)
	}
}
