package issuecorrelation

import (
	"container/heap"
	"sort"
)

// lineSlot gathers the unmatched issues of one bucket reported on the same line. Slots
// form a list ordered by line; a slot leaves the list once both sides are used up.
type lineSlot struct {
	line  int
	news  []int // ascending new indexes
	known []int // ascending known indexes

	prev, next int
}

func (s *lineSlot) hasNew() bool   { return len(s.news) > 0 }
func (s *lineSlot) hasKnown() bool { return len(s.known) > 0 }

// lineSlots builds the slot list of one bucket. Both index slices are ascending.
func (c *Correlator) lineSlots(news, known []int) []lineSlot {
	byLine := make(map[int]int, len(news)+len(known))
	var lines []int
	add := func(line int) {
		if _, ok := byLine[line]; !ok {
			byLine[line] = 0
			lines = append(lines, line)
		}
	}
	for _, ni := range news {
		add(c.NewIssues[ni].Line)
	}
	for _, ki := range known {
		add(c.KnownIssues[ki].Line)
	}
	sort.Ints(lines)

	slots := make([]lineSlot, len(lines))
	for i, line := range lines {
		byLine[line] = i
		slots[i] = lineSlot{line: line, prev: i - 1, next: i + 1}
	}
	slots[len(slots)-1].next = -1

	for _, ni := range news {
		s := &slots[byLine[c.NewIssues[ni].Line]]
		s.news = append(s.news, ni)
	}
	for _, ki := range known {
		s := &slots[byLine[c.KnownIssues[ki].Line]]
		s.known = append(s.known, ki)
	}
	return slots
}

type pairing struct {
	ni, ki int
}

// offer proposes the first new issue of slot from for the known issues of slot to.
type offer struct {
	distance int
	ni       int
	from, to int
}

type offerHeap []offer

func (h offerHeap) Len() int { return len(h) }
func (h offerHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance < h[j].distance
	}
	return h[i].ni < h[j].ni
}
func (h offerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *offerHeap) Push(x interface{}) { *h = append(*h, x.(offer)) }
func (h *offerHeap) Pop() interface{} {
	old := *h
	o := old[len(old)-1]
	*h = old[:len(old)-1]
	return o
}

// pairClosest repeatedly pairs the alive new and known issue with the smallest line
// distance, ties going to the lower new index and then to the lower known index.
//
// The closest pair always sits in one slot or in two neighbouring slots of the list, so
// only those are offered. Offers are validated when popped and re-issued whenever a slot
// changes its first new issue or gains a neighbour, which keeps the work at
// O((n+m) log(n+m)) for n new and m known issues.
func pairClosest(slots []lineSlot) []pairing {
	h := &offerHeap{}
	propose := func(from, to int) {
		if from < 0 || to < 0 || !slots[from].hasNew() || !slots[to].hasKnown() {
			return
		}
		heap.Push(h, offer{
			distance: abs(slots[from].line - slots[to].line),
			ni:       slots[from].news[0],
			from:     from,
			to:       to,
		})
	}
	proposeAround := func(i int) {
		propose(i, i)
		propose(i, slots[i].prev)
		propose(i, slots[i].next)
	}
	unlinkIfEmpty := func(i int) {
		s := &slots[i]
		if s.hasNew() || s.hasKnown() {
			return
		}
		l, r := s.prev, s.next
		if l >= 0 {
			slots[l].next = r
		}
		if r >= 0 {
			slots[r].prev = l
		}
		s.prev, s.next = -1, -1
		propose(l, r)
		propose(r, l)
	}

	for i := range slots {
		proposeAround(i)
	}

	var out []pairing
	for h.Len() > 0 {
		o := heap.Pop(h).(offer)
		from, to := &slots[o.from], &slots[o.to]
		if !from.hasNew() || from.news[0] != o.ni || !to.hasKnown() {
			continue
		}
		if o.from != o.to && from.prev != o.to && from.next != o.to {
			continue
		}

		// the neighbour on the other side may hold a lower known index at the same distance
		best := o.to
		if o.distance > 0 {
			for _, j := range [2]int{from.prev, from.next} {
				if j < 0 || j == o.to || !slots[j].hasKnown() {
					continue
				}
				if abs(slots[j].line-from.line) == o.distance && slots[j].known[0] < slots[best].known[0] {
					best = j
				}
			}
		}

		ki := slots[best].known[0]
		from.news = from.news[1:]
		slots[best].known = slots[best].known[1:]
		out = append(out, pairing{ni: o.ni, ki: ki})

		unlinkIfEmpty(best)
		unlinkIfEmpty(o.from)
		if from.hasNew() {
			proposeAround(o.from)
		}
	}
	return out
}
