package frontier

// entry is one queued item. rank is the negated score at push time, so a
// plain ascending min-heap yields the best-scored item first.
type entry struct {
	item *Item
	rank float64
}

// entryHeap implements heap.Interface. Ties on rank fall back to discovery
// order, which keeps dequeue order deterministic.
type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].item.order < h[j].item.order
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}
