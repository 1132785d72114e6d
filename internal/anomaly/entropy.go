package anomaly

import "math"

// EventClass identifies one monitored kernel event type. The set is fixed at
// compile time; the BPF capture layer and the feature aggregator index their
// counters by it.
type EventClass uint8

const (
	EventExec EventClass = iota
	EventOpen
	EventConnect
	EventWrite
	EventUnlink
	EventPtrace
	EventModuleLoad

	// eventClassSentinel terminates the enum. Its slot in EventCounts is
	// never written.
	eventClassSentinel
)

// EventClassCount is the number of real event classes.
const EventClassCount = int(eventClassSentinel)

var eventClassNames = [...]string{
	EventExec:       "exec",
	EventOpen:       "open",
	EventConnect:    "connect",
	EventWrite:      "write",
	EventUnlink:     "unlink",
	EventPtrace:     "ptrace",
	EventModuleLoad: "module_load",
}

// String returns the wire name of the event class, or "unknown" for values
// outside the enum.
func (c EventClass) String() string {
	if int(c) >= len(eventClassNames) || eventClassNames[c] == "" {
		return "unknown"
	}
	return eventClassNames[c]
}

// ParseEventClass resolves a wire name back to its EventClass. The second
// return is false for names outside the enum.
func ParseEventClass(name string) (EventClass, bool) {
	for c, n := range eventClassNames {
		if n == name {
			return EventClass(c), true
		}
	}
	return eventClassSentinel, false
}

// EventCounts is one aggregation window's per-class event counters, indexed
// by EventClass. The final slot belongs to the sentinel and stays zero.
// A window is immutable once captured.
type EventCounts [int(eventClassSentinel) + 1]uint64

// Total returns the sum of all counters in the window.
func (c EventCounts) Total() uint64 {
	var total uint64
	for _, n := range c {
		total += n
	}
	return total
}

// ShannonEntropy computes H = -Σ p_i·log2(p_i) over the non-zero counters of
// one window, with p_i the counter's share of the window total.
//
// An empty window and a window dominated by a single event class both return
// 0.0: zero-information states, not errors.
func ShannonEntropy(counts EventCounts) float64 {
	total := counts.Total()
	if total == 0 {
		return 0.0
	}

	h := 0.0
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}

	// Floating-point rounding can leave a tiny negative residue when one
	// class holds the whole window.
	if h < 0 {
		h = 0
	}
	return h
}

// MaxEntropy returns log2(k), the entropy of a uniform distribution over k
// event classes. Exported for consumers that normalize window entropy; the
// scoring engine itself uses raw entropy.
func MaxEntropy(k int) float64 {
	if k <= 1 {
		return 0.0
	}
	return math.Log2(float64(k))
}
