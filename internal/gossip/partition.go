package gossip

import (
	"encoding/json"
	"math"
	"time"
)

// Mode is the evaluator's partition mode.
type Mode uint8

const (
	// ModeNormal means the node reaches enough peers for the configured
	// quorum minimum to apply unchanged.
	ModeNormal Mode = iota

	// ModeIsolated means the node reaches fewer than the partition
	// threshold fraction of its peers and runs with a reduced effective
	// quorum minimum, so that locally available observations still count.
	ModeIsolated
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeIsolated:
		return "isolated"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the mode as its string name.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON parses the string names produced by MarshalJSON.
func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "isolated" {
		*m = ModeIsolated
	} else {
		*m = ModeNormal
	}
	return nil
}

// PartitionEvent is emitted once per actual change of partition mode or
// effective quorum minimum. Repeated identical reachability updates emit
// nothing, so a flapping probe loop cannot cause an event storm.
type PartitionEvent struct {
	ID             string    `json:"id"`
	Mode           Mode      `json:"mode"`
	ReachablePeers int       `json:"reachable_peers"`
	TotalPeers     int       `json:"total_peers"`
	EffectiveMin   int       `json:"effective_min"`
	Timestamp      time.Time `json:"timestamp"`
}

// Emitter delivers partition events to alerting/telemetry. Implementations
// must never block: a sink that cannot accept an event drops it and accounts
// for the loss itself.
type Emitter interface {
	Emit(event PartitionEvent)
}

// partitionState is the evaluator's current partition view. Mutated only by
// UpdatePeerReachability under the exclusive lock.
type partitionState struct {
	mode           Mode
	reachablePeers int
	effectiveMin   int
}

// recalibrate derives the partition mode and effective quorum minimum from
// the current reachable peer count.
//
// A single-node deployment (totalPeers == 0) is always Normal with an
// effective minimum of 1: the node's own observation is the whole swarm.
func recalibrate(cfg Config, reachablePeers int) (Mode, int) {
	if cfg.TotalPeers == 0 {
		return ModeNormal, 1
	}

	reachableFraction := float64(reachablePeers) / float64(cfg.TotalPeers)
	if reachableFraction < cfg.PartitionThreshold {
		min := int(math.Floor(float64(reachablePeers) * cfg.QuorumFraction))
		if min < 1 {
			min = 1
		}
		return ModeIsolated, min
	}
	return ModeNormal, cfg.QuorumMin
}
