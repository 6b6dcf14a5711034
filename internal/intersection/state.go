package intersection

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// PendingRequest is one queued admission request.
type PendingRequest struct {
	At    simtypes.IntersectionID `json:"at"`
	Agent simtypes.AgentID        `json:"agent"`
	Turn  simtypes.TurnID         `json:"turn"`
	Order int                     `json:"order"`
}

// Grant is one live admission.
type Grant struct {
	Agent simtypes.AgentID `json:"agent"`
	Turn  simtypes.TurnID  `json:"turn"`
	Since simtypes.Tick    `json:"since"`
}

// Snapshot is IntersectionSim's whole serializable state.
type Snapshot struct {
	Pending   []PendingRequest          `json:"pending"`
	Admitted  []Grant                   `json:"admitted"`
	Overtime  []simtypes.IntersectionID `json:"overtime"`
	NextOrder int                       `json:"next_order"`
	Now       simtypes.Tick             `json:"now"`
}

// Snapshot captures the engine's state in a deterministic order.
func (s *Sim) Snapshot() Snapshot {
	snap := Snapshot{NextOrder: s.nextOrder, Now: s.now}

	ats := make([]simtypes.IntersectionID, 0, len(s.pending))
	for at := range s.pending {
		ats = append(ats, at)
	}
	sort.Slice(ats, func(i, j int) bool { return ats[i] < ats[j] })
	for _, at := range ats {
		for _, r := range s.pending[at] {
			snap.Pending = append(snap.Pending, PendingRequest{At: at, Agent: r.agent, Turn: r.turn, Order: r.order})
		}
	}

	for agent, g := range s.admitted {
		snap.Admitted = append(snap.Admitted, Grant{Agent: agent, Turn: g.turn, Since: g.sinceTick})
	}
	sort.Slice(snap.Admitted, func(i, j int) bool {
		a, b := snap.Admitted[i], snap.Admitted[j]
		if a.Agent.Kind != b.Agent.Kind {
			return a.Agent.Kind < b.Agent.Kind
		}
		if a.Agent.Car != b.Agent.Car {
			return a.Agent.Car < b.Agent.Car
		}
		return a.Agent.Ped < b.Agent.Ped
	})

	for at := range s.overtime {
		snap.Overtime = append(snap.Overtime, at)
	}
	sort.Slice(snap.Overtime, func(i, j int) bool { return snap.Overtime[i] < snap.Overtime[j] })

	return snap
}

// Restore replaces the engine's state with snap.
func (s *Sim) Restore(snap Snapshot) {
	s.pending = make(map[simtypes.IntersectionID][]request)
	for _, pr := range snap.Pending {
		s.pending[pr.At] = append(s.pending[pr.At], request{agent: pr.Agent, turn: pr.Turn, order: pr.Order})
	}
	s.admitted = make(map[simtypes.AgentID]grant, len(snap.Admitted))
	for _, g := range snap.Admitted {
		s.admitted[g.Agent] = grant{turn: g.Turn, sinceTick: g.Since}
	}
	s.overtime = make(map[simtypes.IntersectionID]bool, len(snap.Overtime))
	for _, at := range snap.Overtime {
		s.overtime[at] = true
	}
	s.nextOrder = snap.NextOrder
	s.now = snap.Now
}
