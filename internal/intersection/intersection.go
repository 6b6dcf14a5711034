// Package intersection is admission control: stop signs granting priority
// FIFO, signals cycling deterministically by tick, and overtime tracking when
// an admitted agent hasn't cleared by the time its grant would otherwise be
// reclaimed. Admission decisions made in one Step are read by Driving/Walking
// during the *next* tick; the one-tick lag is intentional.
package intersection

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/worldview"
)

// signalCyclePeriod is how many ticks a traffic signal holds one phase before
// advancing; 50 ticks * TIMESTEP(100ms) = 5s phases.
const signalCyclePeriod = 50

// overtimeThreshold is how many consecutive ticks an agent may hold an
// admission grant without clearing it before the intersection is reported in
// overtime.
const overtimeThreshold = 20

// entryClearanceM is how much of a turn's destination lane must be free of
// agents (per the WorldView snapshot) before anyone is admitted across it;
// an agent sitting within this band is still inside the conflict region.
const entryClearanceM = 10.0

type request struct {
	agent simtypes.AgentID
	turn  simtypes.TurnID
	order int
}

type grant struct {
	turn      simtypes.TurnID
	sinceTick simtypes.Tick
}

// Accepted reports one agent newly granted admission through an
// intersection this Step call.
type Accepted struct {
	Agent        simtypes.AgentID
	Turn         simtypes.TurnID
	Intersection simtypes.IntersectionID
}

// Outcomes is what Sim.Step hands back for event emission: every newly
// granted admission and every intersection that just entered overtime.
type Outcomes struct {
	Accepted []Accepted
	Overtime []simtypes.IntersectionID
}

// Sim is IntersectionSim: pending requests, current grants, and overtime
// state for every intersection in the map.
type Sim struct {
	pending   map[simtypes.IntersectionID][]request
	admitted  map[simtypes.AgentID]grant
	overtime  map[simtypes.IntersectionID]bool
	nextOrder int
	now       simtypes.Tick
}

// New builds an empty IntersectionSim.
func New() *Sim {
	return &Sim{
		pending:  make(map[simtypes.IntersectionID][]request),
		admitted: make(map[simtypes.AgentID]grant),
		overtime: make(map[simtypes.IntersectionID]bool),
	}
}

// IsAdmitted reports whether agent currently holds a grant to cross turn,
// as decided by the previous Step call.
func (s *Sim) IsAdmitted(agent simtypes.AgentID, turn simtypes.TurnID) bool {
	g, ok := s.admitted[agent]
	return ok && g.turn == turn
}

// ClearAdmission releases agent's grant once Driving/Walking has actually
// used it to cross, called the tick the agent finishes traversing the turn.
func (s *Sim) ClearAdmission(agent simtypes.AgentID) {
	delete(s.admitted, agent)
}

// RequestAdmission enqueues agent's request to cross turn at intersection,
// unless it already holds a grant or has an identical request pending.
func (s *Sim) RequestAdmission(agent simtypes.AgentID, at simtypes.IntersectionID, turn simtypes.TurnID) {
	if g, ok := s.admitted[agent]; ok && g.turn == turn {
		return
	}
	for _, r := range s.pending[at] {
		if r.agent == agent && r.turn == turn {
			return
		}
	}
	s.pending[at] = append(s.pending[at], request{agent: agent, turn: turn, order: s.nextOrder})
	s.nextOrder++
}

// IsInOvertime reports whether at currently has an admitted agent that has
// failed to clear within overtimeThreshold ticks.
func (s *Sim) IsInOvertime(at simtypes.IntersectionID) bool {
	return s.overtime[at]
}

// Step decides admission from view, the snapshot Driving and Walking built
// earlier this same tick. The grants it issues are only acted on when agents
// move during the *next* tick, so every decision is based on a picture one
// move older than the agents consuming it; see the worldview package comment
// for why that lag is load-bearing.
//
// A request is granted only when (a) the requester is still present in the
// snapshot, (b) its turn conflicts with no live grant and no turn granted
// earlier this Step, and (c) the turn's destination entry band is unoccupied
// in the snapshot. Stop signs consider only the head of their FIFO queue;
// signals consider every request whose source lane is on the road holding
// the green phase.
func (s *Sim) Step(m *mapmodel.Map, view *worldview.View, now simtypes.Tick) Outcomes {
	var out Outcomes
	s.now = now

	ids := make([]simtypes.IntersectionID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, at := range ids {
		inter, ok := m.GetIntersection(at)
		if !ok {
			delete(s.pending, at)
			continue
		}

		// Requests from agents no longer in the world (view.Get misses) are
		// stale and dropped; they would otherwise block a stop sign's queue
		// forever.
		live := make([]request, 0, len(s.pending[at]))
		for _, r := range s.pending[at] {
			if _, present := view.Get(r.agent); present {
				live = append(live, r)
			}
		}
		if len(live) == 0 {
			delete(s.pending, at)
			continue
		}

		busy := s.busyTurns(m, at)
		var granted []request
		var remaining []request
		switch inter.Control {
		case mapmodel.ControlStopSign:
			sort.Slice(live, func(i, j int) bool { return live[i].order < live[j].order })
			if s.canAdmit(m, view, live[0].turn, busy) {
				granted = live[:1]
				remaining = append(remaining, live[1:]...)
			} else {
				remaining = live
			}
		case mapmodel.ControlSignal:
			activeRoad := s.activeRoadGroup(m, at, now)
			for _, r := range live {
				if turnFromRoad(m, r.turn) == activeRoad && s.canAdmit(m, view, r.turn, busy) {
					granted = append(granted, r)
					busy = append(busy, r.turn)
					continue
				}
				remaining = append(remaining, r)
			}
		}

		for _, r := range granted {
			s.admitted[r.agent] = grant{turn: r.turn, sinceTick: now}
			out.Accepted = append(out.Accepted, Accepted{Agent: r.agent, Turn: r.turn, Intersection: at})
		}
		if len(remaining) > 0 {
			s.pending[at] = remaining
		} else {
			delete(s.pending, at)
		}
	}

	out.Overtime = s.recomputeOvertime(m)

	return out
}

// busyTurns lists the turns of every live grant at this intersection; new
// grants must not conflict with any of them.
func (s *Sim) busyTurns(m *mapmodel.Map, at simtypes.IntersectionID) []simtypes.TurnID {
	var busy []simtypes.TurnID
	for _, g := range s.admitted {
		if t, ok := m.Turns[g.turn]; ok && t.AtNode == at {
			busy = append(busy, g.turn)
		}
	}
	return busy
}

// canAdmit checks one candidate turn against the mutual-exclusion rules: no
// conflicting turn may hold a grant, and the destination lane's entry band
// must be clear of agents in the snapshot.
func (s *Sim) canAdmit(m *mapmodel.Map, view *worldview.View, turn simtypes.TurnID, busy []simtypes.TurnID) bool {
	t, ok := m.Turns[turn]
	if !ok {
		return false
	}
	for _, b := range busy {
		if TurnsConflict(m, turn, b) {
			return false
		}
	}
	for _, snap := range view.OnLane(t.To) {
		if snap.DistM < entryClearanceM {
			return false
		}
	}
	return true
}

// TurnsConflict reports whether two turns at the same intersection share a
// conflict region. Turns running road-to-road in parallel (same source road,
// same destination road, e.g. the driving and bike lanes of one street) never
// cross; everything else at one node does.
func TurnsConflict(m *mapmodel.Map, a, b simtypes.TurnID) bool {
	if a == b {
		return true
	}
	ta, okA := m.Turns[a]
	tb, okB := m.Turns[b]
	if !okA || !okB || ta.AtNode != tb.AtNode {
		return false
	}
	return turnFromRoad(m, a) != turnFromRoad(m, b) || turnToRoad(m, a) != turnToRoad(m, b)
}

func turnFromRoad(m *mapmodel.Map, turn simtypes.TurnID) simtypes.RoadID {
	if t, ok := m.Turns[turn]; ok {
		if l, ok := m.GetLane(t.From); ok {
			return l.Road
		}
	}
	return -1
}

func turnToRoad(m *mapmodel.Map, turn simtypes.TurnID) simtypes.RoadID {
	if t, ok := m.Turns[turn]; ok {
		if l, ok := m.GetLane(t.To); ok {
			return l.Road
		}
	}
	return -1
}

// activeRoadGroup picks which of the roads touching the intersection (at
// either end) has the green phase this tick, cycling deterministically in
// ascending RoadID order.
func (s *Sim) activeRoadGroup(m *mapmodel.Map, at simtypes.IntersectionID, now simtypes.Tick) simtypes.RoadID {
	var roads []simtypes.RoadID
	for id, r := range m.Roads {
		if r.ToNode == at || r.FromNode == at {
			roads = append(roads, id)
		}
	}
	if len(roads) == 0 {
		return 0
	}
	sort.Slice(roads, func(i, j int) bool { return roads[i] < roads[j] })
	phase := (int64(now) / signalCyclePeriod) % int64(len(roads))
	return roads[phase]
}

func (s *Sim) recomputeOvertime(m *mapmodel.Map) []simtypes.IntersectionID {
	for k := range s.overtime {
		delete(s.overtime, k)
	}
	for agent, g := range s.admitted {
		if s.now-g.sinceTick >= overtimeThreshold {
			if turn, ok := m.Turns[g.turn]; ok {
				s.overtime[turn.AtNode] = true
			}
		}
		_ = agent
	}
	ids := make([]simtypes.IntersectionID, 0, len(s.overtime))
	for id := range s.overtime {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DropAgent forgets every request and grant agent holds, for agents removed
// from the world mid-run (lane edits expelling vehicles).
func (s *Sim) DropAgent(agent simtypes.AgentID) {
	delete(s.admitted, agent)
	for at, reqs := range s.pending {
		var kept []request
		for _, r := range reqs {
			if r.agent != agent {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			s.pending[at] = kept
		} else {
			delete(s.pending, at)
		}
	}
}

// EditAddTurn has nothing to prepare: admission state for a turn only exists
// once an agent requests it.
func (s *Sim) EditAddTurn(turn simtypes.TurnID) {}

// EditRemoveTurn drops every pending request and live grant that references
// the removed turn, so later Steps never hand out admission across topology
// that no longer exists.
func (s *Sim) EditRemoveTurn(turn simtypes.TurnID) {
	for at, reqs := range s.pending {
		var kept []request
		for _, r := range reqs {
			if r.turn != turn {
				kept = append(kept, r)
			}
		}
		if len(kept) > 0 {
			s.pending[at] = kept
		} else {
			delete(s.pending, at)
		}
	}
	for agent, g := range s.admitted {
		if g.turn == turn {
			delete(s.admitted, agent)
		}
	}
}

// AcceptedAgents returns every agent currently holding an admission grant.
func (s *Sim) AcceptedAgents() []simtypes.AgentID {
	ids := make([]simtypes.AgentID, 0, len(s.admitted))
	for a := range s.admitted {
		ids = append(ids, a)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Kind != ids[j].Kind {
			return ids[i].Kind < ids[j].Kind
		}
		if ids[i].Car != ids[j].Car {
			return ids[i].Car < ids[j].Car
		}
		return ids[i].Ped < ids[j].Ped
	})
	return ids
}

// IsDone reports whether no request is outstanding; IntersectionSim has no
// agents of its own, so "done" just means nothing is queued or admitted.
func (s *Sim) IsDone() bool {
	return len(s.pending) == 0 && len(s.admitted) == 0
}
