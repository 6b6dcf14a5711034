// Package worldview holds the per-tick, read-only snapshot of where every
// agent physically is. Driving and Walking populate it as they step; the
// Intersection engine consumes the finished snapshot at the end of the same
// tick, and the grants it issues are only acted on when agents move during
// the next tick. Every admission decision is therefore based on a picture
// one move older than the agents consuming it, which keeps two agents from
// atomically observing each other's post-move state and deadlocking.
package worldview

import "github.com/antigravity/trafficsim/internal/simtypes"

// AgentSnapshot is one agent's position and kinematics as of the tick the
// enclosing View was built for.
type AgentSnapshot struct {
	Agent     simtypes.AgentID
	Lane      simtypes.LaneID
	DistM     float64
	SpeedMPS  float64
	Length    float64
	Committed bool // has already claimed the next lane/turn it is queued for
}

// View is one tick's worth of agent snapshots, keyed by the lane they sit on
// so the intersection engine can cheaply ask "who occupies lane L" when it
// checks a turn's destination entry band.
type View struct {
	Tick   simtypes.Tick
	byLane map[simtypes.LaneID][]AgentSnapshot
	byID   map[simtypes.AgentID]AgentSnapshot
}

// New builds an empty view for the given tick.
func New(tick simtypes.Tick) *View {
	return &View{
		Tick:   tick,
		byLane: make(map[simtypes.LaneID][]AgentSnapshot),
		byID:   make(map[simtypes.AgentID]AgentSnapshot),
	}
}

// Put records (or overwrites) one agent's snapshot.
func (v *View) Put(s AgentSnapshot) {
	if old, ok := v.byID[s.Agent]; ok {
		v.removeFromLane(old)
	}
	v.byID[s.Agent] = s
	v.byLane[s.Lane] = append(v.byLane[s.Lane], s)
}

func (v *View) removeFromLane(s AgentSnapshot) {
	list := v.byLane[s.Lane]
	for i, e := range list {
		if e.Agent == s.Agent {
			v.byLane[s.Lane] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Get returns the snapshot for one agent, if it was recorded this tick.
func (v *View) Get(agent simtypes.AgentID) (AgentSnapshot, bool) {
	s, ok := v.byID[agent]
	return s, ok
}

// OnLane returns every agent snapshot recorded on lane, in the order they
// were Put; callers that need a stable order should Put in agent-ID order.
func (v *View) OnLane(lane simtypes.LaneID) []AgentSnapshot {
	return v.byLane[lane]
}

// Len returns how many agents the view holds.
func (v *View) Len() int {
	return len(v.byID)
}

// Empty returns a view with no agents, for callers (mostly tests) that need
// a snapshot with nothing in it.
func Empty() *View {
	return New(simtypes.ZeroTick)
}
