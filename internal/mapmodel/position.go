package mapmodel

import (
	"fmt"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Position is a point on a lane: a distance along it, clamped to [0, length].
type Position struct {
	Lane simtypes.LaneID
	Dist float64
}

// Pt2D is a planar coordinate. mapmodel carries no full geometry engine;
// this is just enough to give SimStats and debug
// tooltips a drawable point for each agent, interpolated along a lane between
// its road's two intersections.
type Pt2D struct {
	X float64
	Y float64
}

func (p Pt2D) String() string {
	return fmt.Sprintf("(%.1f, %.1f)", p.X, p.Y)
}

func lerp(a, b float64, t float64) float64 { return a + (b-a)*t }

// LanePoint interpolates the planar point at dist meters along lane, between
// its road's FromNode and ToNode intersections.
func (m *Map) LanePoint(lane simtypes.LaneID, dist float64) Pt2D {
	l, ok := m.Lanes[lane]
	if !ok {
		return Pt2D{}
	}
	road, ok := m.Roads[l.Road]
	if !ok {
		return Pt2D{}
	}
	from, ok1 := m.Intersections[road.FromNode]
	to, ok2 := m.Intersections[road.ToNode]
	if !ok1 || !ok2 {
		return Pt2D{}
	}
	t := 0.0
	if l.LengthM > 0 {
		t = dist / l.LengthM
	}
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return Pt2D{X: lerp(from.Pt.X, to.Pt.X, t), Y: lerp(from.Pt.Y, to.Pt.Y, t)}
}

func (p Position) String() string {
	return fmt.Sprintf("%s @ %.1fm", p.Lane, p.Dist)
}

// EquivPos projects p onto targetLane, preserving p's fractional distance along
// its own lane's length. Used to translate a sidewalk position onto a parallel
// driving/biking lane (and back).
func (p Position) EquivPos(targetLane simtypes.LaneID, m *Map) Position {
	from := m.Lanes[p.Lane]
	to := m.Lanes[targetLane]
	if from == nil || to == nil || from.LengthM == 0 {
		return Position{Lane: targetLane, Dist: 0}
	}
	frac := p.Dist / from.LengthM
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return Position{Lane: targetLane, Dist: frac * to.LengthM}
}

// PathRequest asks the Pathfinder for a route between two positions, honoring
// per-trip-leg lane-type permissions.
type PathRequest struct {
	Start           Position
	End             Position
	CanUseBikeLanes bool
	CanUseBusLanes  bool
}

// PathStepKind tags whether a PathStep is a lane segment or a turn between
// two lanes; a Path is an ordered sequence of both.
type PathStepKind int

const (
	StepLane PathStepKind = iota
	StepTurn
)

// PathStep is one traversable in a Path.
type PathStep struct {
	Kind PathStepKind
	Lane simtypes.LaneID
	Turn simtypes.TurnID
}

// AsLane returns the lane a lane-kind step traverses.
func (s PathStep) AsLane() simtypes.LaneID {
	return s.Lane
}

// Path is an opaque, already-computed route: alternating lane/turn steps plus
// the exact start/end positions within the first and last lane.
type Path struct {
	Start Position
	End   Position
	Steps []PathStep
}

// CurrentStep returns the first traversable of the path, which is always a
// lane; Drive/Bike commands rely on it to discover their actual starting
// lane after pathfinding.
func (p *Path) CurrentStep() PathStep {
	return p.Steps[0]
}

// Lanes returns just the lane sequence of the path, in travel order.
func (p *Path) Lanes() []simtypes.LaneID {
	lanes := make([]simtypes.LaneID, 0, len(p.Steps)/2+1)
	for _, s := range p.Steps {
		if s.Kind == StepLane {
			lanes = append(lanes, s.Lane)
		}
	}
	return lanes
}

// Length returns the total distance of the path in meters (sum of lane
// segments actually traveled; turns have no length of their own here).
func (p *Path) Length(m *Map) float64 {
	total := 0.0
	for i, s := range p.Steps {
		if s.Kind != StepLane {
			continue
		}
		lane := m.Lanes[s.Lane]
		if lane == nil {
			continue
		}
		switch {
		case len(p.Steps) == 1:
			total += p.End.Dist - p.Start.Dist
		case i == 0:
			total += lane.LengthM - p.Start.Dist
		case i == len(p.Steps)-1:
			total += p.End.Dist
		default:
			total += lane.LengthM
		}
	}
	return total
}
