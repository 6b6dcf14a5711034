// Package mapmodel is the external map/geometry collaborator the simulation kernel
// consumes through a narrow, read-only interface. It is deliberately a
// minimal topological graph (lanes, roads, turns, buildings, a Dijkstra
// Pathfinder), not a full geometry/rendering engine; the kernel never reaches past
// this interface into rendering, OSM import, or kinematic integration.
package mapmodel

import "github.com/antigravity/trafficsim/internal/simtypes"

// LaneType is the kind of traffic (if any) a lane carries.
type LaneType int

const (
	LaneDriving LaneType = iota
	LaneBus
	LaneBiking
	LaneParking
	LaneSidewalk
)

func (t LaneType) String() string {
	switch t {
	case LaneDriving:
		return "driving"
	case LaneBus:
		return "bus"
	case LaneBiking:
		return "biking"
	case LaneParking:
		return "parking"
	case LaneSidewalk:
		return "sidewalk"
	default:
		return "unknown"
	}
}

// Lane is one traversable strip along a road.
type Lane struct {
	ID         simtypes.LaneID
	Road       simtypes.RoadID
	Type       LaneType
	LengthM    float64
	ParkingLot int // number of spots, only meaningful when Type == LaneParking
}

// Road bundles the lanes between two intersections. NextRoads is recorded
// explicitly at map-construction time, in a fixed order, so that BFS over the
// road graph (used by the Spawner's near-building search helpers) is
// deterministic without depending on map iteration order anywhere.
type Road struct {
	ID        simtypes.RoadID
	Lanes     []simtypes.LaneID // both directions, road-construction order
	NextRoads []simtypes.RoadID
	FromNode  simtypes.IntersectionID
	ToNode    simtypes.IntersectionID
}

// Turn connects two lanes across a shared intersection.
type Turn struct {
	ID     simtypes.TurnID
	From   simtypes.LaneID
	To     simtypes.LaneID
	AtNode simtypes.IntersectionID
}

// BetweenSidewalks reports whether this turn belongs to WalkingSim (both
// endpoints are sidewalks) rather than DrivingSim.
func (t Turn) BetweenSidewalks(m *Map) bool {
	from := m.Lanes[t.From]
	to := m.Lanes[t.To]
	return from != nil && to != nil && from.Type == LaneSidewalk && to.Type == LaneSidewalk
}

// FrontPath is the short connector from a building's door to its adjacent
// sidewalk.
type FrontPath struct {
	Sidewalk          simtypes.LaneID
	DistAlongSidewalk float64
}

// Building is a trip endpoint: somewhere a pedestrian leg starts or ends.
type Building struct {
	ID        simtypes.BuildingID
	Road      simtypes.RoadID
	FrontPath FrontPath
}

// Intersection is a node in the road graph; its Control determines which
// IntersectionSim strategy governs admission there.
type Intersection struct {
	ID      simtypes.IntersectionID
	Control ControlType
	Border  bool // true if this intersection is a map edge agents may cross
	Pt      Pt2D // planar coordinate, used only for SimStats/debug tooltips
}

// ControlType selects the admission-control strategy IntersectionSim uses.
type ControlType int

const (
	ControlStopSign ControlType = iota
	ControlSignal
)

// BusStop is a physical stop along a bus lane; TransitSim references it by ID
// for route sequencing, but its position on the map (and the sidewalk a
// waiting/alighting passenger actually stands on) is map data, not transit
// state.
type BusStop struct {
	ID   simtypes.BusStopID
	Lane simtypes.LaneID
	Dist float64
}
