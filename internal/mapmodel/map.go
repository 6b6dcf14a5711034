package mapmodel

import (
	"fmt"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Map is the whole road network: lanes, roads, turns, buildings, intersections.
// The kernel and its
// engines only ever read a Map during a Step; edits happen between steps via
// EditAddLane/EditRemoveLane/EditAddTurn/EditRemoveTurn on the owning engine,
// not by mutating the Map in place mid-tick.
type Map struct {
	Name          string
	EditsName     string
	Lanes         map[simtypes.LaneID]*Lane
	Roads         map[simtypes.RoadID]*Road
	Turns         map[simtypes.TurnID]*Turn
	Buildings     map[simtypes.BuildingID]*Building
	Intersections map[simtypes.IntersectionID]*Intersection
	BusStops      map[simtypes.BusStopID]*BusStop

	// turnsFromLane indexes Turns by origin lane, in ascending TurnID order, so
	// that any traversal over them is stable run to run.
	turnsFromLane map[simtypes.LaneID][]simtypes.TurnID
}

// NewMap builds an empty map shell; callers populate it with AddRoad/AddLane/
// AddTurn/AddBuilding (see generate.go for a procedural example).
func NewMap(name string) *Map {
	return &Map{
		Name:          name,
		EditsName:     "none",
		Lanes:         make(map[simtypes.LaneID]*Lane),
		Roads:         make(map[simtypes.RoadID]*Road),
		Turns:         make(map[simtypes.TurnID]*Turn),
		Buildings:     make(map[simtypes.BuildingID]*Building),
		Intersections: make(map[simtypes.IntersectionID]*Intersection),
		BusStops:      make(map[simtypes.BusStopID]*BusStop),
		turnsFromLane: make(map[simtypes.LaneID][]simtypes.TurnID),
	}
}

// AddBusStop registers a bus stop at a fixed position on a bus lane.
func (m *Map) AddBusStop(s BusStop) {
	m.BusStops[s.ID] = &s
}

// GetBusStop returns the bus stop with the given ID.
func (m *Map) GetBusStop(id simtypes.BusStopID) (*BusStop, bool) {
	s, ok := m.BusStops[id]
	return s, ok
}

// AddTurn registers t and indexes it by origin lane.
func (m *Map) AddTurn(t Turn) {
	m.Turns[t.ID] = &t
	m.turnsFromLane[t.From] = append(m.turnsFromLane[t.From], t.ID)
}

// GetLane returns the lane with the given ID.
func (m *Map) GetLane(id simtypes.LaneID) (*Lane, bool) {
	l, ok := m.Lanes[id]
	return l, ok
}

// GetRoad returns the road with the given ID.
func (m *Map) GetRoad(id simtypes.RoadID) (*Road, bool) {
	r, ok := m.Roads[id]
	return r, ok
}

// GetBuilding returns the building with the given ID.
func (m *Map) GetBuilding(id simtypes.BuildingID) (*Building, bool) {
	b, ok := m.Buildings[id]
	return b, ok
}

// GetIntersection returns the intersection with the given ID.
func (m *Map) GetIntersection(id simtypes.IntersectionID) (*Intersection, bool) {
	i, ok := m.Intersections[id]
	return i, ok
}

// TurnsFromLane returns, in deterministic ascending-TurnID order, every turn
// that starts at lane.
func (m *Map) TurnsFromLane(lane simtypes.LaneID) []simtypes.TurnID {
	return m.turnsFromLane[lane]
}

// GetNextRoads returns the roads reachable from r, in the stable order recorded
// at construction time. The Spawner's BFS helpers depend on this
// order being identical across runs.
func (m *Map) GetNextRoads(r simtypes.RoadID) []simtypes.RoadID {
	road, ok := m.Roads[r]
	if !ok {
		return nil
	}
	return road.NextRoads
}

// BuildingToRoad returns the road a building fronts onto.
func (m *Map) BuildingToRoad(b simtypes.BuildingID) (simtypes.RoadID, bool) {
	bldg, ok := m.Buildings[b]
	if !ok {
		return 0, false
	}
	return bldg.Road, true
}

// FindClosestLane finds a lane of one of the given types on the same road as
// near, preferring the first match in the road's recorded lane order (stable
// and deterministic).
func (m *Map) FindClosestLane(near simtypes.LaneID, types []LaneType) (simtypes.LaneID, bool) {
	lane, ok := m.Lanes[near]
	if !ok {
		return 0, false
	}
	return m.findLaneOnRoad(lane.Road, types)
}

// FindClosestLaneToBuilding finds a lane of one of the given types on the
// building's road.
func (m *Map) FindClosestLaneToBuilding(b simtypes.BuildingID, types []LaneType) (simtypes.LaneID, bool) {
	bldg, ok := m.Buildings[b]
	if !ok {
		return 0, false
	}
	return m.findLaneOnRoad(bldg.Road, types)
}

func (m *Map) findLaneOnRoad(r simtypes.RoadID, types []LaneType) (simtypes.LaneID, bool) {
	road, ok := m.Roads[r]
	if !ok {
		return 0, false
	}
	for _, laneID := range road.Lanes {
		lane := m.Lanes[laneID]
		if lane == nil {
			continue
		}
		for _, t := range types {
			if lane.Type == t {
				return laneID, true
			}
		}
	}
	return 0, false
}

// String renders a compact identity for logging.
func (m *Map) String() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.EditsName)
}
