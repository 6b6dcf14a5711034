// Package walking is the pedestrian state machine: movement along sidewalks
// toward a SidewalkSpot goal: a building, a parking spot, a bike rack, a bus
// stop, or a border crossing. WalkingSim owns every Sidewalk lane.
package walking

import (
	"fmt"
	"sort"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/worldview"
)

// walkSpeedMPS is a fixed pedestrian pace; there is no per-ped kinematic
// model, so this is the one free parameter the kernel itself owns for
// pedestrians (vehicles carry theirs in simtypes.Vehicle).
const walkSpeedMPS = 1.4

// SpotKind tags a SidewalkSpot variant.
type SpotKind int

const (
	SpotBuilding SpotKind = iota
	SpotParking
	SpotBikeRack
	SpotBusStop
	SpotBorder
)

// SidewalkSpot is a concrete place a
// pedestrian trip leg starts or ends, which resolves to a Position on some
// sidewalk lane.
type SidewalkSpot struct {
	Kind        SpotKind
	Building    simtypes.BuildingID
	Parking     parking.Spot
	BikeRackPos mapmodel.Position
	BusStop     simtypes.BusStopID
	BorderLane  simtypes.LaneID
}

func (s SidewalkSpot) String() string {
	switch s.Kind {
	case SpotBuilding:
		return fmt.Sprintf("Building(%s)", s.Building)
	case SpotParking:
		return fmt.Sprintf("ParkingSpot(%s)", s.Parking)
	case SpotBikeRack:
		return fmt.Sprintf("BikeRack(%s)", s.BikeRackPos)
	case SpotBusStop:
		return fmt.Sprintf("BusStop(%s)", s.BusStop)
	case SpotBorder:
		return fmt.Sprintf("Border(%s)", s.BorderLane)
	default:
		return "SidewalkSpot(?)"
	}
}

// Position resolves the spot to a concrete Position on a sidewalk lane.
func (s SidewalkSpot) Position(m *mapmodel.Map) (mapmodel.Position, bool) {
	switch s.Kind {
	case SpotBuilding:
		b, ok := m.GetBuilding(s.Building)
		if !ok {
			return mapmodel.Position{}, false
		}
		return mapmodel.Position{Lane: b.FrontPath.Sidewalk, Dist: b.FrontPath.DistAlongSidewalk}, true
	case SpotParking:
		sidewalk, ok := m.FindClosestLane(s.Parking.Lane, []mapmodel.LaneType{mapmodel.LaneSidewalk})
		if !ok {
			return mapmodel.Position{}, false
		}
		return parking.SpotToDrivingPosition(m, s.Parking, sidewalk), true
	case SpotBikeRack:
		l, ok := m.GetLane(s.BikeRackPos.Lane)
		if !ok {
			return mapmodel.Position{}, false
		}
		if l.Type == mapmodel.LaneSidewalk {
			return s.BikeRackPos, true
		}
		// Racks recorded at the lane position a bike finished on project to
		// the parallel sidewalk the rider actually stands on.
		sidewalk, ok := m.FindClosestLane(s.BikeRackPos.Lane, []mapmodel.LaneType{mapmodel.LaneSidewalk})
		if !ok {
			return mapmodel.Position{}, false
		}
		return s.BikeRackPos.EquivPos(sidewalk, m), true
	case SpotBusStop:
		stop, ok := m.GetBusStop(s.BusStop)
		if !ok {
			return mapmodel.Position{}, false
		}
		sidewalk, ok := m.FindClosestLane(stop.Lane, []mapmodel.LaneType{mapmodel.LaneSidewalk})
		if !ok {
			return mapmodel.Position{}, false
		}
		return mapmodel.Position{Lane: stop.Lane, Dist: stop.Dist}.EquivPos(sidewalk, m), true
	case SpotBorder:
		lane, ok := m.GetLane(s.BorderLane)
		if !ok {
			return mapmodel.Position{}, false
		}
		return mapmodel.Position{Lane: s.BorderLane, Dist: lane.LengthM}, true
	default:
		return mapmodel.Position{}, false
	}
}

// Ped is one pedestrian under active control.
type Ped struct {
	ID      simtypes.PedestrianID
	Path    *mapmodel.Path
	Goal    SidewalkSpot
	stepIdx int
	distM   float64
}

// ReachedBuilding reports a ped that walked all the way to a building (the
// terminal outcome of a walk-only trip).
type ReachedBuilding struct {
	Ped      simtypes.PedestrianID
	Building simtypes.BuildingID
}

// ReachedParkingSpot reports a ped arriving at a car it is about to drive.
type ReachedParkingSpot struct {
	Ped  simtypes.PedestrianID
	Spot parking.Spot
}

// ReadyToBike reports a ped arriving at a bike rack.
type ReadyToBike struct {
	Ped simtypes.PedestrianID
	Pos mapmodel.Position
}

// ReachedBusStop reports a ped arriving at a stop to board a bus.
type ReachedBusStop struct {
	Ped     simtypes.PedestrianID
	BusStop simtypes.BusStopID
}

// Outcomes is everything WalkingSim.Step hands back for trip transitions:
// parking-spot and bike-rack arrivals, plus building arrivals, which close
// out a trip's final walk, and bus-stop arrivals, which hand the ped to
// TransitSim to wait for a bus.
type Outcomes struct {
	ReachedBuilding    []ReachedBuilding
	ReachedParkingSpot []ReachedParkingSpot
	ReadyToBike        []ReadyToBike
	ReachedBusStop     []ReachedBusStop
}

// Sim is WalkingSim: every pedestrian currently on a sidewalk.
type Sim struct {
	peds map[simtypes.PedestrianID]*Ped
	lane map[simtypes.LaneID][]simtypes.PedestrianID
}

// New builds an empty WalkingSim.
func New() *Sim {
	return &Sim{
		peds: make(map[simtypes.PedestrianID]*Ped),
		lane: make(map[simtypes.LaneID][]simtypes.PedestrianID),
	}
}

// CreatePedestrian admits a new pedestrian at the start of path, walking
// toward goal.
func (s *Sim) CreatePedestrian(id simtypes.PedestrianID, path *mapmodel.Path, goal SidewalkSpot) {
	p := &Ped{ID: id, Path: path, Goal: goal, distM: path.Start.Dist}
	s.peds[id] = p
	s.lane[path.CurrentStep().AsLane()] = append(s.lane[path.CurrentStep().AsLane()], id)
}

// PopulateView publishes every active ped's position into view, the explicit
// counterpart to Driving's implicit publish-as-it-steps.
func (s *Sim) PopulateView(m *mapmodel.Map, view *worldview.View) {
	for _, id := range s.ActivePeds() {
		p := s.peds[id]
		view.Put(worldview.AgentSnapshot{
			Agent:    simtypes.Ped(id),
			Lane:     p.CurrentLane(),
			DistM:    p.distM,
			SpeedMPS: walkSpeedMPS,
		})
	}
	_ = m
}

// Step advances every pedestrian by one TIMESTEP. Crosswalk admission is
// granted unconditionally: admission control applies to vehicle turns, and
// a pedestrian who has started a walk leg keeps walking since ped-ped
// conflicts are not modeled.
func (s *Sim) Step(m *mapmodel.Map, dtSeconds float64) Outcomes {
	var out Outcomes

	for _, id := range s.ActivePeds() {
		p := s.peds[id]
		lane := p.Path.Steps[p.stepIdx].AsLane()
		laneLen := laneLength(m, lane)
		p.distM += walkSpeedMPS * dtSeconds

		for p.distM >= laneLen && p.stepIdx < len(p.Path.Steps)-1 {
			s.removeFromLane(lane, id)
			p.stepIdx += 2
			lane = p.Path.Steps[p.stepIdx].AsLane()
			overflow := p.distM - laneLen
			s.lane[lane] = append(s.lane[lane], id)
			p.distM = overflow
			laneLen = laneLength(m, lane)
		}

		if p.stepIdx == len(p.Path.Steps)-1 && p.distM >= p.Path.End.Dist {
			p.distM = p.Path.End.Dist
			s.finish(p, &out)
		}
	}

	return out
}

func (s *Sim) finish(p *Ped, out *Outcomes) {
	s.removeFromLane(p.Path.Steps[p.stepIdx].AsLane(), p.ID)
	delete(s.peds, p.ID)

	switch p.Goal.Kind {
	case SpotBuilding:
		out.ReachedBuilding = append(out.ReachedBuilding, ReachedBuilding{Ped: p.ID, Building: p.Goal.Building})
	case SpotParking:
		out.ReachedParkingSpot = append(out.ReachedParkingSpot, ReachedParkingSpot{Ped: p.ID, Spot: p.Goal.Parking})
	case SpotBikeRack:
		out.ReadyToBike = append(out.ReadyToBike, ReadyToBike{Ped: p.ID, Pos: p.Goal.BikeRackPos})
	case SpotBusStop:
		out.ReachedBusStop = append(out.ReachedBusStop, ReachedBusStop{Ped: p.ID, BusStop: p.Goal.BusStop})
	}
}

func (s *Sim) removeFromLane(lane simtypes.LaneID, id simtypes.PedestrianID) {
	list := s.lane[lane]
	for i, p := range list {
		if p == id {
			s.lane[lane] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func laneLength(m *mapmodel.Map, lane simtypes.LaneID) float64 {
	if l, ok := m.Lanes[lane]; ok {
		return l.LengthM
	}
	return 0
}

// IsDone reports whether WalkingSim has no active pedestrians.
func (s *Sim) IsDone() bool {
	return len(s.peds) == 0
}

// EditAddLane registers a new sidewalk; like DrivingSim, pedestrians only hold
// lane references through their Paths, so this is bookkeeping symmetry only.
func (s *Sim) EditAddLane(lane simtypes.LaneID) {
	if _, ok := s.lane[lane]; !ok {
		s.lane[lane] = nil
	}
}

// EditAddTurn / EditRemoveTurn: sidewalk-to-sidewalk turns carry no walking
// state (crosswalk admission is unconditional, see Step), so both are no-ops.
func (s *Sim) EditAddTurn(turn simtypes.TurnID)    {}
func (s *Sim) EditRemoveTurn(turn simtypes.TurnID) {}

// EditRemoveLane expels every pedestrian on lane.
func (s *Sim) EditRemoveLane(lane simtypes.LaneID) []simtypes.PedestrianID {
	ids := append([]simtypes.PedestrianID(nil), s.lane[lane]...)
	for _, id := range ids {
		delete(s.peds, id)
	}
	delete(s.lane, lane)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Lookup returns the live Ped for id, if still walking.
func (s *Sim) Lookup(id simtypes.PedestrianID) (*Ped, bool) {
	p, ok := s.peds[id]
	return p, ok
}

// ActivePeds returns every pedestrian currently walking, ascending.
func (s *Sim) ActivePeds() []simtypes.PedestrianID {
	ids := make([]simtypes.PedestrianID, 0, len(s.peds))
	for id := range s.peds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CurrentLane returns the lane p currently occupies.
func (p *Ped) CurrentLane() simtypes.LaneID {
	return p.Path.Steps[p.stepIdx].AsLane()
}

// DistAlongLane returns how far p has travelled along CurrentLane.
func (p *Ped) DistAlongLane() float64 {
	return p.distM
}
