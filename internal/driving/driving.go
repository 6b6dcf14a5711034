// Package driving is the vehicle state machine: cars, buses, and bikes all
// move along driving/biking/bus lanes under DrivingSim, which owns every lane
// type except Parking and Sidewalk. It
// reads ParkingSim to claim/release spots and an IntersectionGate to learn
// whether it may advance through a turn.
package driving

import (
	"fmt"
	"sort"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/worldview"
)

// GoalKind tags a DrivingGoal variant.
type GoalKind int

const (
	ParkNear GoalKind = iota
	Border
)

// DrivingGoal is a closed choice: either "park somewhere near
// this building" or "leave the map at this border lane".
type DrivingGoal struct {
	Kind         GoalKind
	Building     simtypes.BuildingID
	Intersection simtypes.IntersectionID
	BorderLane   simtypes.LaneID
}

func (g DrivingGoal) String() string {
	switch g.Kind {
	case ParkNear:
		return fmt.Sprintf("ParkNear(%s)", g.Building)
	case Border:
		return fmt.Sprintf("Border(%s via %s)", g.Intersection, g.BorderLane)
	default:
		return "DrivingGoal(?)"
	}
}

// state tags where a Car is in its lifecycle.
type state int

const (
	crossing state = iota
	waitingAtIntersection
)

// Car is one vehicle under active control.
type Car struct {
	ID      simtypes.CarID
	Vehicle simtypes.Vehicle
	Path    *mapmodel.Path
	Goal    DrivingGoal

	// TargetSpot is the parking spot chosen at spawn time, populated only when
	// Goal.Kind == ParkNear and the vehicle is a car (buses/bikes ignore it).
	TargetSpot  *parking.Spot
	stepIdx     int
	distM       float64
	pendingTurn simtypes.TurnID
	st          state
}

// NewlyParked reports a car that reached its ParkNear spot this tick. Never
// emitted for bikes, which finish through DoneBiking instead.
type NewlyParked struct {
	Car  simtypes.CarID
	Spot parking.Spot
}

// AtBorder reports a car/bus that left the map at a border lane this tick.
type AtBorder struct {
	Car          simtypes.CarID
	Intersection simtypes.IntersectionID
}

// DoneBiking reports a bike that reached the end of its Bike leg this tick,
// at the lane position it finished on (the spot a rider racks the bike at).
type DoneBiking struct {
	Car simtypes.CarID
	Pos mapmodel.Position
}

// Outcomes is everything DrivingSim.Step hands back for trip transitions.
type Outcomes struct {
	NewlyParked []NewlyParked
	AtBorder    []AtBorder
	DoneBiking  []DoneBiking
}

// IntersectionGate is the read/write surface DrivingSim needs from
// IntersectionSim without importing it directly (avoids a package cycle,
// since IntersectionSim in turn only depends on worldview/simtypes).
type IntersectionGate interface {
	IsAdmitted(agent simtypes.AgentID, turn simtypes.TurnID) bool
	RequestAdmission(agent simtypes.AgentID, intersection simtypes.IntersectionID, turn simtypes.TurnID)
	ClearAdmission(agent simtypes.AgentID)
}

// TransitGate is the read surface DrivingSim needs from TransitSim: whether a
// bus is currently dwelling at a stop to board/alight passengers and should
// hold its physical position this tick rather than advance. Decided from the previous
// tick's TransitSim state, the same one-tick lag IntersectionGate uses.
type TransitGate interface {
	IsDwelling(car simtypes.CarID) bool
}

// Sim is DrivingSim: every car/bus/bike currently on the road network.
type Sim struct {
	cars map[simtypes.CarID]*Car
	lane map[simtypes.LaneID][]simtypes.CarID // insertion order, head of lane first
}

// New builds an empty DrivingSim.
func New() *Sim {
	return &Sim{
		cars: make(map[simtypes.CarID]*Car),
		lane: make(map[simtypes.LaneID][]simtypes.CarID),
	}
}

// CreateCar admits a new vehicle onto the network, positioned at the start of
// its Path, as dispatched by the Scheduler's SpawnCar commands.
func (s *Sim) CreateCar(vehicle simtypes.Vehicle, path *mapmodel.Path, goal DrivingGoal, targetSpot *parking.Spot) {
	c := &Car{
		ID:         vehicle.ID,
		Vehicle:    vehicle,
		Path:       path,
		Goal:       goal,
		TargetSpot: targetSpot,
		stepIdx:    0,
		distM:      path.Start.Dist,
		st:         crossing,
	}
	s.cars[c.ID] = c
	lane := path.CurrentStep().AsLane()
	s.lane[lane] = append(s.lane[lane], c.ID)
}

// Step advances every car by one TIMESTEP, queries gate for intersection
// admission when a car reaches the end of its current lane, and consults
// park to claim/release spots. dtSeconds is simtypes.TIMESTEP in seconds.
func (s *Sim) Step(m *mapmodel.Map, park *parking.Sim, gate IntersectionGate, transitGate TransitGate, view *worldview.View, dtSeconds float64) Outcomes {
	var out Outcomes

	ids := make([]simtypes.CarID, 0, len(s.cars))
	for id := range s.cars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		c := s.cars[id]
		if c.Vehicle.VehicleType == simtypes.VehicleBus && transitGate != nil && transitGate.IsDwelling(c.ID) {
			view.Put(worldview.AgentSnapshot{
				Agent:    simtypes.Car(c.ID),
				Lane:     c.Path.Steps[c.stepIdx].AsLane(),
				DistM:    c.distM,
				SpeedMPS: 0,
				Length:   c.Vehicle.LengthM,
			})
			continue
		}
		lane := c.Path.Steps[c.stepIdx].AsLane()
		laneLen := laneLength(m, lane)
		c.distM += c.Vehicle.MaxSpeedMPS * dtSeconds

		for c.distM >= laneLen && c.stepIdx < len(c.Path.Steps)-1 {
			turnStep := c.Path.Steps[c.stepIdx+1]
			if turnStep.Kind == mapmodel.StepTurn {
				agent := simtypes.Car(c.ID)
				var atNode simtypes.IntersectionID
				if t, ok := m.Turns[turnStep.Turn]; ok {
					atNode = t.AtNode
				}
				if !gate.IsAdmitted(agent, turnStep.Turn) {
					gate.RequestAdmission(agent, atNode, turnStep.Turn)
					c.distM = laneLen
					c.pendingTurn = turnStep.Turn
					c.st = waitingAtIntersection
					break
				}
				gate.ClearAdmission(agent)
				c.st = crossing
				c.pendingTurn = 0
				overflow := c.distM - laneLen
				s.removeFromLane(lane, c.ID)
				c.stepIdx += 2 // consume Turn, land on next Lane step
				lane = c.Path.Steps[c.stepIdx].AsLane()
				s.lane[lane] = append(s.lane[lane], c.ID)
				laneLen = laneLength(m, lane)
				c.distM = overflow
				continue
			}
			break
		}

		if c.stepIdx == len(c.Path.Steps)-1 && c.distM >= c.Path.End.Dist {
			c.distM = c.Path.End.Dist
			s.finish(c, m, park, &out)
			continue
		}

		view.Put(worldview.AgentSnapshot{
			Agent:    simtypes.Car(c.ID),
			Lane:     lane,
			DistM:    c.distM,
			SpeedMPS: c.Vehicle.MaxSpeedMPS,
			Length:   c.Vehicle.LengthM,
		})
	}

	return out
}

func (s *Sim) finish(c *Car, m *mapmodel.Map, park *parking.Sim, out *Outcomes) {
	s.removeFromLane(c.Path.Steps[c.stepIdx].AsLane(), c.ID)
	delete(s.cars, c.ID)

	if c.Vehicle.VehicleType == simtypes.VehicleBike {
		out.DoneBiking = append(out.DoneBiking, DoneBiking{Car: c.ID, Pos: c.Path.End})
		return
	}

	switch c.Goal.Kind {
	case ParkNear:
		if c.TargetSpot == nil {
			return
		}
		b := c.Goal.Building
		if err := park.Park(*c.TargetSpot, c.ID, c.Vehicle, &b); err == nil {
			out.NewlyParked = append(out.NewlyParked, NewlyParked{Car: c.ID, Spot: *c.TargetSpot})
		}
	case Border:
		out.AtBorder = append(out.AtBorder, AtBorder{Car: c.ID, Intersection: c.Goal.Intersection})
	}
	_ = m
}

func (s *Sim) removeFromLane(lane simtypes.LaneID, id simtypes.CarID) {
	list := s.lane[lane]
	for i, c := range list {
		if c == id {
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

// IsDone reports whether DrivingSim has no active vehicles.
func (s *Sim) IsDone() bool {
	return len(s.cars) == 0
}

// EditAddLane registers a new lane DrivingSim owns. Vehicles only ever hold
// lane references through their Paths, so there is nothing to pre-build; the
// method exists for the edit contract's symmetry with EditRemoveLane.
func (s *Sim) EditAddLane(lane simtypes.LaneID) {
	if _, ok := s.lane[lane]; !ok {
		s.lane[lane] = nil
	}
}

// EditAddTurn / EditRemoveTurn: turns carry no per-engine state on the driving
// side (admission state lives in IntersectionSim), so both are no-ops here.
func (s *Sim) EditAddTurn(turn simtypes.TurnID)    {}
func (s *Sim) EditRemoveTurn(turn simtypes.TurnID) {}

// EditRemoveLane expels every car on a lane DrivingSim owns (Driving, Biking,
// or Bus); their trips are left to the caller.
func (s *Sim) EditRemoveLane(lane simtypes.LaneID) []simtypes.CarID {
	ids := append([]simtypes.CarID(nil), s.lane[lane]...)
	for _, id := range ids {
		delete(s.cars, id)
	}
	delete(s.lane, lane)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Lookup returns the live Car for id, if still on the network.
func (s *Sim) Lookup(id simtypes.CarID) (*Car, bool) {
	c, ok := s.cars[id]
	return c, ok
}

// CurrentLane returns the lane c currently occupies.
func (c *Car) CurrentLane() simtypes.LaneID {
	return c.Path.Steps[c.stepIdx].AsLane()
}

// DistAlongLane returns how far c has travelled along CurrentLane.
func (c *Car) DistAlongLane() float64 {
	return c.distM
}

// CarsOnLane returns the cars on lane, head-of-lane first.
func (s *Sim) CarsOnLane(lane simtypes.LaneID) []simtypes.CarID {
	return s.lane[lane]
}

// ActiveCars returns every car/bus/bike currently on the network, ascending,
// for callers collecting stats over the whole fleet.
func (s *Sim) ActiveCars() []simtypes.CarID {
	ids := make([]simtypes.CarID, 0, len(s.cars))
	for id := range s.cars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
