// Package kernel is the Sim orchestrator: the fixed nine-sub-step per-tick
// control flow that advances every domain engine in order, collects the
// events they emit, and owns save/load of the whole world.
// Nothing outside this package decides step order; every engine it wires
// together (driving, walking, parking, intersection, transit, trips, spawn,
// scheduler) is otherwise free-standing and order-agnostic.
package kernel

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/events"
	"github.com/antigravity/trafficsim/internal/intersection"
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/rng"
	"github.com/antigravity/trafficsim/internal/scheduler"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/spawn"
	"github.com/antigravity/trafficsim/internal/transit"
	"github.com/antigravity/trafficsim/internal/trips"
	"github.com/antigravity/trafficsim/internal/walking"
	"github.com/antigravity/trafficsim/internal/worldview"
)

// Sim is the orchestrator: the single value that exclusively owns every
// engine's state and advances them all in lockstep.
type Sim struct {
	now       simtypes.Tick
	mapName   string
	editsName string
	runName   string
	dataRoot  string

	savestateEvery *simtypes.Tick

	rng       *rand.Rand
	rngSource *rng.Source
	seed      *uint64

	driving       *driving.Sim
	walking       *walking.Sim
	parking       *parking.Sim
	intersections *intersection.Sim
	transit       *transit.Sim
	trips         *trips.Manager
	spawner       *spawn.Spawner
	scheduler     *scheduler.Scheduler

	// currentAgentForDebugging is an intra-step breadcrumb: the last agent
	// Step touched, so a fatal error can report exactly what it was doing
	// when an invariant broke.
	currentAgentForDebugging *simtypes.AgentID

	lastStats   SimStats
	seenOrphans int

	logger *slog.Logger
}

// newEmpty builds a Sim shell with fresh engines and defaults; New and
// LoadSavestate both start from it.
func newEmpty() *Sim {
	r, src := rng.New(nil)
	return &Sim{
		dataRoot:      "data",
		rng:           r,
		rngSource:     src,
		driving:       driving.New(),
		walking:       walking.New(),
		parking:       parking.New(),
		intersections: intersection.New(),
		transit:       transit.New(),
		trips:         trips.New(),
		spawner:       spawn.New(nil),
		scheduler:     scheduler.New(),
		logger:        slog.Default(),
	}
}

// New builds a zero-time, empty Sim over m. A nil seed requests an
// entropy-drawn one, captured in the returned Sim so it (and therefore every
// subsequent random draw) is reproducible once read back out of state.
func New(m *mapmodel.Map, runName string, seed *uint64, savestateEvery *simtypes.Tick) *Sim {
	if runName == "" {
		runName = uuid.NewString()
	}
	s := newEmpty()
	s.mapName = m.Name
	s.editsName = m.EditsName
	s.runName = runName
	s.savestateEvery = savestateEvery
	s.seed = seed
	s.rng, s.rngSource = rng.New(seed)

	// Parking lanes are inventory the moment the world exists; every other
	// lane type only matters once an agent is on it.
	lanes := make([]simtypes.LaneID, 0, len(m.Lanes))
	for id := range m.Lanes {
		lanes = append(lanes, id)
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i] < lanes[j] })
	for _, id := range lanes {
		if l := m.Lanes[id]; l.Type == mapmodel.LaneParking {
			s.parking.EditAddLane(l.ID, l.ParkingLot)
		}
	}
	return s
}

// WithLogger configures structured logging, the same chained-builder idiom
// server.Server uses.
func (s *Sim) WithLogger(logger *slog.Logger) *Sim {
	if logger != nil {
		s.logger = logger
		s.spawner.SetLogger(logger)
	}
	return s
}

// WithDataRoot configures where savestates are written/read.
func (s *Sim) WithDataRoot(root string) *Sim {
	if root != "" {
		s.dataRoot = root
	}
	return s
}

// Now returns the current simulation tick.
func (s *Sim) Now() simtypes.Tick { return s.now }

// RunName returns the run's name, used in the savestate path.
func (s *Sim) RunName() string { return s.runName }

// Spawner exposes the Spawner for callers originating trips (tests, seeding,
// cmd/simkernel's trip-stream reader).
func (s *Sim) Spawner() *spawn.Spawner { return s.spawner }

// Trips exposes the TripManager for the same reason.
func (s *Sim) Trips() *trips.Manager { return s.trips }

// Transit exposes TransitSim so callers can register routes before stepping.
func (s *Sim) Transit() *transit.Sim { return s.transit }

// Parking exposes ParkingSim for seeding/debug queries.
func (s *Sim) Parking() *parking.Sim { return s.parking }

// RNG exposes the base RNG for callers that originate trips needing random
// choices (e.g. picking a random building).
func (s *Sim) RNG() *rand.Rand { return s.rng }

// IsEmpty reports whether the simulation has never been stepped and holds no
// agents.
func (s *Sim) IsEmpty() bool {
	return s.now == simtypes.ZeroTick && s.IsDone()
}

// IsDone reports whether every engine is idle and no spawn work is queued.
// Orphaned trips deliberately don't count: they sit in TripManager with no
// agent to ever run them, and keeping them from blocking is-done is what
// lets a run with failed spawns still terminate.
func (s *Sim) IsDone() bool {
	return s.driving.IsDone() && s.walking.IsDone() && s.transit.IsDone() &&
		s.intersections.IsDone() && s.spawner.Len() == 0 && s.scheduler.Len() == 0
}

// FatalError wraps an inner-step invariant violation with the tick and agent
// breadcrumb active when it happened.
type FatalError struct {
	Tick  simtypes.Tick
	Agent *simtypes.AgentID
	Err   error
}

func (e *FatalError) Error() string {
	if e.Agent != nil {
		return fmt.Sprintf("kernel: fatal error at tick %s (agent %s): %v", e.Tick, *e.Agent, e.Err)
	}
	return fmt.Sprintf("kernel: fatal error at tick %s: %v", e.Tick, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func (s *Sim) fatal(err error) error {
	return &FatalError{Tick: s.now, Agent: s.currentAgentForDebugging, Err: err}
}

func (s *Sim) touch(agent simtypes.AgentID) {
	a := agent
	s.currentAgentForDebugging = &a
}

// Step advances the simulation by exactly one TIMESTEP, executing its nine
// sub-steps in fixed order and returning every event they
// emitted, in sub-step order. Any inner invariant violation is fatal: it is
// wrapped in a FatalError and returned immediately, leaving the Sim in a
// state suitable for DumpBeforeAbort.
func (s *Sim) Step(m *mapmodel.Map) ([]events.Event, error) {
	var out []events.Event
	now := s.now
	dt := simtypes.TIMESTEP.Seconds()

	defer s.observeStep(timeNow())

	// 1. Spawner drains due commands, computes paths in parallel, forwards
	// into the Scheduler.
	s.spawner.Step(now, m, s.scheduler, s.parking, s.rng)

	// 2. Scheduler dispatches due spawn commands into Driving/Walking.
	for _, cmd := range s.scheduler.Drain(now) {
		if cmd.IsCar() {
			c := cmd.Car
			agent := simtypes.Car(c.Vehicle.ID)
			s.touch(agent)
			if err := s.trips.AgentStartingTripLeg(agent, c.Trip); err != nil {
				return out, s.fatal(err)
			}
			s.driving.CreateCar(c.Vehicle, c.Path, c.Goal, c.TargetSpot)
		} else {
			p := cmd.Ped
			agent := simtypes.Ped(p.ID)
			s.touch(agent)
			if err := s.trips.AgentStartingTripLeg(agent, p.Trip); err != nil {
				return out, s.fatal(err)
			}
			s.walking.CreatePedestrian(p.ID, p.Path, p.Goal)
		}
	}

	view := worldview.New(now)

	// 3. Driving steps (writing into WorldView; reading Parking,
	// Intersections, Transit).
	drivingOut := s.driving.Step(m, s.parking, s.intersections, s.transit, view, dt)

	// 4. Trip transitions from Driving outcomes.
	out = append(out, s.handleDrivingOutcomes(now, drivingOut)...)

	// 5. Walking populates WorldView, then steps. It consults neither
	// IntersectionSim nor TripManager: crosswalks are crossed without
	// admission, and trip transitions are applied in (6).
	s.walking.PopulateView(m, view)
	walkingOut := s.walking.Step(m, dt)

	// 6. Trip transitions from Walking outcomes.
	out = append(out, s.handleWalkingOutcomes(now, walkingOut)...)

	// 7. Transit steps (may move passengers between Walking and buses).
	arrivals, arrivalEvents := s.detectBusArrivals(now)
	out = append(out, arrivalEvents...)
	transitOut := s.transit.Step(arrivals)
	out = append(out, s.handleTransitOutcomes(now, transitOut)...)

	// 8. Intersections step, consuming the WorldView built in (3)+(5); the
	// grants they issue are first read by Driving when it moves next tick.
	interOut := s.intersections.Step(m, view, now)
	out = append(out, s.handleIntersectionOutcomes(now, interOut)...)

	// 9. time += TIMESTEP; collect stats; optionally save.
	s.now = now.Next()
	s.lastStats = s.collectStats(m)
	s.recordEvents(out)
	if s.savestateEvery != nil && s.now.IsMultipleOf(*s.savestateEvery) {
		if _, err := s.Save(); err != nil {
			s.logger.Error("kernel: savestate write failed", "tick", s.now, "err", err)
		}
	}

	return out, nil
}

func (s *Sim) handleDrivingOutcomes(now simtypes.Tick, o driving.Outcomes) []events.Event {
	var out []events.Event

	sort.Slice(o.NewlyParked, func(i, j int) bool { return o.NewlyParked[i].Car < o.NewlyParked[j].Car })
	for _, np := range o.NewlyParked {
		s.touch(simtypes.Car(np.Car))
		out = append(out, events.Event{
			Kind: events.CarReachedParkingSpot, Tick: now, Car: np.Car,
			ParkingSpot: events.ParkingSpotRef{Lane: np.Spot.Lane, Idx: np.Spot.Idx},
		})
		s.spawner.CarReachedParkingSpot(now, np.Car, np.Spot, s.trips)
	}

	sort.Slice(o.AtBorder, func(i, j int) bool { return o.AtBorder[i].Car < o.AtBorder[j].Car })
	for _, ab := range o.AtBorder {
		s.touch(simtypes.Car(ab.Car))
		if route, serving := s.trips.ServingBusRoute(ab.Car); serving {
			s.relaunchBusLap(now, ab.Car, route)
			continue
		}
		if _, err := s.trips.CarReachedBorder(now, ab.Car); err != nil {
			s.logger.Warn("kernel: car_reached_border failed", "car", ab.Car, "err", err)
			continue
		}
		out = append(out, events.Event{Kind: events.CarReachedBorder, Tick: now, Car: ab.Car, Intersection: ab.Intersection})
	}

	sort.Slice(o.DoneBiking, func(i, j int) bool { return o.DoneBiking[i].Car < o.DoneBiking[j].Car })
	for _, db := range o.DoneBiking {
		s.touch(simtypes.Car(db.Car))
		out = append(out, events.Event{Kind: events.BikeReachedEnd, Tick: now, Car: db.Car})
		s.spawner.BikeReachedEnd(now, db.Car, db.Pos, s.trips)
	}

	return out
}

func (s *Sim) handleWalkingOutcomes(now simtypes.Tick, o walking.Outcomes) []events.Event {
	var out []events.Event

	sort.Slice(o.ReachedBuilding, func(i, j int) bool { return o.ReachedBuilding[i].Ped < o.ReachedBuilding[j].Ped })
	for _, rb := range o.ReachedBuilding {
		s.touch(simtypes.Ped(rb.Ped))
		if _, err := s.trips.WalkingTripFinished(now, rb.Ped); err != nil {
			s.logger.Warn("kernel: walking_trip_finished failed", "ped", rb.Ped, "err", err)
			continue
		}
		out = append(out, events.Event{Kind: events.PedReachedBuilding, Tick: now, Ped: rb.Ped, Building: rb.Building})
	}

	sort.Slice(o.ReachedParkingSpot, func(i, j int) bool { return o.ReachedParkingSpot[i].Ped < o.ReachedParkingSpot[j].Ped })
	for _, rp := range o.ReachedParkingSpot {
		s.touch(simtypes.Ped(rp.Ped))
		out = append(out, events.Event{
			Kind: events.PedReachedParkingSpot, Tick: now, Ped: rp.Ped,
			ParkingSpot: events.ParkingSpotRef{Lane: rp.Spot.Lane, Idx: rp.Spot.Idx},
		})
		s.spawner.PedReachedParkingSpot(now, rp.Ped, rp.Spot, s.trips)
	}

	sort.Slice(o.ReadyToBike, func(i, j int) bool { return o.ReadyToBike[i].Ped < o.ReadyToBike[j].Ped })
	for _, rtb := range o.ReadyToBike {
		s.touch(simtypes.Ped(rtb.Ped))
		out = append(out, events.Event{Kind: events.PedReadyToBike, Tick: now, Ped: rtb.Ped})
		s.spawner.PedReadyToBike(now, rtb.Ped, rtb.Pos, s.trips)
	}

	sort.Slice(o.ReachedBusStop, func(i, j int) bool { return o.ReachedBusStop[i].Ped < o.ReachedBusStop[j].Ped })
	for _, rbs := range o.ReachedBusStop {
		s.touch(simtypes.Ped(rbs.Ped))
		_, route, destStop, err := s.trips.PedReachedBusStop(rbs.Ped)
		if err != nil {
			s.logger.Warn("kernel: ped_reached_bus_stop failed", "ped", rbs.Ped, "err", err)
			continue
		}
		s.transit.PedWaitForBus(rbs.Ped, rbs.BusStop, route, destStop)
	}

	return out
}

// detectBusArrivals compares every active bus's physical position (as
// DrivingSim just left it) against the stop it is travelling toward, and
// builds the arrivals map TransitSim.Step needs. Emits BusArrivedAtStop for
// each arrival found.
func (s *Sim) detectBusArrivals(now simtypes.Tick) (map[simtypes.CarID]simtypes.BusStopID, []events.Event) {
	arrivals := make(map[simtypes.CarID]simtypes.BusStopID)
	var out []events.Event

	for _, bus := range s.transit.Buses() {
		if s.transit.IsDwelling(bus) {
			continue
		}
		car, ok := s.driving.Lookup(bus)
		if !ok {
			continue
		}
		stop, ok := s.transit.NextStop(bus)
		if !ok {
			continue
		}
		if car.CurrentLane() == stop.Lane && car.DistAlongLane() >= stop.Dist {
			arrivals[bus] = stop.ID
			route, _ := s.transit.RouteOf(bus)
			out = append(out, events.Event{Kind: events.BusArrivedAtStop, Tick: now, Car: bus, BusStop: stop.ID, BusRoute: route})
		}
	}

	return arrivals, out
}

func (s *Sim) handleTransitOutcomes(now simtypes.Tick, o transit.Outcomes) []events.Event {
	var out []events.Event

	sort.Slice(o.Boarded, func(i, j int) bool { return o.Boarded[i].Ped < o.Boarded[j].Ped })
	for _, b := range o.Boarded {
		out = append(out, events.Event{Kind: events.PassengerBoarded, Tick: now, Ped: b.Ped, Car: b.Car, BusRoute: b.Route})
	}

	sort.Slice(o.Alighted, func(i, j int) bool { return o.Alighted[i].Ped < o.Alighted[j].Ped })
	for _, a := range o.Alighted {
		s.touch(simtypes.Ped(a.Ped))
		out = append(out, events.Event{Kind: events.PassengerAlighted, Tick: now, Ped: a.Ped, Car: a.Car, BusStop: a.BusStop})
		s.spawner.PedFinishedBusRide(now, a.Ped, a.BusStop, s.trips)
	}

	sort.Slice(o.Departed, func(i, j int) bool { return o.Departed[i] < o.Departed[j] })
	for _, bus := range o.Departed {
		s.transit.AdvanceStop(bus)
	}

	return out
}

func (s *Sim) handleIntersectionOutcomes(now simtypes.Tick, o intersection.Outcomes) []events.Event {
	var out []events.Event

	sort.Slice(o.Accepted, func(i, j int) bool {
		a, b := o.Accepted[i].Agent, o.Accepted[j].Agent
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Car != b.Car {
			return a.Car < b.Car
		}
		return a.Ped < b.Ped
	})
	for _, a := range o.Accepted {
		out = append(out, events.Event{Kind: events.IntersectionAccepted, Tick: now, Agent: a.Agent, Intersection: a.Intersection})
	}

	sort.Slice(o.Overtime, func(i, j int) bool { return o.Overtime[i] < o.Overtime[j] })
	for _, at := range o.Overtime {
		out = append(out, events.Event{Kind: events.IntersectionOvertime, Tick: now, Intersection: at})
	}

	return out
}

// relaunchBusLap re-dispatches the bus for another pass over its route once
// it reaches the route's end; a ServeBusRoute leg never pops (see
// trips.Manager.ServingBusRoute), so the trip stays bound to the same CarID
// for the life of the run.
func (s *Sim) relaunchBusLap(now simtypes.Tick, car simtypes.CarID, route simtypes.BusRouteID) {
	r, ok := s.transit.Route(route)
	if !ok || len(r.Stops) == 0 {
		return
	}
	vehicle, ok := s.transit.VehicleOf(car)
	if !ok {
		return
	}
	trip, _ := s.trips.GetTripUsingCar(car)
	lastStop := r.Stops[len(r.Stops)-1]
	s.spawner.EnqueueCommand(spawn.Command{
		Kind:          spawn.CmdDriveFromBorder,
		At:            now.Next(),
		Trip:          trip,
		BorderVehicle: vehicle,
		BorderLane:    r.StartLane,
		BorderGoal:    driving.DrivingGoal{Kind: driving.Border, BorderLane: lastStop.Lane},
	})
}
