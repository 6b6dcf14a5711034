// Package spawn is the Spawner: a time-ordered command queue that, once a
// command's scheduled tick arrives, computes every due command's path in
// parallel and forwards a SpawnCar/SpawnPed into the Scheduler. Path
// computation over an immutable *mapmodel.Map is the only parallelism the
// kernel allows; it is fanned out with
// golang.org/x/sync/errgroup, each goroutine writing into a pre-indexed
// slot so results stay in input order regardless of completion order.
package spawn

import (
	"log/slog"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/rng"
	"github.com/antigravity/trafficsim/internal/scheduler"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/trips"
	"github.com/antigravity/trafficsim/internal/walking"
)

// CommandKind tags a Command variant.
type CommandKind int

const (
	CmdWalk CommandKind = iota
	CmdDrive
	CmdBike
	CmdDriveFromBorder
)

// Command is one entry in the Spawner's own queue:
// one pending agent creation, not yet turned into a Path.
type Command struct {
	Kind CommandKind
	At   simtypes.Tick
	Trip simtypes.TripID

	// Walk
	WalkPed  simtypes.PedestrianID
	WalkFrom walking.SidewalkSpot
	WalkTo   walking.SidewalkSpot

	// Drive: car must already be parked at ParkingSpot.
	DriveCar         simtypes.CarID
	DriveParkingSpot parking.Spot
	DriveGoal        driving.DrivingGoal

	// Bike: either from a building's front path (BikeFrom) or from an
	// already-known sidewalk position (BikeFromPos, set when the rider just
	// walked up to a bike rack mid-trip rather than starting the trip there).
	BikeVehicle   simtypes.Vehicle
	BikeFrom      simtypes.BuildingID
	BikeFromPos   mapmodel.Position
	BikeFromIsPos bool
	BikeGoal      driving.DrivingGoal

	// DriveFromBorder
	BorderVehicle simtypes.Vehicle
	BorderLane    simtypes.LaneID
	BorderGoal    driving.DrivingGoal
}

type queueEntry struct {
	cmd Command
	seq int
}

// Spawner holds not-yet-due commands, sorted ascending by (At, insertion
// order), the same stable-vector discipline as Scheduler.
type Spawner struct {
	queue     []queueEntry
	nextSeq   int
	nextCarID simtypes.CarID
	nextPedID simtypes.PedestrianID
	orphaned  int
	logger    *slog.Logger
}

// New builds an empty Spawner.
func New(logger *slog.Logger) *Spawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{logger: logger}
}

// SetLogger swaps the structured logger without touching queue or counters.
func (s *Spawner) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// NextCarID allocates the next never-reused CarID.
func (s *Spawner) NextCarID() simtypes.CarID {
	id := s.nextCarID
	s.nextCarID++
	return id
}

// NextPedID allocates the next never-reused PedestrianID.
func (s *Spawner) NextPedID() simtypes.PedestrianID {
	id := s.nextPedID
	s.nextPedID++
	return id
}

// EnqueueCommand inserts cmd in sorted position.
func (s *Spawner) EnqueueCommand(cmd Command) {
	e := queueEntry{cmd: cmd, seq: s.nextSeq}
	s.nextSeq++
	i := sort.Search(len(s.queue), func(i int) bool {
		if s.queue[i].cmd.At != cmd.At {
			return s.queue[i].cmd.At > cmd.At
		}
		return s.queue[i].seq > e.seq
	})
	s.queue = append(s.queue, queueEntry{})
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = e
}

// pathResult pairs one command with its (possibly absent) computed path.
type pathResult struct {
	cmd  Command
	path *mapmodel.Path
	ok   bool
}

// Step pops every command due at now, computes their path requests in
// parallel, and enqueues a scheduler.Command for each success. Failures are
// logged and the trip is left orphaned. baseRNG
// is the Sim's single RNG; every variable-draw decision below forks it.
func (s *Spawner) Step(now simtypes.Tick, m *mapmodel.Map, sched *scheduler.Scheduler, park *parking.Sim, baseRNG *rand.Rand) {
	i := 0
	for i < len(s.queue) && s.queue[i].cmd.At == now {
		i++
	}
	due := make([]Command, i)
	for j := 0; j < i; j++ {
		due[j] = s.queue[j].cmd
	}
	s.queue = s.queue[i:]
	if len(due) == 0 {
		return
	}

	results := s.calculatePaths(m, due)

	for _, r := range results {
		if !r.ok {
			s.orphaned++
			s.logger.Warn("spawn: path not found, trip orphaned",
				"trip", r.cmd.Trip, "kind", r.cmd.Kind, "tick", now)
			continue
		}
		s.forward(now, r, m, sched, park, baseRNG)
	}
}

// OrphanedTrips reports how many commands have failed pathfinding so far,
// leaving their trip orphaned.
func (s *Spawner) OrphanedTrips() int { return s.orphaned }

func (s *Spawner) forward(now simtypes.Tick, r pathResult, m *mapmodel.Map, sched *scheduler.Scheduler, park *parking.Sim, baseRNG *rand.Rand) {
	switch r.cmd.Kind {
	case CmdWalk:
		sched.Enqueue(scheduler.SpawnPed(now, scheduler.CreatePed{
			ID:   r.cmd.WalkPed,
			Path: r.path,
			Goal: r.cmd.WalkTo,
			Trip: r.cmd.Trip,
		}))
	case CmdDrive:
		// The car leaves the inventory the moment it pulls out; conservation
		// tests watch this spot empty and a spot near the goal fill later.
		pc, err := park.Unpark(r.cmd.DriveCar)
		if err != nil {
			s.orphaned++
			s.logger.Warn("spawn: car vanished from parking before its drive leg, trip orphaned",
				"car", r.cmd.DriveCar, "trip", r.cmd.Trip, "err", err)
			return
		}
		target, ok := s.targetSpotFor(m, park, pc.Car, r.cmd.DriveGoal, baseRNG)
		if !ok {
			s.orphaned++
			s.logger.Warn("spawn: no parking spot near goal, trip orphaned",
				"car", r.cmd.DriveCar, "trip", r.cmd.Trip, "goal", r.cmd.DriveGoal)
			return
		}
		sched.Enqueue(scheduler.SpawnCar(now, scheduler.CreateCar{
			Vehicle:    pc.Vehicle,
			Path:       r.path,
			Goal:       r.cmd.DriveGoal,
			TargetSpot: target,
			Trip:       r.cmd.Trip,
		}))
	case CmdBike:
		sched.Enqueue(scheduler.SpawnCar(now, scheduler.CreateCar{
			Vehicle: r.cmd.BikeVehicle,
			Path:    r.path,
			Goal:    r.cmd.BikeGoal,
			Trip:    r.cmd.Trip,
		}))
	case CmdDriveFromBorder:
		var target *parking.Spot
		if r.cmd.BorderVehicle.VehicleType == simtypes.VehicleCar {
			var ok bool
			target, ok = s.targetSpotFor(m, park, r.cmd.BorderVehicle.ID, r.cmd.BorderGoal, baseRNG)
			if !ok {
				s.orphaned++
				s.logger.Warn("spawn: no parking spot near goal, trip orphaned",
					"trip", r.cmd.Trip, "goal", r.cmd.BorderGoal)
				return
			}
		}
		sched.Enqueue(scheduler.SpawnCar(now, scheduler.CreateCar{
			Vehicle:    r.cmd.BorderVehicle,
			Path:       r.path,
			Goal:       r.cmd.BorderGoal,
			TargetSpot: target,
			Trip:       r.cmd.Trip,
		}))
	}
}

// targetSpotFor resolves a ParkNear goal to the concrete spot the car will
// claim when it arrives; Border goals (and bikes racked at lane positions)
// need none. A bus serving a route carries a Border goal, so it never reaches
// the spot search.
func (s *Spawner) targetSpotFor(m *mapmodel.Map, park *parking.Sim, car simtypes.CarID, goal driving.DrivingGoal, baseRNG *rand.Rand) (*parking.Spot, bool) {
	if goal.Kind != driving.ParkNear {
		return nil, true
	}
	spot, ok := findSpotNearBuilding(m, park, goal.Building, baseRNG)
	if !ok {
		return nil, false
	}
	if err := park.Reserve(spot, car); err != nil {
		return nil, false
	}
	return &spot, true
}

// calculatePaths is the one parallel fan-out the kernel performs: every due
// command's PathRequest is computed concurrently, with results written into
// a pre-indexed slice so requests[i] always pairs with due[i] regardless of
// goroutine completion order.
func (s *Spawner) calculatePaths(m *mapmodel.Map, due []Command) []pathResult {
	results := make([]pathResult, len(due))
	var pf mapmodel.Pathfinder
	var g errgroup.Group

	for i, cmd := range due {
		i, cmd := i, cmd
		g.Go(func() error {
			req, ok := s.buildRequest(m, cmd)
			if !ok {
				results[i] = pathResult{cmd: cmd, ok: false}
				return nil
			}
			path, found := pf.ShortestDistance(m, req)
			results[i] = pathResult{cmd: cmd, path: path, ok: found}
			return nil
		})
	}
	_ = g.Wait() // buildRequest/ShortestDistance never return error; ok flags failure
	return results
}

func (s *Spawner) buildRequest(m *mapmodel.Map, cmd Command) (mapmodel.PathRequest, bool) {
	switch cmd.Kind {
	case CmdWalk:
		from, ok1 := cmd.WalkFrom.Position(m)
		to, ok2 := cmd.WalkTo.Position(m)
		if !ok1 || !ok2 {
			return mapmodel.PathRequest{}, false
		}
		return mapmodel.PathRequest{Start: from, End: to}, true

	case CmdDrive:
		drivingLane, ok := m.FindClosestLane(cmd.DriveParkingSpot.Lane, []mapmodel.LaneType{mapmodel.LaneDriving})
		if !ok {
			return mapmodel.PathRequest{}, false
		}
		start := parking.SpotToDrivingPosition(m, cmd.DriveParkingSpot, drivingLane)
		end, ok := s.driveGoalPosition(m, cmd.DriveGoal)
		if !ok {
			return mapmodel.PathRequest{}, false
		}
		return mapmodel.PathRequest{Start: start, End: end}, true

	case CmdBike:
		var start mapmodel.Position
		if cmd.BikeFromIsPos {
			bikeLane, ok := m.FindClosestLane(cmd.BikeFromPos.Lane, []mapmodel.LaneType{mapmodel.LaneBiking, mapmodel.LaneDriving})
			if !ok {
				return mapmodel.PathRequest{}, false
			}
			start = cmd.BikeFromPos.EquivPos(bikeLane, m)
		} else {
			bldgLane, ok := m.FindClosestLaneToBuilding(cmd.BikeFrom, []mapmodel.LaneType{mapmodel.LaneBiking, mapmodel.LaneDriving})
			if !ok {
				return mapmodel.PathRequest{}, false
			}
			b, ok := m.GetBuilding(cmd.BikeFrom)
			if !ok {
				return mapmodel.PathRequest{}, false
			}
			start = mapmodel.Position{Lane: b.FrontPath.Sidewalk, Dist: b.FrontPath.DistAlongSidewalk}.EquivPos(bldgLane, m)
		}
		end, ok := s.bikeGoalPosition(m, cmd.BikeGoal)
		if !ok {
			return mapmodel.PathRequest{}, false
		}
		return mapmodel.PathRequest{Start: start, End: end, CanUseBikeLanes: true}, true

	case CmdDriveFromBorder:
		start := mapmodel.Position{Lane: cmd.BorderLane, Dist: 0}
		end, ok := s.driveGoalPosition(m, cmd.BorderGoal)
		if !ok {
			return mapmodel.PathRequest{}, false
		}
		req := mapmodel.PathRequest{Start: start, End: end}
		if cmd.BorderVehicle.VehicleType == simtypes.VehicleBus {
			req.CanUseBusLanes = true
		}
		if cmd.BorderVehicle.VehicleType == simtypes.VehicleBike {
			req.CanUseBikeLanes = true
		}
		return req, true
	}
	return mapmodel.PathRequest{}, false
}

// bikeGoalPosition is driveGoalPosition's counterpart for bikes: a ParkNear
// goal ends at the midpoint of the nearest biking-or-driving lane rather than
// a driving lane.
func (s *Spawner) bikeGoalPosition(m *mapmodel.Map, goal driving.DrivingGoal) (mapmodel.Position, bool) {
	switch goal.Kind {
	case driving.ParkNear:
		lane, ok := findBikingGoalNearBuilding(m, goal.Building)
		if !ok {
			return mapmodel.Position{}, false
		}
		l := m.Lanes[lane]
		return mapmodel.Position{Lane: lane, Dist: l.LengthM / 2}, true
	case driving.Border:
		l, ok := m.GetLane(goal.BorderLane)
		if !ok {
			return mapmodel.Position{}, false
		}
		return mapmodel.Position{Lane: goal.BorderLane, Dist: l.LengthM}, true
	}
	return mapmodel.Position{}, false
}

func (s *Spawner) driveGoalPosition(m *mapmodel.Map, goal driving.DrivingGoal) (mapmodel.Position, bool) {
	switch goal.Kind {
	case driving.ParkNear:
		lane, ok := findDrivingLaneNearBuilding(m, goal.Building)
		if !ok {
			return mapmodel.Position{}, false
		}
		l := m.Lanes[lane]
		return mapmodel.Position{Lane: lane, Dist: l.LengthM / 2}, true
	case driving.Border:
		l, ok := m.GetLane(goal.BorderLane)
		if !ok {
			return mapmodel.Position{}, false
		}
		return mapmodel.Position{Lane: goal.BorderLane, Dist: l.LengthM}, true
	}
	return mapmodel.Position{}, false
}

// findDrivingLaneNearBuilding BFS's the road graph from the building's own
// road outward, stopping at the first road with a driving lane. Visiting
// order follows map.GetNextRoads, which records roads in stable insertion
// order, and the visited-set check happens before enqueue, both required
// for cross-run determinism.
func findDrivingLaneNearBuilding(m *mapmodel.Map, b simtypes.BuildingID) (simtypes.LaneID, bool) {
	startRoad, ok := m.BuildingToRoad(b)
	if !ok {
		return 0, false
	}
	return bfsFindLane(m, startRoad, []mapmodel.LaneType{mapmodel.LaneDriving})
}

// findSpotNearBuilding BFS's outward from b's road for the first road with a
// free parking spot, shuffling each road's candidate spots with a forked RNG
// so the search order is data-independent of how many draws the shuffle
// consumes. The search itself is deterministic nearest-road-first.
func findSpotNearBuilding(m *mapmodel.Map, park *parking.Sim, b simtypes.BuildingID, baseRNG *rand.Rand) (parking.Spot, bool) {
	return findSpotNearBuildingWithin(m, park, b, nil, baseRNG)
}

// findSpotNearBuildingWithin is findSpotNearBuilding restricted to a
// neighborhood road set (nil means the whole map), so one neighborhood's
// seeding never spills onto another's streets.
func findSpotNearBuildingWithin(m *mapmodel.Map, park *parking.Sim, b simtypes.BuildingID, within map[simtypes.RoadID]bool, baseRNG *rand.Rand) (parking.Spot, bool) {
	startRoad, ok := m.BuildingToRoad(b)
	if !ok {
		return parking.Spot{}, false
	}
	if within != nil && !within[startRoad] {
		return parking.Spot{}, false
	}
	visited := map[simtypes.RoadID]bool{startRoad: true}
	queue := []simtypes.RoadID{startRoad}

	for len(queue) > 0 {
		road := queue[0]
		queue = queue[1:]

		if lane, ok := m.FindClosestLane(firstLaneOf(m, road), []mapmodel.LaneType{mapmodel.LaneParking}); ok {
			free := park.FreeSpots(lane)
			if len(free) > 0 {
				child := rng.Fork(baseRNG)
				child.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })
				return free[0], true
			}
		}

		for _, next := range m.GetNextRoads(road) {
			if visited[next] || (within != nil && !within[next]) {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
	return parking.Spot{}, false
}

// findBikingGoalNearBuilding BFS's for the first road with a biking or
// driving lane and returns the first such lane in that road's lane order; a
// biking lane is not preferred over a driving lane.
func findBikingGoalNearBuilding(m *mapmodel.Map, b simtypes.BuildingID) (simtypes.LaneID, bool) {
	startRoad, ok := m.BuildingToRoad(b)
	if !ok {
		return 0, false
	}
	return bfsFindLane(m, startRoad, []mapmodel.LaneType{mapmodel.LaneBiking, mapmodel.LaneDriving})
}

func bfsFindLane(m *mapmodel.Map, start simtypes.RoadID, types []mapmodel.LaneType) (simtypes.LaneID, bool) {
	visited := map[simtypes.RoadID]bool{start: true}
	queue := []simtypes.RoadID{start}

	for len(queue) > 0 {
		road := queue[0]
		queue = queue[1:]

		if r, ok := m.GetRoad(road); ok {
			for _, laneID := range r.Lanes {
				lane := m.Lanes[laneID]
				for _, t := range types {
					if lane != nil && lane.Type == t {
						return laneID, true
					}
				}
			}
		}

		for _, next := range m.GetNextRoads(road) {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return 0, false
}

func firstLaneOf(m *mapmodel.Map, road simtypes.RoadID) simtypes.LaneID {
	if r, ok := m.GetRoad(road); ok && len(r.Lanes) > 0 {
		return r.Lanes[0]
	}
	return 0
}

// FindSpotNearBuilding exposes findSpotNearBuilding to callers outside the
// package (the kernel's seeding path and tests).
func (s *Spawner) FindSpotNearBuilding(m *mapmodel.Map, park *parking.Sim, b simtypes.BuildingID, baseRNG *rand.Rand) (parking.Spot, bool) {
	return findSpotNearBuilding(m, park, b, baseRNG)
}

// FindDrivingLaneNearBuilding exposes the BFS helper for callers building
// Drive commands by hand (e.g. tests).
func (s *Spawner) FindDrivingLaneNearBuilding(m *mapmodel.Map, b simtypes.BuildingID) (simtypes.LaneID, bool) {
	return findDrivingLaneNearBuilding(m, b)
}

// FindBikingGoalNearBuilding exposes the BFS helper for bike-leg construction.
func (s *Spawner) FindBikingGoalNearBuilding(m *mapmodel.Map, b simtypes.BuildingID) (simtypes.LaneID, bool) {
	return findBikingGoalNearBuilding(m, b)
}

// Len reports how many commands are still pending.
func (s *Spawner) Len() int { return len(s.queue) }

// --- Trip-leg continuation ---
//
// The engine that just finished an agent's leg calls the matching TripManager
// transition, then the Spawner enqueues the resulting Command for the *next*
// tick, not this one, so path computation for the new leg goes through the
// normal parallel Step/calculatePaths path just like any other spawn.

// CarReachedParkingSpot continues a finished Drive leg into a Walk away from
// the car, now parked at spot.
func (s *Spawner) CarReachedParkingSpot(now simtypes.Tick, car simtypes.CarID, spot parking.Spot, tm *trips.Manager) {
	trip, ped, walkTo, err := tm.CarReachedParkingSpot(now, car)
	if err != nil {
		s.logger.Warn("spawn: car_reached_parking_spot failed", "car", car, "err", err)
		return
	}
	if ped == nil {
		return
	}
	s.EnqueueCommand(Command{
		Kind:     CmdWalk,
		At:       now.Next(),
		Trip:     trip,
		WalkPed:  *ped,
		WalkFrom: walking.SidewalkSpot{Kind: walking.SpotParking, Parking: spot},
		WalkTo:   walkTo,
	})
}

// BikeReachedEnd continues a finished Bike leg into a Walk away from the
// bike rack at lastPos.
func (s *Spawner) BikeReachedEnd(now simtypes.Tick, bike simtypes.CarID, lastPos mapmodel.Position, tm *trips.Manager) {
	trip, ped, walkTo, err := tm.BikeReachedEnd(now, bike)
	if err != nil {
		s.logger.Warn("spawn: bike_reached_end failed", "bike", bike, "err", err)
		return
	}
	if ped == nil {
		return
	}
	s.EnqueueCommand(Command{
		Kind:     CmdWalk,
		At:       now.Next(),
		Trip:     trip,
		WalkPed:  *ped,
		WalkFrom: walking.SidewalkSpot{Kind: walking.SpotBikeRack, BikeRackPos: lastPos},
		WalkTo:   walkTo,
	})
}

// PedReadyToBike continues a finished Walk-to-bike-rack leg into the Bike leg.
func (s *Spawner) PedReadyToBike(now simtypes.Tick, ped simtypes.PedestrianID, sidewalkPos mapmodel.Position, tm *trips.Manager) {
	trip, vehicle, goal, err := tm.PedReadyToBike(ped)
	if err != nil {
		s.logger.Warn("spawn: ped_ready_to_bike failed", "ped", ped, "err", err)
		return
	}
	s.EnqueueCommand(Command{
		Kind:          CmdBike,
		At:            now.Next(),
		Trip:          trip,
		BikeVehicle:   vehicle,
		BikeFromPos:   sidewalkPos,
		BikeFromIsPos: true,
		BikeGoal:      goal,
	})
}

// PedReachedParkingSpot continues a finished Walk-to-car leg into the Drive leg.
func (s *Spawner) PedReachedParkingSpot(now simtypes.Tick, ped simtypes.PedestrianID, spot parking.Spot, tm *trips.Manager) {
	trip, car, goal, err := tm.PedReachedParkingSpot(ped)
	if err != nil {
		s.logger.Warn("spawn: ped_reached_parking_spot failed", "ped", ped, "err", err)
		return
	}
	s.EnqueueCommand(Command{
		Kind:             CmdDrive,
		At:               now.Next(),
		Trip:             trip,
		DriveCar:         car,
		DriveParkingSpot: spot,
		DriveGoal:        goal,
	})
}

// PedFinishedBusRide continues a finished RideBus leg into a Walk away from
// the alighting stop.
func (s *Spawner) PedFinishedBusRide(now simtypes.Tick, ped simtypes.PedestrianID, stop simtypes.BusStopID, tm *trips.Manager) {
	trip, walkTo, err := tm.PedFinishedBusRide(ped)
	if err != nil {
		s.logger.Warn("spawn: ped_finished_bus_ride failed", "ped", ped, "err", err)
		return
	}
	s.EnqueueCommand(Command{
		Kind:     CmdWalk,
		At:       now.Next(),
		Trip:     trip,
		WalkPed:  ped,
		WalkFrom: walking.SidewalkSpot{Kind: walking.SpotBusStop, BusStop: stop},
		WalkTo:   walkTo,
	})
}
