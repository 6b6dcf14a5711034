package kernel

import (
	"fmt"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/rng"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/spawn"
	"github.com/antigravity/trafficsim/internal/transit"
	"github.com/antigravity/trafficsim/internal/trips"
	"github.com/antigravity/trafficsim/internal/walking"
)

// The StartTrip* family turns a traveler's intent into a leg queue in
// TripManager plus one Command in the Spawner. Everything after that (path
// computation, agent creation, leg transitions) flows through the normal
// per-tick machinery.

// StartTripJustWalking schedules a single-leg walking trip from one sidewalk
// spot to another.
func (s *Sim) StartTripJustWalking(at simtypes.Tick, from, to walking.SidewalkSpot) simtypes.TripID {
	ped := s.spawner.NextPedID()
	trip := s.trips.NewTrip(at, &ped, []trips.TripLeg{trips.Walk(to)})
	s.spawner.EnqueueCommand(spawn.Command{
		Kind:     spawn.CmdWalk,
		At:       at,
		Trip:     trip,
		WalkPed:  ped,
		WalkFrom: from,
		WalkTo:   to,
	})
	return trip
}

// StartTripUsingParkedCar schedules walk → drive (→ walk, when the goal is
// ParkNear). The double-spawn guard refuses a car already serving a trip.
func (s *Sim) StartTripUsingParkedCar(at simtypes.Tick, from walking.SidewalkSpot, car simtypes.CarID, goal driving.DrivingGoal) (simtypes.TripID, error) {
	if existing, taken := s.trips.GetTripUsingCar(car); taken {
		s.logger.Warn("kernel: refusing to start trip, car already in use", "car", car, "trip", existing)
		return 0, fmt.Errorf("kernel: %s already belongs to %s", car, existing)
	}
	pc, ok := s.parking.Lookup(car)
	if !ok {
		return 0, fmt.Errorf("kernel: %s is not parked anywhere", car)
	}

	ped := s.spawner.NextPedID()
	walkToCar := walking.SidewalkSpot{Kind: walking.SpotParking, Parking: pc.Spot}
	legs := []trips.TripLeg{trips.Walk(walkToCar), trips.Drive(car, goal)}
	if goal.Kind == driving.ParkNear {
		legs = append(legs, trips.Walk(walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: goal.Building}))
	}
	trip := s.trips.NewTrip(at, &ped, legs)
	// Bind the car now, not at dispatch, so a second caller asking for the
	// same car is refused immediately.
	if err := s.trips.AgentStartingTripLeg(simtypes.Car(car), trip); err != nil {
		return 0, err
	}
	s.spawner.EnqueueCommand(spawn.Command{
		Kind:     spawn.CmdWalk,
		At:       at,
		Trip:     trip,
		WalkPed:  ped,
		WalkFrom: from,
		WalkTo:   walkToCar,
	})
	return trip, nil
}

// StartTripUsingBike schedules walk-to-rack → bike (→ walk). The bike itself
// is generated here, its dimensions drawn from a forked RNG so trip setup
// consumes the base RNG by exactly one draw.
func (s *Sim) StartTripUsingBike(at simtypes.Tick, m *mapmodel.Map, from simtypes.BuildingID, goal driving.DrivingGoal) (simtypes.TripID, error) {
	b, ok := m.GetBuilding(from)
	if !ok {
		return 0, fmt.Errorf("kernel: unknown %s", from)
	}
	rackPos := mapmodel.Position{Lane: b.FrontPath.Sidewalk, Dist: b.FrontPath.DistAlongSidewalk}
	vehicle := simtypes.GenerateBike(s.spawner.NextCarID(), rng.Fork(s.rng))

	ped := s.spawner.NextPedID()
	walkToRack := walking.SidewalkSpot{Kind: walking.SpotBikeRack, BikeRackPos: rackPos}
	legs := []trips.TripLeg{trips.Walk(walkToRack), trips.Bike(vehicle, goal)}
	if goal.Kind == driving.ParkNear {
		legs = append(legs, trips.Walk(walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: goal.Building}))
	}
	trip := s.trips.NewTrip(at, &ped, legs)
	s.spawner.EnqueueCommand(spawn.Command{
		Kind:     spawn.CmdWalk,
		At:       at,
		Trip:     trip,
		WalkPed:  ped,
		WalkFrom: walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: from},
		WalkTo:   walkToRack,
	})
	return trip, nil
}

// StartTripFromBorder schedules a vehicle entering the map at a border lane;
// cars and bikes bound for a building get the
// closing walk leg, through vehicles just leave again.
func (s *Sim) StartTripFromBorder(at simtypes.Tick, borderLane simtypes.LaneID, vt simtypes.VehicleType, goal driving.DrivingGoal) simtypes.TripID {
	var vehicle simtypes.Vehicle
	child := rng.Fork(s.rng)
	switch vt {
	case simtypes.VehicleBike:
		vehicle = simtypes.GenerateBike(s.spawner.NextCarID(), child)
	case simtypes.VehicleBus:
		vehicle = simtypes.GenerateBus(s.spawner.NextCarID(), child)
	default:
		vehicle = simtypes.GenerateCar(s.spawner.NextCarID(), child)
	}

	var ped *simtypes.PedestrianID
	legs := []trips.TripLeg{trips.DriveFromBorder(vehicle.ID, goal)}
	if goal.Kind == driving.ParkNear {
		p := s.spawner.NextPedID()
		ped = &p
		legs = append(legs, trips.Walk(walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: goal.Building}))
	}
	trip := s.trips.NewTrip(at, ped, legs)
	s.spawner.EnqueueCommand(spawn.Command{
		Kind:          spawn.CmdDriveFromBorder,
		At:            at,
		Trip:          trip,
		BorderVehicle: vehicle,
		BorderLane:    borderLane,
		BorderGoal:    goal,
	})
	return trip
}

// StartTripUsingBus schedules walk → ride → walk: the traveler walks to
// boardStop, waits for a bus on route, rides to alightStop, then walks to the
// final spot.
func (s *Sim) StartTripUsingBus(at simtypes.Tick, from, to walking.SidewalkSpot, route simtypes.BusRouteID, boardStop, alightStop simtypes.BusStopID) simtypes.TripID {
	ped := s.spawner.NextPedID()
	walkToStop := walking.SidewalkSpot{Kind: walking.SpotBusStop, BusStop: boardStop}
	legs := []trips.TripLeg{
		trips.Walk(walkToStop),
		trips.RideBus(route, alightStop),
		trips.Walk(to),
	}
	trip := s.trips.NewTrip(at, &ped, legs)
	s.spawner.EnqueueCommand(spawn.Command{
		Kind:     spawn.CmdWalk,
		At:       at,
		Trip:     trip,
		WalkPed:  ped,
		WalkFrom: from,
		WalkTo:   walkToStop,
	})
	return trip
}

// SeedBusRoute registers route and immediately puts one bus on the road at
// the route's starting lane. Failure to find
// room or a path logs, leaves the bus's ServeBusRoute trip orphaned, and
// returns an error describing the failure.
func (s *Sim) SeedBusRoute(m *mapmodel.Map, route transit.Route) (simtypes.CarID, error) {
	s.transit.AddRoute(route)
	if len(route.Stops) == 0 {
		return 0, fmt.Errorf("kernel: %s has no stops", route.ID)
	}

	vehicle := simtypes.GenerateBus(s.spawner.NextCarID(), rng.Fork(s.rng))
	trip := s.trips.NewTrip(s.now, nil, []trips.TripLeg{trips.ServeBusRoute(vehicle.ID, route.ID)})

	if occupants := s.driving.CarsOnLane(route.StartLane); len(occupants) > 0 {
		s.logger.Error("kernel: no room to start bus, trip orphaned",
			"route", route.ID, "lane", route.StartLane, "trip", trip)
		return 0, fmt.Errorf("kernel: no room on %s for a bus", route.StartLane)
	}

	lastStop := route.Stops[len(route.Stops)-1]
	endLane, ok := m.GetLane(lastStop.Lane)
	if !ok {
		s.logger.Error("kernel: bus route references unknown lane, trip orphaned",
			"route", route.ID, "lane", lastStop.Lane, "trip", trip)
		return 0, fmt.Errorf("kernel: unknown %s on %s", lastStop.Lane, route.ID)
	}
	var pf mapmodel.Pathfinder
	path, found := pf.ShortestDistance(m, mapmodel.PathRequest{
		Start:          mapmodel.Position{Lane: route.StartLane, Dist: 0},
		End:            mapmodel.Position{Lane: lastStop.Lane, Dist: endLane.LengthM},
		CanUseBusLanes: true,
	})
	if !found {
		s.logger.Error("kernel: no path for bus route, trip orphaned",
			"route", route.ID, "trip", trip)
		return 0, fmt.Errorf("kernel: no path along %s", route.ID)
	}

	if err := s.trips.AgentStartingTripLeg(simtypes.Car(vehicle.ID), trip); err != nil {
		return 0, err
	}
	s.transit.SpawnBus(vehicle, route.ID)
	goal := driving.DrivingGoal{Kind: driving.Border, BorderLane: lastStop.Lane}
	s.driving.CreateCar(vehicle, path, goal, nil)
	s.logger.Info("kernel: seeded bus route", "route", route.ID, "bus", vehicle.ID)
	return vehicle.ID, nil
}

// SeedParkedCars fills the inventory before the run starts; see
// spawn.Spawner.SeedParkedCars.
func (s *Sim) SeedParkedCars(m *mapmodel.Map, buildings []simtypes.BuildingID, neighborhood []simtypes.RoadID, carsPerBuilding spawn.WeightedUsizeChoice) []parking.ParkedCar {
	return s.spawner.SeedParkedCars(m, s.parking, buildings, neighborhood, carsPerBuilding, s.rng)
}

// SeedSpecificParkedCars is the deterministic test hook; see
// spawn.Spawner.SeedSpecificParkedCars.
func (s *Sim) SeedSpecificParkedCars(lane simtypes.LaneID, owner *simtypes.BuildingID, spotIdxs []int) []simtypes.CarID {
	return s.spawner.SeedSpecificParkedCars(s.parking, lane, owner, spotIdxs, s.rng)
}
