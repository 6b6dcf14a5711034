// Package trips is TripManager: the per-trip leg queue and the transition
// functions that turn a domain engine's "leg complete" outcome into the next
// leg's parameters. Trips never reorder legs; a leg is popped
// only when the engine that owned it reports completion.
package trips

import (
	"fmt"
	"sort"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/walking"
)

// LegKind tags a TripLeg variant.
type LegKind int

const (
	LegWalk LegKind = iota
	LegDrive
	LegBike
	LegRideBus
	LegDriveFromBorder
	LegServeBusRoute
)

func (k LegKind) String() string {
	switch k {
	case LegWalk:
		return "Walk"
	case LegDrive:
		return "Drive"
	case LegBike:
		return "Bike"
	case LegRideBus:
		return "RideBus"
	case LegDriveFromBorder:
		return "DriveFromBorder"
	case LegServeBusRoute:
		return "ServeBusRoute"
	default:
		return "Leg(?)"
	}
}

// TripLeg is one segment of a trip in a single mode. Only the fields matching Kind
// are populated by the leg's constructor.
type TripLeg struct {
	Kind LegKind

	WalkTo walking.SidewalkSpot

	DriveCar  simtypes.CarID
	DriveGoal driving.DrivingGoal

	BikeVehicle simtypes.Vehicle
	BikeGoal    driving.DrivingGoal

	BusRoute simtypes.BusRouteID
	BusStop  simtypes.BusStopID

	BorderCar simtypes.CarID
}

func Walk(to walking.SidewalkSpot) TripLeg { return TripLeg{Kind: LegWalk, WalkTo: to} }

func Drive(car simtypes.CarID, goal driving.DrivingGoal) TripLeg {
	return TripLeg{Kind: LegDrive, DriveCar: car, DriveGoal: goal}
}

func Bike(vehicle simtypes.Vehicle, goal driving.DrivingGoal) TripLeg {
	return TripLeg{Kind: LegBike, BikeVehicle: vehicle, BikeGoal: goal}
}

func RideBus(route simtypes.BusRouteID, stop simtypes.BusStopID) TripLeg {
	return TripLeg{Kind: LegRideBus, BusRoute: route, BusStop: stop}
}

func DriveFromBorder(car simtypes.CarID, goal driving.DrivingGoal) TripLeg {
	return TripLeg{Kind: LegDriveFromBorder, BorderCar: car, DriveGoal: goal}
}

func ServeBusRoute(car simtypes.CarID, route simtypes.BusRouteID) TripLeg {
	return TripLeg{Kind: LegServeBusRoute, BorderCar: car, BusRoute: route}
}

// Trip is one traveler's multi-leg journey.
type Trip struct {
	ID         simtypes.TripID
	StartedAt  simtypes.Tick
	Ped        *simtypes.PedestrianID
	Legs       []TripLeg
	FinishedAt *simtypes.Tick
}

// RemainingLegs reports how many legs haven't been popped yet.
func (t *Trip) RemainingLegs() int { return len(t.Legs) }

// Manager is TripManager.
type Manager struct {
	trips      map[simtypes.TripID]*Trip
	activeCar  map[simtypes.CarID]simtypes.TripID
	activePed  map[simtypes.PedestrianID]simtypes.TripID
	nextTripID simtypes.TripID
}

// New builds an empty TripManager.
func New() *Manager {
	return &Manager{
		trips:     make(map[simtypes.TripID]*Trip),
		activeCar: make(map[simtypes.CarID]simtypes.TripID),
		activePed: make(map[simtypes.PedestrianID]simtypes.TripID),
	}
}

// NewTrip allocates a trip with the given leg sequence, starting now.
func (m *Manager) NewTrip(now simtypes.Tick, ped *simtypes.PedestrianID, legs []TripLeg) simtypes.TripID {
	id := m.nextTripID
	m.nextTripID++
	m.trips[id] = &Trip{ID: id, StartedAt: now, Ped: ped, Legs: legs}
	return id
}

// Trip returns the trip for id.
func (m *Manager) Trip(id simtypes.TripID) (*Trip, bool) {
	t, ok := m.trips[id]
	return t, ok
}

// GetTripUsingCar is the double-spawn guard: a parked
// car already bound to a trip must never be dispatched a second time.
func (m *Manager) GetTripUsingCar(car simtypes.CarID) (simtypes.TripID, bool) {
	id, ok := m.activeCar[car]
	return id, ok
}

// GetTripUsingPed reports the trip a pedestrian is currently bound to.
func (m *Manager) GetTripUsingPed(ped simtypes.PedestrianID) (simtypes.TripID, bool) {
	id, ok := m.activePed[ped]
	return id, ok
}

// AgentStartingTripLeg binds agent to trip's current leg.
func (m *Manager) AgentStartingTripLeg(agent simtypes.AgentID, trip simtypes.TripID) error {
	t, ok := m.trips[trip]
	if !ok {
		return fmt.Errorf("trips: unknown %s", trip)
	}
	switch agent.Kind {
	case simtypes.AgentCar:
		if existing, taken := m.activeCar[agent.Car]; taken && existing != trip {
			return fmt.Errorf("trips: %s already bound to %s, refusing %s", agent.Car, existing, trip)
		}
		m.activeCar[agent.Car] = trip
	case simtypes.AgentPedestrian:
		m.activePed[agent.Ped] = trip
	}
	_ = t
	return nil
}

func (m *Manager) popLeg(id simtypes.TripID, want ...LegKind) (*Trip, TripLeg, error) {
	t, ok := m.trips[id]
	if !ok {
		return nil, TripLeg{}, fmt.Errorf("trips: unknown %s", id)
	}
	if len(t.Legs) == 0 {
		return nil, TripLeg{}, fmt.Errorf("trips: %s has no legs left to finish", id)
	}
	legal := false
	for _, k := range want {
		if t.Legs[0].Kind == k {
			legal = true
			break
		}
	}
	if !legal {
		return nil, TripLeg{}, fmt.Errorf("trips: %s expected to be finishing a %s leg, found %s", id, want[0], t.Legs[0].Kind)
	}
	finished := t.Legs[0]
	t.Legs = t.Legs[1:]
	return t, finished, nil
}

// CarReachedParkingSpot transitions a finished Drive leg into the next Walk.
func (m *Manager) CarReachedParkingSpot(now simtypes.Tick, car simtypes.CarID) (simtypes.TripID, *simtypes.PedestrianID, walking.SidewalkSpot, error) {
	id, ok := m.activeCar[car]
	if !ok {
		return 0, nil, walking.SidewalkSpot{}, fmt.Errorf("trips: %s has no active trip", car)
	}
	t, _, err := m.popLeg(id, LegDrive, LegDriveFromBorder)
	if err != nil {
		return 0, nil, walking.SidewalkSpot{}, err
	}
	delete(m.activeCar, car)
	if len(t.Legs) == 0 {
		m.finish(t, now)
		return id, t.Ped, walking.SidewalkSpot{}, nil
	}
	if t.Legs[0].Kind != LegWalk {
		return 0, nil, walking.SidewalkSpot{}, fmt.Errorf("trips: %s next leg after Drive must be Walk, got %s", id, t.Legs[0].Kind)
	}
	return id, t.Ped, t.Legs[0].WalkTo, nil
}

// PedReachedParkingSpot transitions a finished Walk leg into the next Drive.
func (m *Manager) PedReachedParkingSpot(ped simtypes.PedestrianID) (simtypes.TripID, simtypes.CarID, driving.DrivingGoal, error) {
	id, ok := m.activePed[ped]
	if !ok {
		return 0, 0, driving.DrivingGoal{}, fmt.Errorf("trips: %s has no active trip", ped)
	}
	t, _, err := m.popLeg(id, LegWalk)
	if err != nil {
		return 0, 0, driving.DrivingGoal{}, err
	}
	if len(t.Legs) == 0 || t.Legs[0].Kind != LegDrive {
		return 0, 0, driving.DrivingGoal{}, fmt.Errorf("trips: %s next leg after Walk-to-car must be Drive", id)
	}
	leg := t.Legs[0]
	return id, leg.DriveCar, leg.DriveGoal, nil
}

// PedReadyToBike transitions a finished Walk leg into the next Bike.
func (m *Manager) PedReadyToBike(ped simtypes.PedestrianID) (simtypes.TripID, simtypes.Vehicle, driving.DrivingGoal, error) {
	id, ok := m.activePed[ped]
	if !ok {
		return 0, simtypes.Vehicle{}, driving.DrivingGoal{}, fmt.Errorf("trips: %s has no active trip", ped)
	}
	t, _, err := m.popLeg(id, LegWalk)
	if err != nil {
		return 0, simtypes.Vehicle{}, driving.DrivingGoal{}, err
	}
	if len(t.Legs) == 0 || t.Legs[0].Kind != LegBike {
		return 0, simtypes.Vehicle{}, driving.DrivingGoal{}, fmt.Errorf("trips: %s next leg after Walk-to-bike must be Bike", id)
	}
	leg := t.Legs[0]
	return id, leg.BikeVehicle, leg.BikeGoal, nil
}

// BikeReachedEnd transitions a finished Bike leg into the next Walk.
func (m *Manager) BikeReachedEnd(now simtypes.Tick, bike simtypes.CarID) (simtypes.TripID, *simtypes.PedestrianID, walking.SidewalkSpot, error) {
	id, ok := m.activeCar[bike]
	if !ok {
		return 0, nil, walking.SidewalkSpot{}, fmt.Errorf("trips: %s has no active trip", bike)
	}
	t, _, err := m.popLeg(id, LegBike, LegDriveFromBorder)
	if err != nil {
		return 0, nil, walking.SidewalkSpot{}, err
	}
	delete(m.activeCar, bike)
	if len(t.Legs) == 0 {
		m.finish(t, now)
		return id, t.Ped, walking.SidewalkSpot{}, nil
	}
	if t.Legs[0].Kind != LegWalk {
		return 0, nil, walking.SidewalkSpot{}, fmt.Errorf("trips: %s next leg after Bike must be Walk", id)
	}
	return id, t.Ped, t.Legs[0].WalkTo, nil
}

// PedReachedBusStop transitions a finished Walk leg into the trip's upcoming
// RideBus leg without popping it; RideBus only completes when the ped
// alights (see PedFinishedBusRide), so the caller can register the ped as
// waiting for the right route/destination.
func (m *Manager) PedReachedBusStop(ped simtypes.PedestrianID) (simtypes.TripID, simtypes.BusRouteID, simtypes.BusStopID, error) {
	id, ok := m.activePed[ped]
	if !ok {
		return 0, 0, 0, fmt.Errorf("trips: %s has no active trip", ped)
	}
	t, _, err := m.popLeg(id, LegWalk)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(t.Legs) == 0 || t.Legs[0].Kind != LegRideBus {
		return 0, 0, 0, fmt.Errorf("trips: %s next leg after Walk-to-stop must be RideBus", id)
	}
	leg := t.Legs[0]
	return id, leg.BusRoute, leg.BusStop, nil
}

// PedFinishedBusRide transitions a finished RideBus leg into the next Walk.
func (m *Manager) PedFinishedBusRide(ped simtypes.PedestrianID) (simtypes.TripID, walking.SidewalkSpot, error) {
	id, ok := m.activePed[ped]
	if !ok {
		return 0, walking.SidewalkSpot{}, fmt.Errorf("trips: %s has no active trip", ped)
	}
	t, _, err := m.popLeg(id, LegRideBus)
	if err != nil {
		return 0, walking.SidewalkSpot{}, err
	}
	if len(t.Legs) == 0 || t.Legs[0].Kind != LegWalk {
		return 0, walking.SidewalkSpot{}, fmt.Errorf("trips: %s next leg after RideBus must be Walk", id)
	}
	return id, t.Legs[0].WalkTo, nil
}

// CarReachedBorder finalizes a trip whose last leg was Drive/DriveFromBorder
// ending at the map's edge.
func (m *Manager) CarReachedBorder(now simtypes.Tick, car simtypes.CarID) (simtypes.TripID, error) {
	id, ok := m.activeCar[car]
	if !ok {
		return 0, fmt.Errorf("trips: %s has no active trip", car)
	}
	t, ok := m.trips[id]
	if !ok {
		return 0, fmt.Errorf("trips: unknown %s", id)
	}
	if len(t.Legs) > 0 {
		t.Legs = t.Legs[1:]
	}
	delete(m.activeCar, car)
	m.finish(t, now)
	return id, nil
}

// ServingBusRoute reports the route car is serving, if its active trip's
// current leg is ServeBusRoute. A ServeBusRoute leg never pops: a bus loops
// its route for the life of the run, so reaching the route's end is not leg
// completion, just a cue for the Spawner to dispatch another lap.
func (m *Manager) ServingBusRoute(car simtypes.CarID) (simtypes.BusRouteID, bool) {
	id, ok := m.activeCar[car]
	if !ok {
		return 0, false
	}
	t, ok := m.trips[id]
	if !ok || len(t.Legs) == 0 || t.Legs[0].Kind != LegServeBusRoute {
		return 0, false
	}
	return t.Legs[0].BusRoute, true
}

// WalkingTripFinished finalizes a trip whose last leg was a Walk that reached
// its final building.
func (m *Manager) WalkingTripFinished(now simtypes.Tick, ped simtypes.PedestrianID) (simtypes.TripID, error) {
	id, ok := m.activePed[ped]
	if !ok {
		return 0, fmt.Errorf("trips: %s has no active trip", ped)
	}
	t, _, err := m.popLeg(id, LegWalk)
	if err != nil {
		return 0, err
	}
	delete(m.activePed, ped)
	if len(t.Legs) == 0 {
		m.finish(t, now)
	}
	return id, nil
}

func (m *Manager) finish(t *Trip, now simtypes.Tick) {
	tick := now
	t.FinishedAt = &tick
}

// IsDone reports whether every known trip has finished.
func (m *Manager) IsDone() bool {
	for _, t := range m.trips {
		if t.FinishedAt == nil {
			return false
		}
	}
	return true
}

// FinishedTripIDs returns, in ascending order, every trip that has finished.
func (m *Manager) FinishedTripIDs() []simtypes.TripID {
	var out []simtypes.TripID
	for id, t := range m.trips {
		if t.FinishedAt != nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UnfinishedTripIDs returns every trip still open, ascending. Orphaned trips
// (spawn failed, no agent ever bound) stay here for the life of the run.
func (m *Manager) UnfinishedTripIDs() []simtypes.TripID {
	var out []simtypes.TripID
	for id, t := range m.trips {
		if t.FinishedAt == nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TripIDs returns every known trip, ascending.
func (m *Manager) TripIDs() []simtypes.TripID {
	out := make([]simtypes.TripID, 0, len(m.trips))
	for id := range m.trips {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
