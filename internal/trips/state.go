package trips

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// CarBinding maps an active car to its trip.
type CarBinding struct {
	Car  simtypes.CarID  `json:"car"`
	Trip simtypes.TripID `json:"trip"`
}

// PedBinding maps an active pedestrian to its trip.
type PedBinding struct {
	Ped  simtypes.PedestrianID `json:"ped"`
	Trip simtypes.TripID       `json:"trip"`
}

// Snapshot is TripManager's whole serializable state.
type Snapshot struct {
	Trips      []Trip          `json:"trips"`
	ActiveCars []CarBinding    `json:"active_cars"`
	ActivePeds []PedBinding    `json:"active_peds"`
	NextTripID simtypes.TripID `json:"next_trip_id"`
}

// Snapshot captures the manager's state in a deterministic order.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{NextTripID: m.nextTripID}
	for _, id := range m.TripIDs() {
		t := m.trips[id]
		cp := *t
		cp.Legs = append([]TripLeg(nil), t.Legs...)
		snap.Trips = append(snap.Trips, cp)
	}
	for car, trip := range m.activeCar {
		snap.ActiveCars = append(snap.ActiveCars, CarBinding{Car: car, Trip: trip})
	}
	sort.Slice(snap.ActiveCars, func(i, j int) bool { return snap.ActiveCars[i].Car < snap.ActiveCars[j].Car })
	for ped, trip := range m.activePed {
		snap.ActivePeds = append(snap.ActivePeds, PedBinding{Ped: ped, Trip: trip})
	}
	sort.Slice(snap.ActivePeds, func(i, j int) bool { return snap.ActivePeds[i].Ped < snap.ActivePeds[j].Ped })
	return snap
}

// Restore replaces the manager's state with snap.
func (m *Manager) Restore(snap Snapshot) {
	m.trips = make(map[simtypes.TripID]*Trip, len(snap.Trips))
	for i := range snap.Trips {
		t := snap.Trips[i]
		m.trips[t.ID] = &t
	}
	m.activeCar = make(map[simtypes.CarID]simtypes.TripID, len(snap.ActiveCars))
	for _, b := range snap.ActiveCars {
		m.activeCar[b.Car] = b.Trip
	}
	m.activePed = make(map[simtypes.PedestrianID]simtypes.TripID, len(snap.ActivePeds))
	for _, b := range snap.ActivePeds {
		m.activePed[b.Ped] = b.Trip
	}
	m.nextTripID = snap.NextTripID
}
