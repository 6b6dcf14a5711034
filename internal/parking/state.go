package parking

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// LaneCapacity records how many spots one parking lane holds.
type LaneCapacity struct {
	Lane  simtypes.LaneID `json:"lane"`
	Spots int             `json:"spots"`
}

// Reservation records one spot held for an inbound car.
type Reservation struct {
	Spot Spot           `json:"spot"`
	Car  simtypes.CarID `json:"car"`
}

// Snapshot is ParkingSim's whole serializable state.
type Snapshot struct {
	Capacity []LaneCapacity `json:"capacity"`
	Occupied []ParkedCar    `json:"occupied"`
	Reserved []Reservation  `json:"reserved"`
}

// Snapshot captures the inventory in a deterministic order.
func (s *Sim) Snapshot() Snapshot {
	var snap Snapshot
	lanes := make([]simtypes.LaneID, 0, len(s.capacity))
	for lane := range s.capacity {
		lanes = append(lanes, lane)
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i] < lanes[j] })
	for _, lane := range lanes {
		snap.Capacity = append(snap.Capacity, LaneCapacity{Lane: lane, Spots: s.capacity[lane]})
	}
	snap.Occupied = s.Occupancy()
	for spot, car := range s.reserved {
		snap.Reserved = append(snap.Reserved, Reservation{Spot: spot, Car: car})
	}
	sort.Slice(snap.Reserved, func(i, j int) bool { return snap.Reserved[i].Car < snap.Reserved[j].Car })
	return snap
}

// Restore replaces the inventory with snap.
func (s *Sim) Restore(snap Snapshot) {
	s.capacity = make(map[simtypes.LaneID]int, len(snap.Capacity))
	for _, lc := range snap.Capacity {
		s.capacity[lc.Lane] = lc.Spots
	}
	s.occupied = make(map[Spot]ParkedCar, len(snap.Occupied))
	s.byCar = make(map[simtypes.CarID]Spot, len(snap.Occupied))
	for _, pc := range snap.Occupied {
		s.occupied[pc.Spot] = pc
		s.byCar[pc.Car] = pc.Spot
	}
	s.reserved = make(map[Spot]simtypes.CarID, len(snap.Reserved))
	for _, r := range snap.Reserved {
		s.reserved[r.Spot] = r.Car
	}
}
