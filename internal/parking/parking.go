// Package parking owns every parking spot in the map and the cars sitting in
// them. It is one of the four domain engines DrivingSim, WalkingSim, and the
// Spawner talk to during a tick. It never steps on its own: a ParkedCar only
// changes state when Driving or the Spawner parks or unparks it.
package parking

import (
	"fmt"
	"sort"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Spot identifies one space in a parking lane's inventory.
type Spot struct {
	Lane simtypes.LaneID
	Idx  int
}

func (s Spot) String() string { return fmt.Sprintf("%s spot %d", s.Lane, s.Idx) }

// ParkedCar is a car currently sitting in a Spot.
type ParkedCar struct {
	Car     simtypes.CarID
	Spot    Spot
	Vehicle simtypes.Vehicle
	Owner   *simtypes.BuildingID // nil if the car didn't start the run owned by a building
}

// Sim is the parking inventory: which spots exist, which are occupied, and by
// whom. Parking lanes belong to ParkingSim; every other lane type is someone
// else's problem.
type Sim struct {
	capacity map[simtypes.LaneID]int
	occupied map[Spot]ParkedCar
	byCar    map[simtypes.CarID]Spot
	// reserved holds spots a dispatched car is driving toward but hasn't
	// claimed yet; they count as taken for every search so two cars can't be
	// routed to the same spot.
	reserved map[Spot]simtypes.CarID
}

// New builds an empty inventory; call EditAddLane for each parking lane in the
// map (or let the Spawner seed it, see internal/spawn).
func New() *Sim {
	return &Sim{
		capacity: make(map[simtypes.LaneID]int),
		occupied: make(map[Spot]ParkedCar),
		byCar:    make(map[simtypes.CarID]Spot),
		reserved: make(map[Spot]simtypes.CarID),
	}
}

// Reserve marks spot as claimed by an inbound car. Fails if the spot is
// occupied or already reserved by someone else.
func (s *Sim) Reserve(spot Spot, car simtypes.CarID) error {
	if _, taken := s.occupied[spot]; taken {
		return fmt.Errorf("parking: cannot reserve occupied %s", spot)
	}
	if holder, held := s.reserved[spot]; held && holder != car {
		return fmt.Errorf("parking: %s already reserved by %s", spot, holder)
	}
	s.reserved[spot] = car
	return nil
}

// CancelReservation releases any reservation car holds (e.g. the car was
// expelled by a lane edit before arriving).
func (s *Sim) CancelReservation(car simtypes.CarID) {
	for spot, holder := range s.reserved {
		if holder == car {
			delete(s.reserved, spot)
			return
		}
	}
}

// EditAddLane registers a parking lane's spot count. Calling it on a lane
// already known is a no-op resize that preserves existing occupants.
func (s *Sim) EditAddLane(lane simtypes.LaneID, numSpots int) {
	s.capacity[lane] = numSpots
}

// EditRemoveLane evicts every car parked on lane and forgets its capacity. The
// caller (DrivingSim, via the kernel's edit path) is responsible for deciding
// what happens to evicted cars; this just returns them.
func (s *Sim) EditRemoveLane(lane simtypes.LaneID) []ParkedCar {
	var evicted []ParkedCar
	for spot, pc := range s.occupied {
		if spot.Lane == lane {
			evicted = append(evicted, pc)
			delete(s.occupied, spot)
			delete(s.byCar, pc.Car)
		}
	}
	for spot := range s.reserved {
		if spot.Lane == lane {
			delete(s.reserved, spot)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].Car < evicted[j].Car })
	delete(s.capacity, lane)
	return evicted
}

// FreeSpots returns the unoccupied spot indices on lane, ascending.
func (s *Sim) FreeSpots(lane simtypes.LaneID) []Spot {
	cap, ok := s.capacity[lane]
	if !ok {
		return nil
	}
	var free []Spot
	for i := 0; i < cap; i++ {
		spot := Spot{Lane: lane, Idx: i}
		_, taken := s.occupied[spot]
		_, held := s.reserved[spot]
		if !taken && !held {
			free = append(free, spot)
		}
	}
	return free
}

// Park places vehicle into spot on behalf of car, optionally owned by a
// building. Returns an error (fatal to the enclosing step) if the spot is already
// occupied or the car is already parked elsewhere; both are invariant
// violations the caller should never trigger in normal operation.
func (s *Sim) Park(spot Spot, car simtypes.CarID, vehicle simtypes.Vehicle, owner *simtypes.BuildingID) error {
	if _, taken := s.occupied[spot]; taken {
		return fmt.Errorf("parking: %s is already occupied", spot)
	}
	if holder, held := s.reserved[spot]; held && holder != car {
		return fmt.Errorf("parking: %s is reserved by %s", spot, holder)
	}
	if existing, already := s.byCar[car]; already {
		return fmt.Errorf("parking: %s already parked at %s", car, existing)
	}
	delete(s.reserved, spot)
	pc := ParkedCar{Car: car, Spot: spot, Vehicle: vehicle, Owner: owner}
	s.occupied[spot] = pc
	s.byCar[car] = spot
	return nil
}

// Unpark removes car from its spot, returning the record that was there.
func (s *Sim) Unpark(car simtypes.CarID) (ParkedCar, error) {
	spot, ok := s.byCar[car]
	if !ok {
		return ParkedCar{}, fmt.Errorf("parking: %s is not parked", car)
	}
	pc := s.occupied[spot]
	delete(s.occupied, spot)
	delete(s.byCar, car)
	return pc, nil
}

// Lookup returns where car is parked, if anywhere.
func (s *Sim) Lookup(car simtypes.CarID) (ParkedCar, bool) {
	spot, ok := s.byCar[car]
	if !ok {
		return ParkedCar{}, false
	}
	pc, ok := s.occupied[spot]
	return pc, ok
}

// SpotToDrivingPosition converts a parking Spot into the Position on the
// adjacent driving lane a car must occupy to pull in/out of it, via
// mapmodel's EquivPos.
func SpotToDrivingPosition(m *mapmodel.Map, spot Spot, drivingLane simtypes.LaneID) mapmodel.Position {
	lane := m.Lanes[spot.Lane]
	cap := 1
	if lane != nil && lane.ParkingLot > 0 {
		cap = lane.ParkingLot
	}
	frac := (float64(spot.Idx) + 0.5) / float64(cap)
	parkingLen := 0.0
	if lane != nil {
		parkingLen = lane.LengthM
	}
	along := mapmodel.Position{Lane: spot.Lane, Dist: frac * parkingLen}
	return along.EquivPos(drivingLane, m)
}

// IsDone always reports true, whether or not cars are parked: trivially
// "done" in the sense DrivingSim/WalkingSim mean it (ParkingSim has no agents
// of its own, only state), kept for interface symmetry with the other engines.
func (s *Sim) IsDone() bool {
	return true
}

// Occupancy returns a stable-ordered snapshot of every occupied spot, used by
// SimStats and tests that assert parking conservation.
func (s *Sim) Occupancy() []ParkedCar {
	out := make([]ParkedCar, 0, len(s.occupied))
	for _, pc := range s.occupied {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Car < out[j].Car })
	return out
}
