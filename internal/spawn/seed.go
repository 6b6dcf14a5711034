package spawn

import (
	"math/rand"
	"sort"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/rng"
	"github.com/antigravity/trafficsim/internal/simtypes"
)

// WeightedUsizeChoice draws a small non-negative count with the given weights:
// Weights[i] is the relative likelihood of drawing i. A building seeded with
// {Weights: [1, 2, 1]} ends up with 0, 1, or 2 parked cars at odds 1:2:1.
type WeightedUsizeChoice struct {
	Weights []int
}

// Sample draws one count. An empty or all-zero weight list always yields 0.
func (w WeightedUsizeChoice) Sample(r *rand.Rand) int {
	total := 0
	for _, wt := range w.Weights {
		total += wt
	}
	if total <= 0 {
		return 0
	}
	draw := r.Intn(total)
	for i, wt := range w.Weights {
		draw -= wt
		if draw < 0 {
			return i
		}
	}
	return len(w.Weights) - 1
}

// SeedParkedCars fills the parking inventory before the simulation starts:
// each building draws a car count from carsPerBuilding, then claims that many
// free spots by BFS outward from its own road, restricted to the neighborhood
// road set (nil for the whole map). Each building's draws come from a child
// RNG forked off baseRNG, so the base advances by exactly one draw per
// building no matter how many cars or shuffles the child performs.
//
// Buildings that can't find a spot are logged and skipped; a full
// neighborhood is a data condition, not an invariant violation.
func (s *Spawner) SeedParkedCars(m *mapmodel.Map, park *parking.Sim, buildings []simtypes.BuildingID, neighborhood []simtypes.RoadID, carsPerBuilding WeightedUsizeChoice, baseRNG *rand.Rand) []parking.ParkedCar {
	var within map[simtypes.RoadID]bool
	if neighborhood != nil {
		within = make(map[simtypes.RoadID]bool, len(neighborhood))
		for _, r := range neighborhood {
			within[r] = true
		}
	}

	sorted := append([]simtypes.BuildingID(nil), buildings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var seeded []parking.ParkedCar
	for _, b := range sorted {
		child := rng.Fork(baseRNG)
		n := carsPerBuilding.Sample(child)
		for i := 0; i < n; i++ {
			spot, ok := findSpotNearBuildingWithin(m, park, b, within, child)
			if !ok {
				s.logger.Error("spawn: no free parking spot while seeding", "building", b)
				break
			}
			owner := b
			vehicle := simtypes.GenerateCar(s.NextCarID(), child)
			if err := park.Park(spot, vehicle.ID, vehicle, &owner); err != nil {
				s.logger.Error("spawn: seeding collision", "building", b, "spot", spot, "err", err)
				break
			}
			seeded = append(seeded, parking.ParkedCar{Car: vehicle.ID, Spot: spot, Vehicle: vehicle, Owner: &owner})
		}
	}
	return seeded
}

// SeedSpecificParkedCars places generated cars at exact spots, the test hook
// scenario setups use to arrange a deterministic starting inventory without
// going through the BFS search.
func (s *Spawner) SeedSpecificParkedCars(park *parking.Sim, lane simtypes.LaneID, owner *simtypes.BuildingID, spotIdxs []int, baseRNG *rand.Rand) []simtypes.CarID {
	child := rng.Fork(baseRNG)
	var out []simtypes.CarID
	for _, idx := range spotIdxs {
		vehicle := simtypes.GenerateCar(s.NextCarID(), child)
		spot := parking.Spot{Lane: lane, Idx: idx}
		if err := park.Park(spot, vehicle.ID, vehicle, owner); err != nil {
			s.logger.Error("spawn: specific seeding collision", "spot", spot, "err", err)
			continue
		}
		out = append(out, vehicle.ID)
	}
	return out
}
