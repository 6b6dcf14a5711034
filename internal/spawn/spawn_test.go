package spawn

import (
	"math/rand"
	"testing"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/rng"
	"github.com/antigravity/trafficsim/internal/scheduler"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/walking"
)

func testRNG() *rand.Rand {
	return rand.New(rng.NewSource(42))
}

func TestIDCountersNeverRepeat(t *testing.T) {
	s := New(nil)
	seenCars := make(map[simtypes.CarID]bool)
	seenPeds := make(map[simtypes.PedestrianID]bool)
	for i := 0; i < 100; i++ {
		c := s.NextCarID()
		p := s.NextPedID()
		if seenCars[c] || seenPeds[p] {
			t.Fatalf("ID reused at iteration %d", i)
		}
		seenCars[c] = true
		seenPeds[p] = true
	}
}

func TestEnqueueKeepsTickThenInsertionOrder(t *testing.T) {
	s := New(nil)
	s.EnqueueCommand(Command{Kind: CmdWalk, At: 5, Trip: 0})
	s.EnqueueCommand(Command{Kind: CmdWalk, At: 2, Trip: 1})
	s.EnqueueCommand(Command{Kind: CmdWalk, At: 2, Trip: 2})
	s.EnqueueCommand(Command{Kind: CmdWalk, At: 9, Trip: 3})

	wantTrips := []simtypes.TripID{1, 2, 0, 3}
	for i, e := range s.queue {
		if e.cmd.Trip != wantTrips[i] {
			t.Fatalf("queue position %d holds trip %s, want Trip #%d", i, e.cmd.Trip, wantTrips[i])
		}
	}
}

func TestWalkCommandSpawnsPed(t *testing.T) {
	m := mapmodel.GenerateCorridor(4)
	s := New(nil)
	park := parking.New()
	sched := scheduler.New()

	ped := s.NextPedID()
	s.EnqueueCommand(Command{
		Kind:     CmdWalk,
		At:       3,
		Trip:     1,
		WalkPed:  ped,
		WalkFrom: walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: 0},
		WalkTo:   walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: 2},
	})

	s.Step(2, m, sched, park, testRNG())
	if sched.Len() != 0 {
		t.Fatal("command forwarded before its tick")
	}
	s.Step(3, m, sched, park, testRNG())
	if s.Len() != 0 {
		t.Fatal("due command left in queue")
	}
	due := sched.Drain(3)
	if len(due) != 1 || due[0].IsCar() {
		t.Fatalf("scheduler drained %+v, want one SpawnPed", due)
	}
	if due[0].Ped.ID != ped || due[0].Ped.Path == nil {
		t.Fatalf("CreatePed = %+v", due[0].Ped)
	}
}

func TestDriveCommandUnparksAndReserves(t *testing.T) {
	m := mapmodel.GenerateCorridor(4)
	s := New(nil)
	park := parking.New()
	sched := scheduler.New()
	for _, l := range m.Lanes {
		if l.Type == mapmodel.LaneParking {
			park.EditAddLane(l.ID, l.ParkingLot)
		}
	}

	startLane, _ := m.FindClosestLaneToBuilding(0, []mapmodel.LaneType{mapmodel.LaneParking})
	cars := s.SeedSpecificParkedCars(park, startLane, nil, []int{0}, testRNG())
	if len(cars) != 1 {
		t.Fatalf("seeded %d cars, want 1", len(cars))
	}

	s.EnqueueCommand(Command{
		Kind:             CmdDrive,
		At:               0,
		Trip:             1,
		DriveCar:         cars[0],
		DriveParkingSpot: parking.Spot{Lane: startLane, Idx: 0},
		DriveGoal:        driving.DrivingGoal{Kind: driving.ParkNear, Building: 2},
	})
	s.Step(0, m, sched, park, testRNG())

	if _, stillParked := park.Lookup(cars[0]); stillParked {
		t.Fatal("car still in inventory after its drive leg dispatched")
	}
	due := sched.Drain(0)
	if len(due) != 1 || !due[0].IsCar() {
		t.Fatalf("scheduler drained %+v", due)
	}
	if due[0].Car.TargetSpot == nil {
		t.Fatal("ParkNear dispatch carries no target spot")
	}
	// The chosen spot is held against other searches.
	if free := park.FreeSpots(due[0].Car.TargetSpot.Lane); containsSpot(free, *due[0].Car.TargetSpot) {
		t.Fatal("target spot still listed free")
	}
}

func containsSpot(spots []parking.Spot, want parking.Spot) bool {
	for _, s := range spots {
		if s == want {
			return true
		}
	}
	return false
}

func TestFailedPathOrphansTrip(t *testing.T) {
	m := mapmodel.GenerateCorridor(4)
	// An island border lane nothing connects to.
	island := simtypes.LaneID(9999)
	m.Lanes[island] = &mapmodel.Lane{ID: island, Road: 9999, Type: mapmodel.LaneDriving, LengthM: 10}

	s := New(nil)
	park := parking.New()
	sched := scheduler.New()
	s.EnqueueCommand(Command{
		Kind:          CmdDriveFromBorder,
		At:            0,
		Trip:          1,
		BorderVehicle: simtypes.GenerateCar(s.NextCarID(), testRNG()),
		BorderLane:    island,
		BorderGoal:    driving.DrivingGoal{Kind: driving.ParkNear, Building: 0},
	})
	s.Step(0, m, sched, park, testRNG())

	if sched.Len() != 0 {
		t.Fatal("unreachable command still spawned")
	}
	if s.Len() != 0 {
		t.Fatal("failed command left in queue")
	}
	if s.OrphanedTrips() != 1 {
		t.Fatalf("OrphanedTrips = %d, want 1", s.OrphanedTrips())
	}
}

func TestBFSHelpersAreDeterministic(t *testing.T) {
	m := mapmodel.GenerateCorridor(6)
	s := New(nil)
	laneA, okA := s.FindDrivingLaneNearBuilding(m, 2)
	laneB, okB := s.FindDrivingLaneNearBuilding(m, 2)
	if !okA || !okB || laneA != laneB {
		t.Fatalf("BFS unstable: %v/%v, %v/%v", laneA, okA, laneB, okB)
	}
	if m.Lanes[laneA].Type != mapmodel.LaneDriving {
		t.Fatalf("found a %s lane", m.Lanes[laneA].Type)
	}

	bikeLane, ok := s.FindBikingGoalNearBuilding(m, 1)
	if !ok {
		t.Fatal("no biking goal found")
	}
	typ := m.Lanes[bikeLane].Type
	if typ != mapmodel.LaneBiking && typ != mapmodel.LaneDriving {
		t.Fatalf("biking goal on a %s lane", typ)
	}
}

func TestFindSpotPrefersNearestRoad(t *testing.T) {
	m := mapmodel.GenerateCorridor(6)
	s := New(nil)
	park := parking.New()
	for _, l := range m.Lanes {
		if l.Type == mapmodel.LaneParking {
			park.EditAddLane(l.ID, l.ParkingLot)
		}
	}
	ownRoad, _ := m.BuildingToRoad(2)
	ownLane, _ := m.FindClosestLaneToBuilding(2, []mapmodel.LaneType{mapmodel.LaneParking})

	spot, ok := s.FindSpotNearBuilding(m, park, 2, testRNG())
	if !ok {
		t.Fatal("no spot found")
	}
	if spot.Lane != ownLane {
		t.Fatalf("spot on %s, want the building's own road %d lane %s", spot.Lane, ownRoad, ownLane)
	}
}

// Exhausting a building's own road pushes the search one BFS ring out.
func TestFindSpotSpillsToNeighbors(t *testing.T) {
	m := mapmodel.GenerateCorridor(6)
	s := New(nil)
	park := parking.New()
	for _, l := range m.Lanes {
		if l.Type == mapmodel.LaneParking {
			park.EditAddLane(l.ID, l.ParkingLot)
		}
	}
	ownLane, _ := m.FindClosestLaneToBuilding(2, []mapmodel.LaneType{mapmodel.LaneParking})
	for _, spot := range park.FreeSpots(ownLane) {
		v := simtypes.GenerateCar(s.NextCarID(), testRNG())
		if err := park.Park(spot, v.ID, v, nil); err != nil {
			t.Fatalf("filling road: %v", err)
		}
	}

	spot, ok := s.FindSpotNearBuilding(m, park, 2, testRNG())
	if !ok {
		t.Fatal("search gave up with neighbors free")
	}
	if spot.Lane == ownLane {
		t.Fatal("found a spot on a full lane")
	}
}

func TestSeedParkedCarsConsumesOneDrawPerBuilding(t *testing.T) {
	m := mapmodel.GenerateCorridor(6)
	weights := WeightedUsizeChoice{Weights: []int{0, 1}} // always exactly 1 car

	run := func() ([]parking.ParkedCar, int64) {
		s := New(nil)
		park := parking.New()
		for _, l := range m.Lanes {
			if l.Type == mapmodel.LaneParking {
				park.EditAddLane(l.ID, l.ParkingLot)
			}
		}
		base := testRNG()
		seeded := s.SeedParkedCars(m, park, []simtypes.BuildingID{0, 1, 2}, nil, weights, base)
		return seeded, base.Int63()
	}

	seededA, nextA := run()
	seededB, nextB := run()
	if len(seededA) != 3 {
		t.Fatalf("seeded %d cars, want 3", len(seededA))
	}
	for i := range seededA {
		if seededA[i].Spot != seededB[i].Spot || seededA[i].Vehicle != seededB[i].Vehicle {
			t.Fatalf("seeding not deterministic at %d: %+v vs %+v", i, seededA[i], seededB[i])
		}
	}
	if nextA != nextB {
		t.Fatal("base RNG consumption differed between identical runs")
	}
	want := testRNG()
	for i := 0; i < 3; i++ {
		want.Int63()
	}
	if nextA != want.Int63() {
		t.Fatal("seeding 3 buildings did not consume exactly 3 base draws")
	}
}

func TestWeightedUsizeChoice(t *testing.T) {
	r := testRNG()
	always2 := WeightedUsizeChoice{Weights: []int{0, 0, 1}}
	for i := 0; i < 20; i++ {
		if got := always2.Sample(r); got != 2 {
			t.Fatalf("Sample = %d, want 2", got)
		}
	}
	if got := (WeightedUsizeChoice{}).Sample(r); got != 0 {
		t.Fatalf("empty weights drew %d", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New(nil)
	s.NextCarID()
	s.NextPedID()
	s.EnqueueCommand(Command{Kind: CmdWalk, At: 4, Trip: 2})

	restored := New(nil)
	restored.Restore(s.Snapshot())
	if restored.Len() != 1 || restored.NextCarID() != 1 || restored.NextPedID() != 1 {
		t.Fatal("spawner state lost in round trip")
	}
}
