package walking

import (
	"testing"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/worldview"
)

// sidewalkMap is two 50m sidewalks joined by turn 5, with building 7 fronting
// the second sidewalk 20m in, plus a parking lane parallel to the second.
func sidewalkMap() *mapmodel.Map {
	m := mapmodel.NewMap("sidewalks")
	m.Intersections[0] = &mapmodel.Intersection{ID: 0, Control: mapmodel.ControlStopSign}
	m.Intersections[1] = &mapmodel.Intersection{ID: 1, Control: mapmodel.ControlStopSign}
	m.Intersections[2] = &mapmodel.Intersection{ID: 2, Control: mapmodel.ControlStopSign}
	m.Roads[0] = &mapmodel.Road{ID: 0, Lanes: []simtypes.LaneID{0}, FromNode: 0, ToNode: 1}
	m.Roads[1] = &mapmodel.Road{ID: 1, Lanes: []simtypes.LaneID{1, 2}, FromNode: 1, ToNode: 2}
	m.Lanes[0] = &mapmodel.Lane{ID: 0, Road: 0, Type: mapmodel.LaneSidewalk, LengthM: 50}
	m.Lanes[1] = &mapmodel.Lane{ID: 1, Road: 1, Type: mapmodel.LaneSidewalk, LengthM: 50}
	m.Lanes[2] = &mapmodel.Lane{ID: 2, Road: 1, Type: mapmodel.LaneParking, LengthM: 50, ParkingLot: 2}
	m.AddTurn(mapmodel.Turn{ID: 5, From: 0, To: 1, AtNode: 1})
	m.Buildings[7] = &mapmodel.Building{
		ID: 7, Road: 1,
		FrontPath: mapmodel.FrontPath{Sidewalk: 1, DistAlongSidewalk: 20},
	}
	return m
}

func walkPath(endDist float64) *mapmodel.Path {
	return &mapmodel.Path{
		Start: mapmodel.Position{Lane: 0, Dist: 0},
		End:   mapmodel.Position{Lane: 1, Dist: endDist},
		Steps: []mapmodel.PathStep{
			{Kind: mapmodel.StepLane, Lane: 0},
			{Kind: mapmodel.StepTurn, Turn: 5, Lane: 1},
			{Kind: mapmodel.StepLane, Lane: 1},
		},
	}
}

func TestPedReachesBuilding(t *testing.T) {
	m := sidewalkMap()
	s := New()
	goal := SidewalkSpot{Kind: SpotBuilding, Building: 7}
	s.CreatePedestrian(1, walkPath(20), goal)

	var reached []ReachedBuilding
	for i := 0; i < 600 && len(reached) == 0; i++ {
		out := s.Step(m, 0.1)
		reached = out.ReachedBuilding
	}
	if len(reached) != 1 || reached[0].Ped != 1 || reached[0].Building != 7 {
		t.Fatalf("ReachedBuilding = %+v", reached)
	}
	if !s.IsDone() {
		t.Fatal("ped still active after arriving")
	}
}

func TestPedReachesParkingSpot(t *testing.T) {
	m := sidewalkMap()
	s := New()
	spot := parking.Spot{Lane: 2, Idx: 0}
	goal := SidewalkSpot{Kind: SpotParking, Parking: spot}
	s.CreatePedestrian(2, walkPath(12.5), goal)

	var reached []ReachedParkingSpot
	for i := 0; i < 600 && len(reached) == 0; i++ {
		out := s.Step(m, 0.1)
		reached = out.ReachedParkingSpot
	}
	if len(reached) != 1 || reached[0].Spot != spot {
		t.Fatalf("ReachedParkingSpot = %+v", reached)
	}
}

func TestPedReachesBusStopAndBikeRack(t *testing.T) {
	m := sidewalkMap()
	s := New()
	s.CreatePedestrian(3, walkPath(10), SidewalkSpot{Kind: SpotBusStop, BusStop: 4})
	s.CreatePedestrian(4, walkPath(10), SidewalkSpot{Kind: SpotBikeRack, BikeRackPos: mapmodel.Position{Lane: 1, Dist: 10}})

	var stops []ReachedBusStop
	var racks []ReadyToBike
	for i := 0; i < 600 && (len(stops) == 0 || len(racks) == 0); i++ {
		out := s.Step(m, 0.1)
		stops = append(stops, out.ReachedBusStop...)
		racks = append(racks, out.ReadyToBike...)
	}
	if len(stops) != 1 || stops[0].BusStop != 4 {
		t.Fatalf("ReachedBusStop = %+v", stops)
	}
	if len(racks) != 1 || racks[0].Pos.Dist != 10 {
		t.Fatalf("ReadyToBike = %+v", racks)
	}
}

func TestPopulateViewListsEveryPed(t *testing.T) {
	m := sidewalkMap()
	s := New()
	s.CreatePedestrian(1, walkPath(20), SidewalkSpot{Kind: SpotBuilding, Building: 7})
	s.CreatePedestrian(2, walkPath(20), SidewalkSpot{Kind: SpotBuilding, Building: 7})

	view := worldview.New(0)
	s.PopulateView(m, view)
	if view.Len() != 2 {
		t.Fatalf("view has %d agents, want 2", view.Len())
	}
	if _, ok := view.Get(simtypes.Ped(1)); !ok {
		t.Fatal("ped 1 missing from the view")
	}
}

func TestSidewalkSpotPositions(t *testing.T) {
	m := sidewalkMap()

	pos, ok := SidewalkSpot{Kind: SpotBuilding, Building: 7}.Position(m)
	if !ok || pos.Lane != 1 || pos.Dist != 20 {
		t.Fatalf("building position = %+v, %v", pos, ok)
	}

	pos, ok = SidewalkSpot{Kind: SpotBorder, BorderLane: 0}.Position(m)
	if !ok || pos.Lane != 0 || pos.Dist != 50 {
		t.Fatalf("border position = %+v, %v", pos, ok)
	}

	if _, ok := (SidewalkSpot{Kind: SpotBuilding, Building: 99}).Position(m); ok {
		t.Fatal("unknown building resolved to a position")
	}
}

func TestEditRemoveLaneExpels(t *testing.T) {
	m := sidewalkMap()
	s := New()
	s.CreatePedestrian(1, walkPath(20), SidewalkSpot{Kind: SpotBuilding, Building: 7})
	s.Step(m, 0.1)

	expelled := s.EditRemoveLane(0)
	if len(expelled) != 1 || expelled[0] != 1 {
		t.Fatalf("expelled = %+v", expelled)
	}
	if !s.IsDone() {
		t.Fatal("expelled ped still active")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := sidewalkMap()
	s := New()
	s.CreatePedestrian(1, walkPath(20), SidewalkSpot{Kind: SpotBuilding, Building: 7})
	for i := 0; i < 100; i++ {
		s.Step(m, 0.1)
	}

	restored := New()
	restored.Restore(s.Snapshot())
	a, okA := s.Lookup(1)
	b, okB := restored.Lookup(1)
	if !okA || !okB || a.CurrentLane() != b.CurrentLane() || a.DistAlongLane() != b.DistAlongLane() {
		t.Fatal("restored ped diverges from original")
	}
}
