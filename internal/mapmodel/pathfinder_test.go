package mapmodel

import (
	"reflect"
	"testing"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

func TestCorridorPathDrivingOnly(t *testing.T) {
	m := GenerateCorridor(5)
	var pf Pathfinder

	start, ok := m.FindClosestLaneToBuilding(0, []LaneType{LaneDriving})
	if !ok {
		t.Fatal("no driving lane on building 0's road")
	}
	end, ok := m.FindClosestLaneToBuilding(3, []LaneType{LaneDriving})
	if !ok {
		t.Fatal("no driving lane on building 3's road")
	}

	path, found := pf.ShortestDistance(m, PathRequest{
		Start: Position{Lane: start, Dist: 0},
		End:   Position{Lane: end, Dist: 10},
	})
	if !found {
		t.Fatal("expected a path along the corridor")
	}
	if path.CurrentStep().AsLane() != start {
		t.Fatalf("path starts on %s, want %s", path.CurrentStep().AsLane(), start)
	}
	lanes := path.Lanes()
	if lanes[len(lanes)-1] != end {
		t.Fatalf("path ends on %s, want %s", lanes[len(lanes)-1], end)
	}
	for _, lane := range lanes {
		if typ := m.Lanes[lane].Type; typ != LaneDriving {
			t.Fatalf("driving-only request used a %s lane", typ)
		}
	}
	// Steps alternate lane, turn, lane, ...
	for i, s := range path.Steps {
		wantTurn := i%2 == 1
		if (s.Kind == StepTurn) != wantTurn {
			t.Fatalf("step %d has kind %v, alternation broken", i, s.Kind)
		}
	}
}

func TestPathIsDeterministic(t *testing.T) {
	m := GenerateCorridor(6)
	var pf Pathfinder
	req := PathRequest{
		Start: Position{Lane: mustLane(t, m, 0, LaneDriving), Dist: 5},
		End:   Position{Lane: mustLane(t, m, 4, LaneDriving), Dist: 50},
	}
	a, okA := pf.ShortestDistance(m, req)
	b, okB := pf.ShortestDistance(m, req)
	if !okA || !okB {
		t.Fatal("expected both searches to succeed")
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical requests produced different paths")
	}
}

func TestSidewalkRequestsStayOnSidewalks(t *testing.T) {
	m := GenerateCorridor(4)
	var pf Pathfinder
	start := mustLane(t, m, 0, LaneSidewalk)
	end := mustLane(t, m, 2, LaneSidewalk)
	path, found := pf.ShortestDistance(m, PathRequest{
		Start: Position{Lane: start, Dist: 0},
		End:   Position{Lane: end, Dist: 1},
	})
	if !found {
		t.Fatal("expected a sidewalk path")
	}
	for _, lane := range path.Lanes() {
		if m.Lanes[lane].Type != LaneSidewalk {
			t.Fatalf("pedestrian path used a %s lane", m.Lanes[lane].Type)
		}
	}
}

func TestUnreachableReturnsNotFound(t *testing.T) {
	m := GenerateCorridor(3)
	// A lane on an island: registered but connected to nothing.
	island := simtypes.LaneID(9999)
	m.Lanes[island] = &Lane{ID: island, Road: 9999, Type: LaneDriving, LengthM: 10}

	var pf Pathfinder
	if _, found := pf.ShortestDistance(m, PathRequest{
		Start: Position{Lane: mustLane(t, m, 0, LaneDriving), Dist: 0},
		End:   Position{Lane: island, Dist: 5},
	}); found {
		t.Fatal("expected no path to an island lane")
	}
}

func TestBusLanePermission(t *testing.T) {
	m := GenerateCorridor(7) // bus lanes on roads 0 and 5
	busStart := mustLane(t, m, 0, LaneBus)
	busEnd := mustLane(t, m, 5, LaneBus)

	var pf Pathfinder
	req := PathRequest{
		Start: Position{Lane: busStart, Dist: 0},
		End:   Position{Lane: busEnd, Dist: 45},
	}
	if _, found := pf.ShortestDistance(m, req); found {
		t.Fatal("bus-lane path should require CanUseBusLanes")
	}
	req.CanUseBusLanes = true
	if _, found := pf.ShortestDistance(m, req); !found {
		t.Fatal("expected a path once bus lanes are permitted")
	}
}

func TestEquivPosPreservesFraction(t *testing.T) {
	m := GenerateCorridor(3)
	sidewalk := mustLane(t, m, 0, LaneSidewalk)
	drive := mustLane(t, m, 0, LaneDriving)
	p := Position{Lane: sidewalk, Dist: m.Lanes[sidewalk].LengthM / 3}
	q := p.EquivPos(drive, m)
	if q.Lane != drive {
		t.Fatalf("projected onto %s, want %s", q.Lane, drive)
	}
	wantFrac := p.Dist / m.Lanes[sidewalk].LengthM
	gotFrac := q.Dist / m.Lanes[drive].LengthM
	if diff := wantFrac - gotFrac; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("fraction not preserved: %f vs %f", wantFrac, gotFrac)
	}
}

func mustLane(t *testing.T, m *Map, road simtypes.RoadID, typ LaneType) simtypes.LaneID {
	t.Helper()
	lane, ok := m.findLaneOnRoad(road, []LaneType{typ})
	if !ok {
		t.Fatalf("road %d has no %s lane", road, typ)
	}
	return lane
}
