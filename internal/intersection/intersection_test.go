package intersection

import (
	"testing"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/worldview"
)

// crossMap builds one intersection (ID 1) fed by two roads and draining into
// a third, with the given control type. Turn 10 crosses from road 0, turn 11
// from road 1; turn 12 is road 0's bike turn, parallel to turn 10 (same
// source and destination roads).
func crossMap(control mapmodel.ControlType) *mapmodel.Map {
	m := mapmodel.NewMap("cross")
	m.Intersections[1] = &mapmodel.Intersection{ID: 1, Control: control}
	m.Roads[0] = &mapmodel.Road{ID: 0, Lanes: []simtypes.LaneID{0, 3}, ToNode: 1}
	m.Roads[1] = &mapmodel.Road{ID: 1, Lanes: []simtypes.LaneID{1}, ToNode: 1}
	m.Roads[2] = &mapmodel.Road{ID: 2, Lanes: []simtypes.LaneID{2, 4}, FromNode: 1}
	m.Lanes[0] = &mapmodel.Lane{ID: 0, Road: 0, Type: mapmodel.LaneDriving, LengthM: 50}
	m.Lanes[1] = &mapmodel.Lane{ID: 1, Road: 1, Type: mapmodel.LaneDriving, LengthM: 50}
	m.Lanes[2] = &mapmodel.Lane{ID: 2, Road: 2, Type: mapmodel.LaneDriving, LengthM: 50}
	m.Lanes[3] = &mapmodel.Lane{ID: 3, Road: 0, Type: mapmodel.LaneBiking, LengthM: 50}
	m.Lanes[4] = &mapmodel.Lane{ID: 4, Road: 2, Type: mapmodel.LaneBiking, LengthM: 50}
	m.AddTurn(mapmodel.Turn{ID: 10, From: 0, To: 2, AtNode: 1})
	m.AddTurn(mapmodel.Turn{ID: 11, From: 1, To: 2, AtNode: 1})
	m.AddTurn(mapmodel.Turn{ID: 12, From: 3, To: 4, AtNode: 1})
	return m
}

// viewWith builds the snapshot the engine is handed, with each agent waiting
// at the end of its lane.
func viewWith(agents map[simtypes.AgentID]simtypes.LaneID) *worldview.View {
	v := worldview.New(0)
	for agent, lane := range agents {
		v.Put(worldview.AgentSnapshot{Agent: agent, Lane: lane, DistM: 50, Length: 5})
	}
	return v
}

func TestStopSignGrantsFIFO(t *testing.T) {
	m := crossMap(mapmodel.ControlStopSign)
	s := New()
	first := simtypes.Car(1)
	second := simtypes.Car(2)
	s.RequestAdmission(first, 1, 10)
	s.RequestAdmission(second, 1, 11)
	view := viewWith(map[simtypes.AgentID]simtypes.LaneID{first: 0, second: 1})

	out := s.Step(m, view, 0)
	if len(out.Accepted) != 1 || out.Accepted[0].Agent != first {
		t.Fatalf("Accepted = %+v, want just the first requester", out.Accepted)
	}
	if !s.IsAdmitted(first, 10) {
		t.Fatal("first requester not admitted")
	}
	if s.IsAdmitted(second, 11) {
		t.Fatal("second requester admitted out of turn")
	}

	// The second only gets its grant once the first clears.
	s.ClearAdmission(first)
	out = s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{second: 1}), 1)
	if len(out.Accepted) != 1 || out.Accepted[0].Agent != second {
		t.Fatalf("second round Accepted = %+v", out.Accepted)
	}
}

func TestDuplicateRequestsCollapse(t *testing.T) {
	m := crossMap(mapmodel.ControlStopSign)
	s := New()
	a := simtypes.Car(1)
	for i := 0; i < 5; i++ {
		s.RequestAdmission(a, 1, 10)
	}
	out := s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{a: 0}), 0)
	if len(out.Accepted) != 1 {
		t.Fatalf("duplicate requests produced %d grants", len(out.Accepted))
	}
	s.ClearAdmission(a)
	if !s.IsDone() {
		t.Fatal("engine not idle after the only grant cleared")
	}
}

func TestSignalAdmitsActiveRoadOnly(t *testing.T) {
	m := crossMap(mapmodel.ControlSignal)
	s := New()
	a := simtypes.Car(1) // from road 0
	b := simtypes.Car(2) // from road 1
	s.RequestAdmission(a, 1, 10)
	s.RequestAdmission(b, 1, 11)
	view := viewWith(map[simtypes.AgentID]simtypes.LaneID{a: 0, b: 1})

	// Roads at node 1 are {0, 1, 2}; tick 0 puts the green on road 0.
	out := s.Step(m, view, 0)
	if len(out.Accepted) != 1 || out.Accepted[0].Agent != a {
		t.Fatalf("tick 0 Accepted = %+v, want road 0's requester", out.Accepted)
	}

	// One full phase later the green has cycled to road 1; the first agent
	// has crossed and cleared, so nothing conflicts anymore.
	s.ClearAdmission(a)
	out = s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{b: 1}), signalCyclePeriod)
	if len(out.Accepted) != 1 || out.Accepted[0].Agent != b {
		t.Fatalf("next phase Accepted = %+v, want road 1's requester", out.Accepted)
	}
}

// Two turns with a shared conflict region are never admitted together, even
// when both source lanes sit on the road holding the green.
func TestConflictingGrantIsExclusive(t *testing.T) {
	m := crossMap(mapmodel.ControlSignal)
	s := New()
	a := simtypes.Car(1)
	b := simtypes.Car(2)
	s.RequestAdmission(a, 1, 10)
	s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{a: 0}), 0)

	// Road 1's phase arrives while a still holds its grant: b must wait.
	s.RequestAdmission(b, 1, 11)
	view := viewWith(map[simtypes.AgentID]simtypes.LaneID{a: 0, b: 1})
	out := s.Step(m, view, signalCyclePeriod)
	if len(out.Accepted) != 0 {
		t.Fatalf("Accepted = %+v while a conflicting grant is live", out.Accepted)
	}

	s.ClearAdmission(a)
	out = s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{b: 1}), signalCyclePeriod)
	if len(out.Accepted) != 1 || out.Accepted[0].Agent != b {
		t.Fatalf("Accepted = %+v after the conflict cleared", out.Accepted)
	}
}

// Parallel turns (same source road, same destination road) share no conflict
// region and ride the same green together.
func TestParallelTurnsShareAPhase(t *testing.T) {
	m := crossMap(mapmodel.ControlSignal)
	s := New()
	car := simtypes.Car(1)
	bike := simtypes.Car(2)
	s.RequestAdmission(car, 1, 10)
	s.RequestAdmission(bike, 1, 12)
	view := viewWith(map[simtypes.AgentID]simtypes.LaneID{car: 0, bike: 3})

	out := s.Step(m, view, 0)
	if len(out.Accepted) != 2 {
		t.Fatalf("Accepted = %+v, want both parallel turns granted", out.Accepted)
	}
	if TurnsConflict(m, 10, 12) {
		t.Fatal("parallel turns reported as conflicting")
	}
	if !TurnsConflict(m, 10, 11) {
		t.Fatal("crossing turns reported as non-conflicting")
	}
}

// An agent already inside the destination's entry band blocks admission until
// it moves clear.
func TestOccupiedDestinationBlocksAdmission(t *testing.T) {
	m := crossMap(mapmodel.ControlStopSign)
	s := New()
	a := simtypes.Car(1)
	blocker := simtypes.Car(9)
	s.RequestAdmission(a, 1, 10)

	view := viewWith(map[simtypes.AgentID]simtypes.LaneID{a: 0})
	view.Put(worldview.AgentSnapshot{Agent: blocker, Lane: 2, DistM: entryClearanceM / 2, Length: 5})
	out := s.Step(m, view, 0)
	if len(out.Accepted) != 0 {
		t.Fatalf("Accepted = %+v with the destination entry occupied", out.Accepted)
	}

	view = viewWith(map[simtypes.AgentID]simtypes.LaneID{a: 0})
	view.Put(worldview.AgentSnapshot{Agent: blocker, Lane: 2, DistM: entryClearanceM * 3, Length: 5})
	out = s.Step(m, view, 1)
	if len(out.Accepted) != 1 || out.Accepted[0].Agent != a {
		t.Fatalf("Accepted = %+v once the blocker moved clear", out.Accepted)
	}
}

// A request whose agent no longer appears in the snapshot is purged instead
// of blocking the queue.
func TestStaleRequestsAreDropped(t *testing.T) {
	m := crossMap(mapmodel.ControlStopSign)
	s := New()
	gone := simtypes.Car(1)
	waiting := simtypes.Car(2)
	s.RequestAdmission(gone, 1, 10)
	s.RequestAdmission(waiting, 1, 11)

	out := s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{waiting: 1}), 0)
	if len(out.Accepted) != 1 || out.Accepted[0].Agent != waiting {
		t.Fatalf("Accepted = %+v, want the present agent despite queue order", out.Accepted)
	}
	s.ClearAdmission(waiting)
	if !s.IsDone() {
		t.Fatal("stale request survived the purge")
	}
}

func TestOvertimeAfterThreshold(t *testing.T) {
	m := crossMap(mapmodel.ControlStopSign)
	s := New()
	a := simtypes.Car(1)
	s.RequestAdmission(a, 1, 10)
	s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{a: 0}), 0)

	if s.IsInOvertime(1) {
		t.Fatal("in overtime immediately after the grant")
	}
	out := s.Step(m, worldview.Empty(), overtimeThreshold)
	if !s.IsInOvertime(1) {
		t.Fatal("not in overtime after the threshold elapsed")
	}
	if len(out.Overtime) != 1 || out.Overtime[0] != 1 {
		t.Fatalf("Overtime = %+v", out.Overtime)
	}

	s.ClearAdmission(a)
	s.Step(m, worldview.Empty(), overtimeThreshold+1)
	if s.IsInOvertime(1) {
		t.Fatal("still in overtime after the agent cleared")
	}
}

func TestEditRemoveTurnDropsState(t *testing.T) {
	m := crossMap(mapmodel.ControlStopSign)
	s := New()
	s.RequestAdmission(simtypes.Car(1), 1, 10)
	s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{simtypes.Car(1): 0}), 0)
	s.RequestAdmission(simtypes.Car(2), 1, 10)

	s.EditRemoveTurn(10)
	if !s.IsDone() {
		t.Fatal("grant or request survived the turn removal")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := crossMap(mapmodel.ControlStopSign)
	s := New()
	car1 := simtypes.Car(1)
	car2 := simtypes.Car(2)
	s.RequestAdmission(car1, 1, 10)
	s.RequestAdmission(car2, 1, 11)
	s.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{car1: 0, car2: 1}), 3)

	restored := New()
	restored.Restore(s.Snapshot())

	if !restored.IsAdmitted(car1, 10) {
		t.Fatal("restored grant missing")
	}
	// car2's request survived the round trip; it stays pending while car1's
	// conflicting grant is live.
	out := restored.Step(m, viewWith(map[simtypes.AgentID]simtypes.LaneID{car1: 0, car2: 1}), 4)
	if len(out.Accepted) != 0 {
		t.Fatalf("Accepted = %+v against a live conflicting grant", out.Accepted)
	}
	if restored.IsDone() {
		t.Fatal("restored pending request lost")
	}
}
