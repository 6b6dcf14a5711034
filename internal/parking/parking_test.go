package parking

import (
	"testing"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

func vehicle(id simtypes.CarID) simtypes.Vehicle {
	return simtypes.Vehicle{ID: id, VehicleType: simtypes.VehicleCar, LengthM: 5, MaxSpeedMPS: 10}
}

func TestParkAndUnpark(t *testing.T) {
	s := New()
	s.EditAddLane(1, 2)

	spot := Spot{Lane: 1, Idx: 0}
	owner := simtypes.BuildingID(9)
	if err := s.Park(spot, 5, vehicle(5), &owner); err != nil {
		t.Fatalf("Park: %v", err)
	}

	pc, ok := s.Lookup(5)
	if !ok || pc.Spot != spot || pc.Owner == nil || *pc.Owner != 9 {
		t.Fatalf("Lookup = %+v, %v", pc, ok)
	}

	if free := s.FreeSpots(1); len(free) != 1 || free[0].Idx != 1 {
		t.Fatalf("FreeSpots = %+v", free)
	}

	got, err := s.Unpark(5)
	if err != nil || got.Car != 5 {
		t.Fatalf("Unpark = %+v, %v", got, err)
	}
	if _, ok := s.Lookup(5); ok {
		t.Fatal("car still parked after Unpark")
	}
}

func TestDoubleOccupancyIsAnError(t *testing.T) {
	s := New()
	s.EditAddLane(1, 2)
	spot := Spot{Lane: 1, Idx: 0}
	if err := s.Park(spot, 1, vehicle(1), nil); err != nil {
		t.Fatalf("first Park: %v", err)
	}
	if err := s.Park(spot, 2, vehicle(2), nil); err == nil {
		t.Fatal("second car parked in an occupied spot")
	}
	if err := s.Park(Spot{Lane: 1, Idx: 1}, 1, vehicle(1), nil); err == nil {
		t.Fatal("one car parked in two spots")
	}
}

func TestUnparkUnknownCar(t *testing.T) {
	s := New()
	if _, err := s.Unpark(77); err == nil {
		t.Fatal("expected error unparking a car that isn't parked")
	}
}

func TestReservationsBlockSearchesAndStrangers(t *testing.T) {
	s := New()
	s.EditAddLane(1, 1)
	spot := Spot{Lane: 1, Idx: 0}

	if err := s.Reserve(spot, 3); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if free := s.FreeSpots(1); len(free) != 0 {
		t.Fatalf("reserved spot still listed free: %+v", free)
	}
	if err := s.Park(spot, 4, vehicle(4), nil); err == nil {
		t.Fatal("a stranger parked in a reserved spot")
	}
	if err := s.Park(spot, 3, vehicle(3), nil); err != nil {
		t.Fatalf("the reserving car couldn't park: %v", err)
	}
	if _, held := s.reserved[spot]; held {
		t.Fatal("reservation survived the park")
	}
}

func TestCancelReservation(t *testing.T) {
	s := New()
	s.EditAddLane(1, 1)
	spot := Spot{Lane: 1, Idx: 0}
	if err := s.Reserve(spot, 3); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	s.CancelReservation(3)
	if free := s.FreeSpots(1); len(free) != 1 {
		t.Fatalf("spot not freed after cancel: %+v", free)
	}
}

func TestEditRemoveLaneEvicts(t *testing.T) {
	s := New()
	s.EditAddLane(1, 3)
	s.EditAddLane(2, 1)
	for i, car := range []simtypes.CarID{10, 11} {
		if err := s.Park(Spot{Lane: 1, Idx: i}, car, vehicle(car), nil); err != nil {
			t.Fatalf("Park: %v", err)
		}
	}
	if err := s.Park(Spot{Lane: 2, Idx: 0}, 12, vehicle(12), nil); err != nil {
		t.Fatalf("Park: %v", err)
	}

	evicted := s.EditRemoveLane(1)
	if len(evicted) != 2 || evicted[0].Car != 10 || evicted[1].Car != 11 {
		t.Fatalf("evicted = %+v", evicted)
	}
	if _, ok := s.Lookup(10); ok {
		t.Fatal("evicted car still parked")
	}
	if _, ok := s.Lookup(12); !ok {
		t.Fatal("unrelated lane lost its car")
	}
	if s.FreeSpots(1) != nil {
		t.Fatal("removed lane still has capacity")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := New()
	s.EditAddLane(1, 2)
	owner := simtypes.BuildingID(4)
	if err := s.Park(Spot{Lane: 1, Idx: 1}, 8, vehicle(8), &owner); err != nil {
		t.Fatalf("Park: %v", err)
	}
	if err := s.Reserve(Spot{Lane: 1, Idx: 0}, 9); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	snap := s.Snapshot()
	restored := New()
	restored.Restore(snap)

	if pc, ok := restored.Lookup(8); !ok || pc.Owner == nil || *pc.Owner != 4 {
		t.Fatalf("restored occupancy wrong: %+v, %v", pc, ok)
	}
	if free := restored.FreeSpots(1); len(free) != 0 {
		t.Fatalf("restored reservations wrong: %+v", free)
	}
}
