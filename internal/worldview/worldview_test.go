package worldview

import (
	"testing"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

func TestPutAndGet(t *testing.T) {
	v := New(5)
	v.Put(AgentSnapshot{Agent: simtypes.Car(1), Lane: 3, DistM: 10})
	v.Put(AgentSnapshot{Agent: simtypes.Ped(1), Lane: 3, DistM: 4})

	got, ok := v.Get(simtypes.Car(1))
	if !ok || got.DistM != 10 {
		t.Fatalf("Get(car 1) = %+v, %v", got, ok)
	}
	if v.Len() != 2 {
		t.Fatalf("Len = %d, want 2", v.Len())
	}
	if len(v.OnLane(3)) != 2 {
		t.Fatalf("OnLane(3) has %d agents, want 2", len(v.OnLane(3)))
	}
}

func TestPutOverwritesAndMovesLanes(t *testing.T) {
	v := New(0)
	v.Put(AgentSnapshot{Agent: simtypes.Car(7), Lane: 1, DistM: 1})
	v.Put(AgentSnapshot{Agent: simtypes.Car(7), Lane: 2, DistM: 8})

	if n := len(v.OnLane(1)); n != 0 {
		t.Fatalf("old lane still has %d entries", n)
	}
	if n := len(v.OnLane(2)); n != 1 {
		t.Fatalf("new lane has %d entries, want 1", n)
	}
	got, _ := v.Get(simtypes.Car(7))
	if got.DistM != 8 {
		t.Fatalf("overwrite lost: %+v", got)
	}
}

func TestCarAndPedWithSameNumberAreDistinct(t *testing.T) {
	v := New(0)
	v.Put(AgentSnapshot{Agent: simtypes.Car(4), Lane: 1})
	v.Put(AgentSnapshot{Agent: simtypes.Ped(4), Lane: 1})
	if v.Len() != 2 {
		t.Fatal("car #4 and ped #4 collided in the view")
	}
}
