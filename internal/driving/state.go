package driving

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/simtypes"
)

// CarState is one Car flattened for a savestate.
type CarState struct {
	ID          simtypes.CarID   `json:"id"`
	Vehicle     simtypes.Vehicle `json:"vehicle"`
	Path        *mapmodel.Path   `json:"path"`
	Goal        DrivingGoal      `json:"goal"`
	TargetSpot  *parking.Spot    `json:"target_spot,omitempty"`
	StepIdx     int              `json:"step_idx"`
	DistM       float64          `json:"dist_m"`
	PendingTurn simtypes.TurnID  `json:"pending_turn"`
	Waiting     bool             `json:"waiting"`
}

// LaneQueue preserves the head-first ordering of cars on one lane.
type LaneQueue struct {
	Lane simtypes.LaneID  `json:"lane"`
	Cars []simtypes.CarID `json:"cars"`
}

// Snapshot is DrivingSim's whole serializable state.
type Snapshot struct {
	Cars  []CarState  `json:"cars"`
	Lanes []LaneQueue `json:"lanes"`
}

// Snapshot captures the engine's state in a deterministic order.
func (s *Sim) Snapshot() Snapshot {
	var snap Snapshot
	for _, id := range s.ActiveCars() {
		c := s.cars[id]
		snap.Cars = append(snap.Cars, CarState{
			ID:          c.ID,
			Vehicle:     c.Vehicle,
			Path:        c.Path,
			Goal:        c.Goal,
			TargetSpot:  c.TargetSpot,
			StepIdx:     c.stepIdx,
			DistM:       c.distM,
			PendingTurn: c.pendingTurn,
			Waiting:     c.st == waitingAtIntersection,
		})
	}
	lanes := make([]simtypes.LaneID, 0, len(s.lane))
	for lane, cars := range s.lane {
		if len(cars) > 0 {
			lanes = append(lanes, lane)
		}
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i] < lanes[j] })
	for _, lane := range lanes {
		snap.Lanes = append(snap.Lanes, LaneQueue{
			Lane: lane,
			Cars: append([]simtypes.CarID(nil), s.lane[lane]...),
		})
	}
	return snap
}

// Restore replaces the engine's state with snap.
func (s *Sim) Restore(snap Snapshot) {
	s.cars = make(map[simtypes.CarID]*Car, len(snap.Cars))
	for _, cs := range snap.Cars {
		st := crossing
		if cs.Waiting {
			st = waitingAtIntersection
		}
		s.cars[cs.ID] = &Car{
			ID:          cs.ID,
			Vehicle:     cs.Vehicle,
			Path:        cs.Path,
			Goal:        cs.Goal,
			TargetSpot:  cs.TargetSpot,
			stepIdx:     cs.StepIdx,
			distM:       cs.DistM,
			pendingTurn: cs.PendingTurn,
			st:          st,
		}
	}
	s.lane = make(map[simtypes.LaneID][]simtypes.CarID, len(snap.Lanes))
	for _, lq := range snap.Lanes {
		s.lane[lq.Lane] = append([]simtypes.CarID(nil), lq.Cars...)
	}
}
