package walking

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/simtypes"
)

// PedState is one Ped flattened for a savestate.
type PedState struct {
	ID      simtypes.PedestrianID `json:"id"`
	Path    *mapmodel.Path        `json:"path"`
	Goal    SidewalkSpot          `json:"goal"`
	StepIdx int                   `json:"step_idx"`
	DistM   float64               `json:"dist_m"`
}

// LaneQueue preserves the ordering of pedestrians on one sidewalk.
type LaneQueue struct {
	Lane simtypes.LaneID         `json:"lane"`
	Peds []simtypes.PedestrianID `json:"peds"`
}

// Snapshot is WalkingSim's whole serializable state.
type Snapshot struct {
	Peds  []PedState  `json:"peds"`
	Lanes []LaneQueue `json:"lanes"`
}

// Snapshot captures the engine's state in a deterministic order.
func (s *Sim) Snapshot() Snapshot {
	var snap Snapshot
	for _, id := range s.ActivePeds() {
		p := s.peds[id]
		snap.Peds = append(snap.Peds, PedState{
			ID:      p.ID,
			Path:    p.Path,
			Goal:    p.Goal,
			StepIdx: p.stepIdx,
			DistM:   p.distM,
		})
	}
	lanes := make([]simtypes.LaneID, 0, len(s.lane))
	for lane, peds := range s.lane {
		if len(peds) > 0 {
			lanes = append(lanes, lane)
		}
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i] < lanes[j] })
	for _, lane := range lanes {
		snap.Lanes = append(snap.Lanes, LaneQueue{
			Lane: lane,
			Peds: append([]simtypes.PedestrianID(nil), s.lane[lane]...),
		})
	}
	return snap
}

// Restore replaces the engine's state with snap.
func (s *Sim) Restore(snap Snapshot) {
	s.peds = make(map[simtypes.PedestrianID]*Ped, len(snap.Peds))
	for _, ps := range snap.Peds {
		s.peds[ps.ID] = &Ped{
			ID:      ps.ID,
			Path:    ps.Path,
			Goal:    ps.Goal,
			stepIdx: ps.StepIdx,
			distM:   ps.DistM,
		}
	}
	s.lane = make(map[simtypes.LaneID][]simtypes.PedestrianID, len(snap.Lanes))
	for _, lq := range snap.Lanes {
		s.lane[lq.Lane] = append([]simtypes.PedestrianID(nil), lq.Peds...)
	}
}
