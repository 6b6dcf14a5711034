package kernel

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/intersection"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/rng"
	"github.com/antigravity/trafficsim/internal/scheduler"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/spawn"
	"github.com/antigravity/trafficsim/internal/transit"
	"github.com/antigravity/trafficsim/internal/trips"
	"github.com/antigravity/trafficsim/internal/walking"
)

// worldState is the self-describing serialization of a whole Sim. Every
// engine contributes its own Snapshot; the RNG is captured as its single
// state word.
type worldState struct {
	Version        int                   `json:"version"`
	MapName        string                `json:"map_name"`
	EditsName      string                `json:"edits_name"`
	RunName        string                `json:"run_name"`
	Now            simtypes.Tick         `json:"now"`
	SavestateEvery *simtypes.Tick        `json:"savestate_every,omitempty"`
	Seed           *uint64               `json:"seed,omitempty"`
	RNGState       uint64                `json:"rng_state"`
	Driving        driving.Snapshot      `json:"driving"`
	Walking        walking.Snapshot      `json:"walking"`
	Parking        parking.Snapshot      `json:"parking"`
	Intersections  intersection.Snapshot `json:"intersections"`
	Transit        transit.Snapshot      `json:"transit"`
	Trips          trips.Snapshot        `json:"trips"`
	Spawner        spawn.Snapshot        `json:"spawner"`
	Scheduler      scheduler.Snapshot    `json:"scheduler"`
}

const savestateVersion = 1

func (s *Sim) snapshotWorld() worldState {
	return worldState{
		Version:        savestateVersion,
		MapName:        s.mapName,
		EditsName:      s.editsName,
		RunName:        s.runName,
		Now:            s.now,
		SavestateEvery: s.savestateEvery,
		Seed:           s.seed,
		RNGState:       s.rngSource.State(),
		Driving:        s.driving.Snapshot(),
		Walking:        s.walking.Snapshot(),
		Parking:        s.parking.Snapshot(),
		Intersections:  s.intersections.Snapshot(),
		Transit:        s.transit.Snapshot(),
		Trips:          s.trips.Snapshot(),
		Spawner:        s.spawner.Snapshot(),
		Scheduler:      s.scheduler.Snapshot(),
	}
}

func (s *Sim) restoreWorld(ws worldState) {
	s.mapName = ws.MapName
	s.editsName = ws.EditsName
	s.runName = ws.RunName
	s.now = ws.Now
	s.savestateEvery = ws.SavestateEvery
	s.seed = ws.Seed
	s.rngSource = rng.NewSource(ws.RNGState)
	s.rng = rand.New(s.rngSource)
	s.driving.Restore(ws.Driving)
	s.walking.Restore(ws.Walking)
	s.parking.Restore(ws.Parking)
	s.intersections.Restore(ws.Intersections)
	s.transit.Restore(ws.Transit)
	s.trips.Restore(ws.Trips)
	s.spawner.Restore(ws.Spawner)
	s.scheduler.Restore(ws.Scheduler)
}

// saveDir is <data>/save/<map>_<edits>/<run>.
func (s *Sim) saveDir() string {
	return filepath.Join(s.dataRoot, "save", s.mapName+"_"+s.editsName, s.runName)
}

// SavestatePath is where a save at the given tick lands on disk.
func (s *Sim) SavestatePath(tick simtypes.Tick) string {
	return filepath.Join(s.saveDir(), tick.AsFilename()+".json")
}

// Save serializes the whole Sim into the per-run file keyed by the current
// tick and returns the written path.
func (s *Sim) Save() (string, error) {
	if err := os.MkdirAll(s.saveDir(), 0o755); err != nil {
		return "", fmt.Errorf("kernel: creating savestate dir: %w", err)
	}
	body, err := json.MarshalIndent(s.snapshotWorld(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("kernel: serializing savestate: %w", err)
	}
	path := s.SavestatePath(s.now)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("kernel: writing savestate: %w", err)
	}
	s.logger.Info("kernel: saved state", "tick", s.now, "path", path)
	return path, nil
}

// MarshalState returns the savestate body without touching disk, for callers
// (and tests) that compare whole-world serializations directly.
func (s *Sim) MarshalState() ([]byte, error) {
	return json.MarshalIndent(s.snapshotWorld(), "", "  ")
}

// LoadSavestate restores a Sim from a file written by Save. newRunName, if
// non-empty, renames the run so subsequent saves don't overwrite the
// original's timeline.
func LoadSavestate(path string, newRunName string) (*Sim, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kernel: reading savestate: %w", err)
	}
	var ws worldState
	if err := json.Unmarshal(body, &ws); err != nil {
		return nil, fmt.Errorf("kernel: parsing savestate %s: %w", path, err)
	}
	if ws.Version != savestateVersion {
		return nil, fmt.Errorf("kernel: savestate %s has version %d, want %d", path, ws.Version, savestateVersion)
	}

	s := newEmpty()
	s.restoreWorld(ws)
	if newRunName != "" {
		s.runName = newRunName
	}
	return s, nil
}

// FindPreviousSavestate returns the newest on-disk save strictly before base,
// parsing ticks out of filenames. No prior save is an error.
func (s *Sim) FindPreviousSavestate(base simtypes.Tick) (string, error) {
	return s.findSavestate(base, func(t simtypes.Tick) bool { return t < base }, true)
}

// FindNextSavestate returns the oldest on-disk save strictly after base.
func (s *Sim) FindNextSavestate(base simtypes.Tick) (string, error) {
	return s.findSavestate(base, func(t simtypes.Tick) bool { return t > base }, false)
}

func (s *Sim) findSavestate(base simtypes.Tick, match func(simtypes.Tick) bool, wantLatest bool) (string, error) {
	entries, err := os.ReadDir(s.saveDir())
	if err != nil {
		return "", fmt.Errorf("kernel: listing savestates: %w", err)
	}
	var ticks []simtypes.Tick
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		t, err := simtypes.ParseFilename(e.Name())
		if err != nil {
			continue
		}
		if match(t) {
			ticks = append(ticks, t)
		}
	}
	if len(ticks) == 0 {
		return "", fmt.Errorf("kernel: no savestate found relative to tick %s", base)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	pick := ticks[0]
	if wantLatest {
		pick = ticks[len(ticks)-1]
	}
	return s.SavestatePath(pick), nil
}

// Equal compares two Sims structurally, ignoring rng state, seed, and run
// name: the save-load round-trip's definition of "same world".
func (s *Sim) Equal(other *Sim) bool {
	a := s.snapshotWorld()
	b := other.snapshotWorld()
	a.RunName, b.RunName = "", ""
	a.RNGState, b.RNGState = 0, 0
	a.Seed, b.Seed = nil, nil
	return reflect.DeepEqual(a, b)
}

// DumpBeforeAbort logs everything a developer needs to resume debugging a
// fatal step error: the tick, the agent breadcrumb, and the most recent
// savestate they can load.
func (s *Sim) DumpBeforeAbort() {
	args := []any{"tick", s.now}
	if s.currentAgentForDebugging != nil {
		args = append(args, "agent", s.currentAgentForDebugging.String())
	}
	if path, err := s.FindPreviousSavestate(s.now.Next()); err == nil {
		args = append(args, "last_savestate", path)
	}
	s.logger.Error("kernel: dumping state before abort", args...)
}
