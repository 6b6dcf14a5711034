// Package scheduler holds the Scheduler: a serializable priority queue of
// (tick, spawn command) pairs, drained each tick to dispatch CreateCar/
// CreatePedestrian into Driving/Walking. A stably-sorted vector is adequate
// here and trivially serializable, so that's all it is.
package scheduler

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/walking"
)

// CreateCar is everything DrivingSim.CreateCar needs, already resolved by
// the Spawner's path computation.
type CreateCar struct {
	Vehicle    simtypes.Vehicle
	Path       *mapmodel.Path
	Goal       driving.DrivingGoal
	TargetSpot *parking.Spot
	Trip       simtypes.TripID
}

// CreatePed is everything WalkingSim.CreatePedestrian needs.
type CreatePed struct {
	ID   simtypes.PedestrianID
	Path *mapmodel.Path
	Goal walking.SidewalkSpot
	Trip simtypes.TripID
}

type kind int

const (
	kindCar kind = iota
	kindPed
)

// Command is the Scheduler's own sum type: SpawnCar(at, CreateCar) or
// SpawnPed(at, CreatePedestrian).
type Command struct {
	At   simtypes.Tick
	kind kind
	Car  CreateCar
	Ped  CreatePed
}

// SpawnCar builds a Scheduler Command that dispatches a CreateCar at tick at.
func SpawnCar(at simtypes.Tick, c CreateCar) Command {
	return Command{At: at, kind: kindCar, Car: c}
}

// SpawnPed builds a Scheduler Command that dispatches a CreatePed at tick at.
func SpawnPed(at simtypes.Tick, p CreatePed) Command {
	return Command{At: at, kind: kindPed, Ped: p}
}

type entry struct {
	cmd Command
	seq int
}

// Scheduler is a stably-sorted queue of pending spawn commands, ascending by
// (At, insertion order) so Drain returns same-tick commands in the order
// they were enqueued.
type Scheduler struct {
	queue   []entry
	nextSeq int
}

// New builds an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Enqueue inserts cmd in sorted position.
func (s *Scheduler) Enqueue(cmd Command) {
	e := entry{cmd: cmd, seq: s.nextSeq}
	s.nextSeq++
	i := sort.Search(len(s.queue), func(i int) bool {
		if s.queue[i].cmd.At != cmd.At {
			return s.queue[i].cmd.At > cmd.At
		}
		return s.queue[i].seq > e.seq
	})
	s.queue = append(s.queue, entry{})
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = e
}

// Drain removes and returns every command scheduled for exactly now, in
// enqueue order.
func (s *Scheduler) Drain(now simtypes.Tick) []Command {
	i := 0
	for i < len(s.queue) && s.queue[i].cmd.At == now {
		i++
	}
	due := make([]Command, i)
	for j := 0; j < i; j++ {
		due[j] = s.queue[j].cmd
	}
	s.queue = s.queue[i:]
	return due
}

// Len reports how many commands are still pending.
func (s *Scheduler) Len() int { return len(s.queue) }

// IsCar reports whether cmd is a SpawnCar command.
func (c Command) IsCar() bool { return c.kind == kindCar }
