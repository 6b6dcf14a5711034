package scheduler

import "github.com/antigravity/trafficsim/internal/simtypes"

// QueuedSpawn is one pending spawn command flattened for a savestate; the
// unexported kind tag becomes an explicit IsCar bool.
type QueuedSpawn struct {
	At    simtypes.Tick `json:"at"`
	IsCar bool          `json:"is_car"`
	Car   CreateCar     `json:"car,omitempty"`
	Ped   CreatePed     `json:"ped,omitempty"`
	Seq   int           `json:"seq"`
}

// Snapshot is the Scheduler's whole serializable state.
type Snapshot struct {
	Queue   []QueuedSpawn `json:"queue"`
	NextSeq int           `json:"next_seq"`
}

// Snapshot captures the queue in its stored (already sorted) order.
func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{NextSeq: s.nextSeq}
	for _, e := range s.queue {
		snap.Queue = append(snap.Queue, QueuedSpawn{
			At:    e.cmd.At,
			IsCar: e.cmd.IsCar(),
			Car:   e.cmd.Car,
			Ped:   e.cmd.Ped,
			Seq:   e.seq,
		})
	}
	return snap
}

// Restore replaces the queue with snap.
func (s *Scheduler) Restore(snap Snapshot) {
	s.queue = nil
	for _, q := range snap.Queue {
		cmd := Command{At: q.At, Car: q.Car, Ped: q.Ped}
		if q.IsCar {
			cmd.kind = kindCar
		} else {
			cmd.kind = kindPed
		}
		s.queue = append(s.queue, entry{cmd: cmd, seq: q.Seq})
	}
	s.nextSeq = snap.NextSeq
}
