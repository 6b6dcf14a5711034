package spawn

import "github.com/antigravity/trafficsim/internal/simtypes"

// QueuedCommand pairs a pending Command with its stable insertion sequence.
type QueuedCommand struct {
	Cmd Command `json:"cmd"`
	Seq int     `json:"seq"`
}

// Snapshot is the Spawner's whole serializable state.
type Snapshot struct {
	Queue     []QueuedCommand       `json:"queue"`
	NextSeq   int                   `json:"next_seq"`
	NextCarID simtypes.CarID        `json:"next_car_id"`
	NextPedID simtypes.PedestrianID `json:"next_ped_id"`
	Orphaned  int                   `json:"orphaned"`
}

// Snapshot captures the queue in its stored (already sorted) order.
func (s *Spawner) Snapshot() Snapshot {
	snap := Snapshot{
		NextSeq:   s.nextSeq,
		NextCarID: s.nextCarID,
		NextPedID: s.nextPedID,
		Orphaned:  s.orphaned,
	}
	for _, e := range s.queue {
		snap.Queue = append(snap.Queue, QueuedCommand{Cmd: e.cmd, Seq: e.seq})
	}
	return snap
}

// Restore replaces the queue with snap; the logger is kept.
func (s *Spawner) Restore(snap Snapshot) {
	s.queue = nil
	for _, q := range snap.Queue {
		s.queue = append(s.queue, queueEntry{cmd: q.Cmd, seq: q.Seq})
	}
	s.nextSeq = snap.NextSeq
	s.nextCarID = snap.NextCarID
	s.nextPedID = snap.NextPedID
	s.orphaned = snap.Orphaned
}
