package kernel

import (
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Map edits happen between steps only. The
// kernel routes each primitive to the engine that owns the lane or turn:
// Driving/Bus/Biking lanes to DrivingSim, Parking to ParkingSim, Sidewalk to
// WalkingSim. Sidewalk-to-sidewalk turns go to WalkingSim, all others to
// DrivingSim.

// EditAddLane registers a new lane with its owning engine.
func (s *Sim) EditAddLane(m *mapmodel.Map, lane simtypes.LaneID) {
	l, ok := m.GetLane(lane)
	if !ok {
		return
	}
	switch l.Type {
	case mapmodel.LaneParking:
		s.parking.EditAddLane(lane, l.ParkingLot)
	case mapmodel.LaneSidewalk:
		s.walking.EditAddLane(lane)
	default:
		s.driving.EditAddLane(lane)
	}
}

// EditRemoveLane removes a lane from its owning engine, expelling whatever
// sat on it. Expelled drivers lose any spot they had reserved; their trips
// stay open the same way an orphaned trip does.
func (s *Sim) EditRemoveLane(m *mapmodel.Map, lane simtypes.LaneID) {
	l, ok := m.GetLane(lane)
	if !ok {
		return
	}
	switch l.Type {
	case mapmodel.LaneParking:
		for _, pc := range s.parking.EditRemoveLane(lane) {
			s.logger.Warn("kernel: parked car evicted by lane edit", "car", pc.Car, "lane", lane)
		}
	case mapmodel.LaneSidewalk:
		for _, ped := range s.walking.EditRemoveLane(lane) {
			s.logger.Warn("kernel: pedestrian expelled by lane edit", "ped", ped, "lane", lane)
		}
	default:
		for _, car := range s.driving.EditRemoveLane(lane) {
			s.parking.CancelReservation(car)
			s.intersections.DropAgent(simtypes.Car(car))
			s.logger.Warn("kernel: vehicle expelled by lane edit", "car", car, "lane", lane)
		}
	}
}

// EditAddTurn registers a new turn with its owning engine.
func (s *Sim) EditAddTurn(m *mapmodel.Map, turn mapmodel.Turn) {
	if turn.BetweenSidewalks(m) {
		s.walking.EditAddTurn(turn.ID)
		return
	}
	s.driving.EditAddTurn(turn.ID)
	s.intersections.EditAddTurn(turn.ID)
}

// EditRemoveTurn removes a turn; IntersectionSim always hears about non-
// sidewalk removals so no grant outlives the topology it crossed.
func (s *Sim) EditRemoveTurn(m *mapmodel.Map, turn mapmodel.Turn) {
	if turn.BetweenSidewalks(m) {
		s.walking.EditRemoveTurn(turn.ID)
		return
	}
	s.driving.EditRemoveTurn(turn.ID)
	s.intersections.EditRemoveTurn(turn.ID)
}
