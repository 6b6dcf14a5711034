package kernel

import (
	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/simtypes"
)

// SimStats is the per-tick digest: a drawable point for
// every trip with an agent currently in motion, keyed by TripID so a client
// can track one trip's marker across ticks without re-resolving which
// vehicle or pedestrian is currently serving it.
type SimStats struct {
	Time               simtypes.Tick
	CanonicalPtPerTrip map[simtypes.TripID]mapmodel.Pt2D
}

// Stats returns the digest collected at the end of the most recently
// completed Step.
func (s *Sim) Stats() SimStats { return s.lastStats }

func (s *Sim) collectStats(m *mapmodel.Map) SimStats {
	pts := make(map[simtypes.TripID]mapmodel.Pt2D)

	for _, id := range s.driving.ActiveCars() {
		trip, ok := s.trips.GetTripUsingCar(id)
		if !ok {
			continue
		}
		car, ok := s.driving.Lookup(id)
		if !ok {
			continue
		}
		pts[trip] = m.LanePoint(car.CurrentLane(), car.DistAlongLane())
	}
	for _, id := range s.walking.ActivePeds() {
		trip, ok := s.trips.GetTripUsingPed(id)
		if !ok {
			continue
		}
		ped, ok := s.walking.Lookup(id)
		if !ok {
			continue
		}
		pts[trip] = m.LanePoint(ped.CurrentLane(), ped.DistAlongLane())
	}

	return SimStats{Time: s.now, CanonicalPtPerTrip: pts}
}

// TooltipLines renders the debug hover text for an agent:
// a short multi-line description of whatever occupies agent's current
// position, resolved the same way the HTTP debug endpoints do.
func (s *Sim) TooltipLines(agent simtypes.AgentID) []string {
	switch agent.Kind {
	case simtypes.AgentCar:
		return s.debugCar(agent.Car)
	case simtypes.AgentPedestrian:
		return s.debugPed(agent.Ped)
	default:
		return nil
	}
}

func (s *Sim) debugCar(car simtypes.CarID) []string {
	if c, ok := s.driving.Lookup(car); ok {
		return []string{
			car.String(),
			"lane: " + c.CurrentLane().String(),
			"goal: " + c.Goal.String(),
		}
	}
	if pc, ok := s.parking.Lookup(car); ok {
		return []string{car.String(), "parked at " + pc.Spot.String()}
	}
	if route, ok := s.trips.ServingBusRoute(car); ok {
		return []string{car.String(), "serving " + route.String()}
	}
	return []string{car.String(), "not currently on the network"}
}

func (s *Sim) debugPed(ped simtypes.PedestrianID) []string {
	if p, ok := s.walking.Lookup(ped); ok {
		return []string{
			ped.String(),
			"lane: " + p.CurrentLane().String(),
			"goal: " + p.Goal.String(),
		}
	}
	return []string{ped.String(), "not currently walking"}
}

// DebugIntersection reports whether at is currently in overtime.
func (s *Sim) DebugIntersection(at simtypes.IntersectionID) bool {
	return s.intersections.IsInOvertime(at)
}

// IsInOvertime is an alias kept for callers that prefer the spec's own
// query name.
func (s *Sim) IsInOvertime(at simtypes.IntersectionID) bool {
	return s.intersections.IsInOvertime(at)
}

// GetOwnerOfCar resolves a car's owning building, checking both its live
// parked state and (if it's currently driving toward one) its ParkNear goal,
// since a car only carries an explicit owner while it's actually parked.
func (s *Sim) GetOwnerOfCar(car simtypes.CarID) (simtypes.BuildingID, bool) {
	if pc, ok := s.parking.Lookup(car); ok && pc.Owner != nil {
		return *pc.Owner, true
	}
	if c, ok := s.driving.Lookup(car); ok && c.Goal.Kind == driving.ParkNear {
		return c.Goal.Building, true
	}
	return 0, false
}

// GetAcceptedAgents returns every agent currently holding an admission
// grant somewhere in the map, sorted for stable output.
func (s *Sim) GetAcceptedAgents() []simtypes.AgentID {
	return s.intersections.AcceptedAgents()
}

// TraceRoute returns the lane sequence a car or bike is currently following.
func (s *Sim) TraceRoute(car simtypes.CarID) ([]simtypes.LaneID, bool) {
	c, ok := s.driving.Lookup(car)
	if !ok {
		return nil, false
	}
	return c.Path.Lanes(), true
}

// GetPath exposes the underlying *mapmodel.Path for a car currently on the
// network, for callers rendering a full route rather than just its lanes.
func (s *Sim) GetPath(car simtypes.CarID) (*mapmodel.Path, bool) {
	c, ok := s.driving.Lookup(car)
	if !ok {
		return nil, false
	}
	return c.Path, true
}

// GetDrawCar returns the drawable point for a car currently on the network.
func (s *Sim) GetDrawCar(car simtypes.CarID, m *mapmodel.Map) (mapmodel.Pt2D, bool) {
	c, ok := s.driving.Lookup(car)
	if !ok {
		return mapmodel.Pt2D{}, false
	}
	return m.LanePoint(c.CurrentLane(), c.DistAlongLane()), true
}

// GetDrawPed returns the drawable point for a pedestrian currently walking.
func (s *Sim) GetDrawPed(ped simtypes.PedestrianID, m *mapmodel.Map) (mapmodel.Pt2D, bool) {
	p, ok := s.walking.Lookup(ped)
	if !ok {
		return mapmodel.Pt2D{}, false
	}
	return m.LanePoint(p.CurrentLane(), p.DistAlongLane()), true
}
