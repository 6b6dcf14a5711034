package transit

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Rider is one passenger aboard a bus and the stop they alight at.
type Rider struct {
	Ped      simtypes.PedestrianID `json:"ped"`
	AlightAt simtypes.BusStopID    `json:"alight_at"`
}

// BusState is one bus flattened for a savestate.
type BusState struct {
	Car            simtypes.CarID      `json:"car"`
	Vehicle        simtypes.Vehicle    `json:"vehicle"`
	Route          simtypes.BusRouteID `json:"route"`
	StopIdx        int                 `json:"stop_idx"`
	Onboard        []Rider             `json:"onboard"`
	DwellRemaining int                 `json:"dwell_remaining"`
}

// WaitingRider is one pedestrian queued at a stop, in boarding order.
type WaitingRider struct {
	Stop     simtypes.BusStopID    `json:"stop"`
	Ped      simtypes.PedestrianID `json:"ped"`
	Route    simtypes.BusRouteID   `json:"route"`
	DestStop simtypes.BusStopID    `json:"dest_stop"`
}

// Snapshot is TransitSim's whole serializable state.
type Snapshot struct {
	Routes  []Route        `json:"routes"`
	Buses   []BusState     `json:"buses"`
	Waiting []WaitingRider `json:"waiting"`
}

// Snapshot captures the engine's state in a deterministic order.
func (s *Sim) Snapshot() Snapshot {
	var snap Snapshot

	routeIDs := make([]simtypes.BusRouteID, 0, len(s.routes))
	for id := range s.routes {
		routeIDs = append(routeIDs, id)
	}
	sort.Slice(routeIDs, func(i, j int) bool { return routeIDs[i] < routeIDs[j] })
	for _, id := range routeIDs {
		snap.Routes = append(snap.Routes, s.routes[id])
	}

	for _, car := range s.Buses() {
		b := s.buses[car]
		bs := BusState{
			Car:            b.car,
			Vehicle:        b.vehicle,
			Route:          b.route,
			StopIdx:        b.stopIdx,
			DwellRemaining: b.atStopUntil,
		}
		for ped, dest := range b.onboard {
			bs.Onboard = append(bs.Onboard, Rider{Ped: ped, AlightAt: dest})
		}
		sort.Slice(bs.Onboard, func(i, j int) bool { return bs.Onboard[i].Ped < bs.Onboard[j].Ped })
		snap.Buses = append(snap.Buses, bs)
	}

	stops := make([]simtypes.BusStopID, 0, len(s.waiting))
	for stop, q := range s.waiting {
		if len(q) > 0 {
			stops = append(stops, stop)
		}
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i] < stops[j] })
	for _, stop := range stops {
		for _, w := range s.waiting[stop] {
			snap.Waiting = append(snap.Waiting, WaitingRider{Stop: stop, Ped: w.ped, Route: w.route, DestStop: w.destStop})
		}
	}

	return snap
}

// Restore replaces the engine's state with snap.
func (s *Sim) Restore(snap Snapshot) {
	s.routes = make(map[simtypes.BusRouteID]Route, len(snap.Routes))
	for _, r := range snap.Routes {
		s.routes[r.ID] = r
	}
	s.buses = make(map[simtypes.CarID]*bus, len(snap.Buses))
	for _, bs := range snap.Buses {
		b := &bus{
			car:         bs.Car,
			vehicle:     bs.Vehicle,
			route:       bs.Route,
			stopIdx:     bs.StopIdx,
			onboard:     make(map[simtypes.PedestrianID]simtypes.BusStopID, len(bs.Onboard)),
			atStopUntil: bs.DwellRemaining,
		}
		for _, r := range bs.Onboard {
			b.onboard[r.Ped] = r.AlightAt
		}
		s.buses[bs.Car] = b
	}
	s.waiting = make(map[simtypes.BusStopID][]waitingPed)
	for _, w := range snap.Waiting {
		s.waiting[w.Stop] = append(s.waiting[w.Stop], waitingPed{ped: w.Ped, route: w.Route, destStop: w.DestStop})
	}
}
