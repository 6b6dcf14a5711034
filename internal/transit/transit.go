// Package transit is TransitSim: bus routes, their stop sequence, and the
// passenger boarding/alighting coordination between a bus and WalkingSim
//. Capacity and board/alight bookkeeping follow the
// load/unload/board/alight idiom used for buses generally: count onboard,
// clamp to capacity, move passengers between "waiting at a stop" and
// "aboard" sets in one bounded pass per stop arrival.
package transit

import (
	"sort"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Stop is one stop along a route.
type Stop struct {
	ID   simtypes.BusStopID
	Lane simtypes.LaneID
	Dist float64
}

// Route is a bus line: an ordered stop sequence buses loop over.
type Route struct {
	ID        simtypes.BusRouteID
	Stops     []Stop
	Capacity  int
	StartLane simtypes.LaneID
}

// bus is one vehicle serving a route.
type bus struct {
	car         simtypes.CarID
	vehicle     simtypes.Vehicle
	route       simtypes.BusRouteID
	stopIdx     int
	onboard     map[simtypes.PedestrianID]simtypes.BusStopID // ped -> alight stop
	atStopUntil int // ticks remaining dwelling at current stop, 0 = moving
}

// Boarded reports a pedestrian that boarded a bus this tick.
type Boarded struct {
	Ped   simtypes.PedestrianID
	Car   simtypes.CarID
	Route simtypes.BusRouteID
}

// Alighted reports a pedestrian that got off a bus this tick.
type Alighted struct {
	Ped     simtypes.PedestrianID
	Car     simtypes.CarID
	BusStop simtypes.BusStopID
}

// Outcomes is what TransitSim.Step hands back for trip transitions.
type Outcomes struct {
	Boarded  []Boarded
	Alighted []Alighted
	// Departed lists buses whose dwell time at a stop just elapsed this tick,
	// so the kernel can advance them to the next stop and let DrivingSim's
	// TransitGate release them starting next tick.
	Departed []simtypes.CarID
}

// dwellTicks is how long a bus idles at a stop to let riders board/alight.
const dwellTicks = 30

// Sim is TransitSim: every known route and the buses currently serving them.
type Sim struct {
	routes map[simtypes.BusRouteID]Route
	buses  map[simtypes.CarID]*bus
	// waiting holds, per stop, the peds waiting there keyed by the route and
	// destination stop they want to ride to.
	waiting map[simtypes.BusStopID][]waitingPed
}

type waitingPed struct {
	ped      simtypes.PedestrianID
	route    simtypes.BusRouteID
	destStop simtypes.BusStopID
}

// New builds an empty TransitSim.
func New() *Sim {
	return &Sim{
		routes:  make(map[simtypes.BusRouteID]Route),
		buses:   make(map[simtypes.CarID]*bus),
		waiting: make(map[simtypes.BusStopID][]waitingPed),
	}
}

// AddRoute registers route r, called once during map/seed setup.
func (s *Sim) AddRoute(r Route) {
	s.routes[r.ID] = r
}

// Route looks up a registered route.
func (s *Sim) Route(id simtypes.BusRouteID) (Route, bool) {
	r, ok := s.routes[id]
	return r, ok
}

// SpawnBus admits vehicle onto route at its first stop, per seed_bus_route
//. The vehicle is remembered so that re-dispatching the bus
// for another lap reuses the same physical bus.
func (s *Sim) SpawnBus(vehicle simtypes.Vehicle, route simtypes.BusRouteID) {
	s.buses[vehicle.ID] = &bus{
		car:     vehicle.ID,
		vehicle: vehicle,
		route:   route,
		onboard: make(map[simtypes.PedestrianID]simtypes.BusStopID),
	}
}

// VehicleOf returns the physical bus serving as car.
func (s *Sim) VehicleOf(car simtypes.CarID) (simtypes.Vehicle, bool) {
	b, ok := s.buses[car]
	if !ok {
		return simtypes.Vehicle{}, false
	}
	return b.vehicle, true
}

// PedWaitForBus registers ped as wanting to board route at the stop it has
// just walked to, riding to destStop. Called on WalkingSim's ReachedBusStop
// outcome.
func (s *Sim) PedWaitForBus(ped simtypes.PedestrianID, stop simtypes.BusStopID, route simtypes.BusRouteID, destStop simtypes.BusStopID) {
	s.waiting[stop] = append(s.waiting[stop], waitingPed{ped: ped, route: route, destStop: destStop})
}

// Step advances every bus: dwelling buses tick down their dwell timer,
// boarding/alighting passengers as they arrive at a stop; moving buses are
// actually driven by DrivingSim's own Step (a bus is a Vehicle of type
// VehicleBus), so this only manages the stop-by-stop passenger exchange.
func (s *Sim) Step(arrivals map[simtypes.CarID]simtypes.BusStopID) Outcomes {
	var out Outcomes

	ids := make([]simtypes.CarID, 0, len(s.buses))
	for id := range s.buses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b := s.buses[id]
		if stopID, arrived := arrivals[id]; arrived && b.atStopUntil == 0 {
			b.atStopUntil = dwellTicks
			s.alight(b, stopID, &out)
			s.board(b, stopID, &out)
		}
		if b.atStopUntil > 0 {
			b.atStopUntil--
			if b.atStopUntil == 0 {
				out.Departed = append(out.Departed, id)
			}
		}
	}

	return out
}

// IsDwelling reports whether car is currently holding at a stop to board or
// alight passengers (DrivingSim's TransitGate).
func (s *Sim) IsDwelling(car simtypes.CarID) bool {
	b, ok := s.buses[car]
	return ok && b.atStopUntil > 0
}

func (s *Sim) alight(b *bus, stopID simtypes.BusStopID, out *Outcomes) {
	peds := make([]simtypes.PedestrianID, 0)
	for ped, dest := range b.onboard {
		if dest == stopID {
			peds = append(peds, ped)
		}
	}
	sort.Slice(peds, func(i, j int) bool { return peds[i] < peds[j] })
	for _, ped := range peds {
		delete(b.onboard, ped)
		out.Alighted = append(out.Alighted, Alighted{Ped: ped, Car: b.car, BusStop: stopID})
	}
}

func (s *Sim) board(b *bus, stopID simtypes.BusStopID, out *Outcomes) {
	route := s.routes[b.route]
	capacity := route.Capacity
	if capacity == 0 {
		capacity = 1 << 30
	}
	remaining := capacity - len(b.onboard)
	if remaining <= 0 {
		return
	}

	queue := s.waiting[stopID]
	var boarded, kept []waitingPed
	for _, w := range queue {
		if remaining > 0 && w.route == b.route {
			b.onboard[w.ped] = w.destStop
			boarded = append(boarded, w)
			remaining--
		} else {
			kept = append(kept, w)
		}
	}
	s.waiting[stopID] = kept

	for _, w := range boarded {
		out.Boarded = append(out.Boarded, Boarded{Ped: w.ped, Car: b.car, Route: b.route})
	}
}

// NextStop reports the stop a bus is currently travelling toward.
func (s *Sim) NextStop(car simtypes.CarID) (Stop, bool) {
	b, ok := s.buses[car]
	if !ok {
		return Stop{}, false
	}
	route := s.routes[b.route]
	if len(route.Stops) == 0 {
		return Stop{}, false
	}
	return route.Stops[b.stopIdx%len(route.Stops)], true
}

// AdvanceStop moves a bus on to the next stop in its route's loop, once Step
// has processed its arrival at the current one.
func (s *Sim) AdvanceStop(car simtypes.CarID) {
	b, ok := s.buses[car]
	if !ok {
		return
	}
	route := s.routes[b.route]
	if len(route.Stops) == 0 {
		return
	}
	b.stopIdx = (b.stopIdx + 1) % len(route.Stops)
}

// Buses returns every active bus's CarID, ascending.
func (s *Sim) Buses() []simtypes.CarID {
	ids := make([]simtypes.CarID, 0, len(s.buses))
	for id := range s.buses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RouteOf reports the route a bus is serving.
func (s *Sim) RouteOf(car simtypes.CarID) (simtypes.BusRouteID, bool) {
	b, ok := s.buses[car]
	if !ok {
		return 0, false
	}
	return b.route, true
}

// IsDone reports whether TransitSim has no buses and no one waiting.
func (s *Sim) IsDone() bool {
	if len(s.buses) != 0 {
		return false
	}
	for _, q := range s.waiting {
		if len(q) > 0 {
			return false
		}
	}
	return true
}
