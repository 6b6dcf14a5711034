package simtypes

import "fmt"

// CarID identifies a car, bus, or bike; the three vehicle kinds share one ID space
// because they're all driven on the same lanes by DrivingSim.
type CarID int

func (c CarID) String() string { return fmt.Sprintf("Car #%d", int(c)) }

// PedestrianID identifies a pedestrian.
type PedestrianID int

func (p PedestrianID) String() string { return fmt.Sprintf("Pedestrian #%d", int(p)) }

// TripID identifies a multi-leg trip.
type TripID int

func (t TripID) String() string { return fmt.Sprintf("Trip #%d", int(t)) }

// BuildingID identifies a building.
type BuildingID int

func (b BuildingID) String() string { return fmt.Sprintf("Building #%d", int(b)) }

// LaneID identifies a lane (driving, biking, bus, parking, or sidewalk).
type LaneID int

func (l LaneID) String() string { return fmt.Sprintf("Lane #%d", int(l)) }

// RoadID identifies a road, a bundle of parallel lanes between two intersections.
type RoadID int

func (r RoadID) String() string { return fmt.Sprintf("Road #%d", int(r)) }

// IntersectionID identifies an intersection.
type IntersectionID int

func (i IntersectionID) String() string { return fmt.Sprintf("Intersection #%d", int(i)) }

// TurnID identifies a turn between two lanes at a shared intersection.
type TurnID int

func (t TurnID) String() string { return fmt.Sprintf("Turn #%d", int(t)) }

// BusRouteID identifies a bus route.
type BusRouteID int

func (b BusRouteID) String() string { return fmt.Sprintf("BusRoute #%d", int(b)) }

// BusStopID identifies a bus stop.
type BusStopID int

func (b BusStopID) String() string { return fmt.Sprintf("BusStop #%d", int(b)) }

// AgentKind tags which half of the AgentID union is populated.
type AgentKind uint8

const (
	AgentCar AgentKind = iota
	AgentPedestrian
)

// AgentID is a tagged union over {Car, Pedestrian}, comparable and usable as a map
// key because both fields are plain value types.
type AgentID struct {
	Kind AgentKind
	Car  CarID
	Ped  PedestrianID
}

// Car builds an AgentID for a car/bus/bike.
func Car(id CarID) AgentID { return AgentID{Kind: AgentCar, Car: id} }

// Ped builds an AgentID for a pedestrian.
func Ped(id PedestrianID) AgentID { return AgentID{Kind: AgentPedestrian, Ped: id} }

func (a AgentID) String() string {
	switch a.Kind {
	case AgentCar:
		return a.Car.String()
	case AgentPedestrian:
		return a.Ped.String()
	default:
		return "AgentID(?)"
	}
}
