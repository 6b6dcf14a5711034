// Package events defines the Event union emitted by a kernel Step. Events
// follow sub-step order within a tick; ties between classes carry no meaning.
package events

import (
	"fmt"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Kind tags which variant of Event is populated.
type Kind int

const (
	CarReachedParkingSpot Kind = iota
	PedReachedParkingSpot
	PedReachedBuilding
	PedReadyToBike
	BikeReachedEnd
	CarReachedBorder
	PassengerBoarded
	PassengerAlighted
	BusArrivedAtStop
	IntersectionAccepted
	IntersectionOvertime
)

func (k Kind) String() string {
	switch k {
	case CarReachedParkingSpot:
		return "CarReachedParkingSpot"
	case PedReachedParkingSpot:
		return "PedReachedParkingSpot"
	case PedReachedBuilding:
		return "PedReachedBuilding"
	case PedReadyToBike:
		return "PedReadyToBike"
	case BikeReachedEnd:
		return "BikeReachedEnd"
	case CarReachedBorder:
		return "CarReachedBorder"
	case PassengerBoarded:
		return "PassengerBoarded"
	case PassengerAlighted:
		return "PassengerAlighted"
	case BusArrivedAtStop:
		return "BusArrivedAtStop"
	case IntersectionAccepted:
		return "IntersectionAccepted"
	case IntersectionOvertime:
		return "IntersectionOvertime"
	default:
		return "Unknown"
	}
}

// Event is a tagged union; only the fields relevant to Kind are populated.
type Event struct {
	Kind          Kind
	Tick          simtypes.Tick
	Car           simtypes.CarID
	Ped           simtypes.PedestrianID
	Building      simtypes.BuildingID
	ParkingSpot   ParkingSpotRef
	Intersection  simtypes.IntersectionID
	BusRoute      simtypes.BusRouteID
	BusStop       simtypes.BusStopID
	Agent         simtypes.AgentID
}

// ParkingSpotRef identifies one spot in a parking lane's inventory.
type ParkingSpotRef struct {
	Lane simtypes.LaneID
	Idx  int
}

func (r ParkingSpotRef) String() string {
	return fmt.Sprintf("%s spot %d", r.Lane, r.Idx)
}

func (e Event) String() string {
	switch e.Kind {
	case CarReachedParkingSpot:
		return fmt.Sprintf("%s: %s reached %s", e.Kind, e.Car, e.ParkingSpot)
	case PedReachedParkingSpot:
		return fmt.Sprintf("%s: %s reached %s", e.Kind, e.Ped, e.ParkingSpot)
	case PedReachedBuilding:
		return fmt.Sprintf("%s: %s reached %s", e.Kind, e.Ped, e.Building)
	case CarReachedBorder:
		return fmt.Sprintf("%s: %s at %s", e.Kind, e.Car, e.Intersection)
	default:
		return e.Kind.String()
	}
}
