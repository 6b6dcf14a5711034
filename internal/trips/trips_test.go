package trips

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/parking"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/walking"
)

func TestTripLegTransitions(t *testing.T) {
	ped := simtypes.PedestrianID(1)
	car := simtypes.CarID(2)
	spot := parking.Spot{Lane: 4, Idx: 0}
	goal := driving.DrivingGoal{Kind: driving.ParkNear, Building: 9}
	walkToCar := walking.SidewalkSpot{Kind: walking.SpotParking, Parking: spot}
	walkHome := walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: 9}

	Convey("Given a walk → drive → walk trip", t, func() {
		m := New()
		trip := m.NewTrip(0, &ped, []TripLeg{Walk(walkToCar), Drive(car, goal), Walk(walkHome)})
		So(m.AgentStartingTripLeg(simtypes.Ped(ped), trip), ShouldBeNil)

		Convey("the ped reaching the car yields the drive parameters", func() {
			id, gotCar, gotGoal, err := m.PedReachedParkingSpot(ped)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, trip)
			So(gotCar, ShouldEqual, car)
			So(gotGoal, ShouldResemble, goal)

			Convey("and the car parking yields the final walk", func() {
				So(m.AgentStartingTripLeg(simtypes.Car(car), trip), ShouldBeNil)
				id, gotPed, walkTo, err := m.CarReachedParkingSpot(10, car)
				So(err, ShouldBeNil)
				So(id, ShouldEqual, trip)
				So(*gotPed, ShouldEqual, ped)
				So(walkTo, ShouldResemble, walkHome)

				Convey("and the last walk finishing closes the trip", func() {
					So(m.AgentStartingTripLeg(simtypes.Ped(ped), trip), ShouldBeNil)
					id, err := m.WalkingTripFinished(20, ped)
					So(err, ShouldBeNil)
					So(id, ShouldEqual, trip)
					tr, _ := m.Trip(trip)
					So(tr.FinishedAt, ShouldNotBeNil)
					So(*tr.FinishedAt, ShouldEqual, simtypes.Tick(20))
					So(m.IsDone(), ShouldBeTrue)
				})
			})
		})

		Convey("finishing legs out of order is an error", func() {
			_, _, _, err := m.CarReachedParkingSpot(0, car)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a walk → bike → walk trip", t, func() {
		m := New()
		bike := simtypes.Vehicle{ID: 5, VehicleType: simtypes.VehicleBike, LengthM: 2, MaxSpeedMPS: 5}
		rack := walking.SidewalkSpot{Kind: walking.SpotBikeRack}
		trip := m.NewTrip(0, &ped, []TripLeg{Walk(rack), Bike(bike, goal), Walk(walkHome)})
		So(m.AgentStartingTripLeg(simtypes.Ped(ped), trip), ShouldBeNil)

		Convey("reaching the rack yields the bike and its goal", func() {
			id, gotBike, gotGoal, err := m.PedReadyToBike(ped)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, trip)
			So(gotBike, ShouldResemble, bike)
			So(gotGoal, ShouldResemble, goal)

			Convey("and racking the bike yields the final walk", func() {
				So(m.AgentStartingTripLeg(simtypes.Car(bike.ID), trip), ShouldBeNil)
				_, gotPed, walkTo, err := m.BikeReachedEnd(30, bike.ID)
				So(err, ShouldBeNil)
				So(*gotPed, ShouldEqual, ped)
				So(walkTo, ShouldResemble, walkHome)
			})
		})
	})

	Convey("Given a walk → bus → walk trip", t, func() {
		m := New()
		trip := m.NewTrip(0, &ped, []TripLeg{
			Walk(walking.SidewalkSpot{Kind: walking.SpotBusStop, BusStop: 1}),
			RideBus(3, 2),
			Walk(walkHome),
		})
		So(m.AgentStartingTripLeg(simtypes.Ped(ped), trip), ShouldBeNil)

		Convey("reaching the stop names the route and destination", func() {
			id, route, dest, err := m.PedReachedBusStop(ped)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, trip)
			So(route, ShouldEqual, simtypes.BusRouteID(3))
			So(dest, ShouldEqual, simtypes.BusStopID(2))

			Convey("and alighting yields the final walk", func() {
				_, walkTo, err := m.PedFinishedBusRide(ped)
				So(err, ShouldBeNil)
				So(walkTo, ShouldResemble, walkHome)
			})
		})
	})

	Convey("Given a drive-from-border trip ending at a border", t, func() {
		m := New()
		border := driving.DrivingGoal{Kind: driving.Border, Intersection: 8, BorderLane: 3}
		trip := m.NewTrip(0, nil, []TripLeg{DriveFromBorder(car, border)})
		So(m.AgentStartingTripLeg(simtypes.Car(car), trip), ShouldBeNil)

		id, err := m.CarReachedBorder(15, car)
		So(err, ShouldBeNil)
		So(id, ShouldEqual, trip)
		tr, _ := m.Trip(trip)
		So(tr.FinishedAt, ShouldNotBeNil)
	})

	Convey("Given a bus serving a route", t, func() {
		m := New()
		trip := m.NewTrip(0, nil, []TripLeg{ServeBusRoute(car, 3)})
		So(m.AgentStartingTripLeg(simtypes.Car(car), trip), ShouldBeNil)

		Convey("the ServeBusRoute leg never pops", func() {
			route, serving := m.ServingBusRoute(car)
			So(serving, ShouldBeTrue)
			So(route, ShouldEqual, simtypes.BusRouteID(3))
			tr, _ := m.Trip(trip)
			So(tr.RemainingLegs(), ShouldEqual, 1)
		})
	})
}

func TestDoubleSpawnGuard(t *testing.T) {
	Convey("A car bound to one trip refuses a second", t, func() {
		m := New()
		car := simtypes.CarID(1)
		tripA := m.NewTrip(0, nil, []TripLeg{Drive(car, driving.DrivingGoal{})})
		tripB := m.NewTrip(0, nil, []TripLeg{Drive(car, driving.DrivingGoal{})})
		So(m.AgentStartingTripLeg(simtypes.Car(car), tripA), ShouldBeNil)
		So(m.AgentStartingTripLeg(simtypes.Car(car), tripB), ShouldNotBeNil)

		got, ok := m.GetTripUsingCar(car)
		So(ok, ShouldBeTrue)
		So(got, ShouldEqual, tripA)
	})
}

func TestRemainingLegsAreMonotone(t *testing.T) {
	Convey("Popping legs never grows the queue and finishes exactly once", t, func() {
		m := New()
		ped := simtypes.PedestrianID(1)
		trip := m.NewTrip(0, &ped, []TripLeg{
			Walk(walking.SidewalkSpot{Kind: walking.SpotBusStop, BusStop: 1}),
			RideBus(3, 2),
			Walk(walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: 4}),
		})
		So(m.AgentStartingTripLeg(simtypes.Ped(ped), trip), ShouldBeNil)
		tr, _ := m.Trip(trip)

		last := tr.RemainingLegs()
		_, _, _, err := m.PedReachedBusStop(ped)
		So(err, ShouldBeNil)
		So(tr.RemainingLegs(), ShouldBeLessThan, last)

		last = tr.RemainingLegs()
		_, _, err = m.PedFinishedBusRide(ped)
		So(err, ShouldBeNil)
		So(tr.RemainingLegs(), ShouldBeLessThan, last)

		_, err = m.WalkingTripFinished(9, ped)
		So(err, ShouldBeNil)
		So(tr.RemainingLegs(), ShouldEqual, 0)
		So(tr.FinishedAt, ShouldNotBeNil)
	})
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	Convey("A snapshot restores bindings, legs, and the ID counter", t, func() {
		m := New()
		ped := simtypes.PedestrianID(1)
		trip := m.NewTrip(5, &ped, []TripLeg{Walk(walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: 2})})
		So(m.AgentStartingTripLeg(simtypes.Ped(ped), trip), ShouldBeNil)

		restored := New()
		restored.Restore(m.Snapshot())

		got, ok := restored.GetTripUsingPed(ped)
		So(ok, ShouldBeTrue)
		So(got, ShouldEqual, trip)
		tr, ok := restored.Trip(trip)
		So(ok, ShouldBeTrue)
		So(tr.RemainingLegs(), ShouldEqual, 1)
		So(restored.NewTrip(9, nil, nil), ShouldEqual, trip+1)
	})
}
