package mapmodel

import "github.com/antigravity/trafficsim/internal/simtypes"

// GenerateCorridor builds a small, fully deterministic demo map: a chain of n
// intersections joined by roads, each road carrying a driving lane in each
// direction, a parking lane, and a sidewalk on each side; every third road
// also gets biking lanes and every fifth a bus lane, so that lane-permission
// filtering and the BFS near-building helpers all have something to exercise.
// It stands in for a real map import so the kernel has something to run on.
func GenerateCorridor(n int) *Map {
	if n < 2 {
		n = 2
	}
	m := NewMap("corridor-demo")

	nextIntersection := simtypes.IntersectionID(0)
	nextLane := simtypes.LaneID(0)
	nextRoad := simtypes.RoadID(0)
	nextTurn := simtypes.TurnID(0)
	nextBuilding := simtypes.BuildingID(0)

	const segmentLength = 90.0

	newIntersection := func(border bool, control ControlType) simtypes.IntersectionID {
		id := nextIntersection
		nextIntersection++
		m.Intersections[id] = &Intersection{
			ID: id, Control: control, Border: border,
			Pt: Pt2D{X: float64(id) * segmentLength, Y: 0},
		}
		return id
	}
	newLane := func(road simtypes.RoadID, t LaneType, length float64, spots int) simtypes.LaneID {
		id := nextLane
		nextLane++
		m.Lanes[id] = &Lane{ID: id, Road: road, Type: t, LengthM: length, ParkingLot: spots}
		return id
	}

	intersections := make([]simtypes.IntersectionID, n)
	for i := range intersections {
		border := i == 0 || i == n-1
		control := ControlStopSign
		if i%2 == 1 {
			control = ControlSignal
		}
		intersections[i] = newIntersection(border, control)
	}

	type roadLanes struct {
		drivingFwd, drivingBack simtypes.LaneID
		bikingFwd, bikingBack   simtypes.LaneID
		hasBiking               bool
		busFwd                  simtypes.LaneID
		hasBus                  bool
		sidewalkFwd, sidewalkBack simtypes.LaneID
		road                    simtypes.RoadID
	}
	roads := make([]roadLanes, n-1)

	for i := 0; i < n-1; i++ {
		roadID := nextRoad
		nextRoad++
		rl := roadLanes{road: roadID}
		rl.drivingFwd = newLane(roadID, LaneDriving, segmentLength, 0)
		rl.drivingBack = newLane(roadID, LaneDriving, segmentLength, 0)
		parking := newLane(roadID, LaneParking, segmentLength, 4)
		rl.sidewalkFwd = newLane(roadID, LaneSidewalk, segmentLength, 0)
		rl.sidewalkBack = newLane(roadID, LaneSidewalk, segmentLength, 0)
		if i%3 == 0 {
			rl.hasBiking = true
			rl.bikingFwd = newLane(roadID, LaneBiking, segmentLength, 0)
			rl.bikingBack = newLane(roadID, LaneBiking, segmentLength, 0)
		}
		if i%5 == 0 {
			rl.hasBus = true
			rl.busFwd = newLane(roadID, LaneBus, segmentLength, 0)
		}
		if rl.hasBus {
			stopID := simtypes.BusStopID(len(m.BusStops))
			m.AddBusStop(BusStop{ID: stopID, Lane: rl.busFwd, Dist: segmentLength / 2})
		}

		lanes := []simtypes.LaneID{rl.drivingFwd, rl.drivingBack, parking, rl.sidewalkFwd, rl.sidewalkBack}
		if rl.hasBiking {
			lanes = append(lanes, rl.bikingFwd, rl.bikingBack)
		}
		if rl.hasBus {
			lanes = append(lanes, rl.busFwd)
		}
		m.Roads[roadID] = &Road{
			ID:       roadID,
			Lanes:    lanes,
			FromNode: intersections[i],
			ToNode:   intersections[i+1],
		}
		roads[i] = rl

		bID := nextBuilding
		nextBuilding++
		m.Buildings[bID] = &Building{
			ID:   bID,
			Road: roadID,
			FrontPath: FrontPath{
				Sidewalk:          rl.sidewalkFwd,
				DistAlongSidewalk: segmentLength / 2,
			},
		}
	}

	// Stable adjacency: road i's neighbors are road i-1 then road i+1, in that order.
	for i := range roads {
		var next []simtypes.RoadID
		if i > 0 {
			next = append(next, roads[i-1].road)
		}
		if i < len(roads)-1 {
			next = append(next, roads[i+1].road)
		}
		m.Roads[roads[i].road].NextRoads = next
	}

	newTurn := func(at simtypes.IntersectionID, from, to simtypes.LaneID) {
		id := nextTurn
		nextTurn++
		m.AddTurn(Turn{ID: id, From: from, To: to, AtNode: at})
	}

	for i := 0; i < len(roads)-1; i++ {
		at := intersections[i+1]
		a, b := roads[i], roads[i+1]
		newTurn(at, a.drivingFwd, b.drivingFwd)
		newTurn(at, b.drivingBack, a.drivingBack)
		newTurn(at, a.sidewalkFwd, b.sidewalkFwd)
		newTurn(at, b.sidewalkBack, a.sidewalkBack)
		newTurn(at, a.sidewalkFwd, a.sidewalkBack)
		newTurn(at, a.sidewalkBack, a.sidewalkFwd)
		// Forward bike lanes and bus lanes merge into the next road's forward
		// driving lane wherever that road doesn't carry them. A backward bike
		// lane continues only into the previous road's backward bike lane;
		// where that road has none, no turn leaves it at this intersection.
		if a.hasBiking {
			if b.hasBiking {
				newTurn(at, a.bikingFwd, b.bikingFwd)
				newTurn(at, b.bikingBack, a.bikingBack)
			} else {
				newTurn(at, a.bikingFwd, b.drivingFwd)
			}
		}
		if b.hasBiking {
			newTurn(at, a.drivingFwd, b.bikingFwd)
		}
		if a.hasBus {
			if b.hasBus {
				newTurn(at, a.busFwd, b.busFwd)
			} else {
				newTurn(at, a.busFwd, b.drivingFwd)
			}
		}
		if b.hasBus {
			newTurn(at, a.drivingFwd, b.busFwd)
		}
	}

	return m
}
