package mapmodel

import (
	"container/heap"

	"github.com/antigravity/trafficsim/internal/simtypes"
)

// Pathfinder computes shortest-distance routes. It is stateless: every call is
// a pure function of (map, request), which is what lets the Spawner fan a
// batch of requests out across goroutines and still get a deterministic,
// order-preserving result.
type Pathfinder struct{}

// ShortestDistance finds the cheapest route from req.Start to req.End, using
// only lanes allowed under req's permissions. It returns (nil, false) if no
// route exists.
func (Pathfinder) ShortestDistance(m *Map, req PathRequest) (*Path, bool) {
	startLane, ok := m.Lanes[req.Start.Lane]
	if !ok {
		return nil, false
	}
	allowed := allowedLaneTypes(m, req, startLane.Type)

	if req.Start.Lane == req.End.Lane {
		return &Path{
			Start: req.Start,
			End:   req.End,
			Steps: []PathStep{{Kind: StepLane, Lane: req.Start.Lane}},
		}, true
	}

	dist := map[simtypes.LaneID]float64{req.Start.Lane: 0}
	prevTurn := map[simtypes.LaneID]simtypes.TurnID{}
	prevLane := map[simtypes.LaneID]simtypes.LaneID{}
	visited := map[simtypes.LaneID]bool{}

	pq := &laneQueue{{lane: req.Start.Lane, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(laneQueueItem)
		if visited[cur.lane] {
			continue
		}
		visited[cur.lane] = true
		if cur.lane == req.End.Lane {
			break
		}

		lane := m.Lanes[cur.lane]
		if lane == nil {
			continue
		}
		baseCost := dist[cur.lane] + lane.LengthM

		for _, turnID := range m.TurnsFromLane(cur.lane) {
			turn := m.Turns[turnID]
			if turn == nil || visited[turn.To] {
				continue
			}
			toLane := m.Lanes[turn.To]
			if toLane == nil || !allowed[toLane.Type] {
				continue
			}
			newCost := baseCost
			if existing, seen := dist[turn.To]; !seen || newCost < existing {
				dist[turn.To] = newCost
				prevTurn[turn.To] = turnID
				prevLane[turn.To] = cur.lane
				heap.Push(pq, laneQueueItem{lane: turn.To, cost: newCost})
			}
		}
	}

	if !visited[req.End.Lane] {
		return nil, false
	}

	// Walk prevLane/prevTurn back from the end lane to the start lane.
	var lanes []simtypes.LaneID
	var turns []simtypes.TurnID
	cur := req.End.Lane
	for cur != req.Start.Lane {
		lanes = append([]simtypes.LaneID{cur}, lanes...)
		t, ok := prevTurn[cur]
		if !ok {
			return nil, false
		}
		turns = append([]simtypes.TurnID{t}, turns...)
		cur = prevLane[cur]
	}
	lanes = append([]simtypes.LaneID{req.Start.Lane}, lanes...)

	steps := make([]PathStep, 0, len(lanes)+len(turns))
	for i, l := range lanes {
		steps = append(steps, PathStep{Kind: StepLane, Lane: l})
		if i < len(turns) {
			steps = append(steps, PathStep{Kind: StepTurn, Turn: turns[i], Lane: lanes[i+1]})
		}
	}

	return &Path{Start: req.Start, End: req.End, Steps: steps}, true
}

func allowedLaneTypes(m *Map, req PathRequest, startType LaneType) map[LaneType]bool {
	if startType == LaneSidewalk {
		return map[LaneType]bool{LaneSidewalk: true}
	}
	allowed := map[LaneType]bool{LaneDriving: true}
	if req.CanUseBikeLanes {
		allowed[LaneBiking] = true
	}
	if req.CanUseBusLanes {
		allowed[LaneBus] = true
	}
	_ = m
	return allowed
}

// laneQueueItem is one entry in the Dijkstra frontier.
type laneQueueItem struct {
	lane simtypes.LaneID
	cost float64
}

// laneQueue is a container/heap.Interface priority queue ordered by ascending
// cost, tie-broken by ascending LaneID so that equal-cost routes are resolved
// identically on every run.
type laneQueue []laneQueueItem

func (q laneQueue) Len() int { return len(q) }
func (q laneQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].lane < q[j].lane
}
func (q laneQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *laneQueue) Push(x any)   { *q = append(*q, x.(laneQueueItem)) }
func (q *laneQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
