// Package server exposes the observation surface over a running simulation:
// JSON queries for stats, events, trips, and per-agent debug data, plus a
// WebSocket stream of tick snapshots. It only ever reads the kernel through
// runner.Manager's locked accessors; nothing here can mutate the world.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/antigravity/trafficsim/internal/events"
	"github.com/antigravity/trafficsim/internal/geo"
	"github.com/antigravity/trafficsim/internal/kernel"
	"github.com/antigravity/trafficsim/internal/runner"
	"github.com/antigravity/trafficsim/internal/simtypes"
)

var apiLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "trafficsim_api_latency_seconds",
	Help:    "Time spent serving HTTP handlers.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path", "status"})

func init() {
	prometheus.MustRegister(apiLatency)
}

// Server serves the HTTP and WebSocket endpoints for one simulation run.
type Server struct {
	run               *runner.Manager
	wsUpgrader        websocket.Upgrader
	wsInterval        time.Duration
	defaultLimit      int
	logger            *slog.Logger
	correlationHeader string
	adminEnabled      bool
}

// NewServer constructs a Server with sensible streaming defaults.
func NewServer(run *runner.Manager) *Server {
	return &Server{
		run: run,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsInterval:        time.Second,
		defaultLimit:      100,
		logger:            slog.Default(),
		correlationHeader: "X-Correlation-ID",
	}
}

// WithAdminEnabled enables admin-only endpoints like pprof.
func (s *Server) WithAdminEnabled() *Server {
	s.adminEnabled = true
	return s
}

// WithLogger configures structured logging.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithCorrelationHeader configures the header used to propagate correlation IDs.
func (s *Server) WithCorrelationHeader(header string) *Server {
	if header != "" {
		s.correlationHeader = header
	}
	return s
}

// WithStreamInterval configures how often /ws/ticks pushes a snapshot.
func (s *Server) WithStreamInterval(d time.Duration) *Server {
	if d > 0 {
		s.wsInterval = d
	}
	return s
}

// Routes returns an http.Handler serving all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.instrument)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", s.correlationHeader},
	}).Handler)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReadiness)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/events", s.handleEvents)
		r.Get("/trips", s.handleTrips)
		r.Get("/map/preview", s.handleMapPreview)
		r.Get("/agents/car/{id}/tooltip", s.handleCarTooltip)
		r.Get("/agents/car/{id}/path", s.handleCarPath)
		r.Get("/agents/ped/{id}/tooltip", s.handlePedTooltip)
	})

	r.Get("/ws/ticks", s.handleTickStream)
	r.Handle("/metrics", promhttp.Handler())

	if s.adminEnabled {
		r.HandleFunc("/admin/debug/pprof/", pprof.Index)
		r.HandleFunc("/admin/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/admin/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/admin/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/admin/debug/pprof/trace", pprof.Trace)
	}
	return r
}

type tripPoint struct {
	Trip simtypes.TripID `json:"trip"`
	X    float64         `json:"x"`
	Y    float64         `json:"y"`
}

type statsResponse struct {
	Tick   int64       `json:"tick"`
	Clock  string      `json:"clock"`
	Done   bool        `json:"done"`
	Agents []tripPoint `json:"agents"`
}

type eventPayload struct {
	Kind        string `json:"kind"`
	Tick        int64  `json:"tick"`
	Description string `json:"description"`
}

type tripsResponse struct {
	Finished   []simtypes.TripID `json:"finished"`
	Unfinished []simtypes.TripID `json:"unfinished"`
}

type tickPayload struct {
	Tick   int64          `json:"tick"`
	Clock  string         `json:"clock"`
	Done   bool           `json:"done"`
	Events []eventPayload `json:"events"`
	Agents []tripPoint    `json:"agents"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.run == nil || !s.run.Started() {
		http.Error(w, "simulation not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.run.Snapshot()
	writeJSON(w, statsToResponse(snap))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := s.defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	snap := s.run.Snapshot()
	evs := snap.Events
	if len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	out := make([]eventPayload, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventToPayload(e))
	}
	writeJSON(w, out)
}

func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	var resp tripsResponse
	s.run.Query(func(sim *kernel.Sim) {
		resp.Finished = sim.Trips().FinishedTripIDs()
		resp.Unfinished = sim.Trips().UnfinishedTripIDs()
	})
	writeJSON(w, resp)
}

func (s *Server) handleCarTooltip(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var lines []string
	s.run.Query(func(sim *kernel.Sim) {
		lines = sim.TooltipLines(simtypes.Car(simtypes.CarID(id)))
	})
	writeJSON(w, lines)
}

func (s *Server) handlePedTooltip(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var lines []string
	s.run.Query(func(sim *kernel.Sim) {
		lines = sim.TooltipLines(simtypes.Ped(simtypes.PedestrianID(id)))
	})
	writeJSON(w, lines)
}

func (s *Server) handleCarPath(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var lanes []simtypes.LaneID
	found := false
	s.run.Query(func(sim *kernel.Sim) {
		lanes, found = sim.TraceRoute(simtypes.CarID(id))
	})
	if !found {
		http.Error(w, "car not on the network", http.StatusNotFound)
		return
	}
	writeJSON(w, lanes)
}

// handleTickStream pushes a tickPayload every wsInterval until the client
// hangs up, the same push-loop shape as the rest of the API's WS streaming.
func (s *Server) handleTickStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.wsInterval)
	defer ticker.Stop()

	send := func() error {
		snap := s.run.Snapshot()
		payload := tickPayload{
			Tick:  int64(snap.Tick),
			Clock: snap.Tick.String(),
			Done:  snap.Done,
		}
		for _, e := range snap.Events {
			payload.Events = append(payload.Events, eventToPayload(e))
		}
		payload.Agents = statsToResponse(snap).Agents
		return conn.WriteJSON(payload)
	}

	if err := send(); err != nil {
		s.logger.Error("websocket initial send failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				s.logger.Error("websocket send failed", "err", err, "correlation_id", correlationIDFromContext(r.Context()))
				return
			}
		}
	}
}

type latLonPoint struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type mapPreviewResponse struct {
	MinLat        float64       `json:"minLat"`
	MaxLat        float64       `json:"maxLat"`
	MinLon        float64       `json:"minLon"`
	MaxLon        float64       `json:"maxLon"`
	WidthMeters   float64       `json:"widthMeters"`
	Intersections []latLonPoint `json:"intersections"`
}

// handleMapPreview projects the map's planar intersection coordinates into a
// real-world bounding box so a client can draw the network over a base map.
// The graph itself is unitless; the box (query params, defaulting to a
// Seattle-sized patch) supplies the geography.
func (s *Server) handleMapPreview(w http.ResponseWriter, r *http.Request) {
	bounds := geo.BoundingBox{MinLat: 47.58, MaxLat: 47.62, MinLon: -122.36, MaxLon: -122.30}
	for key, dst := range map[string]*float64{
		"minLat": &bounds.MinLat, "maxLat": &bounds.MaxLat,
		"minLon": &bounds.MinLon, "maxLon": &bounds.MaxLon,
	} {
		if v := r.URL.Query().Get(key); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				http.Error(w, "invalid "+key, http.StatusBadRequest)
				return
			}
			*dst = parsed
		}
	}
	if bounds.MinLat >= bounds.MaxLat || bounds.MinLon >= bounds.MaxLon {
		http.Error(w, "invalid bounding box extents", http.StatusBadRequest)
		return
	}

	m := s.run.Map()
	minX, maxX := 0.0, 1.0
	minY, maxY := 0.0, 1.0
	first := true
	for _, in := range m.Intersections {
		if first {
			minX, maxX, minY, maxY = in.Pt.X, in.Pt.X, in.Pt.Y, in.Pt.Y
			first = false
			continue
		}
		minX = min(minX, in.Pt.X)
		maxX = max(maxX, in.Pt.X)
		minY = min(minY, in.Pt.Y)
		maxY = max(maxY, in.Pt.Y)
	}
	spanX, spanY := maxX-minX, maxY-minY
	if spanX == 0 {
		spanX = 1
	}
	if spanY == 0 {
		spanY = 1
	}

	resp := mapPreviewResponse{
		MinLat: bounds.MinLat, MaxLat: bounds.MaxLat,
		MinLon: bounds.MinLon, MaxLon: bounds.MaxLon,
		WidthMeters: geo.GreatCircleDistance(
			geo.LatLon{Lat: bounds.MinLat, Lon: bounds.MinLon},
			geo.LatLon{Lat: bounds.MinLat, Lon: bounds.MaxLon},
		),
	}
	ids := make([]simtypes.IntersectionID, 0, len(m.Intersections))
	for id := range m.Intersections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		in := m.Intersections[id]
		resp.Intersections = append(resp.Intersections, latLonPoint{
			ID:  int64(id),
			Lat: bounds.MinLat + (in.Pt.Y-minY)/spanY*(bounds.MaxLat-bounds.MinLat),
			Lon: bounds.MinLon + (in.Pt.X-minX)/spanX*(bounds.MaxLon-bounds.MinLon),
		})
	}
	writeJSON(w, resp)
}

func statsToResponse(snap runner.TickSnapshot) statsResponse {
	resp := statsResponse{
		Tick:  int64(snap.Tick),
		Clock: snap.Tick.String(),
		Done:  snap.Done,
	}
	for _, trip := range sortedTripIDs(snap.Stats) {
		pt := snap.Stats.CanonicalPtPerTrip[trip]
		resp.Agents = append(resp.Agents, tripPoint{Trip: trip, X: pt.X, Y: pt.Y})
	}
	return resp
}

func sortedTripIDs(stats kernel.SimStats) []simtypes.TripID {
	ids := make([]simtypes.TripID, 0, len(stats.CanonicalPtPerTrip))
	for id := range stats.CanonicalPtPerTrip {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func eventToPayload(e events.Event) eventPayload {
	return eventPayload{Kind: e.Kind.String(), Tick: int64(e.Tick), Description: e.String()}
}

func parseID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		http.Error(w, "invalid agent id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
