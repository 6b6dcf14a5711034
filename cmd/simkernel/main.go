// Command simkernel runs the traffic simulation headless with an HTTP/WS
// observation surface: it builds (or loads) a world, seeds parking and a bus
// route, schedules the trip list, then steps the kernel on a wall-clock
// ticker until done or interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/antigravity/trafficsim/internal/driving"
	"github.com/antigravity/trafficsim/internal/kernel"
	"github.com/antigravity/trafficsim/internal/mapmodel"
	"github.com/antigravity/trafficsim/internal/runner"
	"github.com/antigravity/trafficsim/internal/simtypes"
	"github.com/antigravity/trafficsim/internal/spawn"
	"github.com/antigravity/trafficsim/internal/transit"
	"github.com/antigravity/trafficsim/internal/walking"
	"github.com/antigravity/trafficsim/server"
)

type settings struct {
	ListenAddr     string
	EnableAdmin    bool
	RunName        string
	DataRoot       string
	Seed           int64
	HasSeed        bool
	SavestateEvery int64
	MapSegments    int
	UpdateInterval time.Duration
	MaxTicks       int64
	StopWhenDone   bool
	TripsPath      string
	LoadSavestate  string
	SeedBusRoute   bool
	ParkingWeights []int
}

func loadSettings() (settings, error) {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		addr       = flag.String("addr", "", "HTTP listen address (overrides config)")
		seed       = flag.Int64("seed", -1, "RNG seed; negative means entropy")
		load       = flag.String("load", "", "savestate path to resume from")
		trips      = flag.String("trips", "", "trip list YAML (overrides config)")
	)
	flag.Parse()

	v := viper.New()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("enable_admin", false)
	v.SetDefault("run_name", "")
	v.SetDefault("data_root", "data")
	v.SetDefault("savestate_every", int64(0))
	v.SetDefault("map_segments", 8)
	v.SetDefault("update_interval", "100ms")
	v.SetDefault("max_ticks", int64(0))
	v.SetDefault("stop_when_done", true)
	v.SetDefault("trips_path", "")
	v.SetDefault("seed_bus_route", true)
	v.SetDefault("parking_weights", []int{1, 2, 1})

	v.SetEnvPrefix("TRAFFICSIM")
	v.AutomaticEnv()

	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := settings{
		ListenAddr:     v.GetString("listen_addr"),
		EnableAdmin:    v.GetBool("enable_admin"),
		RunName:        v.GetString("run_name"),
		DataRoot:       v.GetString("data_root"),
		SavestateEvery: v.GetInt64("savestate_every"),
		MapSegments:    v.GetInt("map_segments"),
		UpdateInterval: v.GetDuration("update_interval"),
		MaxTicks:       v.GetInt64("max_ticks"),
		StopWhenDone:   v.GetBool("stop_when_done"),
		TripsPath:      v.GetString("trips_path"),
		SeedBusRoute:   v.GetBool("seed_bus_route"),
		ParkingWeights: v.GetIntSlice("parking_weights"),
		LoadSavestate:  *load,
	}
	if v.IsSet("seed") {
		cfg.Seed = v.GetInt64("seed")
		cfg.HasSeed = true
	}
	if *seed >= 0 {
		cfg.Seed = *seed
		cfg.HasSeed = true
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *trips != "" {
		cfg.TripsPath = *trips
	}
	return cfg, nil
}

// tripSpec is one entry in the trips YAML file.
type tripSpec struct {
	At           int64  `yaml:"at"`
	Mode         string `yaml:"mode"` // walk, drive, bike, bus, border
	FromBuilding int    `yaml:"from_building"`
	ToBuilding   int    `yaml:"to_building"`
	BorderLane   int    `yaml:"border_lane"`
	Vehicle      string `yaml:"vehicle"` // border mode: car, bike, bus
	Route        int    `yaml:"route"`
	BoardStop    int    `yaml:"board_stop"`
	AlightStop   int    `yaml:"alight_stop"`
}

type tripsFile struct {
	Trips []tripSpec `yaml:"trips"`
}

func main() {
	logger := slog.Default()

	cfg, err := loadSettings()
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	m := mapmodel.GenerateCorridor(cfg.MapSegments)

	var sim *kernel.Sim
	if cfg.LoadSavestate != "" {
		sim, err = kernel.LoadSavestate(cfg.LoadSavestate, cfg.RunName)
		if err != nil {
			logger.Error("failed to load savestate", "path", cfg.LoadSavestate, "err", err)
			os.Exit(1)
		}
	} else {
		var seedPtr *uint64
		if cfg.HasSeed {
			s := uint64(cfg.Seed)
			seedPtr = &s
		}
		var everyPtr *simtypes.Tick
		if cfg.SavestateEvery > 0 {
			t := simtypes.Tick(cfg.SavestateEvery)
			everyPtr = &t
		}
		sim = kernel.New(m, cfg.RunName, seedPtr, everyPtr)
	}
	sim = sim.WithLogger(logger).WithDataRoot(cfg.DataRoot)

	if cfg.LoadSavestate == "" {
		seedWorld(sim, m, cfg, logger)
		if cfg.TripsPath != "" {
			if err := scheduleTrips(sim, m, cfg.TripsPath, logger); err != nil {
				logger.Error("failed to schedule trips", "path", cfg.TripsPath, "err", err)
				os.Exit(1)
			}
		}
	}

	run := runner.NewManager(sim, m, runner.Config{
		UpdateInterval: cfg.UpdateInterval,
		MaxTicks:       cfg.MaxTicks,
		StopWhenDone:   cfg.StopWhenDone,
	}).WithLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run.Start(ctx); err != nil {
		logger.Error("failed to start simulation", "err", err)
		os.Exit(1)
	}

	srv := server.NewServer(run).WithLogger(logger)
	if cfg.EnableAdmin {
		srv = srv.WithAdminEnabled()
	}
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Routes()}

	go func() {
		logger.Info("starting server", "addr", cfg.ListenAddr, "admin_enabled", cfg.EnableAdmin)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped unexpectedly", "err", err)
			cancel()
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signals:
		logger.Info("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	run.Stop()

	if err := run.Err(); err != nil {
		logger.Error("simulation aborted", "err", err)
		os.Exit(1)
	}
}

// seedWorld fills the parking inventory and starts one bus route over the
// generated map's stops.
func seedWorld(sim *kernel.Sim, m *mapmodel.Map, cfg settings, logger *slog.Logger) {
	buildings := make([]simtypes.BuildingID, 0, len(m.Buildings))
	for id := range m.Buildings {
		buildings = append(buildings, id)
	}
	sort.Slice(buildings, func(i, j int) bool { return buildings[i] < buildings[j] })
	seeded := sim.SeedParkedCars(m, buildings, nil, spawn.WeightedUsizeChoice{Weights: cfg.ParkingWeights})
	logger.Info("seeded parking", "cars", len(seeded))

	if !cfg.SeedBusRoute || len(m.BusStops) == 0 {
		return
	}
	stopIDs := make([]simtypes.BusStopID, 0, len(m.BusStops))
	for id := range m.BusStops {
		stopIDs = append(stopIDs, id)
	}
	sort.Slice(stopIDs, func(i, j int) bool { return stopIDs[i] < stopIDs[j] })
	route := transit.Route{ID: 0, Capacity: 40}
	for _, id := range stopIDs {
		stop := m.BusStops[id]
		route.Stops = append(route.Stops, transit.Stop{ID: stop.ID, Lane: stop.Lane, Dist: stop.Dist})
	}
	route.StartLane = route.Stops[0].Lane
	if _, err := sim.SeedBusRoute(m, route); err != nil {
		logger.Warn("bus route not seeded", "err", err)
	}
}

func scheduleTrips(sim *kernel.Sim, m *mapmodel.Map, path string, logger *slog.Logger) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file tripsFile
	if err := yaml.Unmarshal(body, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for i, spec := range file.Trips {
		at := simtypes.Tick(spec.At)
		from := walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: simtypes.BuildingID(spec.FromBuilding)}
		to := walking.SidewalkSpot{Kind: walking.SpotBuilding, Building: simtypes.BuildingID(spec.ToBuilding)}
		goal := driving.DrivingGoal{Kind: driving.ParkNear, Building: simtypes.BuildingID(spec.ToBuilding)}

		switch spec.Mode {
		case "walk":
			sim.StartTripJustWalking(at, from, to)
		case "drive":
			car, ok := carOwnedBy(sim, simtypes.BuildingID(spec.FromBuilding))
			if !ok {
				logger.Warn("no parked car owned by building, trip skipped", "index", i, "building", spec.FromBuilding)
				continue
			}
			if _, err := sim.StartTripUsingParkedCar(at, from, car, goal); err != nil {
				logger.Warn("drive trip not started", "index", i, "err", err)
			}
		case "bike":
			if _, err := sim.StartTripUsingBike(at, m, simtypes.BuildingID(spec.FromBuilding), goal); err != nil {
				logger.Warn("bike trip not started", "index", i, "err", err)
			}
		case "bus":
			sim.StartTripUsingBus(at, from, to,
				simtypes.BusRouteID(spec.Route),
				simtypes.BusStopID(spec.BoardStop),
				simtypes.BusStopID(spec.AlightStop))
		case "border":
			vt := simtypes.VehicleCar
			switch spec.Vehicle {
			case "bike":
				vt = simtypes.VehicleBike
			case "bus":
				vt = simtypes.VehicleBus
			}
			sim.StartTripFromBorder(at, simtypes.LaneID(spec.BorderLane), vt, goal)
		default:
			logger.Warn("unknown trip mode, skipped", "index", i, "mode", spec.Mode)
		}
	}
	logger.Info("scheduled trips", "count", len(file.Trips))
	return nil
}

func carOwnedBy(sim *kernel.Sim, b simtypes.BuildingID) (simtypes.CarID, bool) {
	for _, pc := range sim.Parking().Occupancy() {
		if pc.Owner != nil && *pc.Owner == b {
			if _, taken := sim.Trips().GetTripUsingCar(pc.Car); !taken {
				return pc.Car, true
			}
		}
	}
	return 0, false
}
