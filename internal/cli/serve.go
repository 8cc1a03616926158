package cli

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/rvaldez/porteria/internal/community"
	"github.com/rvaldez/porteria/internal/config"
	"github.com/rvaldez/porteria/internal/db"
	"github.com/rvaldez/porteria/internal/gate"
	"github.com/rvaldez/porteria/internal/house"
	"github.com/rvaldez/porteria/internal/logging"
	"github.com/rvaldez/porteria/internal/push"
	"github.com/rvaldez/porteria/internal/realtime"
	"github.com/rvaldez/porteria/internal/resident"
	"github.com/rvaldez/porteria/internal/sink"
	"github.com/rvaldez/porteria/internal/visit"
	"github.com/rvaldez/porteria/internal/web"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the HTTP API server: visitor notifications, resident responses, gate control, realtime house channels.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (overrides config)")

	return cmd
}

func runServe(port int) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	if cfg.DBPath == "" {
		cfg.DBPath, err = db.DefaultPath()
		if err != nil {
			return err
		}
	}

	logging.Setup(cfg.DevMode)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			slog.Error("closing database", "error", closeErr)
		}
	}()

	communities := community.NewRepository(database)
	houses := house.NewRepository(database)
	residents := resident.NewRepository(database)
	records := visit.NewRepository(database)
	profiles := visit.NewProfileRepository(database)
	guard := visit.NewGuard(records, cfg.DuplicateWindow, cfg.ArrivalLimit)

	var history sink.HistoryStore
	if cfg.HistoryDSN != "" {
		pg, err := sink.NewPostgresHistory(cfg.HistoryDSN)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := pg.Close(); closeErr != nil {
				slog.Error("closing history store", "error", closeErr)
			}
		}()
		history = pg
	} else {
		slog.Info("history sink disabled: no DSN configured")
	}
	sinks := sink.NewWriter(history, sink.NewSQLiteSearch(database))
	defer sinks.Flush()

	hub := realtime.NewHub()
	actuator := gate.NewActuator(communities, cfg.GatePulse)
	pushClient := push.NewClient(cfg.PushKey, cfg.PushURL, cfg.DevMode)

	scheduler := visit.NewScheduler(records, hub, sinks, cfg.ResponseTimeout)
	if err := scheduler.ArmPending(); err != nil {
		return fmt.Errorf("re-arming pending timers: %w", err)
	}

	orchestrator := visit.NewOrchestrator(records, profiles, guard,
		hub, actuator, pushClient, sinks, residents)

	server, err := web.NewServer(web.Deps{
		Communities:  communities,
		Houses:       houses,
		Residents:    residents,
		Records:      records,
		Profiles:     profiles,
		Guard:        guard,
		Orchestrator: orchestrator,
		Scheduler:    scheduler,
		Gate:         actuator,
		Push:         pushClient,
		Hub:          hub,
		Sinks:        sinks,
		HMACSecret:   cfg.HMACSecret,
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("starting server", "addr", addr, "dev_mode", cfg.DevMode)
	return http.ListenAndServe(addr, logging.RequestLogger(server))
}
