package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/config"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/server"
	"github.com/sjoerd104/OpenCentauri/internal/logging"
	"github.com/sjoerd104/OpenCentauri/internal/mux"
	"github.com/sjoerd104/OpenCentauri/internal/shared/id"
)

// Exit codes.
const (
	exitRuntime = 1
	exitUsage   = 2
	exitTable   = 3
	exitDevice  = 4
)

var errUsage = errors.New("specify exactly one of -virtual or -real")

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(exitRuntime)
	}

	virtual := flag.Bool("virtual", false, "Expose each port as a pty under $TMPDIR/vtty")
	physical := flag.Bool("real", false, "Open the devices named in the port table")
	flag.StringVar(&cfg.Mux.PortTable, "config", cfg.Mux.PortTable, "Port table (.toml, .yaml or .yml)")
	flag.StringVar(&cfg.Mux.Device, "device", cfg.Mux.Device, "Multiplexed serial device")
	flag.IntVar(&cfg.Mux.Baud, "baud", cfg.Mux.Baud, "Multiplexed serial baud rate")
	flag.DurationVar(&cfg.Mux.ResyncWait, "resync-wait", cfg.Mux.ResyncWait, "Pause between input flushes after losing sync")
	flag.StringVar(&cfg.Mux.StatusAddr, "status-addr", cfg.Mux.StatusAddr, "Status server address")
	flag.BoolVar(&cfg.Server.Enabled, "status", cfg.Server.Enabled, "Serve /health, /status and /metrics")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	if *virtual == *physical {
		fmt.Fprintln(os.Stderr, errUsage)
		flag.Usage()
		os.Exit(exitUsage)
	}

	root := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer root.Sync()

	muxID := id.NewMuxID()
	logger := root.ForLink("serialmux", muxID.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *virtual, muxID, logger); err != nil {
		logger.Error("serialmux failed", zap.Error(err))
		root.Sync()
		code := exitRuntime
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		os.Exit(code)
	}
}

func run(ctx context.Context, cfg *config.Config, virtual bool, muxID id.MuxID, logger *zap.Logger) error {
	table, err := mux.LoadPortTable(cfg.Mux.PortTable)
	if err != nil {
		return &exitError{exitTable, err}
	}
	if err := table.Validate(!virtual); err != nil {
		return &exitError{exitTable, err}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	line, err := mux.NewPortManager("line", mux.SerialOpener(cfg.Mux.Device, cfg.Mux.Baud),
		logger.Named("port"), mux.WithMetrics(metrics))
	if err != nil {
		return &exitError{exitDevice, err}
	}

	var sides []mux.Side
	closeAll := func() {
		line.Close()
		for _, s := range sides {
			s.Manager.Close()
		}
	}
	for _, e := range table.Entries() {
		open := mux.SerialOpener(e.DevicePath, e.BaudRate)
		if virtual {
			open = mux.VirtualOpener(e.Name)
		}
		m, err := mux.NewPortManager(e.Name, open, logger.Named("port"), mux.WithMetrics(metrics))
		if err != nil {
			closeAll()
			return &exitError{exitDevice, err}
		}
		sides = append(sides, mux.Side{Entry: e, Manager: m})
		logger.Info("Port ready", zap.String("port", e.Name), zap.Uint8("id", e.ID), zap.Bool("virtual", virtual))
	}

	hub, err := mux.NewHub(muxID.String(), line, sides, mux.HubConfig{ResyncWait: cfg.Mux.ResyncWait},
		logger.Named("hub"), metrics)
	if err != nil {
		closeAll()
		return err
	}

	if cfg.Server.Enabled {
		srvCfg := cfg.Server
		srvCfg.Addr = cfg.Mux.StatusAddr
		srv := server.New("serialmux", srvCfg, cfg.Logging.Development, metrics, reg,
			func() any { return hub.Status() }, logger.Named("server"))
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("Status server stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("Starting communication loop...", zap.String("device", cfg.Mux.Device), zap.Int("baud", cfg.Mux.Baud))
	return hub.Run(ctx)
}
