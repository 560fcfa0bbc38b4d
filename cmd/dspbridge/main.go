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

	"github.com/sjoerd104/OpenCentauri/internal/bridge"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/devio"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/kbuf"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/msgbox"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/sharespace"
	"github.com/sjoerd104/OpenCentauri/internal/dsp/transport"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/config"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/monitoring"
	"github.com/sjoerd104/OpenCentauri/internal/infrastructure/server"
	"github.com/sjoerd104/OpenCentauri/internal/logging"
	"github.com/sjoerd104/OpenCentauri/internal/shared/id"
	"github.com/sjoerd104/OpenCentauri/internal/vtty"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags override env vars
	flag.StringVar(&cfg.Bridge.LinkPath, "link", cfg.Bridge.LinkPath, "Symlink path for the virtual serial port")
	flag.DurationVar(&cfg.Bridge.PollInterval, "poll", cfg.Bridge.PollInterval, "Bridge loop interval")
	flag.DurationVar(&cfg.Transport.HandshakeTimeout, "handshake-timeout", cfg.Transport.HandshakeTimeout, "Give up waiting for the DSP after this long (0 waits forever)")
	flag.StringVar(&cfg.Server.Addr, "status-addr", cfg.Server.Addr, "Status server address")
	flag.BoolVar(&cfg.Server.Enabled, "status", cfg.Server.Enabled, "Serve /health, /status and /metrics")
	flag.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	root := logging.FromLevel(cfg.Logging.Level, cfg.Logging.Development)
	defer root.Sync()

	linkID := id.NewLinkID()
	logger := root.ForLink("dspbridge", linkID.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, linkID, logger); err != nil {
		logger.Error("dspbridge failed", zap.Error(err))
		root.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, linkID id.LinkID, logger *zap.Logger) error {
	sys := devio.NewHost()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)

	var region *sharespace.Region
	err := timed(metrics, "sharespace_open", func() (err error) {
		region, err = sharespace.Open(sys, sharespace.Config{Device: cfg.Devices.DSPDebug}, sharespace.SelectARMWrite, logger.Named("sharespace"))
		return err
	})
	if err != nil {
		return err
	}
	defer region.Close()

	bufType := kbuf.TypeNonCached
	if cfg.Kbuf.Cached {
		bufType = kbuf.TypeCached
	}
	alloc := kbuf.NewAllocator(sys, kbuf.Config{
		ManagerDevice: cfg.Devices.KbufManager,
		DevDir:        cfg.Devices.DevDir,
		Name:          cfg.Kbuf.Name,
		Length:        cfg.Kbuf.Length,
		Type:          bufType,
	}, logger.Named("kbuf"))
	var buf *kbuf.Buffer
	err = timed(metrics, "kbuf_allocate", func() (err error) {
		buf, err = alloc.Allocate(region.Descriptor().ARMWriteAddr)
		return err
	})
	if err != nil {
		return err
	}
	defer buf.Close()

	var ept *msgbox.Endpoint
	err = timed(metrics, "msgbox_open", func() (err error) {
		ept, err = msgbox.Open(sys, msgbox.Config{
			CtrlDevice: cfg.Devices.RpmsgCtrl,
			ClassDir:   cfg.Devices.RpmsgClassDir,
			DevDir:     cfg.Devices.DevDir,
			Name:       cfg.Msgbox.Name,
			Src:        cfg.Msgbox.Src,
			Dst:        cfg.Msgbox.Dst,
		}, logger.Named("msgbox"))
		return err
	})
	if err != nil {
		return err
	}
	defer ept.Close()

	link, err := transport.New(buf, region, buf.PhysAddr(), ept,
		transport.WithLogger(logger.Named("transport")),
		transport.WithMetrics(metrics),
		transport.WithBackoff(cfg.Transport.HandshakeBackoff),
	)
	if err != nil {
		return err
	}

	link.NegotiateControl()
	if err := timed(metrics, "handshake", func() error {
		return waitPeer(ctx, link, cfg.Transport)
	}); err != nil {
		if ctx.Err() != nil {
			logger.Info("Interrupted during handshake")
			return nil
		}
		return err
	}

	tty, err := vtty.Open(cfg.Bridge.LinkPath)
	if err != nil {
		return err
	}
	logger.Info("Virtual serial port ready",
		zap.String("link", tty.Link()),
		zap.String("pty", tty.Name()))

	b := bridge.New(link, ept, tty, bridge.Config{PollInterval: cfg.Bridge.PollInterval},
		linkID.String(), tty.Link(), logger.Named("bridge"), metrics)

	if cfg.Server.Enabled {
		srv := server.New("dspbridge", cfg.Server, cfg.Logging.Development, metrics, reg,
			func() any { return b.Status() }, logger.Named("server"))
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("Status server stopped", zap.Error(err))
			}
		}()
	}

	runErr := b.Run(ctx)

	logger.Info("Shutting down gracefully...")
	if err := tty.Close(); err != nil {
		logger.Warn("Failed to close virtual serial port", zap.Error(err))
	}
	return runErr
}

// timed runs op under an operation timer labelled with its outcome.
func timed(metrics *monitoring.Metrics, op string, fn func() error) error {
	timer := monitoring.NewTimer(metrics, op)
	if err := fn(); err != nil {
		timer.Stop("error")
		return err
	}
	timer.Stop("success")
	return nil
}

func waitPeer(ctx context.Context, link *transport.Transport, cfg config.TransportConfig) error {
	if cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
	}
	err := link.WaitPeerReady(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("DSP did not answer within %s: %w", cfg.HandshakeTimeout, err)
	}
	return err
}
