package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"grimm.is/zonefwd/internal/audit"
	"grimm.is/zonefwd/internal/brand"
	"grimm.is/zonefwd/internal/config"
	"grimm.is/zonefwd/internal/ctlplane"
	"grimm.is/zonefwd/internal/firewall"
	"grimm.is/zonefwd/internal/logging"
	"grimm.is/zonefwd/internal/metrics"
	"grimm.is/zonefwd/internal/model"
	"grimm.is/zonefwd/internal/network"
	"grimm.is/zonefwd/internal/pfctl"
	"grimm.is/zonefwd/internal/reconcile"
)

// CtlOptions are the flags of the ctl command.
type CtlOptions struct {
	ConfigFile string
	Netns      string
	DryRun     bool
	Verbose    bool
}

// RunCtl runs the daemon in the foreground until SIGINT or SIGTERM.
func RunCtl(opts CtlOptions) error {
	cfg, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	daemon := cfg.Daemon
	if opts.Netns != "" {
		daemon.Netns = opts.Netns
	}

	logger, err := initializeCtlLogging(daemon, opts.Verbose)
	if err != nil {
		return err
	}

	if opts.DryRun {
		out, err := Render(cfg.Model, liveAddresses(daemon.Netns, logger), logger)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	if os.Geteuid() != 0 {
		return errors.New("must run as root to manage the packet filter")
	}

	nl, err := network.OpenNetlinker(daemon.Netns)
	if err != nil {
		return fmt.Errorf("failed to open netlink: %w", err)
	}
	defer nl.Close()

	backend, err := pfctl.NewKernelBackend(brand.LowerName, nl.NamespaceFd())
	if err != nil {
		return fmt.Errorf("failed to open packet filter: %w", err)
	}

	reg := metrics.Get()

	var recorder reconcile.Recorder
	if daemon.AuditDB != "" {
		store, err := audit.NewStore(daemon.AuditDB, daemon.AuditRetentionDays, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if _, err := store.Prune(context.Background()); err != nil {
			logger.Warn("audit prune failed", "error", err)
		}
		recorder = store
	}

	srv, err := ctlplane.Listen(daemon.Socket, logger, reg)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if daemon.MetricsListen != "" {
		go func() {
			if err := metrics.Serve(ctx, daemon.MetricsListen, prometheus.DefaultGatherer, logger); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	configFile := opts.ConfigFile
	r := reconcile.New(cfg.Model, reconcile.Options{
		Synth:    firewall.New(backend, logger, reg),
		Source:   network.NewResolver(nl, logger),
		Family:   network.FamilyV4,
		Interval: daemon.PollInterval,
		Load: func() (*model.Model, error) {
			c, err := config.LoadFile(configFile)
			if err != nil {
				return nil, err
			}
			return c.Model, nil
		},
		Logger:  logger,
		Metrics: reg,
		Audit:   recorder,
	})

	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("initial build failed: %w", err)
	}
	logger.Info("daemon started", "version", brand.Version, "config", configFile,
		"socket", daemon.Socket, "poll_interval", daemon.PollInterval.String(), "netns", daemon.Netns)

	go func() {
		if err := srv.Serve(ctx); err != nil {
			logger.Error("control socket failed", "error", err)
		}
	}()

	return r.Run(ctx, withReloadSignal(ctx, srv.Requests(), logger))
}

// initializeCtlLogging installs the daemon logger as the default.
func initializeCtlLogging(d config.Daemon, verbose bool) (*logging.Logger, error) {
	level, err := logging.ParseLevel(d.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = logging.LevelDebug
	}
	logging.SetProcessName(brand.BinaryName)
	logger := logging.New(logging.Config{Level: level, Output: os.Stderr})
	logging.SetDefault(logger)
	return logger, nil
}

// withReloadSignal merges control requests with a reload request per SIGHUP.
func withReloadSignal(ctx context.Context, requests <-chan *ctlplane.Request, logger *logging.Logger) <-chan *ctlplane.Request {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)

	out := make(chan *ctlplane.Request)
	go func() {
		defer signal.Stop(hup)
		for {
			var req *ctlplane.Request
			select {
			case req = <-requests:
			case <-hup:
				logger.Info("received SIGHUP, reloading configuration")
				req = ctlplane.NewRequest(ctlplane.Message{Type: ctlplane.TypeReload})
			case <-ctx.Done():
				return
			}
			select {
			case out <- req:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
