package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"appauth/internal/audit"
	"appauth/internal/authflow"
	"appauth/internal/authstate"
	"appauth/internal/config"
	"appauth/internal/envelope"
	"appauth/internal/keys"
	"appauth/internal/persistence"
	"appauth/internal/prefs"
	"appauth/internal/worker"
	"appauth/pkg/logging"
	"appauth/pkg/oauth"
)

// app holds everything a command needs, wired from the configuration.
type app struct {
	cfg     config.Config
	dir     string
	store   prefs.Store
	keys    *keys.Manager
	gateway *persistence.Gateway
	pool    *worker.Pool
	service *authflow.Service

	closers []func() error
}

// newApp loads the configuration from the --config-dir directory and builds
// the storage, key, persistence, audit and flow layers on top of it.
func newApp(ctx context.Context) (*app, error) {
	dir := configDir
	if dir == "" {
		var err error
		dir, err = config.DefaultConfigDir()
		if err != nil {
			return nil, err
		}
	}

	if err := config.LoadEnv(ctx, dir); err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	if err := initLogging(cfg.Log); err != nil {
		return nil, err
	}
	logging.Debug(logging.SubsystemConfig, "Loaded configuration from %s: %s", dir, cfg)

	a := &app{cfg: cfg, dir: dir}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func initLogging(lc config.LogConfig) error {
	levelName := lc.Level
	if logLevel != "" {
		levelName = logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logging.Init(level, logging.Format(lc.Format), os.Stderr)
	return nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	store, err := prefs.Open(ctx, prefs.Options{
		Backend:   cfg.Storage.Backend,
		Path:      cfg.Storage.Dir,
		DSN:       cfg.Storage.DSN,
		Namespace: cfg.Storage.Namespace,
	})
	if err != nil {
		return fmt.Errorf("failed to open preference store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	backend, err := keys.SelectBackend(ctx, keys.Options{
		Mode:       cfg.Keys.Mode,
		Service:    cfg.Keys.Service,
		KeyDir:     cfg.Keys.Dir,
		CommonName: cfg.Keys.CommonName,
		Prefs:      store,
	})
	if err != nil {
		return fmt.Errorf("failed to select key backend: %w", err)
	}
	a.keys = keys.NewManager(backend)

	suite, err := envelope.ParseSuite(cfg.Encryption.Suite)
	if err != nil {
		return err
	}
	gatewayOpts := []persistence.Option{}
	var readCiphers []*envelope.Cipher
	for _, name := range cfg.Encryption.ReadSuites {
		s, err := envelope.ParseSuite(name)
		if err != nil {
			return err
		}
		if s != suite {
			readCiphers = append(readCiphers, envelope.New(s))
		}
	}
	if len(readCiphers) > 0 {
		gatewayOpts = append(gatewayOpts, persistence.WithReadCiphers(readCiphers...))
	}

	snapshots, err := a.snapshotStore()
	if err != nil {
		return err
	}
	if snapshots != nil {
		gatewayOpts = append(gatewayOpts, persistence.WithSnapshotStore(snapshots))
	}
	a.gateway = persistence.NewGateway(store, a.keys, envelope.New(suite), gatewayOpts...)

	sink := a.auditSink()

	a.pool = worker.NewPool(worker.WithWorkers(cfg.Workers), worker.WithTimeout(cfg.HTTPTimeout))
	a.closers = append(a.closers, func() error {
		a.pool.Close()
		return nil
	})

	client := oauth.NewClient(
		oauth.WithHTTPClient(a.pool.HTTPClient()),
		oauth.WithLogger(logging.For(logging.SubsystemDiscovery)),
	)

	a.service = authflow.NewService(a.gateway.Load(ctx),
		authflow.WithPool(a.pool),
		authflow.WithOAuthClient(client),
		authflow.WithAuditSink(sink),
		authflow.WithClientSecret(cfg.ClientSecret),
		authflow.WithRefreshMargin(cfg.RefreshMargin),
		authflow.WithObserver(a.persist),
	)
	// Runs before the pool is closed.
	a.closers = append([]func() error{func() error {
		a.service.Close()
		return nil
	}}, a.closers...)
	return nil
}

func (a *app) snapshotStore() (persistence.SnapshotStore, error) {
	sc := a.cfg.Snapshot
	switch sc.Backend {
	case "none":
		return nil, nil
	case "redis":
		rs, err := persistence.NewRedisSnapshotStore(sc.RedisURL, "", sc.TTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	default:
		return persistence.NewFileSnapshotStore(sc.Path, sc.TTL), nil
	}
}

func (a *app) auditSink() audit.Sink {
	sinks := audit.MultiSink{audit.NewLogSink(logging.For(logging.SubsystemAudit))}
	if a.cfg.Audit.AMQPURL != "" {
		amqpSink, err := audit.DialAMQPSink(a.cfg.Audit.AMQPURL, a.cfg.Audit.Exchange)
		if err != nil {
			logging.Warn(logging.SubsystemAudit, "AMQP audit sink unavailable: %v", err)
		} else {
			sinks = append(sinks, amqpSink)
			a.closers = append(a.closers, amqpSink.Close)
		}
	}
	return sinks
}

// persist is the state observer: it writes the encrypted state and the
// status snapshot after every change.
func (a *app) persist(ctx context.Context, s *authstate.State) {
	a.gateway.Save(ctx, s)

	var msg string
	if e := s.LastError(); e != nil {
		msg = e.Error()
	}
	a.gateway.SaveSnapshot(ctx, s, msg)
}

// Close releases the service, pool, stores and sinks.
func (a *app) Close() {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		logging.Warn(logging.SubsystemConfig, "Shutdown: %v", err)
	}
}

// requireAuthorized returns an AuthRequiredError unless s holds tokens and
// no latched error.
func requireAuthorized(s *authstate.State) error {
	if e := s.LastError(); e != nil && e.Kind.Latched() {
		return &AuthRequiredError{Reason: "reauthorization required", Err: e}
	}
	if s.AccessToken == "" && s.RefreshToken == "" {
		return &AuthRequiredError{Reason: "not logged in"}
	}
	return nil
}

// progressf prints to stderr unless --quiet is set.
func progressf(format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
	if !strings.HasSuffix(format, "\n") {
		fmt.Fprintln(os.Stderr)
	}
}
