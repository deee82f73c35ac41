package daemon

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vision-wallet/go-backend/internal/config"
	"vision-wallet/go-backend/internal/custody"
	"vision-wallet/go-backend/internal/platform/privacylog"
)

// App holds the wired custody stack for one process.
type App struct {
	Config   config.Config
	Storage  StorageBundle
	Service  *custody.Service
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Build opens storage and wires the custody service. Registry is nil when
// metrics are disabled.
func Build(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = privacylog.DefaultLogger()
	}
	bundle, err := BuildStorageBundle(cfg.Storage)
	if err != nil {
		return nil, err
	}

	opts := []custody.Option{custody.WithLogger(logger)}
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, custody.WithMetrics(custody.NewMetrics(reg)))
	}
	svc, err := custody.NewService(bundle.Keystore, opts...)
	if err != nil {
		_ = bundle.Store.Close()
		return nil, err
	}
	logger.Info("custody stack ready",
		"backend", cfg.Storage.Backend,
		"namespace", bundle.Keystore.Namespace(),
		"metrics", cfg.Metrics.Enabled)
	return &App{
		Config:   cfg,
		Storage:  bundle,
		Service:  svc,
		Registry: reg,
		Logger:   logger,
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.Storage.Store == nil {
		return errors.New("app is not initialized")
	}
	return a.Storage.Store.Close()
}
