package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/parley/internal/config"
	"github.com/harun/parley/internal/logger"
	"github.com/harun/parley/internal/observability"
	"github.com/harun/parley/internal/tracing"
	"github.com/harun/parley/pkg/session"
)

// runtime bundles the pieces every command needs.
type runtime struct {
	cfg     *config.Config
	log     *logger.Logger
	journal *session.Journal
	pruner  *session.Pruner
	watcher *config.Watcher
}

// setup loads configuration and initializes logging, tracing, metrics, and
// the transcript journal.
func setup() (*runtime, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:     level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := tracing.InitOpenTelemetry("parley"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing")
	}

	rt := &runtime{cfg: cfg, log: lg}

	if cfg.Journal.Enabled {
		journal, err := session.NewJournal(cfg.Journal.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize journal: %w", err)
		}
		rt.journal = journal

		retention := time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
		rt.pruner = session.NewPruner(journal, retention)
		if err := rt.pruner.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start transcript pruner")
		}
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.MetricsHandler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics endpoint enabled")
	}

	// Hot-reload the log level when the config file changes.
	watcher, err := config.NewWatcher(loader, func(next *config.Config) {
		logger.SetGlobalLevel(next.Logging.Level)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher")
	} else if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
	} else {
		rt.watcher = watcher
	}

	return rt, nil
}

// close tears down background helpers.
func (rt *runtime) close() {
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.pruner != nil {
		rt.pruner.Stop()
	}
	if rt.log != nil {
		rt.log.Close()
	}
}
